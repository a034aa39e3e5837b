package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loog-project/nmldiff/internal/document"
	"github.com/loog-project/nmldiff/internal/service"
	"github.com/loog-project/nmldiff/internal/store"
	bboltStore "github.com/loog-project/nmldiff/internal/store/bbolt"
)

// Config is the merged view of flags, environment (NMLDIFF_*) and the config
// file.
type Config struct {
	Debug   bool   `mapstructure:"debug"`
	Trace   bool   `mapstructure:"trace"`
	LogFile string `mapstructure:"log-file"`

	Store         string `mapstructure:"store"`
	NoDurableSync bool   `mapstructure:"no-durable-sync"`
	DisableCache  bool   `mapstructure:"disable-cache"`
	Parallelism   int    `mapstructure:"parallelism"`
	Format        string `mapstructure:"format"`

	LabelA             string `mapstructure:"label-a"`
	LabelB             string `mapstructure:"label-b"`
	PreserveFormatting bool   `mapstructure:"preserve-formatting"`
	Backup             bool   `mapstructure:"backup"`
}

var (
	cfgFile string
	config  Config

	closeLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "nmldiff",
	Short: "Compare and port configuration trees",
	Long: `nmldiff compares two hierarchical configuration files (Fortran namelists,
YAML, TOML or JSON), reports which keys exist on one side only and which shared
values differ, and ports the differing values from one file onto another.
Computed diffs can be recorded in a local history database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := viper.Unmarshal(&config); err != nil {
			return fmt.Errorf("cannot read configuration: %w", err)
		}
		return setupLogging(config)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		closeLog()
	},
}

var setupLog = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
	Timestamp().
	Logger()

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	cobra.OnInitialize(initConfig)

	defaultStore := ""
	if home, err := os.UserHomeDir(); err == nil {
		defaultStore = filepath.Join(home, ".nmldiff.db")
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.nmldiff.yaml)")
	flags.Bool("debug", false,
		"Enable debug logging")
	flags.Bool("trace", false,
		"Enable trace logging, including every classified key")
	flags.String("log-file", "",
		"Write logs to this file instead of stderr")
	flags.String("store", defaultStore,
		"Path to the history database")
	flags.Bool("no-durable-sync", false,
		"Skip fsync on every history commit to improve throughput (unsafe on crashes)")
	flags.Bool("disable-cache", false,
		"Disable the in-memory cache of loaded documents")
	flags.IntP("parallelism", "j", 1,
		"Number of top-level groups to diff concurrently")
	flags.String("format", "",
		"Force the document format ("+strings.Join(document.Formats(), ", ")+"), default: by file name")

	for _, name := range []string{
		"debug", "trace", "log-file", "store", "no-durable-sync", "disable-cache", "parallelism", "format",
	} {
		mustBind(name, viper.BindPFlag(name, flags.Lookup(name)))
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".nmldiff")
	}

	viper.SetEnvPrefix("NMLDIFF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		setupLog.Debug().Msgf("Using config file: %s", viper.ConfigFileUsed())
	case cfgFile != "" || !errors.As(err, &notFound):
		setupLog.Warn().Err(err).Msg("Cannot read config file")
	}
}

// setupLogging configures the global logger. Without --debug or --trace
// nothing but warnings is logged.
func setupLogging(cfg Config) error {
	level := zerolog.WarnLevel
	switch {
	case cfg.Trace:
		level = zerolog.TraceLevel
	case cfg.Debug:
		level = zerolog.DebugLevel
	}

	if cfg.LogFile == "" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
			Timestamp().
			Logger().
			Level(level)
		return nil
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open log file: %w", err)
	}
	closeLog = func() {
		if err := logFile.Close(); err != nil {
			setupLog.Error().Err(err).Msg("Error closing log file")
		}
	}
	log.Logger = zerolog.New(logFile).With().
		Timestamp().
		Caller().
		Logger().
		Level(level)
	return nil
}

// newService wires the drift service. The history store is only opened when
// withStore is set, so plain diffs never touch the database.
func newService(withStore bool) (*service.DriftService, error) {
	files := document.Files{Format: config.Format}

	var st store.ArtifactStore
	if withStore {
		if config.Store == "" {
			return nil, errors.New("no history database configured, set --store")
		}
		log.Debug().Str("store-file", config.Store).Msg("Opening history store")
		s, err := bboltStore.New(config.Store, nil, !config.NoDurableSync)
		if err != nil {
			return nil, fmt.Errorf("cannot open history store: %w", err)
		}
		st = s
	}

	return service.NewDriftService(files, files, st, service.Options{
		Parallelism:  config.Parallelism,
		DisableCache: config.DisableCache,
	}), nil
}

func mustBind(flagName string, err error) {
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to bind flag %s", flagName)
	}
}
