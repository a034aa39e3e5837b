// Package document loads configuration files into trees and writes trees
// back, choosing the file format by name.
package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// Loader reads a configuration file into a normalized tree.
type Loader interface {
	Load(path string) (diffmap.Tree, error)
}

// Writer persists a tree to a configuration file.
type Writer interface {
	Write(tree diffmap.Tree, dest string, opts WriteOptions) error
}

type WriteOptions struct {
	// PreserveFormatting edits the existing file in place where the format
	// supports it, keeping comments and layout.
	PreserveFormatting bool
	// BackupExisting moves the existing file to <dest>.N.bak before writing.
	BackupExisting bool
}

// Format converts between file contents and trees.
type Format interface {
	Name() string
	Decode(data []byte) (diffmap.Tree, error)
	Encode(tree diffmap.Tree) ([]byte, error)
	// Patch rewrites original so that it decodes to tree, touching as little
	// text as possible. It returns ErrPreserveUnsupported when it cannot.
	Patch(original []byte, tree diffmap.Tree) ([]byte, error)
}

var formats = map[string]Format{
	"namelist": Namelist{},
	"yaml":     YAML{},
	"toml":     TOML{},
	"json":     JSON{},
}

// Formats returns the names of all known formats.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupFormat returns the format registered under name.
func LookupFormat(name string) (Format, error) {
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
	return f, nil
}

// FormatFor picks a format by file extension. Files without a known
// extension, like namelist_cfg, are namelists.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML{}
	case ".toml":
		return TOML{}
	case ".json":
		return JSON{}
	default:
		return Namelist{}
	}
}

// Files implements [Loader] and [Writer] on the local file system.
type Files struct {
	// Format forces a format by name instead of guessing from the extension.
	Format string
}

var (
	_ Loader = Files{}
	_ Writer = Files{}
)

func (f Files) format(path string) (Format, error) {
	if f.Format != "" {
		return LookupFormat(f.Format)
	}
	return FormatFor(path), nil
}

func (f Files) Load(path string) (diffmap.Tree, error) {
	format, err := f.format(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := format.Decode(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.File = path
			return nil, perr
		}
		return nil, &ParseError{File: path, Err: err}
	}
	log.Debug().
		Str("file", path).
		Str("format", format.Name()).
		Int("groups", len(tree)).
		Msg("loaded document")
	return tree, nil
}

func (f Files) Write(tree diffmap.Tree, dest string, opts WriteOptions) error {
	format, err := f.format(dest)
	if err != nil {
		return err
	}

	perm := fs.FileMode(0o644)
	var original []byte
	info, err := os.Stat(dest)
	switch {
	case err == nil:
		perm = info.Mode().Perm()
		if opts.PreserveFormatting {
			if original, err = os.ReadFile(dest); err != nil {
				return err
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		opts.BackupExisting = false
	default:
		return err
	}

	// claim the backup slot before anything is written
	var backup string
	if opts.BackupExisting {
		if backup, err = BackupName(dest); err != nil {
			return err
		}
	}

	var (
		data      []byte
		preserved bool
	)
	if original != nil {
		data, err = format.Patch(original, tree)
		preserved = err == nil
		if errors.Is(err, ErrPreserveUnsupported) {
			log.Warn().Err(err).Str("file", dest).Msg("rewriting the whole file")
			data, err = format.Encode(tree)
		}
	} else {
		data, err = format.Encode(tree)
	}
	if err != nil {
		return fmt.Errorf("cannot encode %s as %s: %w", dest, format.Name(), err)
	}

	if err := writeAtomic(dest, data, perm, backup); err != nil {
		return err
	}
	log.Debug().
		Str("file", dest).
		Str("format", format.Name()).
		Str("backup", backup).
		Bool("preserved", preserved).
		Msg("wrote document")
	return nil
}
