package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog/log"

	"github.com/loog-project/nmldiff/internal/document"
	"github.com/loog-project/nmldiff/internal/filter"
	"github.com/loog-project/nmldiff/internal/store"
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// ErrNoStore is returned by history operations when the service runs without
// an artifact store.
var ErrNoStore = errors.New("no artifact store configured")

// Side is one input of a comparison: a file and the label it is diffed under.
type Side struct {
	Path  string
	Label string
}

// Comparison is the outcome of [DriftService.Compare].
type Comparison struct {
	A, B     Side
	TreeA    diffmap.Tree
	TreeB    diffmap.Tree
	Artifact *diffmap.Artifact
}

// PortRequest describes replaying an artifact onto a file.
type PortRequest struct {
	Artifact *diffmap.Artifact
	// Target is the file to patch. It must be the file the artifact knows as
	// side A.
	Target string
	// Label is the label of Target. Empty means the artifact's own A label.
	Label string
	// Destination is where the patched tree is written. Empty means Target.
	Destination string
	Filter      *filter.Filter
	DryRun      bool
	Write       document.WriteOptions
}

type PortResult struct {
	Applied     []diffmap.Path
	Tree        diffmap.Tree
	Destination string
	Written     bool
}

// HistoryEntry is a stored record and the name it was recorded under.
type HistoryEntry struct {
	Name   string
	Record *store.Record
}

type Options struct {
	// Parallelism > 1 diffs top-level groups concurrently.
	Parallelism  int
	DisableCache bool
}

// DriftService compares configuration files, ports differences between them
// and keeps a history of computed artifacts.
type DriftService struct {
	loader      document.Loader
	writer      document.Writer
	store       store.ArtifactStore
	cache       *treeCache
	parallelism int
}

// NewDriftService creates a new DriftService instance. [st] may be nil, the
// history operations then fail with [ErrNoStore].
func NewDriftService(
	loader document.Loader,
	writer document.Writer,
	st store.ArtifactStore,
	opts Options,
) *DriftService {
	s := &DriftService{
		loader:      loader,
		writer:      writer,
		store:       st,
		parallelism: opts.Parallelism,
	}
	if !opts.DisableCache {
		s.cache = newTreeCache()
	}
	return s
}

// Close stops the cache and closes the underlying store.
func (s *DriftService) Close() error {
	if s.cache != nil {
		s.cache.close()
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Load reads a document. The returned tree is owned by the caller.
func (s *DriftService) Load(path string) (diffmap.Tree, error) {
	if s.cache == nil {
		return s.load(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := cacheKey(path)
	if tree := s.cache.get(key, info.ModTime(), info.Size()); tree != nil {
		log.Debug().Str("file", path).Msg("tree cache hit")
		return tree, nil
	}

	tree, err := s.load(path)
	if err != nil {
		return nil, err
	}
	s.cache.set(key, tree, info.ModTime(), info.Size())
	return tree, nil
}

func (s *DriftService) load(path string) (diffmap.Tree, error) {
	tree, err := s.loader.Load(path)
	if err != nil {
		return nil, err
	}
	if e := log.Trace(); e.Enabled() {
		e.Str("file", path).Str("tree", spew.Sdump(tree)).Msg("loaded tree")
	}
	return tree, nil
}

// Compare loads both sides and diffs them.
func (s *DriftService) Compare(ctx context.Context, a, b Side) (*Comparison, error) {
	treeA, err := s.Load(a.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", a.Path, err)
	}
	treeB, err := s.Load(b.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", b.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	art, err := diffmap.Diff(treeA, treeB, a.Label, b.Label,
		diffmap.WithParallelism(s.parallelism),
		diffmap.WithEventSink(traceEvent),
	)
	if err != nil {
		return nil, err
	}
	stats := art.Stats()
	log.Debug().
		Str("a", a.Path).
		Str("b", b.Path).
		Int("differing", stats.Differing).
		Int("equal", stats.Equal).
		Int("onlyInA", stats.OnlyInA).
		Int("onlyInB", stats.OnlyInB).
		Dur("took", time.Since(start)).
		Msg("compared documents")

	a.Label, b.Label = art.A, art.B
	return &Comparison{A: a, B: b, TreeA: treeA, TreeB: treeB, Artifact: art}, nil
}

func traceEvent(ev diffmap.Event) {
	log.Trace().
		Str("path", ev.Path.String()).
		Int("depth", ev.Depth).
		Stringer("class", ev.Class).
		Msg("diff event")
}

// Record stores both trees of cmp as snapshots and the artifact as the next
// record under name.
func (s *DriftService) Record(ctx context.Context, name string, cmp *Comparison) (store.RevisionID, error) {
	if s.store == nil {
		return 0, ErrNoStore
	}
	now := time.Now()

	snapA := &store.Snapshot{Time: now, Source: cmp.A.Path, Tree: cmp.TreeA}
	if err := s.store.SetSnapshot(ctx, cmp.Artifact.A, snapA); err != nil {
		return 0, fmt.Errorf("failed to store snapshot of %s: %w", cmp.A.Path, err)
	}
	snapB := &store.Snapshot{Time: now, Source: cmp.B.Path, Tree: cmp.TreeB}
	if err := s.store.SetSnapshot(ctx, cmp.Artifact.B, snapB); err != nil {
		return 0, fmt.Errorf("failed to store snapshot of %s: %w", cmp.B.Path, err)
	}

	rec := &store.Record{
		Time:      now,
		SnapshotA: snapA.ID,
		SnapshotB: snapB.ID,
		Artifact:  cmp.Artifact,
	}
	if err := s.store.SetRecord(ctx, name, rec); err != nil {
		return 0, fmt.Errorf("failed to store record: %w", err)
	}
	log.Debug().Str("name", name).Stringer("revision", rec.ID).Msg("recorded artifact")
	return rec.ID, nil
}

// Port applies the differing entries of an artifact to a file. All entries
// are resolved before anything is changed; nothing is written on error or in
// dry-run mode.
func (s *DriftService) Port(ctx context.Context, req PortRequest) (*PortResult, error) {
	if req.Artifact == nil {
		return nil, errors.New("no artifact to port")
	}
	label := req.Label
	if label == "" {
		label = req.Artifact.A
	}
	dest := req.Destination
	if dest == "" {
		dest = req.Target
	}

	tree, err := s.Load(req.Target)
	if err != nil {
		return nil, fmt.Errorf("cannot load %s: %w", req.Target, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applied, err := diffmap.Apply(tree, label, req.Artifact, req.Filter.Option())
	if err != nil {
		return nil, err
	}
	res := &PortResult{Applied: applied, Tree: tree, Destination: dest}
	log.Debug().
		Str("target", req.Target).
		Str("filter", req.Filter.String()).
		Int("applied", len(applied)).
		Int("differing", len(req.Artifact.Differing)).
		Msg("applied artifact")

	if req.DryRun || len(applied) == 0 {
		return res, nil
	}
	if err := s.writer.Write(tree, dest, req.Write); err != nil {
		return nil, fmt.Errorf("cannot write %s: %w", dest, err)
	}
	if s.cache != nil {
		s.cache.invalidate(cacheKey(dest))
	}
	res.Written = true
	return res, nil
}

// History lists the stored records of name, or of every name when name is
// empty. Entries are sorted by name, then revision.
func (s *DriftService) History(_ context.Context, name string) ([]HistoryEntry, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	var entries []HistoryEntry
	err := s.store.WalkRecords(func(n string, rec *store.Record) bool {
		if name == "" || n == name {
			entries = append(entries, HistoryEntry{Name: n, Record: rec})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Export returns a stored record. rev is a revision as printed by History,
// "" or "latest" selects the newest one.
func (s *DriftService) Export(ctx context.Context, name, rev string) (*store.Record, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	var id store.RevisionID
	if rev == "" || strings.EqualFold(rev, "latest") {
		latest, err := s.store.GetLatestRevision(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("no records for %q: %w", name, err)
		}
		id = latest
	} else {
		n, err := strconv.ParseUint(rev, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", store.ErrInvalidRevision, rev)
		}
		id = store.RevisionID(n)
	}
	rec, err := s.store.GetRecord(ctx, name, id)
	if err != nil {
		return nil, fmt.Errorf("record %s@%s: %w", name, id, err)
	}
	return rec, nil
}

// Snapshot returns a stored tree.
func (s *DriftService) Snapshot(ctx context.Context, label string, rev store.RevisionID) (*store.Snapshot, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.GetSnapshot(ctx, label, rev)
}
