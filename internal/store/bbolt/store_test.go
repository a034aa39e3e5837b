package bbolt

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/loog-project/nmldiff/internal/store"
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

var (
	ctx  = context.Background()
	name = "namelist_cfg"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "db.bb"), nil, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleArtifact(t *testing.T) *diffmap.Artifact {
	t.Helper()
	a := diffmap.Tree{"model": diffmap.Tree{"nx": 100, "legacy": true}}
	b := diffmap.Tree{"model": diffmap.Tree{"nx": 200, "output": "x"}}
	art, err := diffmap.Diff(a, b, diffmap.DefaultLabelA, diffmap.DefaultLabelB)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	return art
}

// TestNewAndBuckets checks that the DB opens and buckets exist.
func TestNewAndBuckets(t *testing.T) {
	s := openStore(t)

	info, _ := os.Stat(s.db.Path())
	if info.Size() == 0 {
		t.Fatal("DB file should not be empty")
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	s := openStore(t)

	snap := &store.Snapshot{Source: "a.nml", Tree: diffmap.Tree{"grid": diffmap.Tree{"nx": 100, "dx": 0.5}}}
	if err := s.SetSnapshot(ctx, "self", snap); err != nil {
		t.Fatalf("set snapshot: %v", err)
	}
	if snap.ID != 0 || snap.Label != "self" {
		t.Fatalf("first snapshot should be self@0, got %s@%d", snap.Label, snap.ID)
	}

	got, err := s.GetSnapshot(ctx, "self", 0)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	nx, _ := diffmap.Lookup(got.Tree, diffmap.MustParsePath("grid.nx"))
	if nx != int64(100) {
		t.Fatalf("nx should decode as int64(100), got %T(%v)", nx, nx)
	}
	dx, _ := diffmap.Lookup(got.Tree, diffmap.MustParsePath("grid.dx"))
	if dx != 0.5 {
		t.Fatalf("dx should decode as 0.5, got %T(%v)", dx, dx)
	}

	if _, err := s.GetSnapshot(ctx, "reference", 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown label should be ErrNotFound, got %v", err)
	}
}

func TestRecordRoundtrip(t *testing.T) {
	s := openStore(t)

	if _, err := s.GetLatestRevision(ctx, name); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("empty store should have no latest revision, got %v", err)
	}

	rec1 := &store.Record{Artifact: sampleArtifact(t)}
	if err := s.SetRecord(ctx, name, rec1); err != nil {
		t.Fatalf("set record: %v", err)
	}
	rec2 := &store.Record{Artifact: sampleArtifact(t)}
	if err := s.SetRecord(ctx, name, rec2); err != nil {
		t.Fatalf("set record: %v", err)
	}
	if rec1.ID != 0 || rec2.ID != 1 || rec2.PreviousID != 0 {
		t.Fatalf("unexpected ids: rec1=%d rec2=%d prev=%d", rec1.ID, rec2.ID, rec2.PreviousID)
	}

	if latest, _ := s.GetLatestRevision(ctx, name); latest != 1 {
		t.Fatalf("latest want 1, got %d", latest)
	}

	got, err := s.GetRecord(ctx, name, 1)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	st := got.Artifact.Stats()
	if st.Differing != 1 || st.OnlyInA != 1 || st.OnlyInB != 1 {
		t.Fatalf("unexpected stats after roundtrip: %+v", st)
	}
	change := got.Artifact.Differing["model.nx"]
	if change.A != int64(100) || change.B != int64(200) {
		t.Fatalf("change should decode as int64, got %#v", change)
	}
}

// TestLatestRevisionFromDisk makes sure the counter survives a reopen.
func TestLatestRevisionFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bb")
	s, err := New(path, nil, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.SetRecord(ctx, name, &store.Record{Artifact: sampleArtifact(t)}); err != nil {
			t.Fatalf("set record: %v", err)
		}
	}
	_ = s.Close()

	s, err = New(path, nil, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if latest, _ := s.GetLatestRevision(ctx, name); latest != 2 {
		t.Fatalf("latest want 2, got %d", latest)
	}
}

func TestWalkRecords(t *testing.T) {
	s := openStore(t)
	for _, n := range []string{"b", "a", "b"} {
		if err := s.SetRecord(ctx, n, &store.Record{Artifact: sampleArtifact(t)}); err != nil {
			t.Fatalf("set record: %v", err)
		}
	}

	var seen []string
	err := s.WalkRecords(func(n string, rec *store.Record) bool {
		seen = append(seen, n+"@"+rec.ID.String())
		return true
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := []string{"a@00000000", "b@00000000", "b@00000001"}
	if len(seen) != len(want) {
		t.Fatalf("walk saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("walk saw %v, want %v", seen, want)
		}
	}

	count := 0
	_ = s.WalkRecords(func(string, *store.Record) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("walk should stop after first record, visited %d", count)
	}
}

// TestConcurrentClaims ensures claimNextRevision is atomic.
func TestConcurrentClaims(t *testing.T) {
	s := openStore(t)

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			errs <- s.SetRecord(ctx, name, &store.Record{Artifact: diffmap.NewArtifact("x", "y")})
		}()
	}
	for i := 0; i < 20; i++ {
		if e := <-errs; e != nil {
			t.Fatalf("concurrent SetRecord failed: %v", e)
		}
	}

	if latest, _ := s.GetLatestRevision(ctx, name); latest != 19 {
		t.Fatalf("after 20 writes, latest should be 19, got %d", latest)
	}
}

func TestSplitObjectRevision(t *testing.T) {
	key := keyObjectRevision("a|b", 7)
	n, rev, err := splitObjectRevision(key)
	if err != nil || n != "a|b" || rev != 7 {
		t.Fatalf("split: %q %d %v", n, rev, err)
	}
	if _, _, err := splitObjectRevision([]byte("short")); err == nil {
		t.Fatal("short key should be rejected")
	}
}

// TestPersistedValues verifies that bytes written are real MessagePack.
func TestPersistedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.bb")
	s, _ := New(path, nil, true)
	_ = s.SetSnapshot(ctx, "self", &store.Snapshot{Tree: diffmap.Tree{"k": "v"}})
	_ = s.Close()

	// fixstr "k" followed by fixstr "v"
	blob, _ := os.ReadFile(path)
	if !bytes.Contains(blob, []byte{0xa1, 'k', 0xa1, 'v'}) {
		t.Fatalf("file does not appear to contain the msgpack tree")
	}
}

func TestWalkRecordsKeyOrder(t *testing.T) {
	s := openStore(t)
	for _, n := range []string{"a", "ab"} {
		if err := s.SetRecord(ctx, n, &store.Record{Artifact: sampleArtifact(t)}); err != nil {
			t.Fatalf("set record: %v", err)
		}
	}

	var seen []string
	if err := s.WalkRecords(func(n string, _ *store.Record) bool {
		seen = append(seen, n)
		return true
	}); err != nil {
		t.Fatalf("walk: %v", err)
	}
	// '|' sorts after 'b'
	if len(seen) != 2 || seen[0] != "ab" || seen[1] != "a" {
		t.Fatalf("walk saw %v, want [ab a]", seen)
	}
}
