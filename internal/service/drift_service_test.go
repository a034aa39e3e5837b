package service_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loog-project/nmldiff/internal/document"
	"github.com/loog-project/nmldiff/internal/filter"
	"github.com/loog-project/nmldiff/internal/service"
	"github.com/loog-project/nmldiff/internal/store"
	bboltStore "github.com/loog-project/nmldiff/internal/store/bbolt"
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

const (
	namelistA = `&model
    nx = 100
    ny = 50
    scheme = 'A'
    legacy = .true.
/
`
	namelistB = `&model
    nx = 200
    ny = 50
    scheme = 'B'
    output = 'hourly'
/
`
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newService(t *testing.T, withStore bool) *service.DriftService {
	t.Helper()
	var st store.ArtifactStore
	if withStore {
		s, err := bboltStore.New(filepath.Join(t.TempDir(), "history.db"), nil, false)
		require.NoError(t, err)
		st = s
	}
	svc := service.NewDriftService(document.Files{}, document.Files{}, st, service.Options{Parallelism: 2})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestCompare(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "v40_cfg", namelistA)
	b := writeFile(t, dir, "v42_cfg", namelistB)
	svc := newService(t, false)

	cmp, err := svc.Compare(context.Background(), service.Side{Path: a, Label: "v40"}, service.Side{Path: b})
	require.NoError(t, err)

	art := cmp.Artifact
	assert.Equal(t, "v40", art.A)
	assert.Equal(t, diffmap.DefaultLabelB, art.B)
	assert.Equal(t, diffmap.DefaultLabelB, cmp.B.Label)
	assert.Equal(t, diffmap.Listing{"model": {"legacy"}}, art.UniqueToA[1])
	assert.Equal(t, diffmap.Listing{"model": {"output"}}, art.UniqueToB[1])
	assert.Equal(t, map[string]any{"model.ny": int64(50)}, art.Equal)
	assert.Equal(t, diffmap.Change{A: int64(100), B: int64(200)}, art.Differing["model.nx"])
	assert.Equal(t, diffmap.Change{A: "A", B: "B"}, art.Differing["model.scheme"])
}

func TestLoadCacheReturnsCopies(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "namelist_cfg", namelistA)
	svc := newService(t, false)

	first, err := svc.Load(a)
	require.NoError(t, err)
	first["model"].(diffmap.Tree)["nx"] = int64(-1)

	second, err := svc.Load(a)
	require.NoError(t, err)
	assert.Equal(t, int64(100), second["model"].(diffmap.Tree)["nx"])

	// a rewritten file is picked up even within the same second
	require.NoError(t, os.WriteFile(a, []byte(namelistB), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(a, future, future))

	third, err := svc.Load(a)
	require.NoError(t, err)
	assert.Equal(t, int64(200), third["model"].(diffmap.Tree)["nx"])
}

func TestPort(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "v40_cfg", namelistA)
	b := writeFile(t, dir, "v42_cfg", namelistB)
	svc := newService(t, false)
	ctx := context.Background()

	cmp, err := svc.Compare(ctx, service.Side{Path: a, Label: "v40"}, service.Side{Path: b, Label: "v42"})
	require.NoError(t, err)

	t.Run("label mismatch", func(t *testing.T) {
		_, err := svc.Port(ctx, service.PortRequest{Artifact: cmp.Artifact, Target: a, Label: "v42"})
		assert.ErrorIs(t, err, diffmap.ErrLabelMismatch)
	})

	t.Run("dry run", func(t *testing.T) {
		res, err := svc.Port(ctx, service.PortRequest{Artifact: cmp.Artifact, Target: a, DryRun: true})
		require.NoError(t, err)
		assert.Len(t, res.Applied, 2)
		assert.False(t, res.Written)
		assert.Equal(t, int64(200), res.Tree["model"].(diffmap.Tree)["nx"])

		data, err := os.ReadFile(a)
		require.NoError(t, err)
		assert.Equal(t, namelistA, string(data))
	})

	t.Run("filtered to a copy", func(t *testing.T) {
		f, err := filter.Compile(`Key == "nx"`)
		require.NoError(t, err)
		dest := filepath.Join(dir, "ported_cfg")

		res, err := svc.Port(ctx, service.PortRequest{
			Artifact:    cmp.Artifact,
			Target:      a,
			Destination: dest,
			Filter:      f,
		})
		require.NoError(t, err)
		assert.True(t, res.Written)
		require.Len(t, res.Applied, 1)
		assert.Equal(t, "model.nx", res.Applied[0].String())

		ported, err := svc.Load(dest)
		require.NoError(t, err)
		assert.Equal(t, diffmap.Tree{"model": diffmap.Tree{
			"nx":     int64(200),
			"ny":     int64(50),
			"scheme": "A",
			"legacy": true,
		}}, ported)
	})

	t.Run("in place with backup", func(t *testing.T) {
		res, err := svc.Port(ctx, service.PortRequest{
			Artifact: cmp.Artifact,
			Target:   a,
			Write:    document.WriteOptions{PreserveFormatting: true, BackupExisting: true},
		})
		require.NoError(t, err)
		assert.True(t, res.Written)

		data, err := os.ReadFile(a)
		require.NoError(t, err)
		assert.Equal(t, "&model\n    nx = 200\n    ny = 50\n    scheme = 'B'\n    legacy = .true.\n/\n", string(data))

		backup, err := os.ReadFile(a + ".0.bak")
		require.NoError(t, err)
		assert.Equal(t, namelistA, string(backup))

		// no key is ever added or removed
		again, err := svc.Compare(ctx, service.Side{Path: a, Label: "v40"}, service.Side{Path: b, Label: "v42"})
		require.NoError(t, err)
		assert.Empty(t, again.Artifact.Differing)
		assert.Equal(t, cmp.Artifact.UniqueToA, again.Artifact.UniqueToA)
		assert.Equal(t, cmp.Artifact.UniqueToB, again.Artifact.UniqueToB)
	})
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "v40_cfg", namelistA)
	b := writeFile(t, dir, "v42_cfg", namelistB)
	svc := newService(t, true)
	ctx := context.Background()

	cmp, err := svc.Compare(ctx, service.Side{Path: a, Label: "v40"}, service.Side{Path: b, Label: "v42"})
	require.NoError(t, err)

	rev0, err := svc.Record(ctx, "nemo", cmp)
	require.NoError(t, err)
	rev1, err := svc.Record(ctx, "nemo", cmp)
	require.NoError(t, err)
	_, err = svc.Record(ctx, "other", cmp)
	require.NoError(t, err)
	assert.Equal(t, store.RevisionID(0), rev0)
	assert.Equal(t, store.RevisionID(1), rev1)

	entries, err := svc.History(ctx, "nemo")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, store.RevisionID(0), entries[1].Record.PreviousID)

	all, err := svc.History(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err := svc.Export(ctx, "nemo", "latest")
	require.NoError(t, err)
	assert.Equal(t, rev1, latest.ID)
	assert.Equal(t, cmp.Artifact.Differing, latest.Artifact.Differing)

	first, err := svc.Export(ctx, "nemo", rev0.String())
	require.NoError(t, err)
	assert.Equal(t, rev0, first.ID)

	snap, err := svc.Snapshot(ctx, "v40", first.SnapshotA)
	require.NoError(t, err)
	assert.Equal(t, a, snap.Source)
	assert.Equal(t, cmp.TreeA, snap.Tree)

	_, err = svc.Export(ctx, "nemo", "zz")
	assert.ErrorIs(t, err, store.ErrInvalidRevision)
	_, err = svc.Export(ctx, "missing", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistorySortedByName(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "v40_cfg", namelistA)
	b := writeFile(t, dir, "v42_cfg", namelistB)
	svc := newService(t, true)
	ctx := context.Background()

	cmp, err := svc.Compare(ctx, service.Side{Path: a, Label: "v40"}, service.Side{Path: b, Label: "v42"})
	require.NoError(t, err)
	for _, name := range []string{"a", "ab", "a"} {
		_, err := svc.Record(ctx, name, cmp)
		require.NoError(t, err)
	}

	entries, err := svc.History(ctx, "")
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name+"@"+e.Record.ID.String())
	}
	assert.Equal(t, []string{"a@00000000", "a@00000001", "ab@00000000"}, got)
}

func TestHistoryWithoutStore(t *testing.T) {
	svc := newService(t, false)
	_, err := svc.History(context.Background(), "")
	assert.ErrorIs(t, err, service.ErrNoStore)
}

func BenchmarkCompare(b *testing.B) {
	dir := b.TempDir()
	var sa, sb strings.Builder
	for g := 0; g < 40; g++ {
		fmt.Fprintf(&sa, "&group%02d\n", g)
		fmt.Fprintf(&sb, "&group%02d\n", g)
		for k := 0; k < 50; k++ {
			fmt.Fprintf(&sa, "    key%02d = %d\n", k, k)
			fmt.Fprintf(&sb, "    key%02d = %d\n", k, k%7)
		}
		sa.WriteString("/\n")
		sb.WriteString("/\n")
	}
	pathA := filepath.Join(dir, "a_cfg")
	pathB := filepath.Join(dir, "b_cfg")
	if err := os.WriteFile(pathA, []byte(sa.String()), 0o644); err != nil {
		b.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte(sb.String()), 0o644); err != nil {
		b.Fatal(err)
	}

	svc := service.NewDriftService(document.Files{}, document.Files{}, nil, service.Options{Parallelism: 4})
	defer func() { _ = svc.Close() }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Compare(b.Context(), service.Side{Path: pathA}, service.Side{Path: pathB}); err != nil {
			b.Fatalf("compare: %v", err)
		}
	}
}
