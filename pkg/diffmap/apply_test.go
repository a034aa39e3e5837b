package diffmap_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

func TestApplyScenario(t *testing.T) {
	a, b := scenario()
	art, err := diffmap.Diff(a, b, "A", "B")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	applied, err := diffmap.Apply(a, "A", art)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) != 1 || applied[0].String() != "model.grid.nx" {
		t.Fatalf("unexpected applied paths %v", applied)
	}

	want := diffmap.Tree{"model": diffmap.Tree{
		"grid":    diffmap.Tree{"nx": int64(200), "ny": 50},
		"physics": diffmap.Tree{"scheme": "A"},
	}}
	if !reflect.DeepEqual(a, want) {
		t.Fatalf("apply failed: got %v, want %v", a, want)
	}
	if _, ok := a["model"].(diffmap.Tree)["output"]; ok {
		t.Fatal("keys unique to B must never be merged in")
	}
}

func TestApplyLabelMismatch(t *testing.T) {
	a, b := scenario()
	before := diffmap.Clone(a)
	art, _ := diffmap.Diff(a, b, "v40", "v42")

	_, err := diffmap.Apply(a, "v42", art)
	if !errors.Is(err, diffmap.ErrLabelMismatch) {
		t.Fatalf("want ErrLabelMismatch, got %v", err)
	}
	var mismatch *diffmap.LabelMismatchError
	if !errors.As(err, &mismatch) || mismatch.Artifact != "v40" || mismatch.Target != "v42" {
		t.Fatalf("error does not carry both labels: %v", err)
	}
	if !reflect.DeepEqual(a, before) {
		t.Fatal("tree was modified despite the label mismatch")
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	art := diffmap.NewArtifact("t", "r")
	art.Differing["g.a"] = diffmap.Change{A: int64(1), B: int64(2)}
	art.Differing["g.missing"] = diffmap.Change{A: int64(1), B: int64(2)}

	target := diffmap.Tree{"g": diffmap.Tree{"a": int64(1)}}
	before := diffmap.Clone(target)

	_, err := diffmap.Apply(target, "t", art)
	if !errors.Is(err, diffmap.ErrPathNotFound) {
		t.Fatalf("want ErrPathNotFound, got %v", err)
	}
	if !reflect.DeepEqual(target, before) {
		t.Fatal("target was partially modified")
	}

	// an ancestor that became a scalar is not navigable either
	art = diffmap.NewArtifact("t", "r")
	art.Differing["g.a"] = diffmap.Change{A: int64(1), B: int64(2)}
	var notFound *diffmap.PathNotFoundError
	_, err = diffmap.Apply(diffmap.Tree{"g": "flat"}, "t", art)
	if !errors.As(err, &notFound) || notFound.Missing != "g" {
		t.Fatalf("want missing segment g, got %v", err)
	}
}

func TestApplyFilter(t *testing.T) {
	a := diffmap.Tree{"g": diffmap.Tree{"x": 1, "y": 1}, "h": diffmap.Tree{"z": 1}}
	b := diffmap.Tree{"g": diffmap.Tree{"x": 2, "y": 2}, "h": diffmap.Tree{"z": 2}}
	art, _ := diffmap.Diff(a, b, "a", "b")

	applied, err := diffmap.Apply(a, "a", art, diffmap.WithPathFilter(func(p diffmap.Path, _ diffmap.Change) (bool, error) {
		return p.HasPrefix(diffmap.Path{"g"}), nil
	}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("want 2 applied paths, got %v", applied)
	}
	if a["h"].(diffmap.Tree)["z"] != 1 {
		t.Fatal("filtered path was applied")
	}

	boom := errors.New("boom")
	_, err = diffmap.Apply(a, "a", art, diffmap.WithPathFilter(func(diffmap.Path, diffmap.Change) (bool, error) {
		return false, boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("want filter error, got %v", err)
	}
}

func TestApplyRoundTripIdempotence(t *testing.T) {
	a, b := genTrees(40)
	art, err := diffmap.Diff(a, b, "a", "b")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if _, err := diffmap.Apply(a, "a", art); err != nil {
		t.Fatalf("apply: %v", err)
	}
	again, err := diffmap.Diff(a, b, "a", "b")
	if err != nil {
		t.Fatalf("second diff: %v", err)
	}
	if len(again.Differing) != 0 {
		t.Fatalf("differing should be empty after apply, got %v", again.Differing)
	}
	if !reflect.DeepEqual(again.UniqueToA, art.UniqueToA) || !reflect.DeepEqual(again.UniqueToB, art.UniqueToB) {
		t.Fatal("unique keys must survive an apply unchanged")
	}
}

func TestApplyIsMinimal(t *testing.T) {
	a, b := genTrees(40)
	art, _ := diffmap.Diff(a, b, "a", "b")
	before := diffmap.Clone(a)

	if _, err := diffmap.Apply(a, "a", art); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for raw, value := range art.Equal {
		got, ok := diffmap.Lookup(a, diffmap.MustParsePath(raw))
		if eq, _ := diffmap.Equal(got, value); !ok || !eq {
			t.Fatalf("equal path %s changed: %v", raw, got)
		}
	}
	for _, m := range []map[int]diffmap.Listing{art.UniqueToA, art.UniqueToB} {
		for _, listing := range m {
			for parent, keys := range listing {
				for _, key := range keys {
					p := diffmap.MustParsePath(parent).Child(key)
					got, okNow := diffmap.Lookup(a, p)
					old, okBefore := diffmap.Lookup(before, p)
					if okNow != okBefore || !reflect.DeepEqual(got, old) {
						t.Fatalf("unique path %s changed", p)
					}
				}
			}
		}
	}
}

func TestApplyCopiesValues(t *testing.T) {
	art := diffmap.NewArtifact("t", "r")
	art.Differing["g.list"] = diffmap.Change{A: []any{int64(1)}, B: []any{int64(2)}}
	target := diffmap.Tree{"g": diffmap.Tree{"list": []any{int64(1)}}}

	if _, err := diffmap.Apply(target, "t", art); err != nil {
		t.Fatalf("apply: %v", err)
	}
	target["g"].(diffmap.Tree)["list"].([]any)[0] = int64(42)
	if art.Differing["g.list"].B.([]any)[0] != int64(2) {
		t.Fatal("applied value aliases the artifact")
	}
}

func BenchmarkApply_Small(b *testing.B) {
	a, bb := scenario()
	art, _ := diffmap.Diff(a, bb, "a", "b")
	for i := 0; i < b.N; i++ {
		dst := diffmap.Clone(a)
		_, _ = diffmap.Apply(dst, "a", art)
	}
}

func BenchmarkApply_1k(b *testing.B) {
	a, bb := genTrees(100)
	art, _ := diffmap.Diff(a, bb, "a", "b")
	for i := 0; i < b.N; i++ {
		dst := diffmap.Clone(a)
		_, _ = diffmap.Apply(dst, "a", art)
	}
}

func TestApplyRejectsOverlappingPaths(t *testing.T) {
	target := diffmap.Tree{"a": diffmap.Tree{"b": int64(1)}}
	art := diffmap.NewArtifact("t", "r")
	art.Differing["a"] = diffmap.Change{A: diffmap.Tree{"b": int64(1)}, B: diffmap.Tree{"b": int64(5)}}
	art.Differing["a.b"] = diffmap.Change{A: int64(1), B: int64(9)}

	applied, err := diffmap.Apply(target, "t", art)
	if !errors.Is(err, diffmap.ErrInvalidPath) {
		t.Fatalf("want ErrInvalidPath, got %v (applied %v)", err, applied)
	}
	want := diffmap.Tree{"a": diffmap.Tree{"b": int64(1)}}
	if !reflect.DeepEqual(target, want) {
		t.Fatalf("target was modified: %v", target)
	}
}

func TestApplyNilArtifact(t *testing.T) {
	target := diffmap.Tree{"a": int64(1)}
	if _, err := diffmap.Apply(target, "t", nil); !errors.Is(err, diffmap.ErrNoArtifact) {
		t.Fatalf("want ErrNoArtifact, got %v", err)
	}
}
