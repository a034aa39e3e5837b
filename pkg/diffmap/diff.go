package diffmap

import (
	"golang.org/x/sync/errgroup"
)

type options struct {
	sink        EventSink
	parallelism int
}

// Option configures [Diff].
type Option func(*options)

// WithEventSink registers a sink that receives one [Event] per classified key.
func WithEventSink(sink EventSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithParallelism diffs up to n top-level subtrees concurrently. The
// resulting artifact is identical to a sequential diff.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// Diff compares a and b and returns the classification of every key.
// Empty labels default to [DefaultLabelA] and [DefaultLabelB].
//
//	a := Tree{"grid": Tree{"nx": 100, "ny": 50}}
//	b := Tree{"grid": Tree{"nx": 200, "ny": 50}, "io": Tree{}}
//	art, _ := Diff(a, b, "v40", "v42")
//	// art.Differing["grid.nx"] == Change{A: int64(100), B: int64(200)}
//	// art.Equal["grid.ny"]     == int64(50)
//	// art.UniqueToB[0][""]     == []string{"io"}
func Diff(a, b Tree, labelA, labelB string, opts ...Option) (*Artifact, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	out := NewArtifact(labelA, labelB)
	w := walker{sink: o.sink}

	var err error
	if o.parallelism > 1 {
		err = w.walkParallel(a, b, out, o.parallelism)
	} else {
		err = w.walk(a, b, Path{}, out)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

type walker struct {
	sink EventSink
}

func (w walker) emit(p Path, class Class) {
	if w.sink != nil {
		w.sink(Event{Path: p, Depth: len(p) - 1, Class: class})
	}
}

// walk classifies the keys of the sibling mappings a and b found at path.
func (w walker) walk(a, b Tree, path Path, out *Artifact) error {
	for _, key := range w.partition(a, b, path, out) {
		if err := w.visit(a[key], b[key], path.Child(key), out); err != nil {
			return err
		}
	}
	return nil
}

// partition records the unique keys found at path and returns the common ones.
func (w walker) partition(a, b Tree, path Path, out *Artifact) []string {
	onlyA, onlyB, common := CompareKeys(a, b)
	addUnique(out.UniqueToA, path, onlyA)
	addUnique(out.UniqueToB, path, onlyB)
	for _, key := range onlyA {
		w.emit(path.Child(key), OnlyInA)
	}
	for _, key := range onlyB {
		w.emit(path.Child(key), OnlyInB)
	}
	return common
}

// visit handles a key present on both sides: two subtrees are descended
// into, anything else is a leaf comparison.
func (w walker) visit(valueA, valueB any, path Path, out *Artifact) error {
	subA, okA := valueA.(Tree)
	subB, okB := valueB.(Tree)
	if okA && okB {
		w.emit(path, Descended)
		return w.walk(subA, subB, path, out)
	}
	return w.compareLeaf(valueA, valueB, path, out)
}

func (w walker) compareLeaf(valueA, valueB any, path Path, out *Artifact) error {
	na, err := Normalize(valueA)
	if err != nil {
		return &IncomparableValueError{Path: path, Err: err}
	}
	nb, err := Normalize(valueB)
	if err != nil {
		return &IncomparableValueError{Path: path, Err: err}
	}
	if equalNormalized(na, nb) {
		out.Equal[path.String()] = na
		w.emit(path, Same)
		return nil
	}
	out.Differing[path.String()] = Change{A: na, B: nb}
	w.emit(path, Changed)
	return nil
}

// walkParallel partitions the root serially, then diffs every common subtree
// pair into its own partial artifact. Partials are merged in key order once
// all of them are done.
func (w walker) walkParallel(a, b Tree, out *Artifact, limit int) error {
	var subtrees []string
	for _, key := range w.partition(a, b, Path{}, out) {
		_, okA := a[key].(Tree)
		_, okB := b[key].(Tree)
		if okA && okB {
			subtrees = append(subtrees, key)
			continue
		}
		if err := w.compareLeaf(a[key], b[key], Path{key}, out); err != nil {
			return err
		}
	}

	partials := make([]*Artifact, len(subtrees))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, key := range subtrees {
		subA, subB := a[key].(Tree), b[key].(Tree)
		g.Go(func() error {
			partial := NewArtifact(out.A, out.B)
			path := Path{key}
			w.emit(path, Descended)
			if err := w.walk(subA, subB, path, partial); err != nil {
				return err
			}
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, partial := range partials {
		if partial != nil {
			out.Merge(partial)
		}
	}
	return nil
}
