package diffmap

import (
	"maps"
	"sort"
)

const (
	DefaultLabelA = "self"
	DefaultLabelB = "reference"
)

// Listing maps a parent path (see [Path.String]) to the keys found below it.
type Listing map[string][]string

// Change holds the two values of a leaf that differs between A and B.
type Change struct {
	A any `msgpack:"a" yaml:"a"`
	B any `msgpack:"b" yaml:"b"`
}

// Artifact is the result of [Diff]. It is plain data: it can be serialized,
// stored and replayed onto another tree with [Apply].
type Artifact struct {
	// A and B name the compared trees.
	A string `msgpack:"a"`
	B string `msgpack:"b"`

	// UniqueToA and UniqueToB are indexed by depth, then by parent path.
	UniqueToA map[int]Listing `msgpack:"ua"`
	UniqueToB map[int]Listing `msgpack:"ub"`

	// Equal and Differing are keyed by the full path of a shared leaf.
	Equal     map[string]any    `msgpack:"eq"`
	Differing map[string]Change `msgpack:"df"`
}

// NewArtifact returns an empty artifact. Empty labels fall back to
// [DefaultLabelA] and [DefaultLabelB].
func NewArtifact(labelA, labelB string) *Artifact {
	if labelA == "" {
		labelA = DefaultLabelA
	}
	if labelB == "" {
		labelB = DefaultLabelB
	}
	return &Artifact{
		A:         labelA,
		B:         labelB,
		UniqueToA: make(map[int]Listing),
		UniqueToB: make(map[int]Listing),
		Equal:     make(map[string]any),
		Differing: make(map[string]Change),
	}
}

// Stats counts the entries of an artifact.
type Stats struct {
	OnlyInA   int
	OnlyInB   int
	Equal     int
	Differing int
}

func (a *Artifact) Stats() Stats {
	return Stats{
		OnlyInA:   countKeys(a.UniqueToA),
		OnlyInB:   countKeys(a.UniqueToB),
		Equal:     len(a.Equal),
		Differing: len(a.Differing),
	}
}

// Clean reports whether both trees were identical.
func (a *Artifact) Clean() bool {
	s := a.Stats()
	return s.OnlyInA == 0 && s.OnlyInB == 0 && s.Differing == 0
}

// DifferingPaths returns the differing paths in sorted order.
func (a *Artifact) DifferingPaths() []string {
	return sortedKeys(a.Differing)
}

// Merge copies every entry of other into a. Both artifacts must come from
// disjoint subtrees of the same diff.
func (a *Artifact) Merge(other *Artifact) {
	mergeListings(a.UniqueToA, other.UniqueToA)
	mergeListings(a.UniqueToB, other.UniqueToB)
	maps.Copy(a.Equal, other.Equal)
	maps.Copy(a.Differing, other.Differing)
}

// addUnique records keys below parent. Empty key lists are not stored.
func addUnique(dst map[int]Listing, parent Path, keys []string) {
	if len(keys) == 0 {
		return
	}
	depth := len(parent)
	listing, ok := dst[depth]
	if !ok {
		listing = make(Listing)
		dst[depth] = listing
	}
	listing[parent.String()] = keys
}

func mergeListings(dst, src map[int]Listing) {
	for depth, listing := range src {
		if len(listing) == 0 {
			continue
		}
		target, ok := dst[depth]
		if !ok {
			target = make(Listing, len(listing))
			dst[depth] = target
		}
		maps.Copy(target, listing)
	}
}

func countKeys(m map[int]Listing) int {
	n := 0
	for _, listing := range m {
		for _, keys := range listing {
			n += len(keys)
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ensure replaces nil collections with empty ones after decoding.
func (a *Artifact) ensure() {
	if a.UniqueToA == nil {
		a.UniqueToA = make(map[int]Listing)
	}
	if a.UniqueToB == nil {
		a.UniqueToB = make(map[int]Listing)
	}
	if a.Equal == nil {
		a.Equal = make(map[string]any)
	}
	if a.Differing == nil {
		a.Differing = make(map[string]Change)
	}
}
