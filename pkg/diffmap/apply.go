package diffmap

import (
	"errors"
	"fmt"
)

// ErrNoArtifact is returned by [Apply] when it is given a nil artifact.
var ErrNoArtifact = errors.New("no artifact to apply")

type applyOptions struct {
	filter func(Path, Change) (bool, error)
}

// ApplyOption configures [Apply].
type ApplyOption func(*applyOptions)

// WithPathFilter restricts [Apply] to the differing entries for which keep
// returns true. An error returned by keep aborts the apply before any
// mutation.
func WithPathFilter(keep func(Path, Change) (bool, error)) ApplyOption {
	return func(o *applyOptions) { o.filter = keep }
}

// resolvedLeaf is a differing entry located in the target.
type resolvedLeaf struct {
	parent Tree
	key    string
	value  any
}

// Apply sets every differing leaf of art in target to the artifact's B value.
// label must be the label target was diffed under as side A. Keys that are
// equal or only present on one side are never touched, and no key is added
// or removed. All paths are resolved before the first mutation, so on error
// target is left unmodified. It returns the applied paths in sorted order.
//
//	dst := Tree{"grid": Tree{"nx": 100, "ny": 50}}
//	art, _ := Diff(dst, Tree{"grid": Tree{"nx": 200, "ny": 50}}, "v40", "v42")
//	Apply(dst, "v40", art) // dst is now {"grid": {"nx": 200, "ny": 50}}
func Apply(target Tree, label string, art *Artifact, opts ...ApplyOption) ([]Path, error) {
	if art == nil {
		return nil, ErrNoArtifact
	}
	if art.A != label {
		return nil, &LabelMismatchError{Artifact: art.A, Target: label}
	}
	var o applyOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		applied []Path
		leaves  []resolvedLeaf
	)
	for _, raw := range art.DifferingPaths() {
		path, err := ParsePath(raw)
		if err != nil {
			return nil, err
		}
		if len(path) == 0 {
			return nil, fmt.Errorf("%w: differing entry at the root", ErrInvalidPath)
		}
		// a differing leaf never has a differing ancestor
		for i := 1; i < len(path); i++ {
			if _, ok := art.Differing[path[:i].String()]; ok {
				return nil, fmt.Errorf("%w: %q is below the differing entry %q", ErrInvalidPath, raw, path[:i].String())
			}
		}
		change := art.Differing[raw]
		if o.filter != nil {
			keep, err := o.filter(path, change)
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", raw, err)
			}
			if !keep {
				continue
			}
		}
		parent, err := resolveParent(target, path)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, resolvedLeaf{parent: parent, key: path.Key(), value: cloneValue(change.B)})
		applied = append(applied, path)
	}

	for _, leaf := range leaves {
		leaf.parent[leaf.key] = leaf.value
	}
	return applied, nil
}

// resolveParent walks target down to the mapping holding the last segment of
// path. Nothing is created on the way.
func resolveParent(target Tree, path Path) (Tree, error) {
	current := target
	for _, key := range path.Parent() {
		next, ok := current[key].(Tree)
		if !ok {
			return nil, &PathNotFoundError{Path: path, Missing: key}
		}
		current = next
	}
	if _, ok := current[path.Key()]; !ok {
		return nil, &PathNotFoundError{Path: path, Missing: path.Key()}
	}
	return current, nil
}
