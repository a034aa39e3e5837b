// Package diffmap computes and applies structural differences between two
// hierarchical configuration trees.
//
// A [Tree] maps keys to either a scalar value or another [Tree]. [Diff] walks
// two trees in lock-step and classifies every key as only present in A, only
// present in B, or shared. Shared leaves end up either in [Artifact.Equal] or
// in [Artifact.Differing]. [Apply] replays the differing leaves of an artifact
// onto a tree, leaving every other key untouched.
package diffmap

// Tree is a hierarchical document. Values are either a nested Tree or a
// scalar: string, bool, int64, uint64, float64, nil or a []any of scalars.
type Tree = map[string]any
