package diffpreview

import (
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// ChangeType indicates the kind of change at a node
type ChangeType int

const (
	Unchanged ChangeType = iota
	Added
	Removed
	Modified
)

// AnnotatedNode represents a node in the annotated tree
type AnnotatedNode struct {
	Value    any
	Old      any  // previous value of a Modified leaf
	HasValue bool // false for keys whose value the artifact does not record
	Change   ChangeType
	Children map[string]*AnnotatedNode
}

// Diff compares two trees and builds an annotated tree
func Diff(a, b diffmap.Tree) (*AnnotatedNode, error) {
	art, err := diffmap.Diff(a, b, "", "")
	if err != nil {
		return nil, err
	}
	return Annotate(art, a, b), nil
}

// FromArtifact builds an annotated tree from an artifact alone. Keys only
// present on one side carry no value since the artifact only lists them.
func FromArtifact(art *diffmap.Artifact) *AnnotatedNode {
	return Annotate(art, nil, nil)
}

// Annotate builds an annotated tree from an artifact, looking up the values
// of unique keys in a and b when they are given.
func Annotate(art *diffmap.Artifact, a, b diffmap.Tree) *AnnotatedNode {
	root := newBranch(Unchanged)

	for raw, value := range art.Equal {
		root.put(mustPath(raw), &AnnotatedNode{Value: value, HasValue: true, Change: Unchanged})
	}
	for raw, change := range art.Differing {
		root.put(mustPath(raw), &AnnotatedNode{Value: change.B, Old: change.A, HasValue: true, Change: Modified})
	}
	putUnique(root, art.UniqueToA, a, Removed)
	putUnique(root, art.UniqueToB, b, Added)
	return root
}

func putUnique(root *AnnotatedNode, listings map[int]diffmap.Listing, source diffmap.Tree, change ChangeType) {
	for _, listing := range listings {
		for parent, keys := range listing {
			for _, key := range keys {
				path := mustPath(parent).Child(key)
				node := &AnnotatedNode{Change: change}
				if value, ok := diffmap.Lookup(source, path); ok {
					node = annotateWhole(value, change)
				}
				root.put(path, node)
			}
		}
	}
}

// annotateWhole marks a complete subtree with the same change type.
func annotateWhole(value any, change ChangeType) *AnnotatedNode {
	sub, ok := value.(diffmap.Tree)
	if !ok {
		return &AnnotatedNode{Value: value, HasValue: true, Change: change}
	}
	node := newBranch(change)
	for key, child := range sub {
		node.Children[key] = annotateWhole(child, change)
	}
	return node
}

func newBranch(change ChangeType) *AnnotatedNode {
	return &AnnotatedNode{Change: change, Children: make(map[string]*AnnotatedNode)}
}

// put attaches leaf at path, creating unchanged branches on the way.
func (n *AnnotatedNode) put(path diffmap.Path, leaf *AnnotatedNode) {
	current := n
	for _, key := range path.Parent() {
		next, ok := current.Children[key]
		if !ok || next.Children == nil {
			next = newBranch(Unchanged)
			current.Children[key] = next
		}
		current = next
	}
	current.Children[path.Key()] = leaf
}

// mustPath parses a path taken from an artifact. Unparsable paths are kept as
// a single segment so nothing gets lost in the preview.
func mustPath(raw string) diffmap.Path {
	p, err := diffmap.ParsePath(raw)
	if err != nil {
		return diffmap.Path{raw}
	}
	return p
}
