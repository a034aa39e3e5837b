// Package patch converts diff artifacts to RFC 6902 JSON Patch documents and
// applies such documents to trees.
package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/wI2L/jsondiff"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// ErrNotPortable is returned by [ApplyPortable] for patches that do more than
// replace existing values under a test of their old value.
var ErrNotPortable = errors.New("patch is not portable")

// Operations turns the differing leaves of [art] into a JSON Patch that
// replays them onto a tree labelled like art.A. Every replace is guarded by a
// test of the old value, so the patch refuses to apply onto a drifted tree.
// Keys present on one side only are not part of the patch.
func Operations(art *diffmap.Artifact) (jsondiff.Patch, error) {
	if art == nil {
		return nil, nil
	}
	ops := make(jsondiff.Patch, 0, 2*len(art.Differing))
	for _, key := range art.DifferingPaths() {
		path, err := diffmap.ParsePath(key)
		if err != nil {
			return nil, fmt.Errorf("differing path %q: %w", key, err)
		}
		change := art.Differing[key]
		ops = append(ops,
			jsondiff.Operation{Type: jsondiff.OperationTest, Path: path.Pointer(), Value: change.A},
			jsondiff.Operation{Type: jsondiff.OperationReplace, Path: path.Pointer(), Value: change.B},
		)
	}
	return ops, nil
}

// Compare returns a list of operations describing the changes needed to
// transform [a] into [b], including added and removed keys.
func Compare(a, b diffmap.Tree) (jsondiff.Patch, error) {
	return jsondiff.Compare(a, b)
}

// Marshal encodes [ops] as an indented JSON document.
func Marshal(ops jsondiff.Patch) ([]byte, error) {
	if ops == nil {
		ops = jsondiff.Patch{}
	}
	return json.MarshalIndent(ops, "", "  ")
}

// ApplyOperations applies [ops] to a copy of [base] and returns the result.
// The round trip goes through JSON: integral floats come back as integers.
func ApplyOperations(base diffmap.Tree, ops jsondiff.Patch) (diffmap.Tree, error) {
	patchBytes, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	return ApplyDocument(base, patchBytes)
}

// ApplyDocument is [ApplyOperations] for an encoded JSON Patch document.
func ApplyDocument(base diffmap.Tree, patchBytes []byte) (diffmap.Tree, error) {
	p, err := jsonpatch.DecodePatch(patchBytes)
	if err != nil {
		return nil, fmt.Errorf("cannot decode patch: %w", err)
	}
	return apply(base, p)
}

// ApplyPortable applies a patch as written by [Operations]: only test and
// replace operations, and every replace preceded by a test of the same path.
// Keys are never added or removed.
func ApplyPortable(base diffmap.Tree, patchBytes []byte) (diffmap.Tree, error) {
	p, err := jsonpatch.DecodePatch(patchBytes)
	if err != nil {
		return nil, fmt.Errorf("cannot decode patch: %w", err)
	}
	tested := make(map[string]bool)
	for i, op := range p {
		path, err := op.Path()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		switch kind := op.Kind(); kind {
		case "test":
			tested[path] = true
		case "replace":
			if !tested[path] {
				return nil, fmt.Errorf("%w: replace of %s is not guarded by a test", ErrNotPortable, path)
			}
		default:
			return nil, fmt.Errorf("%w: %s operation on %s", ErrNotPortable, kind, path)
		}
	}
	return apply(base, p)
}

func apply(base diffmap.Tree, p jsonpatch.Patch) (diffmap.Tree, error) {
	baseBytes, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	out, err := p.Apply(baseBytes)
	if err != nil {
		return nil, fmt.Errorf("cannot apply patch: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	var tree diffmap.Tree
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return diffmap.NormalizeTree(tree)
}
