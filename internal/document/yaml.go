package document

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// YAML documents must hold a mapping at the root. Only the first document of
// a stream is read.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

var yamlLine = regexp.MustCompile(`line (\d+)`)

func (YAML) Decode(data []byte) (diffmap.Tree, error) {
	_, root, err := parseYAML(data)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return diffmap.Tree{}, nil
	}
	v, err := diffmap.DecodeNode(root)
	if err != nil {
		return nil, &ParseError{Line: root.Line, Err: err}
	}
	return v.(diffmap.Tree), nil
}

func (YAML) Encode(tree diffmap.Tree) ([]byte, error) {
	node, err := diffmap.EncodeNode(tree)
	if err != nil {
		return nil, err
	}
	return encodeYAML(node)
}

// Patch edits the parsed node tree, so comments, key order and scalar
// styles of untouched entries survive.
func (YAML) Patch(original []byte, tree diffmap.Tree) ([]byte, error) {
	doc, root, err := parseYAML(original)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return YAML{}.Encode(tree)
	}
	if err := patchMapping(root, tree); err != nil {
		return nil, err
	}
	return encodeYAML(doc)
}

// parseYAML returns the first document and its root mapping, nil for an
// empty document.
func parseYAML(data []byte) (*yaml.Node, *yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, yamlParseError(err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, &ParseError{Line: root.Line, Err: errors.New("document root is not a mapping")}
	}
	return &doc, root, nil
}

func yamlParseError(err error) error {
	perr := &ParseError{Err: err}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		perr.Line, _ = strconv.Atoi(m[1])
	}
	return perr
}

func encodeYAML(node *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func patchMapping(node *yaml.Node, tree diffmap.Tree) error {
	seen := make(map[string]bool, len(tree))
	kept := node.Content[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		want, ok := tree[keyNode.Value]
		if !ok {
			continue
		}
		seen[keyNode.Value] = true

		if sub, isTree := want.(diffmap.Tree); isTree && valueNode.Kind == yaml.MappingNode {
			if err := patchMapping(valueNode, sub); err != nil {
				return err
			}
			kept = append(kept, keyNode, valueNode)
			continue
		}

		have, err := diffmap.DecodeNode(valueNode)
		if err != nil {
			return fmt.Errorf("%s: %w", keyNode.Value, err)
		}
		eq, err := diffmap.Equal(have, want)
		if err != nil {
			return fmt.Errorf("%s: %w", keyNode.Value, err)
		}
		if !eq {
			replacement, err := diffmap.EncodeNode(want)
			if err != nil {
				return fmt.Errorf("%s: %w", keyNode.Value, err)
			}
			replacement.HeadComment = valueNode.HeadComment
			replacement.LineComment = valueNode.LineComment
			replacement.FootComment = valueNode.FootComment
			valueNode = replacement
		}
		kept = append(kept, keyNode, valueNode)
	}
	node.Content = kept

	for _, key := range sortedKeys(tree) {
		if seen[key] {
			continue
		}
		value, err := diffmap.EncodeNode(tree[key])
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
	}
	return nil
}
