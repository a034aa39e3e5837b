package diffmap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Serialize encodes an artifact as YAML. [Deserialize] restores it exactly:
// floats are always tagged so an integral float never comes back as an int.
func Serialize(a *Artifact) ([]byte, error) {
	return yaml.Marshal(a)
}

// Deserialize decodes an artifact written by [Serialize].
func Deserialize(data []byte) (*Artifact, error) {
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}

// artifactDocument is the YAML layout of an [Artifact].
type artifactDocument struct {
	A         string          `yaml:"a"`
	B         string          `yaml:"b"`
	UniqueToA map[int]Listing `yaml:"uniqueToA,omitempty"`
	UniqueToB map[int]Listing `yaml:"uniqueToB,omitempty"`
	Equal     yaml.Node       `yaml:"equal,omitempty"`
	Differing yaml.Node       `yaml:"differing,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (a *Artifact) MarshalYAML() (any, error) {
	doc := artifactDocument{
		A:         a.A,
		B:         a.B,
		UniqueToA: a.UniqueToA,
		UniqueToB: a.UniqueToB,
	}
	if len(a.Equal) > 0 {
		doc.Equal = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, path := range sortedKeys(a.Equal) {
			value, err := EncodeNode(a.Equal[path])
			if err != nil {
				return nil, fmt.Errorf("equal %q: %w", path, err)
			}
			doc.Equal.Content = append(doc.Equal.Content, stringNode(path), value)
		}
	}
	if len(a.Differing) > 0 {
		doc.Differing = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, path := range sortedKeys(a.Differing) {
			change := a.Differing[path]
			valueA, err := EncodeNode(change.A)
			if err != nil {
				return nil, fmt.Errorf("differing %q: %w", path, err)
			}
			valueB, err := EncodeNode(change.B)
			if err != nil {
				return nil, fmt.Errorf("differing %q: %w", path, err)
			}
			pair := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{
				stringNode("a"), valueA,
				stringNode("b"), valueB,
			}}
			doc.Differing.Content = append(doc.Differing.Content, stringNode(path), pair)
		}
	}
	return doc, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Artifact) UnmarshalYAML(node *yaml.Node) error {
	var doc artifactDocument
	if err := node.Decode(&doc); err != nil {
		return err
	}
	*a = Artifact{A: doc.A, B: doc.B, UniqueToA: doc.UniqueToA, UniqueToB: doc.UniqueToB}
	a.ensure()

	if doc.Equal.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Equal.Content); i += 2 {
			value, err := DecodeNode(doc.Equal.Content[i+1])
			if err != nil {
				return fmt.Errorf("equal %q: %w", doc.Equal.Content[i].Value, err)
			}
			a.Equal[doc.Equal.Content[i].Value] = value
		}
	}
	if doc.Differing.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Differing.Content); i += 2 {
			path := doc.Differing.Content[i].Value
			pair := doc.Differing.Content[i+1]
			if pair.Kind != yaml.MappingNode {
				return fmt.Errorf("differing %q: expected a mapping with keys a and b", path)
			}
			var change Change
			for j := 0; j+1 < len(pair.Content); j += 2 {
				value, err := DecodeNode(pair.Content[j+1])
				if err != nil {
					return fmt.Errorf("differing %q: %w", path, err)
				}
				switch pair.Content[j].Value {
				case "a":
					change.A = value
				case "b":
					change.B = value
				default:
					return fmt.Errorf("differing %q: unexpected key %q", path, pair.Content[j].Value)
				}
			}
			a.Differing[path] = change
		}
	}
	a.compact()
	return nil
}

// DecodeMsgpack implements msgpack.CustomDecoder. Decoded numbers come back
// with the narrowest width, they are normalized again here.
func (a *Artifact) DecodeMsgpack(dec *msgpack.Decoder) error {
	type plain Artifact
	if err := dec.Decode((*plain)(a)); err != nil {
		return err
	}
	a.ensure()
	for path, value := range a.Equal {
		n, err := Normalize(value)
		if err != nil {
			return fmt.Errorf("equal %q: %w", path, err)
		}
		a.Equal[path] = n
	}
	for path, change := range a.Differing {
		na, err := Normalize(change.A)
		if err != nil {
			return fmt.Errorf("differing %q: %w", path, err)
		}
		nb, err := Normalize(change.B)
		if err != nil {
			return fmt.Errorf("differing %q: %w", path, err)
		}
		a.Differing[path] = Change{A: na, B: nb}
	}
	a.compact()
	return nil
}

// compact drops empty listings so a decoded artifact stays sparse.
func (a *Artifact) compact() {
	for _, m := range []map[int]Listing{a.UniqueToA, a.UniqueToB} {
		for depth, listing := range m {
			for parent, keys := range listing {
				if len(keys) == 0 {
					delete(listing, parent)
				}
			}
			if len(listing) == 0 {
				delete(m, depth)
			}
		}
	}
}

func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// EncodeNode builds the YAML node of a value. Floats are tagged !!float and
// always carry a fraction or exponent, subtrees are emitted with sorted keys.
func EncodeNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatYAMLFloat(x)}, nil
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, item := range x {
			child, err := EncodeNode(item)
			if err != nil {
				return nil, err
			}
			if child.Kind != yaml.ScalarNode {
				seq.Style = 0
			}
			seq.Content = append(seq.Content, child)
		}
		return seq, nil
	case Tree:
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, key := range sortedKeys(x) {
			child, err := EncodeNode(x[key])
			if err != nil {
				return nil, err
			}
			m.Content = append(m.Content, stringNode(key), child)
		}
		return m, nil
	case string, bool, int64, uint64:
		n := &yaml.Node{}
		if err := n.Encode(x); err != nil {
			return nil, err
		}
		return n, nil
	default:
		n, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		return EncodeNode(n)
	}
}

// DecodeNode is the inverse of [EncodeNode]. Any parsed node is accepted, the
// result is normalized.
func DecodeNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return DecodeNode(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := DecodeNode(child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(Tree, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := DecodeNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.ScalarNode:
		if n.ShortTag() == "!!float" {
			return parseYAMLFloat(n.Value)
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return Normalize(v)
	default:
		return nil, fmt.Errorf("%w: yaml node kind %d", ErrUnsupportedValue, n.Kind)
	}
}

func formatYAMLFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func parseYAMLFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case ".inf", "+.inf":
		return math.Inf(1), nil
	case "-.inf":
		return math.Inf(-1), nil
	case ".nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
}
