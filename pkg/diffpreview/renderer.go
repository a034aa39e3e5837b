package diffpreview

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

type RenderOptions struct {
	IndentSize                int
	EnableBackgroundHighlight bool
	// Markers prefixes every line with +, -, ~ or a space, like a unified diff.
	Markers bool
}

var DefaultRenderOptions = RenderOptions{
	IndentSize:                2,
	EnableBackgroundHighlight: true,
}

// PlainRenderOptions suit uncolored output.
var PlainRenderOptions = RenderOptions{
	IndentSize: 2,
	Markers:    true,
}

// RenderYAML renders an annotated tree as YAML-like text, one key per line.
func RenderYAML(node *AnnotatedNode, theme Theme, opts RenderOptions) string {
	r := renderer{theme: theme, opts: opts}
	if node.Children == nil {
		r.leaf(node, 0, "")
	} else {
		r.branch(node, 0)
	}
	return r.sb.String()
}

type renderer struct {
	sb    strings.Builder
	theme Theme
	opts  RenderOptions
}

func (r *renderer) indent(level int) string {
	return strings.Repeat(" ", level*r.opts.IndentSize)
}

func (r *renderer) highlight(change ChangeType, content string) string {
	if r.opts.EnableBackgroundHighlight {
		return r.theme.BackgroundHighlight(change, content)
	}
	return content
}

func (r *renderer) branch(node *AnnotatedNode, level int) {
	for _, key := range sortedNodeKeys(node.Children) {
		child := node.Children[key]
		if r.opts.Markers {
			r.sb.WriteString(marker(child.Change))
		}
		r.sb.WriteString(r.indent(level) + r.highlight(child.Change, r.theme.SyntaxHighlight(TokenKey, key)+":"))
		if child.Children != nil {
			r.sb.WriteByte('\n')
			r.branch(child, level+1)
			continue
		}
		r.leaf(child, level, " ")
	}
}

// leaf writes the value of node after its key. sep separates key and value
// on the same line; mapping and list values start on the next line instead.
func (r *renderer) leaf(node *AnnotatedNode, level int, sep string) {
	switch {
	case !node.HasValue:
		r.sb.WriteString(sep + r.highlight(node.Change, r.theme.SyntaxHighlight(TokenNull, "~")) + "\n")
	case node.Change == Modified:
		content := inlineValue(node.Old, r.theme) + " → " + inlineValue(node.Value, r.theme)
		r.sb.WriteString(sep + r.highlight(node.Change, content) + "\n")
	default:
		switch v := node.Value.(type) {
		case diffmap.Tree, []any:
			r.sb.WriteByte('\n')
			r.nested(v, level+1, node.Change)
		default:
			r.sb.WriteString(sep + r.highlight(node.Change, scalar(v, r.theme, false)) + "\n")
		}
	}
}

// nested renders the items of a mapping or list value below its key.
func (r *renderer) nested(value any, level int, change ChangeType) {
	write := func(prefix string, v any) {
		if r.opts.Markers {
			r.sb.WriteString(marker(change))
		}
		switch v.(type) {
		case diffmap.Tree, []any:
			r.sb.WriteString(prefix + "\n")
			r.nested(v, level+1, change)
		default:
			r.sb.WriteString(prefix + " " + r.highlight(change, scalar(v, r.theme, false)) + "\n")
		}
	}
	switch x := value.(type) {
	case diffmap.Tree:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write(r.indent(level)+r.theme.SyntaxHighlight(TokenKey, k)+":", x[k])
		}
	case []any:
		for _, item := range x {
			write(r.indent(level)+"-", item)
		}
	}
}

// scalar renders a leaf value. quote selects Go quoting for strings, used on
// single-line modified entries.
func scalar(v any, theme Theme, quote bool) string {
	switch x := v.(type) {
	case string:
		if quote {
			return theme.SyntaxHighlight(TokenString, strconv.Quote(x))
		}
		return theme.SyntaxHighlight(TokenString, `"`+x+`"`)
	case bool:
		return theme.SyntaxHighlight(TokenBool, strconv.FormatBool(x))
	case int, int64, uint64, float64:
		return theme.SyntaxHighlight(TokenNumber, fmt.Sprint(x))
	case nil:
		return theme.SyntaxHighlight(TokenNull, "null")
	default:
		return fmt.Sprint(x)
	}
}

// inlineValue renders a value on a single line, as used for modified leaves.
func inlineValue(v any, theme Theme) string {
	switch x := v.(type) {
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = inlineValue(item, theme)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case diffmap.Tree:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = theme.SyntaxHighlight(TokenKey, k) + ": " + inlineValue(x[k], theme)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return scalar(x, theme, true)
	}
}

func marker(change ChangeType) string {
	switch change {
	case Added:
		return "+ "
	case Removed:
		return "- "
	case Modified:
		return "~ "
	default:
		return "  "
	}
}

func sortedNodeKeys(m map[string]*AnnotatedNode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
