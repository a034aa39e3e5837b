package diffmap

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned by [ParsePath] for malformed path strings.
var ErrInvalidPath = errors.New("invalid path")

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// Path addresses a node from the root of a tree. Its depth is its length.
type Path []string

// Child returns a new path with key appended. The receiver is never aliased.
func (p Path) Child(key string) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = key
	return child
}

// Parent returns the path without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Key returns the last segment, or "" for the root.
func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String joins the segments with dots. Dots and tildes inside a segment are
// escaped as "~1" and "~0", an empty segment is written as "~2".
//
//	Path{"model", "grid", "nx"}.String() // "model.grid.nx"
//	Path{}.String()                      // ""
func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		if i > 0 {
			sb.WriteByte('.')
		}
		if seg == "" {
			sb.WriteString("~2")
			continue
		}
		for j := 0; j < len(seg); j++ {
			switch seg[j] {
			case '~':
				sb.WriteString("~0")
			case '.':
				sb.WriteString("~1")
			default:
				sb.WriteByte(seg[j])
			}
		}
	}
	return sb.String()
}

// Pointer renders the path as an RFC 6901 JSON pointer.
func (p Path) Pointer() string {
	var sb strings.Builder
	for _, seg := range p {
		sb.WriteByte('/')
		sb.WriteString(pointerEscaper.Replace(seg))
	}
	return sb.String()
}

// ParsePath is the inverse of [Path.String].
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, ".")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "~2" {
			path = append(path, "")
			continue
		}
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
		}
		var sb strings.Builder
		for i := 0; i < len(part); i++ {
			if part[i] != '~' {
				sb.WriteByte(part[i])
				continue
			}
			if i+1 >= len(part) {
				return nil, fmt.Errorf("%w: dangling escape in %q", ErrInvalidPath, s)
			}
			switch part[i+1] {
			case '0':
				sb.WriteByte('~')
			case '1':
				sb.WriteByte('.')
			default:
				return nil, fmt.Errorf("%w: unknown escape ~%c in %q", ErrInvalidPath, part[i+1], s)
			}
			i++
		}
		path = append(path, sb.String())
	}
	return path, nil
}

// MustParsePath is like [ParsePath] but panics on error. Intended for tests
// and constant paths.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}
