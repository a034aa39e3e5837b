package diffmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// ErrUnsupportedValue is returned by [Normalize] for values that are neither
// a scalar, a sequence of scalars nor a nested mapping.
var ErrUnsupportedValue = errors.New("unsupported value")

// Normalize returns a canonical deep copy of v: signed integers become int64,
// unsigned integers become int64 when they fit (uint64 otherwise), float32
// becomes float64, typed slices become []any and string-keyed maps become a
// [Tree]. Decoders disagree on numeric widths, normalizing makes values
// coming from different formats comparable.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case bool:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return normalizeUnsigned(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normalizeUnsigned(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrUnsupportedValue, string(x))
		}
		return f, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		return NormalizeTree(x)
	case map[any]any:
		out := make(Tree, len(x))
		for key, item := range x {
			k, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string key %T", ErrUnsupportedValue, key)
			}
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	}

	// typed slices ([]string, []int64, ...) coming from hand-built trees
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func normalizeUnsigned(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

// NormalizeTree applies [Normalize] to every value of t and returns the copy.
func NormalizeTree(t Tree) (Tree, error) {
	out := make(Tree, len(t))
	for key, value := range t {
		n, err := Normalize(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = n
	}
	return out, nil
}

// Clone returns a deep copy of t. Values are copied as-is, without
// normalization.
func Clone(t Tree) Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for key, value := range t {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case Tree:
		return Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Lookup returns the value stored at p.
func Lookup(t Tree, p Path) (any, bool) {
	var current any = t
	for _, key := range p {
		sub, ok := current.(Tree)
		if !ok {
			return nil, false
		}
		current, ok = sub[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Equal reports whether a and b are structurally equal after normalization.
// Values of different kinds are never equal, so int64(1) and float64(1) differ.
// Two NaNs are equal.
func Equal(a, b any) (bool, error) {
	na, err := Normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := Normalize(b)
	if err != nil {
		return false, err
	}
	return equalNormalized(na, nb), nil
}

// equalNormalized is a tight equality test over normalized values that
// avoids reflection.
func equalNormalized(a, b any) bool {
	switch va := a.(type) {
	case nil:
		return b == nil
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	case int64:
		vb, ok := b.(int64)
		return ok && va == vb
	case uint64:
		vb, ok := b.(uint64)
		return ok && va == vb
	case float64:
		vb, ok := b.(float64)
		// NaN matches NaN, so a tree always equals its own copy
		return ok && (va == vb || (math.IsNaN(va) && math.IsNaN(vb)))
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !equalNormalized(va[i], vb[i]) {
				return false
			}
		}
		return true
	case Tree:
		vb, ok := b.(Tree)
		if !ok || len(va) != len(vb) {
			return false
		}
		for key, item := range va {
			other, ok := vb[key]
			if !ok || !equalNormalized(item, other) {
				return false
			}
		}
		return true
	}
	return false
}
