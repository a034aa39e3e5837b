package filter

import (
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// ChangeEnv is the environment a filter expression is evaluated against,
// once per differing leaf.
type ChangeEnv struct {
	// Path is the dotted path of the leaf, e.g. "model.grid.nx".
	Path string
	// Key is the last path segment, Group the first one.
	Key   string
	Group string
	// Depth is the number of segments above the leaf.
	Depth int

	Old any
	New any
}

func newEnv(path diffmap.Path, change diffmap.Change) ChangeEnv {
	env := ChangeEnv{
		Path:  path.String(),
		Key:   path.Key(),
		Depth: len(path) - 1,
		Old:   change.A,
		New:   change.B,
	}
	if len(path) > 0 {
		env.Group = path[0]
	}
	return env
}

func (e ChangeEnv) All() bool {
	return true
}

func (e ChangeEnv) None() bool {
	return false
}

// Under reports whether the leaf sits below (or at) one of the given paths.
func (e ChangeEnv) Under(prefixes ...string) bool {
	if len(prefixes) == 0 {
		return true
	}
	self, err := diffmap.ParsePath(e.Path)
	if err != nil {
		return false
	}
	for _, prefix := range prefixes {
		p, err := diffmap.ParsePath(prefix)
		if err != nil {
			continue
		}
		if self.HasPrefix(p) {
			return true
		}
	}
	return false
}

func (e ChangeEnv) Groups(vals ...string) bool {
	if len(vals) == 0 {
		return true
	}
	for _, val := range vals {
		if val == e.Group {
			return true
		}
	}
	return false
}

func (e ChangeEnv) Keys(vals ...string) bool {
	if len(vals) == 0 {
		return true
	}
	for _, val := range vals {
		if val == e.Key {
			return true
		}
	}
	return false
}

// Changed is false when Old and New compare equal, or cannot be compared.
func (e ChangeEnv) Changed() bool {
	eq, err := diffmap.Equal(e.Old, e.New)
	return err == nil && !eq
}
