package document

import (
	"bytes"
	"errors"

	"github.com/pelletier/go-toml/v2"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// TOML files are always rewritten in full.
type TOML struct{}

func (TOML) Name() string { return "toml" }

func (TOML) Decode(data []byte) (diffmap.Tree, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		perr := &ParseError{Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, _ = derr.Position()
		}
		return nil, perr
	}
	return diffmap.NormalizeTree(raw)
}

func (TOML) Encode(tree diffmap.Tree) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(map[string]any(tree)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (TOML) Patch([]byte, diffmap.Tree) ([]byte, error) {
	return nil, ErrPreserveUnsupported
}
