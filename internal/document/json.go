package document

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// JSON files are always rewritten in full. Integral floats are written
// without a fraction and read back as integers.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Decode(data []byte) (diffmap.Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		perr := &ParseError{Err: err}
		var serr *json.SyntaxError
		if errors.As(err, &serr) {
			perr.Line = bytes.Count(data[:serr.Offset], []byte{'\n'}) + 1
		}
		return nil, perr
	}
	if raw == nil {
		return diffmap.Tree{}, nil
	}
	return diffmap.NormalizeTree(raw)
}

func (JSON) Encode(tree diffmap.Tree) ([]byte, error) {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (JSON) Patch([]byte, diffmap.Tree) ([]byte, error) {
	return nil, ErrPreserveUnsupported
}
