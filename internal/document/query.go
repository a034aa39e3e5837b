package document

import (
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// Query evaluates a JSONPath selector, e.g. "$.grid.nx" or "$..dt", against a
// tree and returns every match.
func Query(tree diffmap.Tree, selector string) ([]any, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return x.Get(map[string]any(tree)), nil
}
