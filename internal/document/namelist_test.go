package document

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

const sampleNamelist = `! model configuration
&model
    nx = 100, ny = 50   ! grid points
    dt = 1.d3
    levels = 3*0.5, 1.
    name = 'it''s'
    flags = .true., F, .f.
    skip = ,
/
&physics
  scheme = "A"
  idx(2) = 7
&end
`

func TestNamelistDecode(t *testing.T) {
	tree, err := Namelist{}.Decode([]byte(sampleNamelist))
	require.NoError(t, err)

	assert.Equal(t, diffmap.Tree{
		"model": diffmap.Tree{
			"nx":     int64(100),
			"ny":     int64(50),
			"dt":     1000.0,
			"levels": []any{0.5, 0.5, 0.5, 1.0},
			"name":   "it's",
			"flags":  []any{true, false, false},
			"skip":   nil,
		},
		"physics": diffmap.Tree{
			"scheme": "A",
			"idx":    []any{nil, int64(7)},
		},
	}, tree)
}

func TestNamelistDecodeFolding(t *testing.T) {
	tree, err := Namelist{}.Decode([]byte("$NAMRUN\n  NN_IT000 = 1 ,\n  Ln_Rstart = T\n$END\n"))
	require.NoError(t, err)
	assert.Equal(t, diffmap.Tree{"namrun": diffmap.Tree{"nn_it000": int64(1), "ln_rstart": true}}, tree)
}

func TestNamelistDecodeErrors(t *testing.T) {
	tests := map[string]struct {
		input string
		line  int
	}{
		"invalid value":   {"&model\n  nx = 1\n  ny = @\n/\n", 3},
		"unterminated":    {"&model\n  nx = 1\n", 3},
		"missing equals":  {"&model\n  nx 1\n/\n", 2},
		"duplicate group": {"&a\n/\n&a\n/\n", 3},
		"open string":     {"&a\n  s = 'abc\n/\n", 4},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Namelist{}.Decode([]byte(tc.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.line, perr.Line)
		})
	}
}

func TestNamelistEncodeRoundTrip(t *testing.T) {
	tree := diffmap.Tree{
		"grid": diffmap.Tree{
			"nx":    int64(100),
			"dx":    2.0,
			"eps":   1e-12,
			"label": "o'brien",
			"on":    true,
			"list":  []any{int64(1), nil, int64(3)},
			"empty": nil,
		},
		"output": diffmap.Tree{"every": int64(6)},
	}

	data, err := Namelist{}.Encode(tree)
	require.NoError(t, err)
	assert.Contains(t, string(data), "    dx = 2.0\n")
	assert.Contains(t, string(data), "    label = 'o''brien'\n")

	got, err := Namelist{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, tree, got)
}

func TestNamelistNonFiniteValues(t *testing.T) {
	tree, err := Namelist{}.Decode([]byte("&g\n x = nan\n lo = -Infinity, inf\n/\n"))
	require.NoError(t, err)
	x, ok := tree["g"].(diffmap.Tree)["x"].(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(x))

	art, err := diffmap.Diff(tree, diffmap.Clone(tree), "", "")
	require.NoError(t, err)
	assert.True(t, art.Clean())

	data, err := Namelist{}.Encode(tree)
	require.NoError(t, err)
	assert.Equal(t, "&g\n    lo = -Infinity, Infinity\n    x = NaN\n/\n", string(data))

	back, err := Namelist{}.Decode(data)
	require.NoError(t, err)
	eq, err := diffmap.Equal(tree, back)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestNamelistEncodeRejectsDeepTrees(t *testing.T) {
	_, err := Namelist{}.Encode(diffmap.Tree{"a": diffmap.Tree{"b": diffmap.Tree{"c": int64(1)}}})
	assert.ErrorIs(t, err, diffmap.ErrUnsupportedValue)

	_, err = Namelist{}.Encode(diffmap.Tree{"a": int64(1)})
	assert.ErrorIs(t, err, diffmap.ErrUnsupportedValue)
}

func TestNamelistPatch(t *testing.T) {
	tree, err := Namelist{}.Decode([]byte(sampleNamelist))
	require.NoError(t, err)
	tree["model"].(diffmap.Tree)["nx"] = int64(200)
	tree["model"].(diffmap.Tree)["seed"] = int64(42)
	tree["output"] = diffmap.Tree{"every": int64(6)}

	out, err := Namelist{}.Patch([]byte(sampleNamelist), tree)
	require.NoError(t, err)

	want := `! model configuration
&model
    nx = 200, ny = 50   ! grid points
    dt = 1.d3
    levels = 3*0.5, 1.
    name = 'it''s'
    flags = .true., F, .f.
    skip = ,
    seed = 42
/
&physics
  scheme = "A"
  idx(2) = 7
&end

&output
    every = 6
/
`
	assert.Equal(t, want, string(out))

	got, err := Namelist{}.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, tree, got)
}

func TestNamelistPatchInlineTerminator(t *testing.T) {
	original := "&grid nx = 1 /\n"
	out, err := Namelist{}.Patch([]byte(original), diffmap.Tree{
		"grid": diffmap.Tree{"nx": int64(2), "ny": int64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, "&grid nx = 2 \n    ny = 3\n/\n", string(out))
}

func TestNamelistPatchUnsupported(t *testing.T) {
	tree, err := Namelist{}.Decode([]byte(sampleNamelist))
	require.NoError(t, err)

	removed := diffmap.Clone(tree)
	delete(removed["model"].(diffmap.Tree), "dt")
	_, err = Namelist{}.Patch([]byte(sampleNamelist), removed)
	assert.ErrorIs(t, err, ErrPreserveUnsupported)

	indexed := diffmap.Clone(tree)
	indexed["physics"].(diffmap.Tree)["idx"] = []any{int64(1), int64(2)}
	_, err = Namelist{}.Patch([]byte(sampleNamelist), indexed)
	assert.ErrorIs(t, err, ErrPreserveUnsupported)
}
