package stage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/stage"
)

func TestParseDimension_FeetInches(t *testing.T) {
	v, err := stage.ParseDimension(`6'-6"`)
	require.NoError(t, err)
	require.Equal(t, 78.0, v)
}

func TestParseDimension_FeetInchesFraction(t *testing.T) {
	v, err := stage.ParseDimension(`6'-3 1/2"`)
	require.NoError(t, err)
	require.InDelta(t, 75.5, v, 0.001)
}

func TestParseDimension_BareInches(t *testing.T) {
	v, err := stage.ParseDimension(`36`)
	require.NoError(t, err)
	require.Equal(t, 36.0, v)
}

func TestParseDimension_RejectsOutOfRange(t *testing.T) {
	_, err := stage.ParseDimension(`300`)
	require.Error(t, err)

	_, err = stage.ParseDimension(`1`)
	require.Error(t, err)
}

func TestParsePair(t *testing.T) {
	w, h, ok := stage.ParsePair(`36 x 72`)
	require.True(t, ok)
	require.Equal(t, 36.0, w)
	require.Equal(t, 72.0, h)
}

func TestParseLabeled_DeterministicOrderOverridesAmbiguity(t *testing.T) {
	// Both "Width:" and "W:" appear; per spec.md §9 the longest surface
	// form wins within the width label, and width resolves before height.
	text := "W: 40\nWidth: 36\nHeight: 72"

	got := stage.ParseLabeled(text)

	require.Len(t, got, 2)
	require.Equal(t, "width", got[0].Label)
	require.Equal(t, 36.0, got[0].Value)
	require.Equal(t, "height", got[1].Label)
	require.Equal(t, 72.0, got[1].Value)
}

// Dimension round-trip property (spec.md §8): format(parse(s)) is either
// s itself or the canonical form for values expressed differently.
func TestDimensionRoundTrip(t *testing.T) {
	cases := map[string]string{`6'-6"`: `6'-6"`, `20'-0"`: `20'-0"`, `36"`: `3'-0"`}
	for s, want := range cases {
		v, err := stage.ParseDimension(s)
		require.NoError(t, err)
		formatted := stage.FormatDimension(&v)
		require.Equal(t, want, formatted)
	}
}

func TestFormatDimension_Nil(t *testing.T) {
	require.Equal(t, "TBV", stage.FormatDimension(nil))
}

func TestFormatDimension_Examples(t *testing.T) {
	v78 := 78.0
	require.Equal(t, `6'-6"`, stage.FormatDimension(&v78))

	v240 := 240.0
	require.Equal(t, `20'-0"`, stage.FormatDimension(&v240))

	v6 := 6.0
	require.Equal(t, `6"`, stage.FormatDimension(&v6))
}
