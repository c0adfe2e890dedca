package render_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/render"
)

// Scenario 6 — DPI clamp: a 3000pt x 100pt page at requested DPI 400
// must clamp so that 3000/72 * d' <= 8000, i.e. d' <= 192.
func TestClampDPI_ScalesDownToPixelBudget(t *testing.T) {
	limits := render.Limits{MaxDPI: 400, MaxPixels: 8000}

	got := render.ClampDPI(400, 3000, 100, limits)

	require.LessOrEqual(t, got, 192)
	longestPx := 3000.0 / 72.0 * float64(got)
	require.LessOrEqual(t, longestPx, 8000.0)
}

func TestClampDPI_RespectsMaxDPIWhenPixelBudgetNotBinding(t *testing.T) {
	limits := render.Limits{MaxDPI: 400, MaxPixels: 8000}

	got := render.ClampDPI(600, 72, 72, limits)

	require.Equal(t, 400, got)
}

func TestClampDPI_FloorsAt36(t *testing.T) {
	limits := render.Limits{MaxDPI: 400, MaxPixels: 100}

	got := render.ClampDPI(400, 5000, 5000, limits)

	require.Equal(t, 36, got)
}
