package validate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/validate"
)

// Scenario 4 — validation gates generation: a subtotal mismatch surfaces
// MATH_ERROR and is blocking.
func TestValidate_MathErrorIsBlocking(t *testing.T) {
	ssot := &model.SSOT{
		Items: []model.Item{{ItemID: "i1", Category: model.CategoryShowerEnclosure, Configuration: "02_inline_panel_door"}},
		Pricing: model.Pricing{
			LineItems: []model.LineItem{{ItemID: "i1", TotalPrice: 104800}},
			Subtotal:  99999.99,
		},
	}

	findings := validate.Validate(ssot)

	require.True(t, validate.HasBlocking(findings))
	var gotMathError bool
	for _, f := range findings {
		if f.Code == "MATH_ERROR" {
			gotMathError = true
		}
	}
	require.True(t, gotMathError)
}

func TestValidate_CleanSSOTHasNoBlockingFindings(t *testing.T) {
	w, h := 36.0, 72.0
	ssot := &model.SSOT{
		Items: []model.Item{{
			ItemID: "i1", Category: model.CategoryShowerEnclosure, Configuration: "02_inline_panel_door",
			Dimensions: model.Dimensions{Width: model.Dimension{Value: &w}, Height: model.Dimension{Value: &h}},
			QuantityPerUnit: 1,
		}},
		Pricing: model.Pricing{
			LineItems: []model.LineItem{{ItemID: "i1", TotalPrice: 18.00}},
			Subtotal:  18.00,
		},
	}

	findings := validate.Validate(ssot)

	require.False(t, validate.HasBlocking(findings))
}

func TestValidate_RangeErrorOutsideBounds(t *testing.T) {
	w := 300.0
	ssot := &model.SSOT{
		Items: []model.Item{{
			ItemID: "i1", Category: model.CategoryShowerEnclosure,
			Dimensions: model.Dimensions{Width: model.Dimension{Value: &w}},
		}},
	}

	findings := validate.Validate(ssot)

	found := false
	for _, f := range findings {
		if f.Code == "RANGE_ERROR" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidate_CompletenessRequiresTBVFlag(t *testing.T) {
	ssot := &model.SSOT{
		Items: []model.Item{{ItemID: "i1", Category: model.CategoryShowerEnclosure}},
	}

	findings := validate.Validate(ssot)

	found := false
	for _, f := range findings {
		if f.Code == "COMPLETENESS_ERROR" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidate_DuplicateOnlyFlagsLaterOccurrence(t *testing.T) {
	w, h := 36.0, 72.0
	dims := model.Dimensions{Width: model.Dimension{Value: &w}, Height: model.Dimension{Value: &h}}
	ssot := &model.SSOT{
		Items: []model.Item{
			{ItemID: "i1", UnitID: "u1", Location: "bath-1", Category: model.CategoryShowerEnclosure, Configuration: "02_inline_panel_door", Dimensions: dims, QuantityPerUnit: 1},
			{ItemID: "i2", UnitID: "u1", Location: "bath-1", Category: model.CategoryShowerEnclosure, Configuration: "02_inline_panel_door", Dimensions: dims, QuantityPerUnit: 1},
		},
		Pricing: model.Pricing{
			LineItems: []model.LineItem{{ItemID: "i1", TotalPrice: 10}, {ItemID: "i2", TotalPrice: 10}},
			Subtotal:  20,
		},
	}

	findings := validate.Validate(ssot)

	var flagged []string
	for _, f := range findings {
		if f.Code == "DUPLICATE_WARNING" {
			flagged = append(flagged, f.ItemID)
		}
	}
	require.Equal(t, []string{"i2"}, flagged)
	require.False(t, validate.HasBlocking(findings))
}
