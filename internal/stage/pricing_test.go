package stage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/stage"
)

// Scenario 3 — pricing idempotence with override: a manual-override line
// item is preserved verbatim and the subtotal equals it exactly.
func TestPricing_PreservesManualOverride(t *testing.T) {
	job := &model.Job{
		ID: "job-1",
		SSOT: &model.SSOT{
			Items: []model.Item{{ItemID: "i1", Category: model.CategoryShowerEnclosure}},
		},
	}
	previous := &model.SSOT{
		Pricing: model.Pricing{
			LineItems: []model.LineItem{
				{ItemID: "i1", TotalPrice: 999, ManualOverride: true},
			},
		},
	}

	p := stage.NewPricing(logging.Default())
	err := p.Run(context.Background(), job, stage.Pricebook{}, previous)
	require.NoError(t, err)

	require.Len(t, job.SSOT.Pricing.LineItems, 1)
	require.Equal(t, previous.Pricing.LineItems[0], job.SSOT.Pricing.LineItems[0])
	require.Equal(t, 999.00, job.SSOT.Pricing.Subtotal)
	require.Equal(t, model.StatusPriced, job.Status)
}

func TestPricing_FallbackWhenNoRuleApplies(t *testing.T) {
	w, h := 36.0, 72.0
	job := &model.Job{
		ID: "job-2",
		SSOT: &model.SSOT{
			Items: []model.Item{{
				ItemID:   "i2",
				Category: model.CategoryShowerEnclosure,
				Dimensions: model.Dimensions{
					Width:  model.Dimension{Value: &w},
					Height: model.Dimension{Value: &h},
				},
			}},
		},
	}

	p := stage.NewPricing(logging.Default())
	err := p.Run(context.Background(), job, stage.Pricebook{}, nil)
	require.NoError(t, err)

	require.Len(t, job.SSOT.Pricing.LineItems, 1)
	require.InDelta(t, 45.0*(36.0*72.0/144.0), job.SSOT.Pricing.LineItems[0].TotalPrice, 0.01)
}

func TestPricing_SubtotalMatchesLineItemSum(t *testing.T) {
	w1, h1 := 36.0, 72.0
	job := &model.Job{
		ID: "job-3",
		SSOT: &model.SSOT{
			Items: []model.Item{
				{ItemID: "i1", Category: model.CategoryShowerEnclosure, Dimensions: model.Dimensions{
					Width: model.Dimension{Value: &w1}, Height: model.Dimension{Value: &h1},
				}},
				{ItemID: "i2", Category: model.CategoryVanityMirror},
			},
		},
	}

	p := stage.NewPricing(logging.Default())
	err := p.Run(context.Background(), job, stage.Pricebook{}, nil)
	require.NoError(t, err)

	var sum float64
	for _, li := range job.SSOT.Pricing.LineItems {
		sum += li.TotalPrice
	}
	require.InDelta(t, sum, job.SSOT.Pricing.Subtotal, 0.01)
}
