package stage

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
)

// RuleKind is a pricing formula's kind (spec.md §4.5.4).
type RuleKind string

const (
	RuleUnitPrice RuleKind = "unit_price"
	RulePerSqft   RuleKind = "per_sqft"
	RuleFixed     RuleKind = "fixed"
)

// Rule is one pricebook pricing rule.
type Rule struct {
	AppliesToCategory      model.Category
	AppliesToConfiguration string
	FormulaKind            RuleKind
	UnitPrice              float64
	Rate                   float64
	Amount                 float64
}

// matches reports whether the rule applies to item (universal if both
// AppliesTo fields are empty; else category must match and, if specified,
// configuration must match too).
func (r Rule) matches(item model.Item) bool {
	if r.AppliesToCategory == "" && r.AppliesToConfiguration == "" {
		return true
	}
	if r.AppliesToCategory != "" && r.AppliesToCategory != item.Category {
		return false
	}
	if r.AppliesToConfiguration != "" && r.AppliesToConfiguration != item.Configuration {
		return false
	}
	return true
}

// Pricebook is the active pricebook (highest version) consulted by PRICING.
type Pricebook struct {
	VersionID string
	Rules     []Rule
}

// Pricing implements the PRICING stage (spec.md §4.5.4).
type Pricing struct {
	log *logging.Logger
}

// NewPricing builds the PRICING stage.
func NewPricing(log *logging.Logger) *Pricing {
	return &Pricing{log: log}
}

// Run executes PRICING against job, given the active pricebook and the
// previous SSOT (for manual-override preservation).
func (s *Pricing) Run(ctx context.Context, job *model.Job, book Pricebook, previous *model.SSOT) error {
	previousLineItems := map[string]model.LineItem{}
	if previous != nil {
		for _, li := range previous.Pricing.LineItems {
			if li.ManualOverride {
				previousLineItems[li.ItemID] = li
			}
		}
	}

	lineItems := make([]model.LineItem, 0, len(job.SSOT.Items))
	subtotal := decimal.Zero

	for _, item := range job.SSOT.Items {
		if override, ok := previousLineItems[item.ItemID]; ok {
			lineItems = append(lineItems, override)
			subtotal = subtotal.Add(decimal.NewFromFloat(override.TotalPrice))
			continue
		}

		unitPrice := evaluatePrice(item, book)
		breakdown := computeBreakdown(item.Category, unitPrice)

		li := model.LineItem{
			ItemID:     item.ItemID,
			UnitPrice:  unitPrice,
			TotalPrice: round2(unitPrice),
			Breakdown:  breakdown,
		}
		lineItems = append(lineItems, li)
		subtotal = subtotal.Add(decimal.NewFromFloat(li.TotalPrice))
	}

	job.SSOT.Pricing = model.Pricing{
		PricebookVersionID: book.VersionID,
		LineItems:          lineItems,
		Subtotal:           round2(subtotal.InexactFloat64()),
		Tax:                job.SSOT.Pricing.Tax,
		Total:              round2(subtotal.InexactFloat64()) + job.SSOT.Pricing.Tax,
	}
	job.Status = model.StatusPriced
	return nil
}

// evaluatePrice finds the first matching rule and evaluates its formula;
// falls back to the fixed default rate when no rule applies (spec.md
// §4.5.4).
func evaluatePrice(item model.Item, book Pricebook) float64 {
	for _, rule := range book.Rules {
		if rule.matches(item) {
			return evaluateFormula(rule, item)
		}
	}
	return fallbackPrice(item)
}

func evaluateFormula(rule Rule, item model.Item) float64 {
	switch rule.FormulaKind {
	case RulePerSqft:
		w := dimValueOr(item.Dimensions.Width, 0)
		h := dimValueOr(item.Dimensions.Height, 0)
		if w == 0 || h == 0 {
			return 0
		}
		return rule.Rate * (w * h / 144.0)
	case RuleFixed:
		return rule.Amount
	case RuleUnitPrice:
		return rule.UnitPrice
	default:
		return rule.UnitPrice
	}
}

// fallbackPrice applies spec.md §4.5.4's no-rule default: $45/sqft for
// showers, $35/sqft for mirrors, with default dimensions when missing.
func fallbackPrice(item model.Item) float64 {
	switch item.Category {
	case model.CategoryShowerEnclosure:
		w := dimValueOr(item.Dimensions.Width, 36)
		h := dimValueOr(item.Dimensions.Height, 72)
		return 45.0 * (w * h / 144.0)
	case model.CategoryVanityMirror:
		w := dimValueOr(item.Dimensions.Width, 30)
		h := dimValueOr(item.Dimensions.Height, 36)
		return 35.0 * (w * h / 144.0)
	default:
		return 0
	}
}

func dimValueOr(d model.Dimension, fallback float64) float64 {
	if d.Value == nil {
		return fallback
	}
	return *d.Value
}

// computeBreakdown splits a unit price per spec.md §4.5.4's fixed
// percentages, each field rounded independently (decorative, see "Open
// question — breakdown rounding" in spec.md §9).
func computeBreakdown(category model.Category, unitPrice float64) model.Breakdown {
	var glass, hardware, labor, other float64
	switch category {
	case model.CategoryShowerEnclosure:
		glass, hardware, labor, other = 0.40, 0.25, 0.30, 0.05
	case model.CategoryVanityMirror:
		glass, hardware, labor, other = 0.55, 0.10, 0.25, 0.10
	}
	return model.Breakdown{
		Glass:    round2(unitPrice * glass),
		Hardware: round2(unitPrice * hardware),
		Labor:    round2(unitPrice * labor),
		Other:    round2(unitPrice * other),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
