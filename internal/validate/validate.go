// Package validate implements C6: a pure structural/numeric gate over the
// SSOT, run before artifact generation (spec.md §4.6).
package validate

import (
	"fmt"
	"math"

	"github.com/cgs/glassbid-worker/internal/model"
)

// Finding is one validation result. A code not ending in "WARNING" is
// blocking (spec.md §4.6).
type Finding struct {
	Code    string
	Message string
	ItemID  string
}

// Blocking reports whether this finding blocks GENERATING.
func (f Finding) Blocking() bool {
	return !hasSuffix(f.Code, "WARNING")
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

const (
	codeMathError        = "MATH_ERROR"
	codeRangeError       = "RANGE_ERROR"
	codeConsistencyError = "CONSISTENCY_ERROR"
	codeCompletenessError = "COMPLETENESS_ERROR"
	codeTemplateError    = "TEMPLATE_ERROR"
	codeDuplicateWarning = "DUPLICATE_WARNING"
)

var rangeBounds = map[model.Category][2]float64{
	model.CategoryShowerEnclosure: {6, 240},
	model.CategoryVanityMirror:    {6, 120},
}

// Validate runs every rule in spec.md §4.6 and returns all findings.
func Validate(ssot *model.SSOT) []Finding {
	var findings []Finding

	findings = append(findings, checkMath(ssot)...)
	findings = append(findings, checkRange(ssot)...)
	findings = append(findings, checkConsistency(ssot)...)
	findings = append(findings, checkCompleteness(ssot)...)
	findings = append(findings, checkTemplate(ssot)...)
	findings = append(findings, checkDuplicates(ssot)...)

	return findings
}

// HasBlocking reports whether any finding is blocking.
func HasBlocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Blocking() {
			return true
		}
	}
	return false
}

func checkMath(ssot *model.SSOT) []Finding {
	var sum float64
	for _, li := range ssot.Pricing.LineItems {
		sum += li.TotalPrice
	}
	if math.Abs(sum-ssot.Pricing.Subtotal) > 0.01 {
		return []Finding{{
			Code:    codeMathError,
			Message: fmt.Sprintf("line item sum %.2f does not match subtotal %.2f", sum, ssot.Pricing.Subtotal),
		}}
	}
	return nil
}

func checkRange(ssot *model.SSOT) []Finding {
	var findings []Finding
	for _, item := range ssot.Items {
		bounds, ok := rangeBounds[item.Category]
		if !ok {
			continue
		}
		for _, d := range []struct {
			name string
			dim  model.Dimension
		}{{"width", item.Dimensions.Width}, {"height", item.Dimensions.Height}} {
			if d.dim.Value == nil {
				continue
			}
			v := *d.dim.Value
			if v < bounds[0] || v > bounds[1] {
				findings = append(findings, Finding{
					Code:    codeRangeError,
					Message: fmt.Sprintf("%s %s=%.2f outside [%.0f, %.0f]", item.ItemID, d.name, v, bounds[0], bounds[1]),
					ItemID:  item.ItemID,
				})
			}
		}
	}
	return findings
}

func checkConsistency(ssot *model.SSOT) []Finding {
	itemIDs := make(map[string]bool, len(ssot.Items))
	for _, it := range ssot.Items {
		itemIDs[it.ItemID] = true
	}
	lineItemIDs := make(map[string]bool, len(ssot.Pricing.LineItems))
	for _, li := range ssot.Pricing.LineItems {
		lineItemIDs[li.ItemID] = true
	}

	diff := false
	for id := range itemIDs {
		if !lineItemIDs[id] {
			diff = true
		}
	}
	for id := range lineItemIDs {
		if !itemIDs[id] {
			diff = true
		}
	}
	if diff {
		return []Finding{{Code: codeConsistencyError, Message: "item ids and pricing line-item ids diverge"}}
	}
	return nil
}

func checkCompleteness(ssot *model.SSOT) []Finding {
	var findings []Finding
	for _, item := range ssot.Items {
		if item.HasFlag(model.FlagToBeVerifiedInField) {
			continue
		}
		if item.Dimensions.Width.Value == nil || item.Dimensions.Height.Value == nil {
			findings = append(findings, Finding{
				Code:    codeCompletenessError,
				Message: fmt.Sprintf("%s has a missing dimension with no TO_BE_VERIFIED_IN_FIELD flag", item.ItemID),
				ItemID:  item.ItemID,
			})
		}
	}
	return findings
}

func checkTemplate(ssot *model.SSOT) []Finding {
	var findings []Finding
	for _, item := range ssot.Items {
		if item.Configuration == "" || item.Configuration == "unknown" {
			findings = append(findings, Finding{
				Code:    codeTemplateError,
				Message: fmt.Sprintf("%s is missing a configuration", item.ItemID),
				ItemID:  item.ItemID,
			})
		}
	}
	return findings
}

func checkDuplicates(ssot *model.SSOT) []Finding {
	type key struct {
		unitID, location string
		category         model.Category
	}
	seen := map[key]bool{}
	var findings []Finding
	for _, item := range ssot.Items {
		k := key{item.UnitID, item.Location, item.Category}
		if seen[k] && item.QuantityPerUnit <= 1 {
			findings = append(findings, Finding{
				Code:    codeDuplicateWarning,
				Message: fmt.Sprintf("%s duplicates an earlier item at the same unit/location/category", item.ItemID),
				ItemID:  item.ItemID,
			})
		}
		seen[k] = true
	}
	return findings
}
