// Package stage implements C5: the per-stage functions that advance a
// job's SSOT (indexing, routing, extracting, pricing, generating), plus the
// dimension and notes grammars they share (spec.md §4.5, §6).
package stage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// dimMin and dimMax bound any parsed dimension value, in inches
// (spec.md §6).
const (
	dimMin = 3.0
	dimMax = 240.0
)

// feetInches matches `F'-I"` or `F'-W N/D"`, e.g. 6'-6", 6'-3 1/2".
var feetInches = regexp.MustCompile(`(?i)^\s*(\d+)\s*['′]\s*-?\s*(\d+)(?:\s+(\d+)\s*/\s*(\d+))?\s*["″]?\s*$`)

// bareInches matches a standalone inch value with an optional fraction,
// e.g. 36, 36", 36 1/2", 1/2".
var bareInches = regexp.MustCompile(`(?i)^\s*(?:(\d+)\s+)?(?:(\d+)\s*/\s*(\d+)|(\d+(?:\.\d+)?))\s*["″]?\s*$`)

// pairPattern matches `DIM x DIM` with x/X/× as the separator.
var pairPattern = regexp.MustCompile(`(?i)^(.+?)\s*[xX×]\s*(.+)$`)

// labelPattern matches a labeled dimension, e.g. "Width: 36", "W=36\"".
var labelPattern = regexp.MustCompile(`(?i)^\s*([A-Za-z]+)\s*[:=]\s*(.+)$`)

// labelOrder is the deterministic order for resolving ambiguous labels
// (spec.md §9, "Open question — dimension regex ambiguity": do not
// replicate the source's map-iteration-order dependence).
var labelOrder = []string{"width", "height", "depth", "return"}

// labelSurfaceForms lists, for each canonical label, its recognized
// surface forms ordered longest-first (spec.md §9: "within a label, try
// the longest surface form first").
var labelSurfaceForms = map[string][]string{
	"width":  {"width", "w"},
	"height": {"height", "h"},
	"depth":  {"depth", "d"},
	"return": {"return", "r"},
}

// ParseDimension parses a single dimension token per the grammar in
// spec.md §6, returning inches. Values outside [3, 240] are rejected.
func ParseDimension(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty dimension token")
	}

	if m := feetInches.FindStringSubmatch(s); m != nil {
		feet, _ := strconv.ParseFloat(m[1], 64)
		whole, _ := strconv.ParseFloat(m[2], 64)
		value := feet*12 + whole
		if m[3] != "" && m[4] != "" {
			num, _ := strconv.ParseFloat(m[3], 64)
			den, _ := strconv.ParseFloat(m[4], 64)
			if den != 0 {
				value += num / den
			}
		}
		return boundedInches(value)
	}

	if m := bareInches.FindStringSubmatch(s); m != nil {
		var value float64
		if m[2] != "" && m[3] != "" {
			num, _ := strconv.ParseFloat(m[2], 64)
			den, _ := strconv.ParseFloat(m[3], 64)
			if den != 0 {
				value = num / den
			}
		} else if m[4] != "" {
			value, _ = strconv.ParseFloat(m[4], 64)
		}
		if m[1] != "" {
			whole, _ := strconv.ParseFloat(m[1], 64)
			value += whole
		}
		return boundedInches(value)
	}

	return 0, fmt.Errorf("unrecognized dimension token: %q", s)
}

func boundedInches(v float64) (float64, error) {
	if v < dimMin || v > dimMax {
		return 0, fmt.Errorf("dimension %.3f outside [%.0f, %.0f]", v, dimMin, dimMax)
	}
	return v, nil
}

// ParsePair parses a `DIM x DIM` string into (width, height) inches.
func ParsePair(s string) (width, height float64, ok bool) {
	m := pairPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	w, err := ParseDimension(m[1])
	if err != nil {
		return 0, 0, false
	}
	h, err := ParseDimension(m[2])
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}

// LabeledValue is one resolved labeled-dimension match.
type LabeledValue struct {
	Label string
	Value float64
}

// ParseLabeled scans text for labeled dimension forms (`Width:`, `W=`, ...)
// and resolves ambiguity deterministically: labels are tried in the order
// width, height, depth, return, and within a label the longest surface
// form is tried first (spec.md §9).
func ParseLabeled(text string) []LabeledValue {
	lines := strings.Split(text, "\n")
	found := map[string]float64{}

	for _, label := range labelOrder {
		if _, already := found[label]; already {
			continue
		}
		for _, form := range labelSurfaceForms[label] {
			for _, line := range lines {
				m := labelPattern.FindStringSubmatch(line)
				if m == nil || strings.ToLower(m[1]) != form {
					continue
				}
				if v, err := ParseDimension(m[2]); err == nil {
					found[label] = v
				}
			}
			if _, ok := found[label]; ok {
				break
			}
		}
	}

	out := make([]LabeledValue, 0, len(found))
	for _, label := range labelOrder {
		if v, ok := found[label]; ok {
			out = append(out, LabeledValue{Label: label, Value: v})
		}
	}
	return out
}

// FormatDimension is the display formatter (spec.md §6): nil -> "TBV";
// v < 12 -> `v"` (no fraction shown for whole numbers); else `F'-I"`.
func FormatDimension(v *float64) string {
	if v == nil {
		return "TBV"
	}
	val := *v
	if val < 12 {
		if val == float64(int(val)) {
			return fmt.Sprintf(`%d"`, int(val))
		}
		return fmt.Sprintf(`%g"`, val)
	}
	feet := int(val) / 12
	inches := int(val) % 12
	return fmt.Sprintf(`%d'-%d"`, feet, inches)
}
