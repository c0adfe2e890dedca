package stage

import (
	"strings"

	"github.com/cgs/glassbid-worker/internal/model"
)

// classKeywords is the fixed keyword list per page classification, used by
// INDEXING to compute per-class match scores (spec.md §4.5.1). Specified
// only by I/O contract in spec.md §1 ("keyword heuristics for page
// classification... specified only by their I/O contract"); these lists
// are this worker's concrete instantiation of that contract.
var classKeywords = map[model.Classification][]string{
	model.ClassTitle:     {"title sheet", "project title", "cover sheet", "drawing index"},
	model.ClassFloorPlan: {"floor plan", "plan view", "layout"},
	model.ClassElevation: {"elevation", "interior elevation"},
	model.ClassSchedule:  {"schedule", "door schedule", "hardware schedule", "glass schedule"},
	model.ClassDetail:    {"detail", "section", "enlarged detail"},
	model.ClassNotes:     {"assumptions", "exclusions", "general notes", "notes:"},
}

// relevanceKeywords maps a relevance tag to the keyword list that signals it.
var relevanceKeywords = map[model.RelevanceTag][]string{
	model.RelevantShowers:     {"shower", "enclosure", "glass panel", "shower door"},
	model.RelevantMirrors:     {"mirror", "vanity mirror"},
	model.RelevantAssumptions: {"assumptions", "exclusions"},
}

// categoryKeywords maps a scope-item category to its detection keywords
// (spec.md §4.5.3).
var categoryKeywords = map[model.Category][]string{
	model.CategoryShowerEnclosure: {"shower enclosure", "shower door", "glass panel"},
	model.CategoryVanityMirror:    {"vanity mirror", "mirror"},
}

// titleKeywords signal a TITLE page on page <= 1 (spec.md §4.5.1).
var titleKeywords = classKeywords[model.ClassTitle]

func countMatches(textLower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(textLower, strings.ToLower(kw)) {
			n++
		}
	}
	return n
}

func anyMatch(textLower string, keywords []string) bool {
	return countMatches(textLower, keywords) > 0
}
