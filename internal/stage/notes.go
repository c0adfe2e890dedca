package stage

import (
	"regexp"
	"strings"
)

var (
	assumptionsHeader = regexp.MustCompile(`(?i)^\s*ASSUMPTIONS:\s*$`)
	exclusionsHeader  = regexp.MustCompile(`(?i)^\s*EXCLUSIONS:\s*$`)
	anyHeader         = regexp.MustCompile(`(?i)^\s*(ASSUMPTIONS|EXCLUSIONS):\s*$`)
	bulletMarker      = regexp.MustCompile(`^\s*(?:[-•·]|\d+[.)])\s*`)
)

// Notes holds the de-duplicated bullets recovered from a NOTES page.
type Notes struct {
	Assumptions []string
	Exclusions  []string
}

// ParseNotes implements the bullet grammar in spec.md §6: case-insensitive
// "ASSUMPTIONS:"/"EXCLUSIONS:" headers each begin a section that continues
// until the next header or end of text; bullets start with -, •, ·, or
// N./N) and have their marker stripped.
func ParseNotes(text string) Notes {
	lines := strings.Split(text, "\n")

	var notes Notes
	seenAssumptions := map[string]bool{}
	seenExclusions := map[string]bool{}

	section := ""
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		switch {
		case assumptionsHeader.MatchString(trimmed):
			section = "assumptions"
			continue
		case exclusionsHeader.MatchString(trimmed):
			section = "exclusions"
			continue
		case anyHeader.MatchString(trimmed):
			section = ""
			continue
		}

		if section == "" {
			continue
		}

		content := strings.TrimSpace(bulletMarker.ReplaceAllString(trimmed, ""))
		if content == "" {
			continue
		}

		switch section {
		case "assumptions":
			if !seenAssumptions[content] {
				seenAssumptions[content] = true
				notes.Assumptions = append(notes.Assumptions, content)
			}
		case "exclusions":
			if !seenExclusions[content] {
				seenExclusions[content] = true
				notes.Exclusions = append(notes.Exclusions, content)
			}
		}
	}

	return notes
}
