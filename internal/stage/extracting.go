package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
)

const measureDPI = 200

// Extracting implements the EXTRACTING stage (spec.md §4.5.3): scope-item
// and assumption/exclusion extraction from relevant pages.
type Extracting struct {
	store jobstore.Store
	log   *logging.Logger
}

// NewExtracting builds the EXTRACTING stage.
func NewExtracting(store jobstore.Store, log *logging.Logger) *Extracting {
	return &Extracting{store: store, log: log}
}

// PageText supplies the extracted text for a page, keyed by page number.
type PageText map[int]string

// ExtractPageText reads every page of the PDF at path into a PageText map,
// keyed 1-indexed to match model.PageIndexEntry.PageNum.
func ExtractPageText(path string) (PageText, error) {
	pages, err := extractPDFText(path)
	if err != nil {
		return nil, err
	}
	out := make(PageText, len(pages))
	for i, text := range pages {
		out[i+1] = text
	}
	return out, nil
}

// Run executes EXTRACTING. Falls back to all non-IRRELEVANT pages if
// routing is empty (spec.md §4.5.3).
func (s *Extracting) Run(ctx context.Context, job *model.Job, pages PageText) error {
	if len(job.SSOT.Items) > 0 {
		s.log.Info().Str("job_id", job.ID).Msg("extracting: skip, already populated")
		job.Status = model.StatusExtracted
		return nil
	}

	relevantPages := job.SSOT.Routing.RelevantPages
	if len(relevantPages) == 0 {
		relevantPages = nonIrrelevantPages(job.SSOT.PageIndex)
	}

	byPage := indexByPage(job.SSOT.PageIndex)

	var items []model.Item
	var assumptions, exclusions []string
	var tasks []model.MeasurementTask
	needsReview := false

	for _, pageNum := range relevantPages {
		text := pages[pageNum]
		entry, ok := byPage[pageNum]
		if !ok {
			continue
		}

		if entry.Classification == model.ClassNotes {
			notes := ParseNotes(text)
			assumptions = appendDedup(assumptions, notes.Assumptions)
			exclusions = appendDedup(exclusions, notes.Exclusions)
			continue
		}

		category, configuration, ok := detectItem(text)
		if !ok {
			continue
		}

		item := model.Item{
			ItemID:          uuid.NewString(),
			Category:        category,
			Configuration:   configuration,
			SourcePages:     []int{pageNum},
			QuantityPerUnit: 1,
		}

		labeled := ParseLabeled(text)
		assignLabeled(&item.Dimensions, labeled)
		if item.Dimensions.Width.Value == nil || item.Dimensions.Height.Value == nil {
			if w, h, ok := ParsePair(text); ok {
				if item.Dimensions.Width.Value == nil {
					item.Dimensions.Width = newDimension(w)
				}
				if item.Dimensions.Height.Value == nil {
					item.Dimensions.Height = newDimension(h)
				}
			}
		}

		missingWidth := item.Dimensions.Width.Value == nil
		missingHeight := item.Dimensions.Height.Value == nil
		if missingWidth || missingHeight {
			item.Flags = append(item.Flags, model.FlagNeedsReview, model.FlagToBeVerifiedInField)
			needsReview = true

			if missingWidth {
				tasks = append(tasks, newMeasurementTask(job.ID, item.ItemID, model.DimensionWidth, pageNum))
			}
			if missingHeight {
				tasks = append(tasks, newMeasurementTask(job.ID, item.ItemID, model.DimensionHeight, pageNum))
			}

			req := model.RenderRequest{
				ID:      uuid.NewString(),
				JobID:   job.ID,
				PageNum: pageNum,
				Kind:    model.RenderMeasure,
				DPI:     measureDPI,
				Status:  model.RenderPending,
			}
			if err := s.store.CreateRenderRequest(ctx, req); err != nil {
				return fmt.Errorf("emit measure request for page %d: %w", pageNum, err)
			}
		}

		items = append(items, item)
	}

	job.SSOT.Items = items
	job.SSOT.Assumptions = assumptions
	job.SSOT.Exclusions = exclusions
	job.SSOT.MeasurementTasks = tasks

	if needsReview {
		job.Status = model.StatusNeedsReview
	} else {
		job.Status = model.StatusExtracted
	}
	return nil
}

func newDimension(v float64) model.Dimension {
	val := v
	return model.Dimension{Value: &val, Unit: "in", Source: model.SourceDimensionCallout, Confidence: 0.8}
}

func newMeasurementTask(jobID, itemID string, key model.MeasurementDimensionKey, pageNum int) model.MeasurementTask {
	return model.MeasurementTask{
		ID:           uuid.NewString(),
		JobID:        jobID,
		ItemID:       itemID,
		DimensionKey: key,
		PageNum:      pageNum,
		Status:       model.MeasurementTaskPending,
	}
}

func assignLabeled(dims *model.Dimensions, values []LabeledValue) {
	for _, lv := range values {
		switch lv.Label {
		case "width":
			dims.Width = newDimension(lv.Value)
		case "height":
			dims.Height = newDimension(lv.Value)
		case "depth":
			dims.Depth = newDimension(lv.Value)
		}
	}
}

func detectItem(text string) (model.Category, string, bool) {
	lower := strings.ToLower(text)
	for category, keywords := range categoryKeywords {
		if anyMatch(lower, keywords) {
			return category, detectConfiguration(lower), true
		}
	}
	return "", "", false
}

// detectConfiguration matches a configuration keyword against the four
// named templates recovered from original_source (supplemented feature,
// see DESIGN.md / SPEC_FULL.md §7); unmatched text yields "unknown".
func detectConfiguration(lower string) string {
	switch {
	case strings.Contains(lower, "inline panel"):
		return "02_inline_panel_door"
	case strings.Contains(lower, "90 degree") || strings.Contains(lower, "90-degree corner"):
		return "04_90_degree_corner_door"
	case strings.Contains(lower, "bathtub") && strings.Contains(lower, "fixed panel"):
		return "07_bathtub_fixed_panel"
	case strings.Contains(lower, "vanity mirror"):
		return "09_vanity_mirror"
	default:
		return "unknown"
	}
}

func nonIrrelevantPages(entries []model.PageIndexEntry) []int {
	var pages []int
	for _, e := range entries {
		if e.Classification != model.ClassIrrelevant {
			pages = append(pages, e.PageNum)
		}
	}
	return pages
}

func indexByPage(entries []model.PageIndexEntry) map[int]model.PageIndexEntry {
	m := make(map[int]model.PageIndexEntry, len(entries))
	for _, e := range entries {
		m[e.PageNum] = e
	}
	return m
}

func appendDedup(existing []string, fresh []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range fresh {
		if !seen[s] {
			seen[s] = true
			existing = append(existing, s)
		}
	}
	return existing
}
