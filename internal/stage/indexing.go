package stage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/objectstore"
)

// Indexing implements the INDEXING stage (spec.md §4.5.1): per-page
// classification and relevance tagging from extracted PDF text.
type Indexing struct {
	store objectstore.Client
	log   *logging.Logger
}

// NewIndexing builds the INDEXING stage.
func NewIndexing(store objectstore.Client, log *logging.Logger) *Indexing {
	return &Indexing{store: store, log: log}
}

// Run executes INDEXING against the given job, downloading the source PDF
// to localPath. Entry guard: if ssot.PageIndex is already populated, the
// stage logs "skip" and returns without re-doing work (spec.md §4.5).
func (s *Indexing) Run(ctx context.Context, job *model.Job, sourceKey, localPath string) error {
	if len(job.SSOT.PageIndex) > 0 {
		s.log.Info().Str("job_id", job.ID).Msg("indexing: skip, already populated")
		job.Status = model.StatusIndexed
		return nil
	}

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		if err := s.store.Download(ctx, "raw-uploads", sourceKey, localPath); err != nil {
			return fmt.Errorf("download source pdf: %w", err)
		}
	}

	pages, err := extractPDFText(localPath)
	if err != nil {
		return fmt.Errorf("extract pdf text: %w", err)
	}

	entries := make([]model.PageIndexEntry, 0, len(pages))
	for i, text := range pages {
		pageNum := i + 1
		entries = append(entries, classifyPage(pageNum, text))
	}

	job.SSOT.PageIndex = entries
	job.SSOT.Metadata.PageCount = len(pages)
	job.Status = model.StatusIndexed
	return nil
}

// classifyPage computes (classification, confidence, relevantTo) for one
// page (spec.md §4.5.1).
func classifyPage(pageNum int, text string) model.PageIndexEntry {
	lower := strings.ToLower(text)

	var classification model.Classification
	var confidence float64

	if pageNum <= 1 && anyMatch(lower, titleKeywords) {
		classification = model.ClassTitle
		confidence = 0.85
	} else {
		best := model.ClassIrrelevant
		bestScore := 0.0
		for class, keywords := range classKeywords {
			if len(keywords) == 0 {
				continue
			}
			score := float64(countMatches(lower, keywords)) / float64(len(keywords))
			if score > bestScore {
				bestScore = score
				best = class
			}
		}
		if bestScore < 0.1 {
			classification = model.ClassIrrelevant
			confidence = 0.30
		} else {
			classification = best
			confidence = minFloat(0.95, 0.4+0.6*bestScore)
		}
	}

	var relevantTo []model.RelevanceTag
	for tag, keywords := range relevanceKeywords {
		if anyMatch(lower, keywords) {
			relevantTo = append(relevantTo, tag)
		}
	}

	return model.PageIndexEntry{
		PageNum:        pageNum,
		Classification: classification,
		Confidence:     confidence,
		RelevantTo:     relevantTo,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// extractPDFText reads the text of every page in a PDF file, grounded on
// bobmcallan-vire's extractPDFText (internal/services/market/filings.go).
func extractPDFText(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
