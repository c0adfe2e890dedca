package stage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
)

// Routing implements the ROUTING stage (spec.md §4.5.2): selects relevant
// pages and emits THUMB render requests for them.
type Routing struct {
	store jobstore.Store
	log   *logging.Logger
}

// NewRouting builds the ROUTING stage.
func NewRouting(store jobstore.Store, log *logging.Logger) *Routing {
	return &Routing{store: store, log: log}
}

const thumbDPI = 72

// Run executes ROUTING. A page is relevant iff its classification is in
// {SCHEDULE, DETAIL, NOTES, ELEVATION} or it carries any relevantTo tag
// (spec.md §4.5.2).
func (s *Routing) Run(ctx context.Context, job *model.Job) error {
	if job.SSOT.Routing.TotalPages > 0 {
		s.log.Info().Str("job_id", job.ID).Msg("routing: skip, already populated")
		job.Status = model.StatusRouted
		return nil
	}

	var relevant []int
	for _, entry := range job.SSOT.PageIndex {
		if isRelevantPage(entry) {
			relevant = append(relevant, entry.PageNum)
		}
	}

	job.SSOT.Routing = model.Routing{
		RelevantPages: relevant,
		TotalPages:    len(job.SSOT.PageIndex),
	}

	for _, pageNum := range relevant {
		req := model.RenderRequest{
			ID:      uuid.NewString(),
			JobID:   job.ID,
			PageNum: pageNum,
			Kind:    model.RenderThumb,
			DPI:     thumbDPI,
			Status:  model.RenderPending,
		}
		if err := s.store.CreateRenderRequest(ctx, req); err != nil {
			return fmt.Errorf("emit thumb request for page %d: %w", pageNum, err)
		}
	}

	job.Status = model.StatusRouted
	return nil
}

func isRelevantPage(entry model.PageIndexEntry) bool {
	switch entry.Classification {
	case model.ClassSchedule, model.ClassDetail, model.ClassNotes, model.ClassElevation:
		return true
	}
	return len(entry.RelevantTo) > 0
}
