// Package scheduler implements C9: the worker's main loop. It polls render
// requests and main jobs with render given priority, dispatches each main
// job to the stage chain matching its entry status, and runs the periodic
// heartbeat and cleanup sweep — grounded on
// bobmcallan-vire/internal/services/jobmanager/manager.go's Start/Stop/
// safeGo shape and watcher.go's ticker-with-backoff pattern.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cgs/glassbid-worker/internal/cleanup"
	"github.com/cgs/glassbid-worker/internal/config"
	"github.com/cgs/glassbid-worker/internal/diskguard"
	"github.com/cgs/glassbid-worker/internal/errs"
	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/render"
	"github.com/cgs/glassbid-worker/internal/stage"
)

// Scheduler owns the poll loop and the stage chain that processes a
// claimed main job.
type Scheduler struct {
	cfg     *config.Config
	store   jobstore.Store
	guard   *diskguard.Guard
	renderer *render.Renderer

	indexing   *stage.Indexing
	routing    *stage.Routing
	extracting *stage.Extracting
	pricing    *stage.Pricing
	generating *stage.Generating

	cleanupRunner *cleanup.Runner
	log           *logging.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds the Scheduler from its fully-constructed collaborators.
func New(
	cfg *config.Config,
	store jobstore.Store,
	guard *diskguard.Guard,
	renderer *render.Renderer,
	indexing *stage.Indexing,
	routing *stage.Routing,
	extracting *stage.Extracting,
	pricing *stage.Pricing,
	generating *stage.Generating,
	cleanupRunner *cleanup.Runner,
	log *logging.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		store:         store,
		guard:         guard,
		renderer:      renderer,
		indexing:      indexing,
		routing:       routing,
		extracting:    extracting,
		pricing:       pricing,
		generating:    generating,
		cleanupRunner: cleanupRunner,
		log:           log,
	}
}

// safeGo launches fn in a goroutine with panic recovery, mirroring the
// teacher's JobManager.safeGo.
func (s *Scheduler) safeGo(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in scheduler goroutine")
			}
		}()
		fn()
	}()
}

// Run blocks until ctx is cancelled, then waits for in-flight work to
// settle before returning (spec.md §6, graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	lockedIDs, err := s.store.ListLockedJobIDs(runCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("list locked job ids at startup failed, skipping orphan temp dir cleanup")
	} else {
		locked := make(map[string]bool, len(lockedIDs))
		for _, id := range lockedIDs {
			locked[id] = true
		}
		if err := s.guard.CleanupOrphanTempDirs(locked); err != nil {
			s.log.Warn().Err(err).Msg("orphan temp dir cleanup at startup failed")
		}
	}

	s.safeGo("poll-loop", func() { s.pollLoop(runCtx) })

	<-runCtx.Done()
	s.wg.Wait()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// pollLoop is the single ticking loop backing both Loop A (render requests)
// and Loop B (main jobs). Each tick tries a render request first; only when
// none is pending does it attempt a main job, so pending page renders are
// always taken before a new main job is claimed (spec.md §4.9).
func (s *Scheduler) pollLoop(ctx context.Context) {
	lastCleanup := time.Now()
	var currentJobID *string
	status := model.HeartbeatIdle

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pressure := s.guard.IsPressure()
		if pressure {
			s.log.Warn().Float64("disk_pct", s.guard.UsagePct()).Msg("disk pressure: skipping claim this tick")
		} else {
			renderClaimed := s.tickRender(ctx, &status, &currentJobID)
			if !renderClaimed && s.cfg.WorkerMode == config.ModeFull {
				s.tickMainJob(ctx, &status, &currentJobID)
			}
		}

		s.heartbeat(ctx, status, currentJobID, pressure)

		if time.Since(lastCleanup) >= config.CleanupInterval {
			s.cleanupRunner.Run(ctx)
			lastCleanup = time.Now()
		}

		interval := s.cfg.PollInterval()
		if pressure {
			interval *= 5
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (s *Scheduler) heartbeat(ctx context.Context, status model.HeartbeatStatus, jobID *string, pressure bool) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	hb := model.WorkerHeartbeat{
		WorkerID:      s.cfg.WorkerID,
		Status:        status,
		CurrentJobID:  jobID,
		MemoryUsageMB: float64(mem.Alloc) / (1024 * 1024),
		DiskUsagePct:  s.guard.UsagePct(),
	}
	if err := s.store.UpsertHeartbeat(ctx, hb); err != nil {
		s.log.Warn().Err(err).Msg("heartbeat upsert failed")
	}
}

// tickRender claims and processes at most one render request. Returns true
// if a request was claimed (whether it succeeded or failed).
func (s *Scheduler) tickRender(ctx context.Context, status *model.HeartbeatStatus, currentJobID **string) bool {
	req, err := s.store.ClaimRenderRequest(ctx, s.cfg.WorkerID)
	if err != nil {
		s.log.Warn().Err(err).Msg("claim render request failed")
		return false
	}
	if req == nil {
		return false
	}

	*status = model.HeartbeatProcessing
	*currentJobID = &req.JobID
	defer func() {
		*status = model.HeartbeatIdle
		*currentJobID = nil
	}()

	job, err := s.store.GetJob(ctx, req.JobID)
	if err != nil || job == nil {
		s.log.Warn().Err(err).Str("render_request_id", req.ID).Msg("render request's job not found")
		_ = s.store.FailRenderRequest(ctx, req.ID)
		return true
	}

	result, err := s.renderer.Render(ctx, render.Request{
		JobID:        job.ID,
		SourceKey:    sourceKey(job),
		PageNum:      req.PageNum,
		Kind:         req.Kind,
		RequestedDPI: req.DPI,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("render_request_id", req.ID).Int("page", req.PageNum).Msg("render failed")
		if ferr := s.store.FailRenderRequest(ctx, req.ID); ferr != nil {
			s.log.Warn().Err(ferr).Str("render_request_id", req.ID).Msg("mark render request failed, failed")
		}
		s.guard.CleanupJobTemp(job.ID)
		return true
	}

	if err := s.store.CompleteRenderRequest(ctx, req.ID, result.OutputKey); err != nil {
		s.log.Warn().Err(err).Str("render_request_id", req.ID).Msg("complete render request failed")
	}
	return true
}

// tickMainJob claims and fully processes at most one main job.
func (s *Scheduler) tickMainJob(ctx context.Context, status *model.HeartbeatStatus, currentJobID **string) {
	job, err := s.store.ClaimMainJob(ctx, s.cfg.WorkerID)
	if err != nil {
		s.log.Warn().Err(err).Msg("claim main job failed")
		return
	}
	if job == nil {
		return
	}

	*status = model.HeartbeatProcessing
	*currentJobID = &job.ID
	defer func() {
		*status = model.HeartbeatIdle
		*currentJobID = nil
		s.guard.CleanupJobTemp(job.ID)
	}()

	if err := s.processMainJob(ctx, job); err != nil {
		s.handleJobError(ctx, job, err)
	}
}

// processMainJob dispatches to the stage chain matching the job's entry
// status (spec.md §4.5): UPLOADED runs index→route→extract, REVIEWED runs
// pricing, PRICED runs generating. Intermediate transitions persist with
// ClearLock=false so a crash mid-chain resumes via the entry guards;
// the final transition releases the lock.
func (s *Scheduler) processMainJob(ctx context.Context, job *model.Job) error {
	switch job.Status {
	case model.StatusUploaded:
		return s.runUploadChain(ctx, job)
	case model.StatusReviewed:
		return s.runPricing(ctx, job)
	case model.StatusPriced:
		return s.runGenerating(ctx, job)
	default:
		return fmt.Errorf("job %s claimed in unexpected status %s", job.ID, job.Status)
	}
}

func (s *Scheduler) runUploadChain(ctx context.Context, job *model.Job) error {
	dir, err := s.guard.EnsureJobDir(job.ID)
	if err != nil {
		return errs.WrapTransient(fmt.Errorf("ensure job temp dir: %w", err))
	}
	localPath := dir + "/source.pdf"

	job.Status = model.StatusIndexing
	if err := s.indexing.Run(ctx, job, sourceKey(job), localPath); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	if err := s.persist(ctx, job, false); err != nil {
		return err
	}

	job.Status = model.StatusRouting
	if err := s.routing.Run(ctx, job); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if err := s.persist(ctx, job, false); err != nil {
		return err
	}

	pages, err := stage.ExtractPageText(localPath)
	if err != nil {
		return fmt.Errorf("extract page text: %w", err)
	}

	job.Status = model.StatusExtracting
	if err := s.extracting.Run(ctx, job, pages); err != nil {
		return fmt.Errorf("extracting: %w", err)
	}
	return s.persist(ctx, job, true)
}

func (s *Scheduler) runPricing(ctx context.Context, job *model.Job) error {
	bookRow, err := s.store.LoadActivePricebook(ctx)
	if err != nil {
		return errs.WrapTransient(fmt.Errorf("load active pricebook: %w", err))
	}
	book := toPricebook(bookRow)

	previous := &model.SSOT{Pricing: job.SSOT.Pricing}

	job.Status = model.StatusPricing
	if err := s.pricing.Run(ctx, job, book, previous); err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	return s.persist(ctx, job, true)
}

func (s *Scheduler) runGenerating(ctx context.Context, job *model.Job) error {
	dir, err := s.guard.EnsureJobDir(job.ID)
	if err != nil {
		return errs.WrapTransient(fmt.Errorf("ensure job temp dir: %w", err))
	}

	job.Status = model.StatusGenerating
	if err := s.generating.Run(ctx, job, dir); err != nil {
		return fmt.Errorf("generating: %w", err)
	}
	return s.persist(ctx, job, true)
}

// persist writes the job's current status/SSOT/stage_progress, clearing
// the lock only on the chain's final transition.
func (s *Scheduler) persist(ctx context.Context, job *model.Job, clearLock bool) error {
	if err := s.store.UpdateJobStatus(ctx, jobstore.UpdateJobStatusOpts{
		JobID:         job.ID,
		NewStatus:     job.Status,
		SSOT:          job.SSOT,
		StageProgress: job.StageProgress,
		ErrorCode:     job.ErrorCode,
		ErrorMessage:  job.ErrorMessage,
		ClearLock:     clearLock,
	}); err != nil {
		return fmt.Errorf("persist job status: %w", err)
	}
	return nil
}

// handleJobError classifies a stage failure (spec.md §7): transient errors
// are logged and left for the lock horizon to reclaim; everything else
// counts against retry_count, failing the job once max_retries is reached.
func (s *Scheduler) handleJobError(ctx context.Context, job *model.Job, err error) {
	if errs.IsTransient(err) {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("transient error processing job, leaving locked")
		return
	}

	s.log.Warn().Err(err).Str("job_id", job.ID).Int("retry_count", job.RetryCount).Msg("job processing failed")

	nextAttempt := job.RetryCount + 1
	if nextAttempt > job.MaxRetries {
		if ferr := s.store.MarkJobFailed(ctx, job.ID, "STAGE_ERROR", err.Error()); ferr != nil {
			s.log.Warn().Err(ferr).Str("job_id", job.ID).Msg("mark job failed, failed")
		}
		return
	}

	backoff := config.BackoffForAttempt(nextAttempt)
	if rerr := s.store.IncrementRetry(ctx, job.ID, backoff); rerr != nil {
		s.log.Warn().Err(rerr).Str("job_id", job.ID).Msg("increment retry failed")
	}
}

// sourceKey is the raw-uploads object key convention for a job's source
// PDF (spec.md §3), mirroring internal/stage/generating.go's output key
// convention.
func sourceKey(job *model.Job) string {
	return fmt.Sprintf("%s/%s/source.pdf", job.ProjectID, job.ID)
}

func toPricebook(row jobstore.PricebookRow) stage.Pricebook {
	rules := make([]stage.Rule, 0, len(row.Rules))
	for _, r := range row.Rules {
		rules = append(rules, stage.Rule{
			AppliesToCategory:      model.Category(r.AppliesToCategory),
			AppliesToConfiguration: r.AppliesToConfiguration,
			FormulaKind:            stage.RuleKind(r.FormulaKind),
			UnitPrice:              r.UnitPrice,
			Rate:                   r.Rate,
			Amount:                 r.Amount,
		})
	}
	return stage.Pricebook{VersionID: row.VersionID, Rules: rules}
}
