// Package jobstore implements the relational job queue: claim/update/retry
// primitives for main jobs and render requests, plus heartbeats (spec.md
// §4.2). Most operations are a single statement; ClaimMainJob selects and
// updates inside one transaction, and ClearSSOTAndAudit and
// LoadActivePricebook each issue two separate statements.
package jobstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cgs/glassbid-worker/internal/errs"
	"github.com/cgs/glassbid-worker/internal/model"
)

// Store is the job-store contract consumed by the scheduler and stage
// runner. Implementations must honor I1-I3 from spec.md §3.
type Store interface {
	ClaimMainJob(ctx context.Context, workerID string) (*model.Job, error)
	ClaimRenderRequest(ctx context.Context, workerID string) (*model.RenderRequest, error)

	UpdateJobStatus(ctx context.Context, opts UpdateJobStatusOpts) error
	IncrementRetry(ctx context.Context, jobID string, backoffSeconds int) error
	MarkJobFailed(ctx context.Context, jobID, errorCode, errorMessage string) error

	CreateRenderRequest(ctx context.Context, req model.RenderRequest) error
	CompleteRenderRequest(ctx context.Context, id string, outputKey string) error
	FailRenderRequest(ctx context.Context, id string) error

	ExpireStaleThumbRequests(ctx context.Context, maxAge time.Duration) (int, error)
	CapPendingThumbsPerJob(ctx context.Context, maxPending int) (int, error)

	UpsertHeartbeat(ctx context.Context, hb model.WorkerHeartbeat) error

	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	CreateStorageObject(ctx context.Context, obj model.StorageObject) error

	// ListLockedJobIDs returns the ids of every job currently holding a
	// lock, for startup orphan-temp-dir cleanup (spec.md §4.3): a dir must
	// survive if its job is locked by any worker, not just this process.
	ListLockedJobIDs(ctx context.Context) ([]string, error)

	// Cleanup-step primitives (spec.md §4.8).
	ListExpiredStorageObjects(ctx context.Context, limit int) ([]model.StorageObject, error)
	DeleteStorageObjectRow(ctx context.Context, id string) error
	ListStaleUploadJobs(ctx context.Context, olderThan time.Duration) ([]model.Job, error)
	ListStorageObjectsForJob(ctx context.Context, jobID string) ([]model.StorageObject, error)
	ListOldDoneJobIDs(ctx context.Context, olderThan time.Duration) ([]string, error)
	ClearSSOTAndAudit(ctx context.Context, jobID string, auditOlderThan time.Duration) error
	ListOldestPageCacheObjects(ctx context.Context, limit int) ([]model.StorageObject, error)

	// LoadActivePricebook returns the highest-version pricebook's rules
	// (spec.md §4.5.4, §6 "schema is owned externally" — pricebook_versions
	// and pricing_rules live outside this module's DDL so the query only
	// assumes the column names the formula evaluator needs).
	LoadActivePricebook(ctx context.Context) (PricebookRow, error)
}

// PricebookRow is the row shape LoadActivePricebook returns; internal/stage
// converts it into a stage.Pricebook so jobstore never imports stage.
type PricebookRow struct {
	VersionID string
	Rules     []PricingRuleRow
}

// PricingRuleRow is one rule from the pricing_rules table.
type PricingRuleRow struct {
	AppliesToCategory      string
	AppliesToConfiguration string
	FormulaKind            string
	UnitPrice              float64
	Rate                   float64
	Amount                 float64
}

// UpdateJobStatusOpts are the optional fields on an update_job_status call.
// ClearLock is false in the zero value, which leaves the lock in place;
// callers set it true to release the lock and leave it false for
// intra-stage progress updates so the worker retains ownership.
type UpdateJobStatusOpts struct {
	JobID         string
	NewStatus     model.JobStatus
	SSOT          *model.SSOT
	StageProgress *model.StageProgress
	ErrorCode     *string
	ErrorMessage  *string
	ClearLock     bool
}

func marshalSSOT(s *model.SSOT) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

func marshalStageProgress(p *model.StageProgress) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

func unmarshalSSOT(data []byte) (*model.SSOT, error) {
	s := &model.SSOT{}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errs.WrapFatal(err)
	}
	return s, nil
}

func unmarshalStageProgress(data []byte) (*model.StageProgress, error) {
	p := &model.StageProgress{}
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, errs.WrapFatal(err)
	}
	return p, nil
}
