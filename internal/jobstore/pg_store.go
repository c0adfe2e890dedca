package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrs "github.com/cgs/glassbid-worker/internal/errs"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
)

// PgStore is the pgx-backed Store implementation. It is the process-wide
// persistence singleton (spec.md §5, "the object-store client is a process
// singleton" — the same applies to the DB pool).
type PgStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewPgStore opens a pool against databaseURL.
func NewPgStore(ctx context.Context, databaseURL string, log *logging.Logger) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrs.WrapTransient(err)
	}
	return &PgStore{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *PgStore) Close() { s.pool.Close() }

// Pool exposes the underlying pool for test setup and migrations.
func (s *PgStore) Pool() *pgxpool.Pool { return s.pool }

const lockHorizonSQL = "interval '10 minutes'"

// ClaimMainJob selects the oldest eligible job, skipping rows already
// locked by a concurrent claimant, and takes ownership (spec.md §4.2, I1, I2).
func (s *PgStore) ClaimMainJob(ctx context.Context, workerID string) (*model.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	defer tx.Rollback(ctx)

	const selectSQL = `
SELECT id, project_id, status, ssot, stage_progress, locked_at, locked_by,
       next_run_at, retry_count, max_retries, error_code, error_message,
       created_at, updated_at
FROM jobs
WHERE status IN ('UPLOADED', 'REVIEWED', 'PRICED')
  AND (locked_at IS NULL OR locked_at < now() - ` + lockHorizonSQL + `)
  AND (next_run_at IS NULL OR next_run_at <= now())
ORDER BY created_at ASC
FOR UPDATE SKIP LOCKED
LIMIT 1`

	row := tx.QueryRow(ctx, selectSQL)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}

	const updateSQL = `UPDATE jobs SET locked_at = now(), locked_by = $1, updated_at = now() WHERE id = $2`
	if _, err := tx.Exec(ctx, updateSQL, workerID, job.ID); err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}

	now := time.Now()
	job.LockedAt = &now
	job.LockedBy = &workerID
	return job, nil
}

// ClaimRenderRequest returns the oldest PENDING request, preferring MEASURE
// over THUMB regardless of age (spec.md §4.2 tie-breaker).
func (s *PgStore) ClaimRenderRequest(ctx context.Context, workerID string) (*model.RenderRequest, error) {
	const selectSQL = `
SELECT id, job_id, page_num, kind, dpi, status, output_key, created_at, completed_at
FROM render_requests
WHERE status = 'PENDING'
ORDER BY (kind = 'MEASURE') DESC, created_at ASC
FOR UPDATE SKIP LOCKED
LIMIT 1`

	row := s.pool.QueryRow(ctx, selectSQL)
	req, err := scanRenderRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	return req, nil
}

// UpdateJobStatus is the generic job mutator. The scheduler persists each
// stage's result through it, with ClearLock=false between the stages of a
// chain and true on the chain's final transition.
func (s *PgStore) UpdateJobStatus(ctx context.Context, opts UpdateJobStatusOpts) error {
	ssotJSON, err := marshalSSOT(opts.SSOT)
	if err != nil {
		return err
	}
	progressJSON, err := marshalStageProgress(opts.StageProgress)
	if err != nil {
		return err
	}

	sql := `
UPDATE jobs SET status = $1, ssot = $2, stage_progress = $3,
  error_code = $4, error_message = $5, updated_at = now()`
	args := []any{opts.NewStatus, ssotJSON, progressJSON, opts.ErrorCode, opts.ErrorMessage}
	if opts.ClearLock {
		sql += `, locked_at = NULL, locked_by = NULL`
	}
	sql += ` WHERE id = $6`
	args = append(args, opts.JobID)

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// IncrementRetry bumps retry_count, sets next_run_at, and releases the lock.
func (s *PgStore) IncrementRetry(ctx context.Context, jobID string, backoffSeconds int) error {
	const sql = `
UPDATE jobs SET retry_count = retry_count + 1,
  next_run_at = now() + make_interval(secs => $1),
  locked_at = NULL, locked_by = NULL, updated_at = now()
WHERE id = $2`
	if _, err := s.pool.Exec(ctx, sql, backoffSeconds, jobID); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// MarkJobFailed terminally fails a job and releases its lock.
func (s *PgStore) MarkJobFailed(ctx context.Context, jobID, errorCode, errorMessage string) error {
	const sql = `
UPDATE jobs SET status = 'FAILED', error_code = $1, error_message = $2,
  locked_at = NULL, locked_by = NULL, updated_at = now()
WHERE id = $3`
	if _, err := s.pool.Exec(ctx, sql, errorCode, errorMessage, jobID); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// CreateRenderRequest inserts a request, doing nothing on a unique-key
// conflict with an existing (job_id, page_num, kind) row (spec.md §4.5.2,
// §3 "Uniqueness: at most one PENDING per (job_id, page_num, kind)").
func (s *PgStore) CreateRenderRequest(ctx context.Context, req model.RenderRequest) error {
	const sql = `
INSERT INTO render_requests (id, job_id, page_num, kind, dpi, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (job_id, page_num, kind) DO NOTHING`
	if _, err := s.pool.Exec(ctx, sql, req.ID, req.JobID, req.PageNum, req.Kind, req.DPI, req.Status); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// CompleteRenderRequest marks a request DONE with its output key.
func (s *PgStore) CompleteRenderRequest(ctx context.Context, id string, outputKey string) error {
	const sql = `UPDATE render_requests SET status = 'DONE', output_key = $1, completed_at = now() WHERE id = $2`
	if _, err := s.pool.Exec(ctx, sql, outputKey, id); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// FailRenderRequest marks a request FAILED; C4 does not retry internally.
func (s *PgStore) FailRenderRequest(ctx context.Context, id string) error {
	const sql = `UPDATE render_requests SET status = 'FAILED', completed_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, sql, id); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// ExpireStaleThumbRequests deletes PENDING THUMB rows older than maxAge;
// MEASURE and DONE rows are untouched.
func (s *PgStore) ExpireStaleThumbRequests(ctx context.Context, maxAge time.Duration) (int, error) {
	const sql = `
DELETE FROM render_requests
WHERE kind = 'THUMB' AND status = 'PENDING' AND created_at < now() - make_interval(secs => $1)`
	tag, err := s.pool.Exec(ctx, sql, maxAge.Seconds())
	if err != nil {
		return 0, classifyExecErr(err)
	}
	return int(tag.RowsAffected()), nil
}

// CapPendingThumbsPerJob deletes the oldest excess PENDING THUMB rows per
// job beyond maxPending; MEASURE untouched.
func (s *PgStore) CapPendingThumbsPerJob(ctx context.Context, maxPending int) (int, error) {
	const sql = `
DELETE FROM render_requests
WHERE id IN (
  SELECT id FROM (
    SELECT id, ROW_NUMBER() OVER (PARTITION BY job_id ORDER BY created_at ASC) AS rn
    FROM render_requests
    WHERE kind = 'THUMB' AND status = 'PENDING'
  ) ranked
  WHERE ranked.rn > $1
)`
	tag, err := s.pool.Exec(ctx, sql, maxPending)
	if err != nil {
		return 0, classifyExecErr(err)
	}
	return int(tag.RowsAffected()), nil
}

// UpsertHeartbeat writes the worker's liveness row, last-writer-wins.
func (s *PgStore) UpsertHeartbeat(ctx context.Context, hb model.WorkerHeartbeat) error {
	const sql = `
INSERT INTO worker_heartbeats (worker_id, last_heartbeat_at, status, current_job_id, memory_usage_mb, disk_usage_pct)
VALUES ($1, now(), $2, $3, $4, $5)
ON CONFLICT (worker_id) DO UPDATE SET
  last_heartbeat_at = now(), status = EXCLUDED.status,
  current_job_id = EXCLUDED.current_job_id,
  memory_usage_mb = EXCLUDED.memory_usage_mb,
  disk_usage_pct = EXCLUDED.disk_usage_pct`
	if _, err := s.pool.Exec(ctx, sql, hb.WorkerID, hb.Status, hb.CurrentJobID, hb.MemoryUsageMB, hb.DiskUsagePct); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// GetJob fetches a job by id, used to refresh SSOT between stages.
func (s *PgStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	const sql = `
SELECT id, project_id, status, ssot, stage_progress, locked_at, locked_by,
       next_run_at, retry_count, max_retries, error_code, error_message,
       created_at, updated_at
FROM jobs WHERE id = $1`
	row := s.pool.QueryRow(ctx, sql, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	return job, nil
}

// ListLockedJobIDs returns the ids of every job currently holding a lock,
// for startup orphan-temp-dir cleanup (spec.md §4.3).
func (s *PgStore) ListLockedJobIDs(ctx context.Context) ([]string, error) {
	const sql = `SELECT id FROM jobs WHERE locked_at IS NOT NULL`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, pkgerrs.WrapTransient(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	return ids, nil
}

// CreateStorageObject inserts the lifecycle row backing a blob (spec.md
// §3, "Ownership": the row is the source of truth for TTL).
func (s *PgStore) CreateStorageObject(ctx context.Context, obj model.StorageObject) error {
	const sql = `
INSERT INTO storage_objects (id, job_id, bucket, key, size_bytes, sha256, content_type, ttl_policy, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`
	if _, err := s.pool.Exec(ctx, sql, obj.ID, obj.JobID, obj.Bucket, obj.Key, obj.SizeBytes,
		obj.SHA256, obj.ContentType, obj.TTLPolicy, obj.ExpiresAt); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// ListExpiredStorageObjects returns up to limit rows past their expiry
// (spec.md §4.8 step 1, batched 500).
func (s *PgStore) ListExpiredStorageObjects(ctx context.Context, limit int) ([]model.StorageObject, error) {
	const sql = `
SELECT id, job_id, bucket, key, size_bytes, sha256, content_type, ttl_policy, expires_at, created_at
FROM storage_objects WHERE expires_at IS NOT NULL AND expires_at < now() LIMIT $1`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	defer rows.Close()
	return scanStorageObjects(rows)
}

// DeleteStorageObjectRow removes a storage_objects row; proceeds
// regardless of whether the blob removal succeeded (spec.md §4.8, §7).
func (s *PgStore) DeleteStorageObjectRow(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM storage_objects WHERE id = $1`, id); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// ListStaleUploadJobs returns jobs in {CREATED, UPLOADING} older than
// olderThan (spec.md §4.8 step 2).
func (s *PgStore) ListStaleUploadJobs(ctx context.Context, olderThan time.Duration) ([]model.Job, error) {
	const sql = `
SELECT id, project_id, status, ssot, stage_progress, locked_at, locked_by,
       next_run_at, retry_count, max_retries, error_code, error_message,
       created_at, updated_at
FROM jobs
WHERE status IN ('CREATED', 'UPLOADING') AND created_at < now() - make_interval(secs => $1)
LIMIT 100`
	rows, err := s.pool.Query(ctx, sql, olderThan.Seconds())
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListStorageObjectsForJob returns every storage object row for a job.
func (s *PgStore) ListStorageObjectsForJob(ctx context.Context, jobID string) ([]model.StorageObject, error) {
	const sql = `
SELECT id, job_id, bucket, key, size_bytes, sha256, content_type, ttl_policy, expires_at, created_at
FROM storage_objects WHERE job_id = $1`
	rows, err := s.pool.Query(ctx, sql, jobID)
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	defer rows.Close()
	return scanStorageObjects(rows)
}

// ListOldDoneJobIDs returns job ids DONE more than olderThan ago (spec.md
// §4.8 step 3).
func (s *PgStore) ListOldDoneJobIDs(ctx context.Context, olderThan time.Duration) ([]string, error) {
	const sql = `
SELECT id FROM jobs WHERE status = 'DONE' AND updated_at < now() - make_interval(secs => $1)`
	rows, err := s.pool.Query(ctx, sql, olderThan.Seconds())
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearSSOTAndAudit blanks a job's ssot and deletes its audit rows older
// than auditOlderThan (spec.md §4.8 step 3).
func (s *PgStore) ClearSSOTAndAudit(ctx context.Context, jobID string, auditOlderThan time.Duration) error {
	if _, err := s.pool.Exec(ctx, `UPDATE jobs SET ssot = '{}' WHERE id = $1`, jobID); err != nil {
		return classifyExecErr(err)
	}
	const auditSQL = `DELETE FROM audit_log WHERE job_id = $1 AND created_at < now() - make_interval(secs => $2)`
	if _, err := s.pool.Exec(ctx, auditSQL, jobID, auditOlderThan.Seconds()); err != nil {
		return classifyExecErr(err)
	}
	return nil
}

// ListOldestPageCacheObjects returns the oldest page-cache rows for
// emergency eviction (spec.md §4.8 step 4).
func (s *PgStore) ListOldestPageCacheObjects(ctx context.Context, limit int) ([]model.StorageObject, error) {
	const sql = `
SELECT id, job_id, bucket, key, size_bytes, sha256, content_type, ttl_policy, expires_at, created_at
FROM storage_objects WHERE bucket = 'page-cache' ORDER BY created_at ASC LIMIT $1`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, pkgerrs.WrapTransient(err)
	}
	defer rows.Close()
	return scanStorageObjects(rows)
}

// LoadActivePricebook reads the highest-version pricebook and its rules.
// Returns a zero-rule PricebookRow (not an error) when no pricebook exists
// yet, so PRICING falls through to the fixed-category fallback (spec.md
// §4.5.4).
func (s *PgStore) LoadActivePricebook(ctx context.Context) (PricebookRow, error) {
	const versionSQL = `SELECT id FROM pricebook_versions ORDER BY version DESC LIMIT 1`
	var versionID string
	if err := s.pool.QueryRow(ctx, versionSQL).Scan(&versionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PricebookRow{}, nil
		}
		return PricebookRow{}, pkgerrs.WrapTransient(err)
	}

	const rulesSQL = `
SELECT applies_to_category, applies_to_configuration, formula_kind, unit_price, rate, amount
FROM pricing_rules WHERE pricebook_version_id = $1`
	rows, err := s.pool.Query(ctx, rulesSQL, versionID)
	if err != nil {
		return PricebookRow{}, pkgerrs.WrapTransient(err)
	}
	defer rows.Close()

	var ruleRows []PricingRuleRow
	for rows.Next() {
		var r PricingRuleRow
		if err := rows.Scan(&r.AppliesToCategory, &r.AppliesToConfiguration, &r.FormulaKind,
			&r.UnitPrice, &r.Rate, &r.Amount); err != nil {
			return PricebookRow{}, err
		}
		ruleRows = append(ruleRows, r)
	}
	if err := rows.Err(); err != nil {
		return PricebookRow{}, err
	}

	return PricebookRow{VersionID: versionID, Rules: ruleRows}, nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStorageObjects(rows rowsScanner) ([]model.StorageObject, error) {
	var out []model.StorageObject
	for rows.Next() {
		var o model.StorageObject
		if err := rows.Scan(&o.ID, &o.JobID, &o.Bucket, &o.Key, &o.SizeBytes, &o.SHA256,
			&o.ContentType, &o.TTLPolicy, &o.ExpiresAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func classifyExecErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code[:2] == "23" {
		return pkgerrs.WrapConflict(err)
	}
	return pkgerrs.WrapTransient(err)
}

type row interface {
	Scan(dest ...any) error
}

func scanJob(r row) (*model.Job, error) {
	var (
		j            model.Job
		ssotJSON     []byte
		progressJSON []byte
	)
	if err := r.Scan(&j.ID, &j.ProjectID, &j.Status, &ssotJSON, &progressJSON,
		&j.LockedAt, &j.LockedBy, &j.NextRunAt, &j.RetryCount, &j.MaxRetries,
		&j.ErrorCode, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	ssot, err := unmarshalSSOT(ssotJSON)
	if err != nil {
		return nil, err
	}
	progress, err := unmarshalStageProgress(progressJSON)
	if err != nil {
		return nil, err
	}
	j.SSOT = ssot
	j.StageProgress = progress
	return &j, nil
}

func scanRenderRequest(r row) (*model.RenderRequest, error) {
	var req model.RenderRequest
	if err := r.Scan(&req.ID, &req.JobID, &req.PageNum, &req.Kind, &req.DPI,
		&req.Status, &req.OutputKey, &req.CreatedAt, &req.CompletedAt); err != nil {
		return nil, err
	}
	return &req, nil
}
