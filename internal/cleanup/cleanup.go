// Package cleanup implements C8: the daily retention sweep, grounded on
// original_source/worker/src/cleanup.py's four sequential steps, each with
// its own error counter that never aborts the rest of the sweep.
package cleanup

import (
	"context"
	"time"

	"github.com/cgs/glassbid-worker/internal/diskguard"
	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/objectstore"
)

const (
	staleUploadAge    = 24 * time.Hour
	oldJobAge         = 180 * 24 * time.Hour
	emergencyDiskPct  = 90.0
	emergencyEvictN   = 200
	expiredBatchLimit = 500
)

// Runner performs the C8 cleanup sweep.
type Runner struct {
	store   jobstore.Store
	objects objectstore.Client
	guard   *diskguard.Guard
	log     *logging.Logger
}

// New builds a cleanup Runner.
func New(store jobstore.Store, objects objectstore.Client, guard *diskguard.Guard, log *logging.Logger) *Runner {
	return &Runner{store: store, objects: objects, guard: guard, log: log}
}

// Report summarizes one sweep.
type Report struct {
	ExpiredObjectsDeleted int
	StaleUploadsResolved  int
	OldJobsPurged         int
	EmergencyEvicted      int
	Errors                int
}

// Run executes all four steps in order; a failure in one step is logged
// and counted, never aborting the sweep (spec.md §4.8, §7).
func (r *Runner) Run(ctx context.Context) Report {
	var report Report

	if n, errCount := r.expireStorageObjects(ctx); true {
		report.ExpiredObjectsDeleted = n
		report.Errors += errCount
	}

	if n, errCount := r.cleanupStaleUploads(ctx); true {
		report.StaleUploadsResolved = n
		report.Errors += errCount
	}

	if n, errCount := r.purgeOldJobs(ctx); true {
		report.OldJobsPurged = n
		report.Errors += errCount
	}

	if r.guard != nil && r.guard.UsagePct() >= emergencyDiskPct {
		n, errCount := r.emergencyEvict(ctx)
		report.EmergencyEvicted = n
		report.Errors += errCount
	}

	r.log.Info().
		Int("expired_objects", report.ExpiredObjectsDeleted).
		Int("stale_uploads", report.StaleUploadsResolved).
		Int("old_jobs_purged", report.OldJobsPurged).
		Int("emergency_evicted", report.EmergencyEvicted).
		Int("errors", report.Errors).
		Msg("cleanup sweep complete")

	return report
}

// expireStorageObjects deletes storage objects past their expires_at,
// batched to expiredBatchLimit rows. Blob removal is attempted first but
// the row is deleted regardless, since an orphan blob is cheaper to carry
// than a row that blocks future sweeps (spec.md §4.8 step 1).
func (r *Runner) expireStorageObjects(ctx context.Context) (int, int) {
	objs, err := r.store.ListExpiredStorageObjects(ctx, expiredBatchLimit)
	if err != nil {
		r.log.Warn().Err(err).Msg("list expired storage objects failed")
		return 0, 1
	}

	var deleted, errCount int
	for _, obj := range objs {
		if err := r.objects.Remove(ctx, obj.Bucket, obj.Key); err != nil {
			r.log.Warn().Err(err).Str("key", obj.Key).Msg("remove expired blob failed, deleting row anyway")
		}
		if err := r.store.DeleteStorageObjectRow(ctx, obj.ID); err != nil {
			r.log.Warn().Err(err).Str("id", obj.ID).Msg("delete expired storage object row failed")
			errCount++
			continue
		}
		deleted++
	}
	return deleted, errCount
}

// cleanupStaleUploads fails jobs stuck in CREATED/UPLOADING past
// staleUploadAge, removing any blobs they uploaded (spec.md §4.8 step 2).
func (r *Runner) cleanupStaleUploads(ctx context.Context) (int, int) {
	jobs, err := r.store.ListStaleUploadJobs(ctx, staleUploadAge)
	if err != nil {
		r.log.Warn().Err(err).Msg("list stale upload jobs failed")
		return 0, 1
	}

	var resolved, errCount int
	for _, job := range jobs {
		objs, err := r.store.ListStorageObjectsForJob(ctx, job.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("job_id", job.ID).Msg("list storage objects for stale job failed")
			errCount++
			continue
		}
		for _, obj := range objs {
			if err := r.objects.Remove(ctx, obj.Bucket, obj.Key); err != nil {
				r.log.Warn().Err(err).Str("key", obj.Key).Msg("remove stale upload blob failed")
			}
			if err := r.store.DeleteStorageObjectRow(ctx, obj.ID); err != nil {
				r.log.Warn().Err(err).Str("id", obj.ID).Msg("delete stale upload storage object row failed")
			}
		}

		if err := r.store.MarkJobFailed(ctx, job.ID, "UPLOAD_ABANDONED", "upload never completed"); err != nil {
			r.log.Warn().Err(err).Str("job_id", job.ID).Msg("mark stale upload job failed")
			errCount++
			continue
		}
		resolved++
	}
	return resolved, errCount
}

// purgeOldJobs clears the SSOT and old audit rows of DONE jobs past
// oldJobAge (spec.md §4.8 step 3).
func (r *Runner) purgeOldJobs(ctx context.Context) (int, int) {
	ids, err := r.store.ListOldDoneJobIDs(ctx, oldJobAge)
	if err != nil {
		r.log.Warn().Err(err).Msg("list old done jobs failed")
		return 0, 1
	}

	var purged, errCount int
	for _, id := range ids {
		if err := r.store.ClearSSOTAndAudit(ctx, id, oldJobAge); err != nil {
			r.log.Warn().Err(err).Str("job_id", id).Msg("clear ssot and audit failed")
			errCount++
			continue
		}
		purged++
	}
	return purged, errCount
}

// emergencyEvict deletes the emergencyEvictN oldest page-cache objects
// when disk usage is at or above emergencyDiskPct (spec.md §4.8 step 4).
func (r *Runner) emergencyEvict(ctx context.Context) (int, int) {
	objs, err := r.store.ListOldestPageCacheObjects(ctx, emergencyEvictN)
	if err != nil {
		r.log.Warn().Err(err).Msg("list oldest page cache objects failed")
		return 0, 1
	}

	var evicted, errCount int
	for _, obj := range objs {
		if err := r.objects.Remove(ctx, obj.Bucket, obj.Key); err != nil {
			r.log.Warn().Err(err).Str("key", obj.Key).Msg("emergency evict blob removal failed")
		}
		if err := r.store.DeleteStorageObjectRow(ctx, obj.ID); err != nil {
			r.log.Warn().Err(err).Str("id", obj.ID).Msg("emergency evict row deletion failed")
			errCount++
			continue
		}
		evicted++
	}

	r.log.Warn().Int("evicted", evicted).Msg("emergency page-cache eviction triggered")
	return evicted, errCount
}
