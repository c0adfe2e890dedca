package cleanup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/cleanup"
	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
)

// fakeStore implements jobstore.Store with in-memory slices, enough to
// exercise the four cleanup steps independently.
type fakeStore struct {
	jobstore.Store // embed nil; only the methods below are ever called

	expired       []model.StorageObject
	staleUploads  []model.Job
	objectsForJob map[string][]model.StorageObject
	oldDoneIDs    []string
	pageCache     []model.StorageObject

	deletedRows  []string
	failedJobs   []string
	clearedJobs  []string

	expireErr error
}

func (f *fakeStore) ListExpiredStorageObjects(ctx context.Context, limit int) ([]model.StorageObject, error) {
	if f.expireErr != nil {
		return nil, f.expireErr
	}
	return f.expired, nil
}

func (f *fakeStore) DeleteStorageObjectRow(ctx context.Context, id string) error {
	f.deletedRows = append(f.deletedRows, id)
	return nil
}

func (f *fakeStore) ListStaleUploadJobs(ctx context.Context, olderThan time.Duration) ([]model.Job, error) {
	return f.staleUploads, nil
}

func (f *fakeStore) ListStorageObjectsForJob(ctx context.Context, jobID string) ([]model.StorageObject, error) {
	return f.objectsForJob[jobID], nil
}

func (f *fakeStore) MarkJobFailed(ctx context.Context, jobID, errorCode, errorMessage string) error {
	f.failedJobs = append(f.failedJobs, jobID)
	return nil
}

func (f *fakeStore) ListOldDoneJobIDs(ctx context.Context, olderThan time.Duration) ([]string, error) {
	return f.oldDoneIDs, nil
}

func (f *fakeStore) ClearSSOTAndAudit(ctx context.Context, jobID string, auditOlderThan time.Duration) error {
	f.clearedJobs = append(f.clearedJobs, jobID)
	return nil
}

func (f *fakeStore) ListOldestPageCacheObjects(ctx context.Context, limit int) ([]model.StorageObject, error) {
	return f.pageCache, nil
}

type fakeObjects struct {
	removed []string
}

func (f *fakeObjects) Download(ctx context.Context, bucket, key, localPath string) error { return nil }
func (f *fakeObjects) Upload(ctx context.Context, bucket, key, localPath, contentType string) error {
	return nil
}
func (f *fakeObjects) UploadBytes(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	return nil
}
func (f *fakeObjects) Remove(ctx context.Context, bucket, key string) error {
	f.removed = append(f.removed, key)
	return nil
}
func (f *fakeObjects) EnsureBuckets(ctx context.Context, buckets []string) error { return nil }

func TestRun_DeletesExpiredObjectsAndResolvesStaleUploads(t *testing.T) {
	store := &fakeStore{
		expired: []model.StorageObject{
			{ID: "obj-1", Bucket: "page-cache", Key: "a.png"},
			{ID: "obj-2", Bucket: "page-cache", Key: "b.png"},
		},
		staleUploads: []model.Job{{ID: "job-1"}},
		objectsForJob: map[string][]model.StorageObject{
			"job-1": {{ID: "obj-3", Bucket: "raw-uploads", Key: "job-1/orig.pdf"}},
		},
		oldDoneIDs: []string{"job-2", "job-3"},
	}
	objects := &fakeObjects{}

	r := cleanup.New(store, objects, nil, logging.Default())
	report := r.Run(context.Background())

	require.Equal(t, 2, report.ExpiredObjectsDeleted)
	require.Equal(t, 1, report.StaleUploadsResolved)
	require.Equal(t, 2, report.OldJobsPurged)
	require.Zero(t, report.Errors)

	require.ElementsMatch(t, []string{"obj-1", "obj-2", "obj-3"}, store.deletedRows)
	require.Equal(t, []string{"job-1"}, store.failedJobs)
	require.ElementsMatch(t, []string{"job-2", "job-3"}, store.clearedJobs)
	require.ElementsMatch(t, []string{"a.png", "b.png", "job-1/orig.pdf"}, objects.removed)
}

// A failure listing expired objects is counted but does not stop the
// remaining steps from running (spec.md §4.8, §7).
func TestRun_StepFailureDoesNotAbortSweep(t *testing.T) {
	store := &fakeStore{
		expireErr:  require.AnError,
		oldDoneIDs: []string{"job-9"},
	}
	objects := &fakeObjects{}

	r := cleanup.New(store, objects, nil, logging.Default())
	report := r.Run(context.Background())

	require.Equal(t, 1, report.Errors)
	require.Equal(t, 0, report.ExpiredObjectsDeleted)
	require.Equal(t, 1, report.OldJobsPurged)
}
