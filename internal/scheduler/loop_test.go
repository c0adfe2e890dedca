package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/config"
	"github.com/cgs/glassbid-worker/internal/errs"
	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
)

type fakeStore struct {
	jobstore.Store

	incrementedJobID string
	incrementedSecs  int
	failedJobID      string
	failedCode       string
}

func (f *fakeStore) IncrementRetry(ctx context.Context, jobID string, backoffSeconds int) error {
	f.incrementedJobID = jobID
	f.incrementedSecs = backoffSeconds
	return nil
}

func (f *fakeStore) MarkJobFailed(ctx context.Context, jobID, errorCode, errorMessage string) error {
	f.failedJobID = jobID
	f.failedCode = errorCode
	return nil
}

func TestHandleJobError_TransientLeavesJobUntouched(t *testing.T) {
	store := &fakeStore{}
	s := &Scheduler{store: store, log: logging.Silent()}

	job := &model.Job{ID: "job-1", RetryCount: 0, MaxRetries: 3}
	s.handleJobError(context.Background(), job, errs.WrapTransient(errors.New("db unreachable")))

	require.Empty(t, store.incrementedJobID)
	require.Empty(t, store.failedJobID)
}

func TestHandleJobError_RetriesWithLadderBackoffUnderMaxRetries(t *testing.T) {
	store := &fakeStore{}
	s := &Scheduler{store: store, log: logging.Silent()}

	job := &model.Job{ID: "job-2", RetryCount: 1, MaxRetries: 3}
	s.handleJobError(context.Background(), job, errors.New("stage blew up"))

	require.Equal(t, "job-2", store.incrementedJobID)
	require.Equal(t, config.BackoffForAttempt(2), store.incrementedSecs)
	require.Empty(t, store.failedJobID)
}

func TestHandleJobError_FailsJobAtMaxRetries(t *testing.T) {
	store := &fakeStore{}
	s := &Scheduler{store: store, log: logging.Silent()}

	job := &model.Job{ID: "job-3", RetryCount: 3, MaxRetries: 3}
	s.handleJobError(context.Background(), job, errors.New("stage blew up"))

	require.Equal(t, "job-3", store.failedJobID)
	require.Equal(t, "STAGE_ERROR", store.failedCode)
	require.Empty(t, store.incrementedJobID)
}

func TestSourceKey_MatchesProjectJobConvention(t *testing.T) {
	job := &model.Job{ID: "job-9", ProjectID: "proj-1"}
	require.Equal(t, "proj-1/job-9/source.pdf", sourceKey(job))
}

func TestToPricebook_ConvertsRows(t *testing.T) {
	row := jobstore.PricebookRow{
		VersionID: "v3",
		Rules: []jobstore.PricingRuleRow{
			{AppliesToCategory: "SHOWER_ENCLOSURE", FormulaKind: "per_sqft", Rate: 45},
		},
	}
	book := toPricebook(row)

	require.Equal(t, "v3", book.VersionID)
	require.Len(t, book.Rules, 1)
	require.Equal(t, model.CategoryShowerEnclosure, book.Rules[0].AppliesToCategory)
	require.Equal(t, 45.0, book.Rules[0].Rate)
}

// Checks the 5x multiplication the poll loop applies to the configured
// poll interval under disk pressure; the loop itself is not run here.
func TestPressureExtendsSleepInterval(t *testing.T) {
	cfg := &config.Config{PollIntervalSeconds: 2}
	base := cfg.PollInterval()
	require.Equal(t, 10*time.Second, base*5)
}
