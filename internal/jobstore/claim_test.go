package jobstore_test

import (
	"context"
	_ "embed"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
)

//go:embed schema_test.sql
var schemaSQL string

func newTestStore(t *testing.T) *jobstore.PgStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("worker"),
		tcpostgres.WithUsername("worker"),
		tcpostgres.WithPassword("worker"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := jobstore.NewPgStore(ctx, url, logging.Default())
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.Pool().Exec(ctx, schemaSQL)
	require.NoError(t, err)

	return store
}

// Scenario 1 — claim contention: exactly one of N parallel claimants wins.
func TestClaimMainJob_ContentionYieldsOneWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Pool().Exec(ctx, `
INSERT INTO jobs (id, project_id, status) VALUES ('job-1', 'proj-1', 'UPLOADED')`)
	require.NoError(t, err)

	const workers = 10
	var wins int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			job, err := store.ClaimMainJob(ctx, "worker-"+string(rune('a'+n)))
			require.NoError(t, err)
			if job != nil {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), wins)
}

// Scenario 2 — stale lock reclaim.
func TestClaimMainJob_ReclaimsStaleLock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Pool().Exec(ctx, `
INSERT INTO jobs (id, project_id, status, locked_at, locked_by)
VALUES ('job-2', 'proj-1', 'UPLOADED', now() - interval '15 minutes', 'dead')`)
	require.NoError(t, err)

	job, err := store.ClaimMainJob(ctx, "live")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "live", *job.LockedBy)
}

func TestClaimMainJob_NoEligibleJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.ClaimMainJob(ctx, "worker-1")
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestIncrementRetry_SetsBackoffAndClearsLock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Pool().Exec(ctx, `
INSERT INTO jobs (id, project_id, status, locked_at, locked_by)
VALUES ('job-3', 'proj-1', 'UPLOADED', now(), 'worker-1')`)
	require.NoError(t, err)

	require.NoError(t, store.IncrementRetry(ctx, "job-3", 30))

	job, err := store.GetJob(ctx, "job-3")
	require.NoError(t, err)
	require.Equal(t, 1, job.RetryCount)
	require.Nil(t, job.LockedBy)
	require.NotNil(t, job.NextRunAt)
	require.WithinDuration(t, time.Now().Add(30*time.Second), *job.NextRunAt, 5*time.Second)
}
