package jobstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Scenario 5 — render priority: MEASURE is claimed before an older THUMB.
func TestClaimRenderRequest_MeasurePrecedesOlderThumb(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Pool().Exec(ctx, `
INSERT INTO render_requests (id, job_id, page_num, kind, dpi, status, created_at)
VALUES ('req-thumb', 'job-1', 1, 'THUMB', 72, 'PENDING', now() - interval '5 minutes')`)
	require.NoError(t, err)

	_, err = store.Pool().Exec(ctx, `
INSERT INTO render_requests (id, job_id, page_num, kind, dpi, status, created_at)
VALUES ('req-measure', 'job-1', 2, 'MEASURE', 200, 'PENDING', now())`)
	require.NoError(t, err)

	req, err := store.ClaimRenderRequest(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, "req-measure", req.ID)
}

func TestExpireStaleThumbRequests_LeavesMeasureUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Pool().Exec(ctx, `
INSERT INTO render_requests (id, job_id, page_num, kind, dpi, status, created_at) VALUES
  ('thumb-old', 'job-1', 1, 'THUMB', 72, 'PENDING', now() - interval '2 hours'),
  ('measure-old', 'job-1', 2, 'MEASURE', 200, 'PENDING', now() - interval '2 hours')`)
	require.NoError(t, err)

	n, err := store.ExpireStaleThumbRequests(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var remaining string
	err = store.Pool().QueryRow(ctx, `SELECT id FROM render_requests`).Scan(&remaining)
	require.NoError(t, err)
	require.Equal(t, "measure-old", remaining)
}
