package diskguard_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/diskguard"
	"github.com/cgs/glassbid-worker/internal/logging"
)

func TestCleanupOrphanTempDirs_KeepsLockedRemovesOthers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "job-locked"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "job-orphan"), 0o755))

	g := diskguard.New(root, 80, logging.Silent())
	err := g.CleanupOrphanTempDirs(map[string]bool{"job-locked": true})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "job-locked"))
	require.NoError(t, err, "locked job's temp dir must survive cleanup")

	_, err = os.Stat(filepath.Join(root, "job-orphan"))
	require.True(t, os.IsNotExist(err), "unlocked job's temp dir must be removed")
}

func TestCleanupOrphanTempDirs_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist-yet")

	g := diskguard.New(root, 80, logging.Silent())
	err := g.CleanupOrphanTempDirs(map[string]bool{})
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestIsPressure_InclusiveAtThreshold(t *testing.T) {
	g := diskguard.New(t.TempDir(), 0, logging.Silent())
	require.True(t, g.IsPressure(), "usage >= 0 threshold must report pressure")
}

func TestIsPressure_FalseWhenThresholdUnreachable(t *testing.T) {
	g := diskguard.New(t.TempDir(), 100.000001, logging.Silent())
	require.False(t, g.IsPressure())
}
