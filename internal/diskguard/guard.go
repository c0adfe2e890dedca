// Package diskguard implements C3: the admission-control gate that stops
// the worker claiming new work when the temp volume is under pressure, and
// the temp-dir lifecycle that backs each job's scratch space.
package diskguard

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/cgs/glassbid-worker/internal/logging"
)

// Guard observes free space on the temp volume and cleans job-scoped temp
// directories (spec.md §4.3).
type Guard struct {
	tempDir   string
	threshold float64
	log       *logging.Logger
}

// New creates a Guard rooted at tempDir with the given pressure threshold
// (a percentage, e.g. 80).
func New(tempDir string, thresholdPct float64, log *logging.Logger) *Guard {
	return &Guard{tempDir: tempDir, threshold: thresholdPct, log: log}
}

// UsagePct returns the percentage used on the temp volume, 0.0 on I/O
// failure (spec.md §4.3).
func (g *Guard) UsagePct() float64 {
	usage, err := disk.Usage(g.tempDir)
	if err != nil {
		g.log.Warn().Err(err).Str("path", g.tempDir).Msg("disk usage check failed")
		return 0.0
	}
	return usage.UsedPercent
}

// IsPressure reports whether usage meets or exceeds the threshold
// (inclusive at the boundary, spec.md §4.3).
func (g *Guard) IsPressure() bool {
	return g.UsagePct() >= g.threshold
}

// CleanupOrphanTempDirs deletes every subdirectory of the temp root whose
// name is not in lockedJobIDs. Creates the root if absent.
func (g *Guard) CleanupOrphanTempDirs(lockedJobIDs map[string]bool) error {
	if err := os.MkdirAll(g.tempDir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(g.tempDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || lockedJobIDs[e.Name()] {
			continue
		}
		path := filepath.Join(g.tempDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			g.log.Warn().Err(err).Str("path", path).Msg("orphan temp dir cleanup failed")
			continue
		}
	}
	return nil
}

// CleanupJobTemp best-effort removes a single job's temp dir; a missing
// directory is not an error.
func (g *Guard) CleanupJobTemp(jobID string) {
	path := filepath.Join(g.tempDir, jobID)
	if err := os.RemoveAll(path); err != nil {
		g.log.Warn().Err(err).Str("job_id", jobID).Msg("job temp cleanup failed")
	}
}

// JobDir returns the path a job may use exclusively while it holds the
// lock (spec.md §5).
func (g *Guard) JobDir(jobID string) string {
	return filepath.Join(g.tempDir, jobID)
}

// EnsureJobDir creates and returns the job's temp dir.
func (g *Guard) EnsureJobDir(jobID string) (string, error) {
	dir := g.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
