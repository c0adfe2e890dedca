package config

import "testing"

func TestDefaults_PollInterval(t *testing.T) {
	cfg := defaults()
	if cfg.PollIntervalSeconds != 2 {
		t.Errorf("PollIntervalSeconds default = %d, want %d", cfg.PollIntervalSeconds, 2)
	}
	if cfg.WorkerMode != ModeFull {
		t.Errorf("WorkerMode default = %q, want %q", cfg.WorkerMode, ModeFull)
	}
}

func TestApplyEnvOverrides_WorkerIDAndPoll(t *testing.T) {
	t.Setenv("WORKER_ID", "worker-7")
	t.Setenv("POLL_INTERVAL_SECONDS", "5")

	cfg := defaults()
	applyEnvOverrides(cfg)

	if cfg.WorkerID != "worker-7" {
		t.Errorf("WorkerID = %q, want %q", cfg.WorkerID, "worker-7")
	}
	if cfg.PollIntervalSeconds != 5 {
		t.Errorf("PollIntervalSeconds = %d, want %d", cfg.PollIntervalSeconds, 5)
	}
}

func TestApplyEnvOverrides_InvalidWorkerModeFallsBackToFull(t *testing.T) {
	t.Setenv("WORKER_MODE", "bogus")

	cfg := defaults()
	applyEnvOverrides(cfg)

	if cfg.WorkerMode != ModeFull {
		t.Errorf("WorkerMode = %q after invalid override, want fallback to %q", cfg.WorkerMode, ModeFull)
	}
}

func TestApplyEnvOverrides_RenderOnlyModeAccepted(t *testing.T) {
	t.Setenv("WORKER_MODE", "render_only")

	cfg := defaults()
	applyEnvOverrides(cfg)

	if cfg.WorkerMode != ModeRenderOnly {
		t.Errorf("WorkerMode = %q, want %q", cfg.WorkerMode, ModeRenderOnly)
	}
}

func TestBackoffForAttempt_ClampsToLadderEnds(t *testing.T) {
	if got := BackoffForAttempt(0); got != RetryBackoffSeconds[0] {
		t.Errorf("BackoffForAttempt(0) = %d, want %d", got, RetryBackoffSeconds[0])
	}
	if got := BackoffForAttempt(1); got != 30 {
		t.Errorf("BackoffForAttempt(1) = %d, want 30", got)
	}
	if got := BackoffForAttempt(99); got != RetryBackoffSeconds[len(RetryBackoffSeconds)-1] {
		t.Errorf("BackoffForAttempt(99) = %d, want last rung %d", got, RetryBackoffSeconds[len(RetryBackoffSeconds)-1])
	}
}

func TestPollInterval_ConvertsSecondsToDuration(t *testing.T) {
	cfg := &Config{PollIntervalSeconds: 3}
	if got := cfg.PollInterval(); got.Seconds() != 3 {
		t.Errorf("PollInterval() = %v, want 3s", got)
	}
}
