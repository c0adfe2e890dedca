// Package config loads worker configuration from the environment, with an
// optional TOML file layer for operators who prefer a file (env vars always
// win — the same override order the teacher app used for its service
// config, collapsed onto the keys this worker actually recognizes).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Mode selects which loops the scheduler runs.
type Mode string

const (
	ModeFull       Mode = "full"
	ModeRenderOnly Mode = "render_only"
)

// Config holds all worker configuration (spec.md §6).
type Config struct {
	DatabaseURL string `toml:"database_url"`

	MinioEndpoint  string `toml:"minio_endpoint"`
	MinioPort      int    `toml:"minio_port"`
	MinioAccessKey string `toml:"minio_access_key"`
	MinioSecretKey string `toml:"minio_secret_key"`
	MinioUseSSL    bool   `toml:"minio_use_ssl"`

	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	WorkerID            string `toml:"worker_id"`
	WorkerMode          Mode   `toml:"worker_mode"`

	TempDir                   string `toml:"temp_dir"`
	DiskPressureThresholdPct  int    `toml:"disk_pressure_threshold_pct"`
	MaxMemoryMB               int    `toml:"max_memory_mb"`

	PNGThumbDPI    int `toml:"png_thumb_dpi"`
	PNGMeasureDPI  int `toml:"png_measure_dpi"`
	MaxRenderPixels int `toml:"max_render_pixels"`
	MaxRenderDPI    int `toml:"max_render_dpi"`

	LogLevel string `toml:"log_level"`
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LockHorizon is the fixed 10-minute window after which a job lock is
// considered stale and reclaimable (spec.md §3, "Lock horizon").
const LockHorizon = 10 * time.Minute

// CleanupInterval is the fixed interval between cleanup sweeps (spec.md §4.9).
const CleanupInterval = 24 * time.Hour

// RetryBackoffSeconds is the fixed backoff ladder for per-job retries
// (spec.md §4.9, §7): 30s, 120s, 600s, clamped to the last entry thereafter.
var RetryBackoffSeconds = []int{30, 120, 600}

// BackoffForAttempt returns the backoff in seconds for the given
// (1-indexed) retry attempt, clamping to the last rung of the ladder.
func BackoffForAttempt(attempt int) int {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(RetryBackoffSeconds) {
		attempt = len(RetryBackoffSeconds)
	}
	return RetryBackoffSeconds[attempt-1]
}

func defaults() *Config {
	return &Config{
		PollIntervalSeconds:      2,
		WorkerID:                 "worker-1",
		WorkerMode:               ModeFull,
		TempDir:                  "/data/worker-tmp",
		DiskPressureThresholdPct: 80,
		MaxMemoryMB:              5120,
		PNGThumbDPI:              72,
		PNGMeasureDPI:            200,
		MaxRenderPixels:          8000,
		MaxRenderDPI:             400,
		LogLevel:                 "info",
	}
}

// Load reads configuration from the environment, optionally supplemented by
// a TOML file named by WORKER_CONFIG_FILE (file values are defaults that
// env vars above them override, matching the teacher's file-then-env
// override cascade in LoadConfig/applyEnvOverrides).
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("WORKER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(c *Config) {
	str(&c.DatabaseURL, "DATABASE_URL")
	str(&c.MinioEndpoint, "MINIO_ENDPOINT")
	intv(&c.MinioPort, "MINIO_PORT")
	str(&c.MinioAccessKey, "MINIO_ACCESS_KEY")
	str(&c.MinioSecretKey, "MINIO_SECRET_KEY")
	boolv(&c.MinioUseSSL, "MINIO_USE_SSL")

	intv(&c.PollIntervalSeconds, "POLL_INTERVAL_SECONDS")
	str(&c.WorkerID, "WORKER_ID")
	if v := os.Getenv("WORKER_MODE"); v != "" {
		c.WorkerMode = Mode(v)
	}

	str(&c.TempDir, "TEMP_DIR")
	intv(&c.DiskPressureThresholdPct, "DISK_PRESSURE_THRESHOLD_PCT")
	intv(&c.MaxMemoryMB, "MAX_MEMORY_MB")

	intv(&c.PNGThumbDPI, "PNG_THUMB_DPI")
	intv(&c.PNGMeasureDPI, "PNG_MEASURE_DPI")
	intv(&c.MaxRenderPixels, "MAX_RENDER_PIXELS")
	intv(&c.MaxRenderDPI, "MAX_RENDER_DPI")

	str(&c.LogLevel, "LOG_LEVEL")

	if c.WorkerMode != ModeFull && c.WorkerMode != ModeRenderOnly {
		c.WorkerMode = ModeFull
	}
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func boolv(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
