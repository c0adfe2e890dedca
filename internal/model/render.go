package model

import "time"

// RenderKind distinguishes the two kinds of render request.
type RenderKind string

const (
	RenderThumb   RenderKind = "THUMB"
	RenderMeasure RenderKind = "MEASURE"
)

// RenderStatus is the lifecycle state of a render request.
type RenderStatus string

const (
	RenderPending RenderStatus = "PENDING"
	RenderDone    RenderStatus = "DONE"
	RenderFailed  RenderStatus = "FAILED"
)

// RenderRequest is a small per-page raster task (spec.md §3).
type RenderRequest struct {
	ID          string
	JobID       string
	PageNum     int
	Kind        RenderKind
	DPI         int
	Status      RenderStatus
	OutputKey   *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TTLPolicy names a storage object's retention policy.
type TTLPolicy string

const (
	TTLPageCache TTLPolicy = "page-cache"
	TTLOutput    TTLPolicy = "output"
)

// StorageObject is the row backing a blob's lifecycle (spec.md §3).
type StorageObject struct {
	ID          string
	JobID       string
	Bucket      string
	Key         string
	SizeBytes   int64
	SHA256      string
	ContentType string
	TTLPolicy   TTLPolicy
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// HeartbeatStatus is a worker's observed activity state.
type HeartbeatStatus string

const (
	HeartbeatIdle       HeartbeatStatus = "IDLE"
	HeartbeatProcessing HeartbeatStatus = "PROCESSING"
)

// WorkerHeartbeat is the liveness/observability row for one worker process.
type WorkerHeartbeat struct {
	WorkerID        string
	LastHeartbeatAt time.Time
	Status          HeartbeatStatus
	CurrentJobID    *string
	MemoryUsageMB   float64
	DiskUsagePct    float64
}
