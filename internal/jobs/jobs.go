// Package jobs records asynchronous redaction jobs.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one redaction request processed outside the HTTP request.
type Job struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"file_name"`
	Object      string    `json:"object"`
	Status      Status    `json:"status"`
	EntityCount int       `json:"entity_count"`
	Method      string    `json:"detection_method,omitempty"`
	Engines     []string  `json:"engines_used,omitempty"`
	OCRScore    float64   `json:"ocr_score"`
	DurationMS  int64     `json:"duration_ms"`
	MaskedName  string    `json:"masked_name,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Outcome is what a worker reports for a finished job.
type Outcome struct {
	EntityCount int
	Method      string
	Engines     []string
	OCRScore    float64
	Duration    time.Duration
	MaskedName  string
}

// Store persists jobs.
type Store interface {
	Create(ctx context.Context, fileName, object string) (*Job, error)
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, outcome Outcome) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	Ping(ctx context.Context) error
	Close()
}
