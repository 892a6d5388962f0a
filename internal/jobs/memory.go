package jobs

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps jobs in process memory. It is used when no database is
// configured; records are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*Job), now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, fileName, object string) (*Job, error) {
	now := m.now()
	job := &Job{
		ID:        uuid.New(),
		FileName:  fileName,
		Object:    object,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	c := *job
	return &c, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	c := *job
	c.Engines = slices.Clone(job.Engines)
	return &c, nil
}

func (m *MemoryStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return m.update(id, func(j *Job) { j.Status = StatusProcessing })
}

func (m *MemoryStore) Complete(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	return m.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.EntityCount = outcome.EntityCount
		j.Method = outcome.Method
		j.Engines = slices.Clone(outcome.Engines)
		j.OCRScore = outcome.OCRScore
		j.DurationMS = outcome.Duration.Milliseconds()
		j.MaskedName = outcome.MaskedName
		j.Error = ""
	})
}

func (m *MemoryStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return m.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = reason
	})
}

func (m *MemoryStore) update(id uuid.UUID, apply func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	apply(job)
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() {}
