package job

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// MemoryJobRepository keeps jobs in process memory. It is used when no
// database is configured, so job history is lost on restart.
type MemoryJobRepository struct {
	mu     sync.Mutex
	nextID int
	jobs   map[int]Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[int]Job)}
}

func (r *MemoryJobRepository) Create(_ context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	job := Job{
		ID:        r.nextID,
		TaskType:  taskType,
		Payload:   payload,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[job.ID] = job

	return &job, nil
}

func (r *MemoryJobRepository) Get(_ context.Context, id int) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (r *MemoryJobRepository) UpdateStatus(_ context.Context, id int, status JobStatus, err *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.Error = err
	job.UpdatedAt = time.Now()
	r.jobs[id] = job

	return nil
}
