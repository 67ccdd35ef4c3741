package controlplane

import (
	"context"
	"time"

	"github.com/fentz26/recsync/internal/models"
)

// DefaultWaitInterval is the polling interval of Wait when none is given.
const DefaultWaitInterval = 200 * time.Millisecond

// JobStore reads job state.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

// Job is a handle to an asynchronous write. It is returned as soon as the
// write's sequence numbers are claimed and its request is recorded.
type Job struct {
	ID        string
	Operation string
	Claims    []models.Claim

	store JobStore
}

func newJob(s JobStore, j *models.Job) *Job {
	return &Job{ID: j.ID, Operation: j.Operation, Claims: j.Claims, store: s}
}

// SequenceNumber returns the number claimed for ref, or 0.
func (j *Job) SequenceNumber(ref models.EntityRef) int64 {
	for _, c := range j.Claims {
		if c.Entity == ref {
			return c.SequenceNumber
		}
	}
	return 0
}

// Status returns the job's current state.
func (j *Job) Status(ctx context.Context) (models.JobStatus, error) {
	rec, err := j.store.GetJob(ctx, j.ID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Result returns the stored job record, including the service response once
// completed.
func (j *Job) Result(ctx context.Context) (*models.Job, error) {
	return j.store.GetJob(ctx, j.ID)
}

// Wait polls until the job is completed or failed. Cancelling ctx stops
// polling only; the write itself is not withdrawn.
func (j *Job) Wait(ctx context.Context, interval time.Duration) (*models.Job, error) {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rec, err := j.store.GetJob(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		if rec.Status.Terminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}
