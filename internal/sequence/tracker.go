// Package sequence hands out per-entity sequence numbers for outbound
// requests to the recommendation service.
package sequence

import (
	"context"

	"github.com/fentz26/recsync/internal/logger"
	"github.com/fentz26/recsync/internal/metrics"
	"github.com/fentz26/recsync/internal/models"
	"github.com/fentz26/recsync/internal/store"
)

// Store is the persistence the Tracker needs.
type Store interface {
	ClaimSequence(ctx context.Context, ref models.EntityRef) (int64, error)
	SequenceNumber(ctx context.Context, ref models.EntityRef) (int64, error)
	SubmitJob(ctx context.Context, operation string, refs []models.EntityRef, build store.BuildFunc) (*models.Job, error)
}

// Tracker claims sequence numbers. Every claim is a committed increment of
// the entity's counter row, so numbers are never reused or skipped.
type Tracker struct {
	store   Store
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewTracker creates a Tracker.
func NewTracker(s Store, log *logger.Logger, m *metrics.Collector) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{store: s, log: log.With("component", "sequence"), metrics: m}
}

// Claim increments and returns the entity's sequence number.
func (t *Tracker) Claim(ctx context.Context, ref models.EntityRef) (int64, error) {
	seq, err := t.store.ClaimSequence(ctx, ref)
	if err != nil {
		return 0, err
	}
	t.metrics.RecordClaim(string(ref.Kind))
	t.log.Debug("claimed sequence number", "entity", ref.Kind, "id", ref.ID, "sequence_number", seq)
	return seq, nil
}

// Current returns the last number claimed for the entity.
func (t *Tracker) Current(ctx context.Context, ref models.EntityRef) (int64, error) {
	return t.store.SequenceNumber(ctx, ref)
}

// Submit claims one number per ref and records the job built from them in
// the same transaction. The job is durably recorded before any later claim
// on the same entities can be made, and the dispatcher sends jobs for an
// entity in sequence order.
func (t *Tracker) Submit(ctx context.Context, operation string, refs []models.EntityRef, build store.BuildFunc) (*models.Job, error) {
	job, err := t.store.SubmitJob(ctx, operation, refs, build)
	if err != nil {
		t.log.Warn("job submission aborted", "operation", operation, "error", err)
		return nil, err
	}
	for _, c := range job.Claims {
		t.metrics.RecordClaim(string(c.Entity.Kind))
	}
	t.metrics.RecordSubmitted(operation)
	t.log.Debug("job submitted", "operation", operation, "job_id", job.ID, "claims", len(job.Claims))
	return job, nil
}
