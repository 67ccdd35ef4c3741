package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/recsync/internal/models"
	"github.com/google/uuid"
)

// BuildFunc builds the wire payload of a job from the sequence numbers
// claimed for it, in ref order. It runs inside the claim transaction and must
// not use the Store.
type BuildFunc func(seqs []int64) ([]byte, error)

var sequenceTables = map[models.EntityKind]string{
	models.EntityCourse:    "courses",
	models.EntityEcosystem: "ecosystems",
}

func claimTx(ctx context.Context, tx *sql.Tx, ref models.EntityRef) (int64, error) {
	table, ok := sequenceTables[ref.Kind]
	if !ok {
		return 0, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, ErrNoSequenceRow)
	}
	var seq int64
	err := tx.QueryRowContext(ctx,
		`UPDATE `+table+` SET sequence_number = sequence_number + 1 WHERE id = ? RETURNING sequence_number`,
		ref.ID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, ErrNoSequenceRow)
	}
	if err != nil {
		return 0, fmt.Errorf("claim sequence number: %w", err)
	}
	return seq, nil
}

// SequenceNumber returns the last sequence number claimed for the entity.
func (s *Store) SequenceNumber(ctx context.Context, ref models.EntityRef) (int64, error) {
	table, ok := sequenceTables[ref.Kind]
	if !ok {
		return 0, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, ErrNoSequenceRow)
	}
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT sequence_number FROM `+table+` WHERE id = ?`, ref.ID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s %d: %w", ref.Kind, ref.ID, ErrNoSequenceRow)
	}
	if err != nil {
		return 0, fmt.Errorf("query sequence number: %w", err)
	}
	return seq, nil
}

// ClaimSequence atomically increments and returns the entity's sequence
// number.
func (s *Store) ClaimSequence(ctx context.Context, ref models.EntityRef) (int64, error) {
	var seq int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		seq, err = claimTx(ctx, tx, ref)
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// --- Job Operations ---

// SubmitJob claims one sequence number per ref, builds the payload and
// records the job with its claims in a single transaction. When the builder
// or the commit fails, no number is consumed and no job is recorded.
func (s *Store) SubmitJob(ctx context.Context, operation string, refs []models.EntityRef, build BuildFunc) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		ID:            uuid.New().String(),
		Operation:     operation,
		Status:        models.JobStatusSubmitted,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		seqs := make([]int64, len(refs))
		for i, ref := range refs {
			seq, err := claimTx(ctx, tx, ref)
			if err != nil {
				return err
			}
			seqs[i] = seq
			job.Claims = append(job.Claims, models.Claim{Entity: ref, SequenceNumber: seq})
		}

		payload, err := build(seqs)
		if err != nil {
			return fmt.Errorf("build %s payload: %w", operation, err)
		}
		job.Payload = payload

		_, err = tx.ExecContext(ctx,
			`INSERT INTO jobs (id, operation, status, attempt, payload, next_attempt_at, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
			job.ID, job.Operation, job.Status, job.Payload, job.NextAttemptAt.UnixMilli(), job.CreatedAt, job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		for _, c := range job.Claims {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO job_claims (job_id, entity_kind, entity_id, sequence_number) VALUES (?, ?, ?, ?)`,
				job.ID, c.Entity.Kind, c.Entity.ID, c.SequenceNumber,
			)
			if err != nil {
				return fmt.Errorf("insert job claim: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

const jobColumns = `id, operation, status, attempt, payload, response, error, next_attempt_at, created_at, updated_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (*models.Job, error) {
	job := &models.Job{}
	var response []byte
	var nextAttempt int64
	var finishedAt sql.NullTime
	if err := row.Scan(&job.ID, &job.Operation, &job.Status, &job.Attempt, &job.Payload, &response,
		&job.Error, &nextAttempt, &job.CreatedAt, &job.UpdatedAt, &finishedAt); err != nil {
		return nil, err
	}
	job.Response = response
	job.NextAttemptAt = time.UnixMilli(nextAttempt).UTC()
	job.FinishedAt = timePtr(finishedAt)
	return job, nil
}

// GetJob retrieves a job with its claims.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	if err := s.loadClaims(ctx, []*models.Job{job}); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status string, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryJobs(ctx, query, args...)
}

// ListDispatchableJobs returns submitted jobs that are due and whose claims
// are the lowest outstanding sequence number on every entity they touch.
func (s *Store) ListDispatchableJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs j
		 WHERE j.status = ? AND j.next_attempt_at <= ?
		 AND NOT EXISTS (
			SELECT 1 FROM job_claims c
			JOIN job_claims o ON o.entity_kind = c.entity_kind AND o.entity_id = c.entity_id
				AND o.sequence_number < c.sequence_number AND o.job_id <> c.job_id
			JOIN jobs oj ON oj.id = o.job_id
			WHERE c.job_id = j.id AND oj.status IN (?, ?)
		 )
		 ORDER BY j.created_at, j.id
		 LIMIT ?`,
		models.JobStatusSubmitted, now.UnixMilli(),
		models.JobStatusSubmitted, models.JobStatusPending,
		limit,
	)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadClaims(ctx, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *Store) loadClaims(ctx context.Context, jobs []*models.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	byID := make(map[string]*models.Job, len(jobs))
	args := make([]any, len(jobs))
	for i, j := range jobs {
		byID[j.ID] = j
		args[i] = j.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jobs)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, entity_kind, entity_id, sequence_number FROM job_claims
		 WHERE job_id IN (`+placeholders+`) ORDER BY rowid`, args...)
	if err != nil {
		return fmt.Errorf("query job claims: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jobID string
		var c models.Claim
		if err := rows.Scan(&jobID, &c.Entity.Kind, &c.Entity.ID, &c.SequenceNumber); err != nil {
			return fmt.Errorf("scan job claim: %w", err)
		}
		if j, ok := byID[jobID]; ok {
			j.Claims = append(j.Claims, c)
		}
	}
	return rows.Err()
}

// MarkJobPending moves a submitted job to pending before it is sent.
func (s *Store) MarkJobPending(ctx context.Context, id string) error {
	return s.transitionJob(ctx, id, models.JobStatusSubmitted,
		`status = ?, updated_at = ?`, models.JobStatusPending, time.Now().UTC())
}

// CompleteJob records the service's response and completes a pending job.
func (s *Store) CompleteJob(ctx context.Context, id string, response []byte) error {
	now := time.Now().UTC()
	return s.transitionJob(ctx, id, models.JobStatusPending,
		`status = ?, response = ?, error = '', updated_at = ?, finished_at = ?`,
		models.JobStatusCompleted, response, now, now)
}

// FailJob marks a pending job as failed.
func (s *Store) FailJob(ctx context.Context, id, reason string) error {
	now := time.Now().UTC()
	return s.transitionJob(ctx, id, models.JobStatusPending,
		`status = ?, error = ?, updated_at = ?, finished_at = ?`,
		models.JobStatusFailed, reason, now, now)
}

// RetryJob returns a pending job to submitted for another attempt at next.
func (s *Store) RetryJob(ctx context.Context, id, reason string, next time.Time) error {
	return s.transitionJob(ctx, id, models.JobStatusPending,
		`status = ?, attempt = attempt + 1, error = ?, next_attempt_at = ?, updated_at = ?`,
		models.JobStatusSubmitted, reason, next.UnixMilli(), time.Now().UTC())
}

// RequeueInFlightJobs returns every pending job to submitted. It is used at
// startup, when no dispatch can be in flight.
func (s *Store) RequeueInFlightJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		models.JobStatusSubmitted, time.Now().UTC(), models.JobStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue jobs: %w", err)
	}
	return res.RowsAffected()
}

// transitionJob applies set to a job currently in status from.
func (s *Store) transitionJob(ctx context.Context, id string, from models.JobStatus, set string, args ...any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current models.JobStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query job status: %w", err)
		}
		if current.Terminal() {
			return fmt.Errorf("job %s is %s: %w", id, current, ErrJobTerminal)
		}
		if current != from {
			return fmt.Errorf("job %s is %s: %w", id, current, ErrJobNotDispatchable)
		}

		args = append(args, id)
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET `+set+` WHERE id = ?`, args...); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		return nil
	})
}
