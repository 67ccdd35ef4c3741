package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/recsync/internal/models"
	"github.com/google/uuid"
)

// SettingExcludedExercises holds the globally excluded exercises string,
// e.g. "123, 456@2".
const SettingExcludedExercises = "excluded_ids"

// GetSetting returns a setting's value and when it was last changed. A
// missing setting yields an empty value and a zero time.
func (s *Store) GetSetting(ctx context.Context, key string) (string, time.Time, error) {
	var value string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM settings WHERE key = ?`, key).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("query setting: %w", err)
	}
	return value, updatedAt, nil
}

// SetSetting stores a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(ctx context.Context, action, inputsHash, outcome, jobID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		JobID:      jobID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pdr (id, action, inputs_hash, outcome, job_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.JobID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDRs returns the decision records of a job, oldest first.
func (s *Store) ListPDRs(ctx context.Context, jobID string) ([]models.PDREntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, inputs_hash, outcome, job_id, details, timestamp FROM pdr WHERE job_id = ? ORDER BY timestamp, rowid`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var out []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var job, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &job, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.JobID = job.String
		e.Details = details.String
		out = append(out, e)
	}
	return out, rows.Err()
}
