// Package store provides SQLite-backed persistence for recsync.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoSequenceRow indicates a sequence claim for an entity with no row.
	ErrNoSequenceRow = errors.New("no sequence number row for entity")
	// ErrJobTerminal indicates an attempt to change a completed or failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrJobNotDispatchable indicates the job is not waiting to be sent.
	ErrJobNotDispatchable = errors.New("job is not dispatchable")
)

// Store provides access to the recsync SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// serializes every sequence claim transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ecosystems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		sequence_number INTEGER NOT NULL DEFAULT 0,
		book_uuid TEXT NOT NULL,
		book_cnx_id TEXT NOT NULL DEFAULT '',
		book_title TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chapters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ecosystem_id INTEGER NOT NULL REFERENCES ecosystems(id),
		uuid TEXT NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ecosystem_id INTEGER NOT NULL REFERENCES ecosystems(id),
		chapter_id INTEGER NOT NULL REFERENCES chapters(id),
		position INTEGER NOT NULL,
		uuid TEXT NOT NULL,
		content_uuid TEXT NOT NULL,
		cnx_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS exercises (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ecosystem_id INTEGER NOT NULL REFERENCES ecosystems(id),
		page_id INTEGER NOT NULL REFERENCES pages(id),
		uuid TEXT NOT NULL,
		group_uuid TEXT NOT NULL,
		number INTEGER NOT NULL,
		version INTEGER NOT NULL,
		los TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS pool_exercises (
		page_id INTEGER NOT NULL REFERENCES pages(id),
		pool_type TEXT NOT NULL,
		position INTEGER NOT NULL,
		exercise_id INTEGER NOT NULL REFERENCES exercises(id),
		PRIMARY KEY (page_id, pool_type, position)
	);

	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		is_preview INTEGER NOT NULL DEFAULT 0,
		is_test INTEGER NOT NULL DEFAULT 0,
		sequence_number INTEGER NOT NULL DEFAULT 0,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		excluded_exercise_numbers TEXT NOT NULL DEFAULT '[]',
		algorithms TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS course_ecosystems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses(id),
		ecosystem_id INTEGER NOT NULL REFERENCES ecosystems(id),
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS periods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		course_id INTEGER NOT NULL REFERENCES courses(id),
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		archived_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		course_id INTEGER NOT NULL REFERENCES courses(id),
		period_id INTEGER NOT NULL REFERENCES periods(id),
		created_at DATETIME NOT NULL,
		enrolled_at DATETIME NOT NULL,
		dropped_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		course_id INTEGER NOT NULL REFERENCES courses(id),
		ecosystem_id INTEGER NOT NULL REFERENCES ecosystems(id),
		student_id INTEGER,
		type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		opens_at DATETIME,
		due_at DATETIME,
		feedback_at DATETIME,
		withdrawn INTEGER NOT NULL DEFAULT 0,
		spes_are_assigned INTEGER NOT NULL DEFAULT 0,
		pes_are_assigned INTEGER NOT NULL DEFAULT 0,
		core_page_ids TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id),
		number INTEGER NOT NULL,
		step_group TEXT NOT NULL,
		kind TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasked_exercises (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		step_id INTEGER NOT NULL REFERENCES task_steps(id),
		exercise_id INTEGER NOT NULL REFERENCES exercises(id),
		is_correct INTEGER,
		completed_at DATETIME,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS content_maps (
		from_ecosystem_id INTEGER NOT NULL,
		to_ecosystem_id INTEGER NOT NULL,
		page_to_page TEXT NOT NULL,
		exercise_to_page TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (from_ecosystem_id, to_ecosystem_id)
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'submitted',
		attempt INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL,
		response BLOB,
		error TEXT NOT NULL DEFAULT '',
		next_attempt_at INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS job_claims (
		job_id TEXT NOT NULL REFERENCES jobs(id),
		entity_kind TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		sequence_number INTEGER NOT NULL,
		PRIMARY KEY (entity_kind, entity_id, sequence_number)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		job_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pages_ecosystem_id ON pages(ecosystem_id);
	CREATE INDEX IF NOT EXISTS idx_exercises_ecosystem_id ON exercises(ecosystem_id);
	CREATE INDEX IF NOT EXISTS idx_exercises_uuid ON exercises(uuid);
	CREATE INDEX IF NOT EXISTS idx_course_ecosystems_course_id ON course_ecosystems(course_id);
	CREATE INDEX IF NOT EXISTS idx_students_course_id ON students(course_id);
	CREATE INDEX IF NOT EXISTS idx_task_steps_task_id ON task_steps(task_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_job_claims_job_id ON job_claims(job_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
