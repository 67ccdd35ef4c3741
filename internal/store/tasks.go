package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/recsync/internal/models"
)

// --- Task Operations ---

// CreateTask inserts a task with its steps and tasked exercises.
func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	corePages, err := encodeJSON(nonNilInts(t.CorePageIDs))
	if err != nil {
		return err
	}
	var studentID sql.NullInt64
	if t.StudentID != 0 {
		studentID = sql.NullInt64{Int64: t.StudentID, Valid: true}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (uuid, course_id, ecosystem_id, student_id, type, title, opens_at, due_at, feedback_at,
				withdrawn, spes_are_assigned, pes_are_assigned, core_page_ids, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.UUID, t.CourseID, t.EcosystemID, studentID, t.Type, t.Title,
			nullTime(t.OpensAt), nullTime(t.DueAt), nullTime(t.FeedbackAt),
			boolInt(t.Withdrawn), boolInt(t.SpesAreAssigned), boolInt(t.PesAreAssigned), corePages,
			t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		for i, step := range t.Steps {
			if step.Number == 0 {
				step.Number = i + 1
			}
			step.TaskID = t.ID
			res, err := tx.ExecContext(ctx,
				`INSERT INTO task_steps (task_id, number, step_group, kind) VALUES (?, ?, ?, ?)`,
				t.ID, step.Number, step.Group, step.Kind,
			)
			if err != nil {
				return fmt.Errorf("insert task step: %w", err)
			}
			if step.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			if step.Kind != models.StepExercise || step.Exercise == nil {
				continue
			}
			te := step.Exercise
			te.StepID = step.ID
			if te.UpdatedAt.IsZero() {
				te.UpdatedAt = t.UpdatedAt
			}
			var correct sql.NullBool
			if te.IsCorrect != nil {
				correct = sql.NullBool{Bool: *te.IsCorrect, Valid: true}
			}
			res, err = tx.ExecContext(ctx,
				`INSERT INTO tasked_exercises (uuid, step_id, exercise_id, is_correct, completed_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
				te.UUID, te.StepID, te.ExerciseID, correct, nullTime(te.CompletedAt), te.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert tasked exercise: %w", err)
			}
			if te.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

const taskColumns = `id, uuid, course_id, ecosystem_id, student_id, type, title, opens_at, due_at, feedback_at,
	withdrawn, spes_are_assigned, pes_are_assigned, core_page_ids, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	t := &models.Task{}
	var studentID sql.NullInt64
	var opensAt, dueAt, feedbackAt sql.NullTime
	var withdrawn, spes, pes int
	var corePages string
	if err := row.Scan(&t.ID, &t.UUID, &t.CourseID, &t.EcosystemID, &studentID, &t.Type, &t.Title,
		&opensAt, &dueAt, &feedbackAt, &withdrawn, &spes, &pes, &corePages, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.StudentID = studentID.Int64
	t.OpensAt = timePtr(opensAt)
	t.DueAt = timePtr(dueAt)
	t.FeedbackAt = timePtr(feedbackAt)
	t.Withdrawn = withdrawn != 0
	t.SpesAreAssigned = spes != 0
	t.PesAreAssigned = pes != 0
	if err := decodeJSON(corePages, &t.CorePageIDs); err != nil {
		return nil, fmt.Errorf("decode core pages: %w", err)
	}
	return t, nil
}

// GetTask loads a task with its steps.
func (s *Store) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	if err := s.loadSteps(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTaskByUUID loads a task by its UUID.
func (s *Store) GetTaskByUUID(ctx context.Context, uuid string) (*models.Task, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tasks WHERE uuid = ?`, uuid).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// ListTasksForStudent returns a student's tasks without their steps.
func (s *Store) ListTasksForStudent(ctx context.Context, studentID int64) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE student_id = ? ORDER BY id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) loadSteps(ctx context.Context, t *models.Task) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts.id, ts.number, ts.step_group, ts.kind,
			te.id, te.uuid, te.exercise_id, te.is_correct, te.completed_at, te.updated_at
		 FROM task_steps ts LEFT JOIN tasked_exercises te ON te.step_id = ts.id
		 WHERE ts.task_id = ? ORDER BY ts.number, ts.id`, t.ID)
	if err != nil {
		return fmt.Errorf("query task steps: %w", err)
	}
	defer rows.Close()

	t.Steps = nil
	for rows.Next() {
		step := &models.TaskStep{TaskID: t.ID}
		var teID, exerciseID sql.NullInt64
		var teUUID sql.NullString
		var correct sql.NullBool
		var completedAt, updatedAt sql.NullTime
		if err := rows.Scan(&step.ID, &step.Number, &step.Group, &step.Kind,
			&teID, &teUUID, &exerciseID, &correct, &completedAt, &updatedAt); err != nil {
			return fmt.Errorf("scan task step: %w", err)
		}
		if teID.Valid {
			te := &models.TaskedExercise{
				ID:          teID.Int64,
				UUID:        teUUID.String,
				StepID:      step.ID,
				ExerciseID:  exerciseID.Int64,
				CompletedAt: timePtr(completedAt),
				UpdatedAt:   updatedAt.Time,
			}
			if correct.Valid {
				v := correct.Bool
				te.IsCorrect = &v
			}
			step.Exercise = te
		}
		t.Steps = append(t.Steps, step)
	}
	return rows.Err()
}

// TaskIDForTaskedExercise returns the task owning a tasked exercise.
func (s *Store) TaskIDForTaskedExercise(ctx context.Context, taskedExerciseID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT ts.task_id FROM tasked_exercises te JOIN task_steps ts ON ts.id = te.step_id WHERE te.id = ?`,
		taskedExerciseID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("tasked exercise %d: %w", taskedExerciseID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query tasked exercise: %w", err)
	}
	return id, nil
}

// RecordAnswer stores the correctness of a tasked exercise.
func (s *Store) RecordAnswer(ctx context.Context, taskedExerciseID int64, correct bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasked_exercises SET is_correct = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		correct, at.UTC(), at.UTC(), taskedExerciseID,
	)
	if err != nil {
		return fmt.Errorf("update tasked exercise: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tasked exercise %d: %w", taskedExerciseID, ErrNotFound)
	}
	return nil
}

// ResponsesForStudents returns the graded answers of the given students in
// answer order.
func (s *Store) ResponsesForStudents(ctx context.Context, studentIDs []int64) ([]models.Response, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(studentIDs)), ",")
	args := make([]any, len(studentIDs))
	for i, id := range studentIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT te.id, t.id, t.course_id, t.student_id, t.ecosystem_id, te.exercise_id, e.number, te.is_correct,
			te.completed_at, te.updated_at
		 FROM tasked_exercises te
		 JOIN task_steps ts ON ts.id = te.step_id
		 JOIN tasks t ON t.id = ts.task_id
		 JOIN exercises e ON e.id = te.exercise_id
		 WHERE te.is_correct IS NOT NULL AND t.student_id IN (`+placeholders+`)
		 ORDER BY te.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []models.Response
	for rows.Next() {
		var r models.Response
		var completedAt sql.NullTime
		if err := rows.Scan(&r.TaskedExerciseID, &r.TaskID, &r.CourseID, &r.StudentID, &r.EcosystemID,
			&r.ExerciseID, &r.ExerciseNumber, &r.IsCorrect, &completedAt, &r.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		if completedAt.Valid {
			r.AnsweredAt = completedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StudentIDsInPeriod returns the IDs of students in a period, dropped ones
// excluded.
func (s *Store) StudentIDsInPeriod(ctx context.Context, periodID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM students WHERE period_id = ? AND dropped_at IS NULL ORDER BY id`, periodID)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
