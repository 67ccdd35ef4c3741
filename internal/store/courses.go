package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/recsync/internal/models"
)

// --- Course Operations ---

const courseColumns = `id, uuid, name, is_preview, is_test, sequence_number, starts_at, ends_at,
	excluded_exercise_numbers, algorithms, created_at, updated_at`

// CreateCourse inserts a course attached to the given ecosystem. The course's
// sequence number starts at 0.
func (s *Store) CreateCourse(ctx context.Context, c *models.Course, ecosystemID int64) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	excluded, err := encodeJSON(nonNilInts(c.ExcludedExerciseNumbers))
	if err != nil {
		return err
	}
	algorithms, err := encodeJSON(nonNilMap(c.Algorithms))
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO courses (uuid, name, is_preview, is_test, starts_at, ends_at, excluded_exercise_numbers, algorithms, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.UUID, c.Name, boolInt(c.IsPreview), boolInt(c.IsTest), c.StartsAt.UTC(), c.EndsAt.UTC(),
			excluded, algorithms, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert course: %w", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		c.SequenceNumber = 0
		_, err = tx.ExecContext(ctx,
			`INSERT INTO course_ecosystems (course_id, ecosystem_id, created_at) VALUES (?, ?, ?)`,
			c.ID, ecosystemID, c.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert course ecosystem: %w", err)
		}
		return nil
	})
}

func scanCourse(row interface{ Scan(...any) error }) (*models.Course, error) {
	c := &models.Course{}
	var preview, test int
	var excluded, algorithms string
	if err := row.Scan(&c.ID, &c.UUID, &c.Name, &preview, &test, &c.SequenceNumber, &c.StartsAt, &c.EndsAt,
		&excluded, &algorithms, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.IsPreview = preview != 0
	c.IsTest = test != 0
	if err := decodeJSON(excluded, &c.ExcludedExerciseNumbers); err != nil {
		return nil, fmt.Errorf("decode excluded exercises: %w", err)
	}
	if err := decodeJSON(algorithms, &c.Algorithms); err != nil {
		return nil, fmt.Errorf("decode algorithms: %w", err)
	}
	return c, nil
}

// GetCourse retrieves a course by ID.
func (s *Store) GetCourse(ctx context.Context, id int64) (*models.Course, error) {
	c, err := scanCourse(s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}
	return c, nil
}

// GetCourseByUUID retrieves a course by its external UUID.
func (s *Store) GetCourseByUUID(ctx context.Context, uuid string) (*models.Course, error) {
	c, err := scanCourse(s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE uuid = ?`, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}
	return c, nil
}

// ListCourses returns all courses ordered by ID.
func (s *Store) ListCourses(ctx context.Context) ([]*models.Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// UpdateCourseActiveDates changes a course's start and end dates.
func (s *Store) UpdateCourseActiveDates(ctx context.Context, id int64, startsAt, endsAt time.Time) error {
	return s.updateCourse(ctx, id, `starts_at = ?, ends_at = ?`, startsAt.UTC(), endsAt.UTC())
}

// SetCourseExcludedExercises replaces a course's excluded exercise numbers.
func (s *Store) SetCourseExcludedExercises(ctx context.Context, id int64, numbers []int64) error {
	raw, err := encodeJSON(nonNilInts(numbers))
	if err != nil {
		return err
	}
	return s.updateCourse(ctx, id, `excluded_exercise_numbers = ?`, raw)
}

func (s *Store) updateCourse(ctx context.Context, id int64, set string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	res, err := s.db.ExecContext(ctx, `UPDATE courses SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	return nil
}

// CourseEcosystems returns a course's ecosystem links, newest first. The
// first entry is the current ecosystem.
func (s *Store) CourseEcosystems(ctx context.Context, courseID int64) ([]models.CourseEcosystem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT course_id, ecosystem_id, created_at FROM course_ecosystems WHERE course_id = ? ORDER BY created_at DESC, id DESC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query course ecosystems: %w", err)
	}
	defer rows.Close()

	var out []models.CourseEcosystem
	for rows.Next() {
		var ce models.CourseEcosystem
		if err := rows.Scan(&ce.CourseID, &ce.EcosystemID, &ce.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course ecosystem: %w", err)
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

// CurrentEcosystemID returns the ID of the course's current ecosystem.
func (s *Store) CurrentEcosystemID(ctx context.Context, courseID int64) (int64, error) {
	links, err := s.CourseEcosystems(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if len(links) == 0 {
		return 0, fmt.Errorf("course %d has no ecosystem: %w", courseID, ErrNotFound)
	}
	return links[0].EcosystemID, nil
}

// AddCourseEcosystem makes the ecosystem the course's current one.
func (s *Store) AddCourseEcosystem(ctx context.Context, courseID, ecosystemID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO course_ecosystems (course_id, ecosystem_id, created_at) VALUES (?, ?, ?)`,
		courseID, ecosystemID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert course ecosystem: %w", err)
	}
	return nil
}

// --- Roster Operations ---

// CreatePeriod inserts a course period.
func (s *Store) CreatePeriod(ctx context.Context, p *models.Period) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO periods (uuid, course_id, name, created_at, archived_at) VALUES (?, ?, ?, ?, ?)`,
		p.UUID, p.CourseID, p.Name, p.CreatedAt.UTC(), nullTime(p.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert period: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// CreateStudent inserts a student enrolled in a period.
func (s *Store) CreateStudent(ctx context.Context, st *models.Student) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	if st.EnrolledAt.IsZero() {
		st.EnrolledAt = st.CreatedAt
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO students (uuid, course_id, period_id, created_at, enrolled_at, dropped_at) VALUES (?, ?, ?, ?, ?, ?)`,
		st.UUID, st.CourseID, st.PeriodID, st.CreatedAt.UTC(), st.EnrolledAt.UTC(), nullTime(st.DroppedAt),
	)
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	st.ID, err = res.LastInsertId()
	return err
}

const periodColumns = `id, uuid, course_id, name, created_at, archived_at`

func scanPeriod(row interface{ Scan(...any) error }) (*models.Period, error) {
	p := &models.Period{}
	var archived sql.NullTime
	if err := row.Scan(&p.ID, &p.UUID, &p.CourseID, &p.Name, &p.CreatedAt, &archived); err != nil {
		return nil, err
	}
	p.ArchivedAt = timePtr(archived)
	return p, nil
}

// GetPeriod retrieves a period by ID.
func (s *Store) GetPeriod(ctx context.Context, id int64) (*models.Period, error) {
	p, err := scanPeriod(s.db.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("period %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query period: %w", err)
	}
	return p, nil
}

// GetPeriodByUUID retrieves a period by its UUID.
func (s *Store) GetPeriodByUUID(ctx context.Context, uuid string) (*models.Period, error) {
	p, err := scanPeriod(s.db.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE uuid = ?`, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("period %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query period: %w", err)
	}
	return p, nil
}

const studentColumns = `id, uuid, course_id, period_id, created_at, enrolled_at, dropped_at`

func scanStudent(row interface{ Scan(...any) error }) (*models.Student, error) {
	st := &models.Student{}
	var dropped sql.NullTime
	if err := row.Scan(&st.ID, &st.UUID, &st.CourseID, &st.PeriodID, &st.CreatedAt, &st.EnrolledAt, &dropped); err != nil {
		return nil, err
	}
	st.DroppedAt = timePtr(dropped)
	return st, nil
}

// GetStudent retrieves a student by ID.
func (s *Store) GetStudent(ctx context.Context, id int64) (*models.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return st, nil
}

// GetStudentByUUID retrieves a student by UUID.
func (s *Store) GetStudentByUUID(ctx context.Context, uuid string) (*models.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE uuid = ?`, uuid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	return st, nil
}

// GetRoster loads a course with all periods, archived ones included, and all
// students, dropped ones included.
func (s *Store) GetRoster(ctx context.Context, courseID int64) (*models.Roster, error) {
	course, err := s.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	roster := &models.Roster{Course: course}

	rows, err := s.db.QueryContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan period: %w", err)
		}
		roster.Periods = append(roster.Periods, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		roster.Students = append(roster.Students, st)
	}
	return roster, rows.Err()
}

func nonNilInts(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

func nonNilMap(v map[string]string) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	return v
}
