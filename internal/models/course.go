package models

import "time"

// Course references one current ecosystem and owns a sequence number that is
// incremented once per accepted outbound request referencing it.
type Course struct {
	ID             int64     `json:"id" yaml:"-"`
	UUID           string    `json:"uuid" yaml:"uuid"`
	Name           string    `json:"name" yaml:"name"`
	IsPreview      bool      `json:"is_preview" yaml:"is_preview"`
	IsTest         bool      `json:"is_test" yaml:"is_test"`
	SequenceNumber int64     `json:"sequence_number" yaml:"-"`
	StartsAt       time.Time `json:"starts_at" yaml:"starts_at"`
	EndsAt         time.Time `json:"ends_at" yaml:"ends_at"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
	// ExcludedExerciseNumbers are exercise numbers the teacher excluded.
	ExcludedExerciseNumbers []int64 `json:"excluded_exercise_numbers" yaml:"excluded_exercise_numbers"`
	// Algorithms overrides the configured algorithm name per fetch operation.
	Algorithms map[string]string `json:"algorithms,omitempty" yaml:"algorithms"`
}

// IsReal reports whether the course's data should count as real learner data.
func (c *Course) IsReal() bool {
	return !c.IsPreview && !c.IsTest
}

// CourseEcosystem links a course to an ecosystem it has used. The most
// recently created link is the course's current ecosystem.
type CourseEcosystem struct {
	CourseID    int64     `json:"course_id"`
	EcosystemID int64     `json:"ecosystem_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Period is a course section. Archived periods are still synchronized.
type Period struct {
	ID         int64      `json:"id" yaml:"-"`
	UUID       string     `json:"uuid" yaml:"uuid"`
	CourseID   int64      `json:"course_id" yaml:"-"`
	Name       string     `json:"name" yaml:"name"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty" yaml:"archived_at"`
}

// Archived reports whether the period has ended.
func (p *Period) Archived() bool { return p.ArchivedAt != nil }

// Student is a course member together with their latest enrollment.
type Student struct {
	ID         int64      `json:"id" yaml:"-"`
	UUID       string     `json:"uuid" yaml:"uuid"`
	CourseID   int64      `json:"course_id" yaml:"-"`
	PeriodID   int64      `json:"period_id" yaml:"-"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	DroppedAt  *time.Time `json:"dropped_at,omitempty" yaml:"dropped_at"`
	EnrolledAt time.Time  `json:"enrolled_at" yaml:"enrolled_at"`
	// PeriodUUID is only used when loading fixtures.
	PeriodUUID string `json:"-" yaml:"period_uuid"`
}

// Dropped reports whether the student left the course.
func (s *Student) Dropped() bool { return s.DroppedAt != nil }

// Roster is a course with all of its periods and students.
type Roster struct {
	Course   *Course
	Periods  []*Period
	Students []*Student
}
