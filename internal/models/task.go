package models

import "time"

// TaskType is the kind of assignment.
type TaskType string

const (
	TaskReading      TaskType = "reading"
	TaskHomework     TaskType = "homework"
	TaskPractice     TaskType = "practice"
	TaskConceptCoach TaskType = "concept-coach"
)

// DynamicPool returns the pool personalized exercises are drawn from for the
// task type.
func (t TaskType) DynamicPool() PoolType {
	switch t {
	case TaskReading:
		return PoolReadingDynamic
	case TaskHomework:
		return PoolHomeworkDynamic
	case TaskPractice:
		return PoolPracticeWidget
	case TaskConceptCoach:
		return PoolConceptCoach
	default:
		return PoolAllExercises
	}
}

// StepGroup tags why a step is part of a task.
type StepGroup string

const (
	GroupCore           StepGroup = "core"
	GroupSpacedPractice StepGroup = "spaced_practice"
	GroupPersonalized   StepGroup = "personalized"
	GroupRecovery       StepGroup = "recovery"
)

// StepKind describes what a step contains.
type StepKind string

const (
	StepExercise    StepKind = "exercise"
	StepReading     StepKind = "reading"
	StepPlaceholder StepKind = "placeholder"
)

// Task is an assignment for one student in one course and ecosystem.
type Task struct {
	ID              int64       `json:"id" yaml:"-"`
	UUID            string      `json:"uuid" yaml:"uuid"`
	CourseID        int64       `json:"course_id" yaml:"-"`
	EcosystemID     int64       `json:"ecosystem_id" yaml:"-"`
	StudentID       int64       `json:"student_id,omitempty" yaml:"-"`
	Type            TaskType    `json:"type" yaml:"type"`
	Title           string      `json:"title" yaml:"title"`
	OpensAt         *time.Time  `json:"opens_at,omitempty" yaml:"opens_at"`
	DueAt           *time.Time  `json:"due_at,omitempty" yaml:"due_at"`
	FeedbackAt      *time.Time  `json:"feedback_at,omitempty" yaml:"feedback_at"`
	Withdrawn       bool        `json:"withdrawn" yaml:"withdrawn"`
	SpesAreAssigned bool        `json:"spes_are_assigned" yaml:"spes_are_assigned"`
	PesAreAssigned  bool        `json:"pes_are_assigned" yaml:"pes_are_assigned"`
	CorePageIDs     []int64     `json:"core_page_ids" yaml:"-"`
	Steps           []*TaskStep `json:"steps" yaml:"steps"`
	CreatedAt       time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" yaml:"updated_at"`
	// Fixture-only references.
	StudentUUID   string   `json:"-" yaml:"student_uuid"`
	CorePageUUIDs []string `json:"-" yaml:"core_page_uuids"`
}

// StepsInGroup counts exercise and placeholder steps tagged with group.
func (t *Task) StepsInGroup(group StepGroup) int {
	n := 0
	for _, s := range t.Steps {
		if s.Group != group {
			continue
		}
		if s.Kind == StepExercise || s.Kind == StepPlaceholder {
			n++
		}
	}
	return n
}

// TaskedExercises returns the exercise steps' tasked exercises in step order.
func (t *Task) TaskedExercises() []*TaskedExercise {
	var out []*TaskedExercise
	for _, s := range t.Steps {
		if s.Kind == StepExercise && s.Exercise != nil {
			out = append(out, s.Exercise)
		}
	}
	return out
}

// AssignedExerciseIDs returns the set of exercises already on the task.
func (t *Task) AssignedExerciseIDs() map[int64]bool {
	out := make(map[int64]bool)
	for _, te := range t.TaskedExercises() {
		out[te.ExerciseID] = true
	}
	return out
}

// TaskStep is one ordered entry of a task.
type TaskStep struct {
	ID       int64           `json:"id" yaml:"-"`
	TaskID   int64           `json:"task_id" yaml:"-"`
	Number   int             `json:"number" yaml:"number"`
	Group    StepGroup       `json:"group" yaml:"group"`
	Kind     StepKind        `json:"kind" yaml:"kind"`
	Exercise *TaskedExercise `json:"exercise,omitempty" yaml:"exercise"`
}

// TaskedExercise binds an exercise to a step. UUID is the trial identifier,
// stable across attempts.
type TaskedExercise struct {
	ID          int64      `json:"id" yaml:"-"`
	UUID        string     `json:"uuid" yaml:"uuid"`
	StepID      int64      `json:"step_id" yaml:"-"`
	ExerciseID  int64      `json:"exercise_id" yaml:"-"`
	IsCorrect   *bool      `json:"is_correct,omitempty" yaml:"is_correct"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	// ExerciseUUID is only used when loading fixtures.
	ExerciseUUID string `json:"-" yaml:"exercise_uuid"`
}

// Answered reports whether the exercise has a recorded correctness.
func (te *TaskedExercise) Answered() bool { return te.IsCorrect != nil }

// Response is a graded answer placed in its course and ecosystem.
type Response struct {
	TaskedExerciseID int64     `json:"tasked_exercise_id"`
	TaskID           int64     `json:"task_id"`
	CourseID         int64     `json:"course_id"`
	StudentID        int64     `json:"student_id"`
	EcosystemID      int64     `json:"ecosystem_id"`
	ExerciseID       int64     `json:"exercise_id"`
	ExerciseNumber   int64     `json:"exercise_number"`
	IsCorrect        bool      `json:"is_correct"`
	AnsweredAt       time.Time `json:"answered_at"`
}
