// Package models defines the core domain types for recsync.
package models

import "time"

// EntityKind names a record that owns a sequence number.
type EntityKind string

const (
	EntityCourse    EntityKind = "course"
	EntityEcosystem EntityKind = "ecosystem"
)

// EntityRef identifies a sequence-numbered record by kind and relational ID.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   int64      `json:"id"`
}

// CourseRef returns a reference to a course's sequence counter.
func CourseRef(id int64) EntityRef { return EntityRef{Kind: EntityCourse, ID: id} }

// EcosystemRef returns a reference to an ecosystem's sequence counter.
func EcosystemRef(id int64) EntityRef { return EntityRef{Kind: EntityEcosystem, ID: id} }

// Claim is a sequence number claimed for an entity by a job.
type Claim struct {
	Entity         EntityRef `json:"entity"`
	SequenceNumber int64     `json:"sequence_number"`
}

// JobStatus represents the lifecycle state of an outbound write.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is an asynchronous write recorded in the outbox. Its payload is the
// fully built wire request, so a retry resends byte-identical data.
type Job struct {
	ID            string     `json:"id"`
	Operation     string     `json:"operation"`
	Status        JobStatus  `json:"status"`
	Attempt       int        `json:"attempt"`
	Payload       []byte     `json:"-"`
	Response      []byte     `json:"-"`
	Error         string     `json:"error,omitempty"`
	Claims        []Claim    `json:"claims"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// SequenceNumber returns the number the job claimed for ref, or 0.
func (j *Job) SequenceNumber(ref EntityRef) int64 {
	for _, c := range j.Claims {
		if c.Entity == ref {
			return c.SequenceNumber
		}
	}
	return 0
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	JobID      string    `json:"job_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
