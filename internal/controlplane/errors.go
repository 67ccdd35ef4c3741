package controlplane

import (
	"errors"
	"fmt"
)

// Sentinel errors for control plane operations.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrNoStudent      = errors.New("task has no student")
	ErrTrialNotFound  = errors.New("trial not found on task")
	ErrNothingToWrite = errors.New("no valid items to send")
)

// ExercisesError is a recommendation response that breaks the protocol: more
// exercises than requested, or exercises unknown locally. It is never
// retried and never replaced by a fallback.
type ExercisesError struct {
	Operation string
	// Target is the assignment or student UUID the request was for.
	Target string
	Reason string
}

func (e *ExercisesError) Error() string {
	return fmt.Sprintf("%s for %s: %s", e.Operation, e.Target, e.Reason)
}
