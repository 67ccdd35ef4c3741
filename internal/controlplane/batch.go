package controlplane

import "fmt"

// ItemFailure is one batch item that could not be built.
type ItemFailure struct {
	// Key identifies the item, e.g. a course or task UUID.
	Key string
	Err error
}

// BatchReport collects the outcome of a multi-item write. Items that fail
// locally are reported and skipped; the rest are still sent.
type BatchReport struct {
	Jobs     []*Job
	Sent     []string
	Failures []ItemFailure
}

func (r *BatchReport) fail(key string, err error) {
	r.Failures = append(r.Failures, ItemFailure{Key: key, Err: err})
}

// OK reports whether every item was accepted.
func (r *BatchReport) OK() bool { return len(r.Failures) == 0 }

// Err summarizes the failures, or returns nil.
func (r *BatchReport) Err() error {
	switch len(r.Failures) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s: %w", r.Failures[0].Key, r.Failures[0].Err)
	default:
		return fmt.Errorf("%d items failed, first %s: %w", len(r.Failures), r.Failures[0].Key, r.Failures[0].Err)
	}
}
