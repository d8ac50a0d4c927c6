package entity

import "errors"

// ErrSourceNotFound is returned by a hierarchical source read when no
// ancestor of the requested URL (inclusive) has a stored body.
var ErrSourceNotFound = errors.New("source_not_found")

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run_not_found")

// ErrInvariantViolation marks a failure that must abort a run: a missing
// parent, a cycle in parent_map, or a non-leaf fetched page with no body.
type ErrInvariantViolation struct {
	Reason string
}

func (e *ErrInvariantViolation) Error() string {
	return "invariant violation: " + e.Reason
}

// ErrLinkNotFound is returned when no edge record exists for a URL in a
// run.
var ErrLinkNotFound = errors.New("link_not_found")
