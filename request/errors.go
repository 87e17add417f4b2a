package request

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput reports a programmer error, such as a nil request.
	ErrMalformedInput = errors.New("malformed input")

	// ErrConflict is returned by stores when the stored status no longer
	// matches the status the caller observed.
	ErrConflict = errors.New("request was modified concurrently")

	// ErrPersist wraps store failures other than conflicts.
	ErrPersist = errors.New("failed to persist request")

	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("request not found")
)

// InvalidTransitionError is returned when an action is not allowed from the
// request's current state or its preconditions are not met.
type InvalidTransitionError struct {
	Current Status
	Action  Action
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s request in status %q: %s", e.Action, e.Current, e.Reason)
	}
	return fmt.Sprintf("cannot %s request in status %q", e.Action, e.Current)
}

// MalformedInputError names the structural assumption that was violated.
type MalformedInputError struct {
	Op     string
	Detail string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrMalformedInput, e.Detail)
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

func invalidTransition(r *Request, a Action, reason string) error {
	return &InvalidTransitionError{Current: r.Status, Action: a, Reason: reason}
}
