package belief

import (
	"errors"
	"fmt"
)

// Lookup errors.
var (
	// ErrNotFound is returned by stores when a Summary does not exist.
	// Service callers never see it; Ensure creates the Summary instead.
	ErrNotFound = errors.New("summary not found")
)

// Validation errors.
var (
	// ErrEmptyAgentID is returned when an operation has no agent scope.
	ErrEmptyAgentID = errors.New("agent ID cannot be empty")

	// ErrEmptySummaryID is returned when an operation has no target Summary.
	ErrEmptySummaryID = errors.New("summary ID cannot be empty")
)

// State errors.
var (
	// ErrInvalidTransition marks an update against a terminal Summary. It is
	// logged and recorded in history, never returned to callers.
	ErrInvalidTransition = errors.New("invalid summary transition")

	// ErrConflict is returned when a put loses an optimistic version check.
	ErrConflict = errors.New("summary version conflict")
)

// PersistenceError wraps a failure from the persistence layer. The engine
// does not retry; the caller decides.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err originated in the persistence layer.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
