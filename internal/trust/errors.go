package trust

import "errors"

var (
	// ErrNotFound is returned by stores for agents without trust state.
	ErrNotFound = errors.New("trust state not found")

	// ErrConflict is returned when a put loses an optimistic version check.
	ErrConflict = errors.New("trust state version conflict")

	// ErrEmptyAgentID is returned when an operation has no agent scope.
	ErrEmptyAgentID = errors.New("agent ID cannot be empty")
)
