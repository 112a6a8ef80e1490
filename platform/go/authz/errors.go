package authz

import "errors"

// Authorization failure taxonomy. All failures are local synchronous
// decisions; none are retryable without a state change.
var (
	// ErrUnauthenticated means no valid session, or no resolvable church on
	// a route that requires one.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means a valid session with insufficient role. Use only
	// where revealing "you lack permission" is itself safe.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound replaces ErrForbidden wherever confirming a record's
	// existence to an unauthorized caller would leak information.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTarget means a switch to a nonexistent, deleted, or
	// ineligible church.
	ErrInvalidTarget = errors.New("invalid target church")
)
