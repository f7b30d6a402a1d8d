package transport

import "errors"

var (
	// ErrMismatchedLand is returned (and reported via joinResponse) when a
	// join's landType doesn't match the adapter's own land.
	ErrMismatchedLand = errors.New("transport: join targets a different land type")
	// ErrDuplicateJoin is returned when a session that already joined
	// sends a second join.
	ErrDuplicateJoin = errors.New("transport: session already joined")
	// ErrAlreadyBound is the router-level error for a join on an
	// already-bound session targeting a different land.
	ErrAlreadyBound = errors.New("transport: session already bound to another land")
	// ErrJoinTimeout is returned when performJoin does not complete within
	// the configured window.
	ErrJoinTimeout = errors.New("transport: join timed out")
)
