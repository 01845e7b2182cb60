package txlog

import "errors"

var (
	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("txlog: store is closed")

	// ErrCorrupted is returned when a log file fails validation.
	ErrCorrupted = errors.New("txlog: log file corrupted")

	// ErrVersionMismatch is returned when the log file version doesn't match.
	ErrVersionMismatch = errors.New("txlog: log file version mismatch")

	// ErrLostLog is returned by View.Set when the requested position no
	// longer exists in the log and the log was not reset; the caller
	// typically rebuilds the index from scratch.
	ErrLostLog = errors.New("txlog: lost log position")
)
