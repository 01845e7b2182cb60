// Package mailindex implements the in-memory representation of a mailbox
// index: the header, the flat array of per-message records, and the
// copy-on-write sharing discipline multiple views use to observe it safely.
//
// The package owns no I/O. Everything here is pure data plus the pure state
// transitions a transaction-log replay drives; see package syncmap for the
// driver that walks a log and calls into this package.
package mailindex

import "errors"

// Residence describes where a Map's record bytes currently live.
type Residence int

const (
	// ResidenceMemory means the record map's buffer is a private, growable
	// in-memory byte slice that can be appended to and compacted freely.
	ResidenceMemory Residence = iota

	// ResidenceMmap means the record map's buffer aliases a memory-mapped
	// index file. It must be moved to memory before any mutation that can
	// grow or shift it.
	ResidenceMmap
)

var (
	// ErrClosed is returned by operations on an Index that has been closed.
	ErrClosed = errors.New("mailindex: index is closed")

	// ErrUIDNotFound is returned when a UID has no corresponding sequence.
	ErrUIDNotFound = errors.New("mailindex: uid not found")
)

// CorruptionError records a single detected invariant violation. The
// applier that builds one never treats it as a fatal condition for the
// whole sync pass: the offending record is abandoned and replay continues,
// exactly as a malformed packet is dropped rather than closing a stream.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string {
	return "mailindex: corrupted: " + e.Reason
}

// NewCorruption builds a CorruptionError from a message.
func NewCorruption(reason string) *CorruptionError {
	return &CorruptionError{Reason: reason}
}
