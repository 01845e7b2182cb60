package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log
// aggregation and querying stays uniform between the sync driver, the
// record applier, and the expunge/extension handlers.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Mailbox & Index Identity
	// ========================================================================
	KeyMailbox    = "mailbox"     // Mailbox path or name being synced
	KeyIndexID    = "index_id"    // Index identity stamp
	KeySyncType   = "sync_type"   // file, view, head
	KeyReason     = "reason"      // Human readable reason for a lost-log / reset condition

	// ========================================================================
	// Transaction Log Position
	// ========================================================================
	KeyLogSeq    = "log_seq"    // Transaction log file sequence
	KeyLogOffset = "log_offset" // Byte offset within the transaction log file
	KeyRecType   = "rec_type"   // Transaction record type being applied

	// ========================================================================
	// Message / Record Identity
	// ========================================================================
	KeyUID         = "uid"          // Message UID
	KeySeq         = "seq"          // 1-based sequence number
	KeyNextUID     = "next_uid"     // Header next_uid value
	KeyExtensionID = "extension_id" // Extension id a record belongs to

	// ========================================================================
	// Counters
	// ========================================================================
	KeyMessagesCount = "messages_count"
	KeySeenCount     = "seen_count"
	KeyDeletedCount  = "deleted_count"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyCorrupted  = "corrupted"   // Corruption condition description
	KeySource     = "source"      // Data source: index_file, log_view, fsck
	KeyOperation  = "operation"   // Sub-operation type for complex operations
)

// Field is a convenience alias for slog.Attr, used to keep call sites short
// when building up a handful of structured fields for one log line.
type Field = slog.Attr

// String builds a string field.
func String(key, value string) Field { return slog.String(key, value) }

// Int builds an int field.
func Int(key string, value int) Field { return slog.Int(key, value) }

// Uint32 builds a uint32 field, rendered as a plain integer.
func Uint32(key string, value uint32) Field { return slog.Any(key, value) }

// Uint64 builds a uint64 field, rendered as a plain integer.
func Uint64(key string, value uint64) Field { return slog.Any(key, value) }

// Err builds an error field using the standard KeyError key. A nil error
// yields an empty attr, which handlers skip.
func Err(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Sprintf is a small helper for building a one-off message from a format
// string, kept here so call sites importing logger don't also need fmt.
func Sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
