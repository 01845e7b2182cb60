package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one sync pass.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Mailbox   string    // Mailbox being synced
	SyncType  string    // file, view, head
	LogSeq    uint32    // transaction log file sequence at the start of the pass
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a mailbox sync pass.
func NewLogContext(mailbox string) *LogContext {
	return &LogContext{
		Mailbox:   mailbox,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Mailbox:   lc.Mailbox,
		SyncType:  lc.SyncType,
		LogSeq:    lc.LogSeq,
		StartTime: lc.StartTime,
	}
}

// WithSyncType returns a copy with the sync type set
func (lc *LogContext) WithSyncType(syncType string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SyncType = syncType
	}
	return clone
}

// WithLogSeq returns a copy with the log sequence set
func (lc *LogContext) WithLogSeq(seq uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.LogSeq = seq
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
