package syncmap

import "time"

// Metrics receives sync instrumentation. A nil Metrics is valid and means
// zero overhead; the prometheus-backed implementation lives in pkg/metrics
// so this package carries no metrics dependency.
type Metrics interface {
	// ObserveSync records one completed sync pass.
	ObserveSync(syncType, status string, duration time.Duration)

	// ObserveRecord records one transaction record dispatched by type.
	ObserveRecord(recType string)

	// ObserveCorruption records one detected corruption condition.
	ObserveCorruption()

	// ObserveExpunged records expunged messages.
	ObserveExpunged(count int)
}

func observeSync(m Metrics, syncType, status string, d time.Duration) {
	if m != nil {
		m.ObserveSync(syncType, status, d)
	}
}

func observeRecord(m Metrics, recType string) {
	if m != nil {
		m.ObserveRecord(recType)
	}
}

func observeCorruption(m Metrics) {
	if m != nil {
		m.ObserveCorruption()
	}
}

func observeExpunged(m Metrics, count int) {
	if m != nil {
		m.ObserveExpunged(count)
	}
}
