package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maildrop/indexsync/pkg/syncmap"
)

// syncMetrics is the Prometheus implementation of syncmap.Metrics.
type syncMetrics struct {
	syncs        *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	records      *prometheus.CounterVec
	corruptions  prometheus.Counter
	expunged     prometheus.Counter
}

// NewSyncMetrics creates a Prometheus-backed syncmap.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// sync driver treats nil as zero overhead.
func NewSyncMetrics() syncmap.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &syncMetrics{
		syncs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexsync_syncs_total",
				Help: "Total number of sync passes by sync type and status",
			},
			[]string{"sync_type", "status"}, // status: "ok", "lost_log", "error"
		),
		syncDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "indexsync_sync_duration_milliseconds",
				Help: "Duration of sync passes in milliseconds",
				Buckets: []float64{
					0.05, // cached no-op syncs
					0.1,
					0.5,
					1,
					5,
					10,
					50,
					100, // large log replays
					500,
				},
			},
			[]string{"sync_type"},
		),
		records: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexsync_records_applied_total",
				Help: "Total number of transaction records dispatched by type",
			},
			[]string{"rec_type"},
		),
		corruptions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "indexsync_corruptions_total",
				Help: "Total number of corruption conditions detected during sync",
			},
		),
		expunged: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "indexsync_expunged_messages_total",
				Help: "Total number of messages removed by expunge transactions",
			},
		),
	}
}

func (m *syncMetrics) ObserveSync(syncType, status string, duration time.Duration) {
	m.syncs.WithLabelValues(syncType, status).Inc()
	m.syncDuration.WithLabelValues(syncType).
		Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *syncMetrics) ObserveRecord(recType string) {
	m.records.WithLabelValues(recType).Inc()
}

func (m *syncMetrics) ObserveCorruption() {
	m.corruptions.Inc()
}

func (m *syncMetrics) ObserveExpunged(count int) {
	m.expunged.Add(float64(count))
}

// Ensure syncMetrics implements syncmap.Metrics.
var _ syncmap.Metrics = (*syncMetrics)(nil)
