package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Document store metrics
	DocumentsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_documents_committed_total",
			Help: "Total number of local commits to the document store, by record type",
		},
		[]string{"record_type"},
	)

	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcore_records_total",
			Help: "Total number of records, by type, including tombstoned ones",
		},
		[]string{"record_type"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshcore_commit_duration_seconds",
			Help:    "Time taken for a document commit to be durably appended",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Peer / mesh metrics
	PeersKnown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcore_peers_known",
			Help: "Number of peers currently in the peer table, by transport",
		},
		[]string{"transport"},
	)

	AdapterSendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_adapter_send_errors_total",
			Help: "Total number of failed Send attempts, by transport",
		},
		[]string{"transport"},
	)

	MessagesRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_messages_relayed_total",
			Help: "Total number of messages (broadcast, or directed to another peer) relayed to other peers",
		},
		[]string{"transport"},
	)

	// Sync scheduler metrics
	SyncPayloadBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshcore_sync_payload_bytes",
			Help:    "Size in bytes of sync-request/sync-response payloads exchanged",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"direction"},
	)

	SyncRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_sync_rounds_total",
			Help: "Total number of sync rounds triggered, by outcome",
		},
		[]string{"outcome"},
	)

	// DTN bundle metrics
	BundlesQueued = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meshcore_bundles_queued",
			Help: "Number of bundles currently queued, by priority",
		},
		[]string{"priority"},
	)

	BundleBytesUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshcore_bundle_bytes_used",
			Help: "Bytes currently consumed by the DTN bundle store against its budget",
		},
	)

	BundlesEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_bundles_evicted_total",
			Help: "Total number of bundles evicted under budget pressure, by priority",
		},
		[]string{"priority"},
	)

	BundlesDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_bundles_delivered_total",
			Help: "Total number of bundles delivered on peer contact, by kind (directed/epidemic)",
		},
		[]string{"kind"},
	)

	// Secure session / trust metrics
	QuarantineEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_quarantine_events_total",
			Help: "Total number of peers quarantined after a signing-key conflict",
		},
		[]string{"trust_mode"},
	)

	SignatureFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshcore_signature_failures_total",
			Help: "Total number of rejected envelopes, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		DocumentsCommitted,
		RecordsTotal,
		CommitDuration,
		PeersKnown,
		AdapterSendErrorsTotal,
		MessagesRelayedTotal,
		SyncPayloadBytes,
		SyncRoundsTotal,
		BundlesQueued,
		BundleBytesUsed,
		BundlesEvictedTotal,
		BundlesDeliveredTotal,
		QuarantineEventsTotal,
		SignatureFailuresTotal,
	)
}

// Handler returns the Prometheus HTTP handler for mounting on a mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
