/*
Package metrics provides Prometheus metrics collection and exposition for meshcore.

The metrics package defines and registers every meshcore metric using the
Prometheus client library, providing observability into the document store,
the peer mesh, the sync scheduler, the DTN bundle queue, and the secure
session layer. Metrics are exposed via an HTTP endpoint for scraping by
Prometheus servers.

# Architecture

meshcore's metrics system follows Prometheus best practices with
instrumentation spread across the components that own the events they
describe, plus a polling Collector for state that has no natural "on
change" hook:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (peers known)        │          │
	│  │  Counter: Monotonic increases (commits)     │          │
	│  │  Histogram: Distributions (sync payload)    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Store: commits, live records, durations    │          │
	│  │  Mesh: peers known, relay, send errors      │          │
	│  │  Syncer: payload size, round outcomes       │          │
	│  │  Bundle: queue depth, bytes, eviction        │          │
	│  │  Session: quarantines, signature failures   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Collector (15s poll of Bridge)       │          │
	│  │  - Records/peers/bundle gauges              │          │
	│  │  - Counters/histograms updated inline       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: records total, peers known, bundles queued
  - Operations: Set, Inc, Dec, Add, Sub
  - Set on a 15s poll by Collector, since they describe a snapshot of
    Bridge state rather than a discrete event

Counter Metrics:
  - Monotonically increasing value
  - Examples: documents committed, sync rounds, bundles evicted
  - Operations: Inc, Add (cannot decrease)
  - Incremented inline by the component that owns the event

Histogram Metrics:
  - Distribution of observed values
  - Examples: commit duration, sync payload bytes
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Document Store Metrics:

meshcore_documents_committed_total{record_type}:
  - Type: Counter
  - Description: Total local commits to the document store, by record type
  - Example: meshcore_documents_committed_total{record_type="resource_offer"} 42

meshcore_records_total{record_type}:
  - Type: Gauge
  - Description: Records currently known, by type, including tombstoned ones
  - Example: meshcore_records_total{record_type="need"} 7

meshcore_commit_duration_seconds:
  - Type: Histogram
  - Description: Time for a commit to be durably appended
  - Buckets: Default Prometheus buckets

Mesh / Peer Metrics:

meshcore_peers_known{transport}:
  - Type: Gauge
  - Description: Peers currently in the peer table, by transport
  - Example: meshcore_peers_known{transport="ble"} 3

meshcore_adapter_send_errors_total{transport}:
  - Type: Counter
  - Description: Failed Send attempts, by transport

meshcore_messages_relayed_total{transport}:
  - Type: Counter
  - Description: Messages (broadcast, or directed to another peer) relayed to other peers

Sync Scheduler Metrics:

meshcore_sync_payload_bytes{direction}:
  - Type: Histogram
  - Description: Size of sync-request/sync-response payloads exchanged
  - Labels: direction ("request", "response")
  - Buckets: exponential, 64 bytes to ~1MB

meshcore_sync_rounds_total{outcome}:
  - Type: Counter
  - Description: Sync rounds triggered, by outcome ("sent", "skipped-backpressure")

DTN Bundle Metrics:

meshcore_bundles_queued{priority}:
  - Type: Gauge
  - Description: Bundles currently queued, by priority

meshcore_bundle_bytes_used:
  - Type: Gauge
  - Description: Bytes currently consumed by the bundle store against its budget

meshcore_bundles_evicted_total{priority}:
  - Type: Counter
  - Description: Bundles evicted under budget pressure, by priority

meshcore_bundles_delivered_total{kind}:
  - Type: Counter
  - Description: Bundles delivered on peer contact, by kind ("directed", "epidemic")

Secure Session / Trust Metrics:

meshcore_quarantine_events_total{trust_mode}:
  - Type: Counter
  - Description: Peers quarantined after a signing-key conflict

meshcore_signature_failures_total{reason}:
  - Type: Counter
  - Description: Rejected envelopes, by reason

# Usage

Updating Counter Metrics:

	import "github.com/aidcollective/meshcore/pkg/metrics"

	metrics.DocumentsCommitted.WithLabelValues(string(recordType)).Inc()
	metrics.AdapterSendErrorsTotal.WithLabelValues(string(kind)).Inc()

Recording Histogram Observations:

	timer := metrics.NewTimer()
	// ... perform the commit ...
	timer.ObserveDuration(metrics.CommitDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... build the sync payload ...
	// buildSeconds is a caller-defined HistogramVec measured in seconds
	// (SyncPayloadBytes measures bytes, not durations).
	timer.ObserveDurationVec(buildSeconds, "response")

Exposing the Endpoint:

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.ListenAndServe(":9090", nil)

Polling Gauges from a Bridge:

	collector := metrics.NewCollector(b, cfg.DTNBudgetBytes)
	collector.Start()
	defer collector.Stop()

# Integration Points

This package integrates with:

  - pkg/store: commit counters and durations
  - pkg/mesh: relay counters, send error counters, peer gauges (via Collector)
  - pkg/syncer: sync round counters, payload size histograms
  - pkg/bundle: eviction/delivery counters, queue gauges (via Collector)
  - pkg/session: quarantine and signature failure counters
  - pkg/bridge: the Collector's only dependency, since no other package
    is meant to expose its internals directly to metrics
  - Prometheus: scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - record_type, transport, priority, outcome, reason are all closed
    enumerations — never a peer ID, bundle ID, or record ID

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any meshcore package without a constructor
  - Thread-safe concurrent updates

Collector Pattern:
  - Gauges describing a point-in-time snapshot of Bridge state
    (record counts, peer counts, bundle queue depth) are polled every
    15 seconds rather than pushed inline, since there's no single
    commit-like call site to hang them off
  - Counters and histograms describing a discrete event are updated
    inline by the component that observed the event

# Troubleshooting

Missing Metrics:
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify the metric variable is exported

High Cardinality:
  - Cause: Using peer/bundle/record IDs as labels
  - Solution: Remove the high-cardinality label, aggregate differently

Stale Gauges:
  - Symptom: meshcore_records_total / meshcore_peers_known not updating
  - Cause: Collector not started, or polling interval not yet elapsed
  - Solution: Confirm collector.Start() was called after bridge.Open()

# Monitoring

Prometheus Queries (PromQL):

Store Health:
  - Commit rate: rate(meshcore_documents_committed_total[1m])
  - p95 commit latency: histogram_quantile(0.95, meshcore_commit_duration_seconds_bucket)

Mesh Health:
  - Peers by transport: meshcore_peers_known
  - Send error rate: rate(meshcore_adapter_send_errors_total[5m])

Sync Health:
  - Sync round rate: rate(meshcore_sync_rounds_total[1m])
  - p95 payload size: histogram_quantile(0.95, meshcore_sync_payload_bytes_bucket)

Bundle Health:
  - Budget pressure: meshcore_bundle_bytes_used
  - Eviction rate: rate(meshcore_bundles_evicted_total[5m])

Trust Health:
  - Quarantine rate: rate(meshcore_quarantine_events_total[1h])
  - Signature failure rate: rate(meshcore_signature_failures_total[5m])

# Alerting Rules

Recommended Prometheus alerts:

Bundle Budget Exhaustion:
  - Alert: rate(meshcore_bundles_evicted_total[5m]) > 0
  - Description: bundles are being evicted under budget pressure
  - Action: check dtn_budget_bytes sizing against traffic

Rising Signature Failures:
  - Alert: rate(meshcore_signature_failures_total[5m]) > 0.1
  - Description: more than 0.1 rejected envelopes per second
  - Action: check clock skew and trust table state across peers

No Peers Known:
  - Alert: sum(meshcore_peers_known) == 0
  - Description: node has no known peers on any transport
  - Action: check adapter status and discovery configuration

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
