package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aidcollective/meshcore/pkg/types"
)

func testutilGaugeValue(t *testing.T, g prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(g)
}

// fakeSource is a hand-rolled stand-in for *bridge.Bridge so the
// collector can be tested without constructing a full bridge.
type fakeSource struct {
	records    map[types.RecordType][]types.RecordKey
	peers      []types.Peer
	byPriority map[types.Priority]int
	usedBytes  int
}

func (f fakeSource) ListRecords(rt types.RecordType) []types.RecordKey { return f.records[rt] }
func (f fakeSource) Peers() []types.Peer                               { return f.peers }
func (f fakeSource) BundleStats() (map[types.Priority]int, int) {
	return f.byPriority, f.usedBytes
}

// TestCollectRecordCountsSetsGaugePerType verifies collectRecordCounts
// reports a gauge value for every record type, not just the ones present.
func TestCollectRecordCountsSetsGaugePerType(t *testing.T) {
	src := fakeSource{records: map[types.RecordType][]types.RecordKey{
		types.RecordNeed: {{Type: types.RecordNeed, ID: "n1"}, {Type: types.RecordNeed, ID: "n2"}},
	}}
	c := NewCollector(src, 0)
	c.collectRecordCounts()

	got := testutilGaugeValue(t, RecordsTotal.WithLabelValues(string(types.RecordNeed)))
	if got != 2 {
		t.Errorf("RecordsTotal[need] = %v, want 2", got)
	}
	got = testutilGaugeValue(t, RecordsTotal.WithLabelValues(string(types.RecordGratitude)))
	if got != 0 {
		t.Errorf("RecordsTotal[gratitude] = %v, want 0", got)
	}
}

// TestCollectPeerCountsAggregatesByTransport verifies a peer reachable
// over two transports is counted once per transport, not once overall.
func TestCollectPeerCountsAggregatesByTransport(t *testing.T) {
	src := fakeSource{peers: []types.Peer{
		{ID: "p1", Transports: []types.TransportKind{types.TransportBLE, types.TransportLocalNet}},
		{ID: "p2", Transports: []types.TransportKind{types.TransportBLE}},
	}}
	c := NewCollector(src, 0)
	c.collectPeerCounts()

	if got := testutilGaugeValue(t, PeersKnown.WithLabelValues(string(types.TransportBLE))); got != 2 {
		t.Errorf("PeersKnown[ble] = %v, want 2", got)
	}
	if got := testutilGaugeValue(t, PeersKnown.WithLabelValues(string(types.TransportLocalNet))); got != 1 {
		t.Errorf("PeersKnown[local-net] = %v, want 1", got)
	}
}

// TestCollectBundleGaugesReportsPerPriorityAndBytes verifies every
// priority label gets a value, including priorities with zero bundles.
func TestCollectBundleGaugesReportsPerPriorityAndBytes(t *testing.T) {
	src := fakeSource{
		byPriority: map[types.Priority]int{types.PriorityCritical: 3},
		usedBytes:  4096,
	}
	c := NewCollector(src, 8<<20)
	c.collectBundleGauges()

	if got := testutilGaugeValue(t, BundlesQueued.WithLabelValues(types.PriorityCritical.String())); got != 3 {
		t.Errorf("BundlesQueued[critical] = %v, want 3", got)
	}
	if got := testutilGaugeValue(t, BundlesQueued.WithLabelValues(types.PriorityLow.String())); got != 0 {
		t.Errorf("BundlesQueued[low] = %v, want 0", got)
	}
	if got := testutilGaugeValue(t, BundleBytesUsed); got != 4096 {
		t.Errorf("BundleBytesUsed = %v, want 4096", got)
	}
}

// TestCollectPeerCountsReportsMeshDegradedWhenIsolated verifies a node
// with no known peers is reported degraded, not unhealthy: being
// alone is expected behavior for this system, not a failure.
func TestCollectPeerCountsReportsMeshDegradedWhenIsolated(t *testing.T) {
	c := NewCollector(fakeSource{}, 0)
	c.collectPeerCounts()

	health := GetHealth()
	if health.Components["mesh"] != "degraded: no peers currently known" {
		t.Errorf("mesh health = %q, want degraded", health.Components["mesh"])
	}

	ready := GetReadiness()
	if ready.Status != "ready" {
		t.Errorf("readiness = %q, want ready (degraded mesh must not block readiness)", ready.Status)
	}
}

// TestCollectBundleGaugesReportsDegradedNearBudget verifies the
// bundle store is flagged degraded once usage crosses 90% of budget.
func TestCollectBundleGaugesReportsDegradedNearBudget(t *testing.T) {
	c := NewCollector(fakeSource{usedBytes: 95}, 100)
	c.collectBundleGauges()

	health := GetHealth()
	if health.Components["bundle"] != "degraded: bundle budget over 90% full" {
		t.Errorf("bundle health = %q, want degraded", health.Components["bundle"])
	}
}
