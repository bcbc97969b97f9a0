package metrics

import (
	"time"

	"github.com/aidcollective/meshcore/pkg/types"
)

// Source is the subset of *bridge.Bridge the Collector needs. Declared
// here rather than importing pkg/bridge so metrics stays a leaf package
// every other package can depend on without risking a cycle.
type Source interface {
	ListRecords(recordType types.RecordType) []types.RecordKey
	Peers() []types.Peer
	BundleStats() (byPriority map[types.Priority]int, usedBytes int)
}

// recordTypes enumerates every record type the collector reports a
// gauge for (spec.md's fixed set of domain record types).
var recordTypes = []types.RecordType{
	types.RecordResourceOffer, types.RecordNeed, types.RecordSkillOffer,
	types.RecordBulletinPost, types.RecordEvent, types.RecordHelpSession,
	types.RecordCareCheckIn, types.RecordGratitude, types.RecordCommunityMeta,
	types.RecordExtension,
}

// Collector polls a Source on an interval and updates the package's
// gauge metrics — the counters and histograms are updated inline by
// the components that own the events they describe. It also refreshes
// the mesh and bundle entries in the health/readiness registry from
// the same poll, so /health and /ready never lag the metrics by more
// than one collection interval.
type Collector struct {
	src         Source
	budgetBytes int
	stopCh      chan struct{}
}

// NewCollector creates a collector over src (typically a *bridge.Bridge).
// budgetBytes is the configured DTN bundle byte budget, used only to
// compute the bundle store's degraded threshold for GetHealth.
func NewCollector(src Source, budgetBytes int) *Collector {
	return &Collector{src: src, budgetBytes: budgetBytes, stopCh: make(chan struct{})}
}

// Start begins polling every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector.
func (c *Collector) Stop() { close(c.stopCh) }

func (c *Collector) collect() {
	c.collectRecordCounts()
	c.collectPeerCounts()
	c.collectBundleGauges()
}

func (c *Collector) collectRecordCounts() {
	for _, rt := range recordTypes {
		RecordsTotal.WithLabelValues(string(rt)).Set(float64(len(c.src.ListRecords(rt))))
	}
}

func (c *Collector) collectPeerCounts() {
	peers := c.src.Peers()
	counts := make(map[types.TransportKind]int)
	for _, peer := range peers {
		for _, kind := range peer.Transports {
			counts[kind]++
		}
	}
	for kind, count := range counts {
		PeersKnown.WithLabelValues(string(kind)).Set(float64(count))
	}
	UpdateMeshHealth(len(peers))
}

func (c *Collector) collectBundleGauges() {
	byPriority, usedBytes := c.src.BundleStats()
	for _, p := range []types.Priority{
		types.PriorityLow, types.PriorityNormal, types.PriorityHigh, types.PriorityCritical,
	} {
		BundlesQueued.WithLabelValues(p.String()).Set(float64(byPriority[p]))
	}
	BundleBytesUsed.Set(float64(usedBytes))
	UpdateBundleHealth(usedBytes, c.budgetBytes)
}
