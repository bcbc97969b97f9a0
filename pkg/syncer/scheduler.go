package syncer

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aidcollective/meshcore/pkg/events"
	"github.com/aidcollective/meshcore/pkg/metrics"
	"github.com/aidcollective/meshcore/pkg/store"
	"github.com/aidcollective/meshcore/pkg/types"
)

// Config controls debounce timing, throttling, and backpressure.
type Config struct {
	Debounce           time.Duration
	SyncDeadline       time.Duration
	SendRateLimit      rate.Limit
	SendBurst          int
	OutboundQueueLimit int
}

// DefaultConfig matches spec.md §6's documented defaults.
var DefaultConfig = Config{
	Debounce:           200 * time.Millisecond,
	SyncDeadline:       10 * time.Second,
	SendRateLimit:      20,
	SendBurst:          5,
	OutboundQueueLimit: 32,
}

// Requester lets the scheduler proactively start a sync round with a
// peer once a debounced batch of local commits is ready. Declared here
// rather than imported from pkg/mesh to keep this package free of a
// compile-time dependency on it.
type Requester interface {
	TriggerSync(peer types.PeerID) error
}

// Scheduler is C8.
type Scheduler struct {
	cfg     Config
	st      *store.Store
	limiter *rate.Limiter

	mu            sync.Mutex
	knownPeers    map[types.PeerID]struct{}
	peerFrontier  map[types.PeerID][]store.ChangeID
	queueDepth    map[types.PeerID]int
	debounceTimer *time.Timer
	requester     Requester

	stop chan struct{}
}

// New creates a scheduler over st. Call SetRequester once the mesh
// manager exists, and Start to begin watching the change feed.
func New(st *store.Store, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		st:           st,
		limiter:      rate.NewLimiter(cfg.SendRateLimit, cfg.SendBurst),
		knownPeers:   make(map[types.PeerID]struct{}),
		peerFrontier: make(map[types.PeerID][]store.ChangeID),
		queueDepth:   make(map[types.PeerID]int),
		stop:         make(chan struct{}),
	}
}

// SetRequester wires the mesh manager's TriggerSync back into the
// scheduler; done as a separate step to avoid an import-order tangle
// at construction time in pkg/bridge's wiring.
func (s *Scheduler) SetRequester(r Requester) {
	s.mu.Lock()
	s.requester = r
	s.mu.Unlock()
}

// NotePeer records that peer is currently reachable, so a future
// debounced commit knows who to poke.
func (s *Scheduler) NotePeer(peer types.PeerID) {
	s.mu.Lock()
	s.knownPeers[peer] = struct{}{}
	s.mu.Unlock()
}

// ForgetPeer drops a peer that's no longer reachable.
func (s *Scheduler) ForgetPeer(peer types.PeerID) {
	s.mu.Lock()
	delete(s.knownPeers, peer)
	delete(s.peerFrontier, peer)
	delete(s.queueDepth, peer)
	s.mu.Unlock()
}

// Start subscribes to the document's change feed and begins debounced
// sync scheduling. broker is the same broker passed to store.Open.
func (s *Scheduler) Start(broker *events.Broker) {
	sub := broker.Subscribe()
	go s.watch(sub)
}

// Stop ends the change-feed watch loop.
func (s *Scheduler) Stop() { close(s.stop) }

func (s *Scheduler) watch(sub events.Subscriber) {
	for {
		select {
		case <-s.stop:
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			s.scheduleDebounced()
		}
	}
}

// scheduleDebounced coalesces a burst of change events into a single
// sync round fired cfg.Debounce after the last one. One timer serves
// all peers; the round then pokes every known peer.
func (s *Scheduler) scheduleDebounced() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.cfg.Debounce, s.fireSyncRound)
}

func (s *Scheduler) fireSyncRound() {
	s.mu.Lock()
	requester := s.requester
	peers := make([]types.PeerID, 0, len(s.knownPeers))
	for p := range s.knownPeers {
		if s.queueDepth[p] >= s.cfg.OutboundQueueLimit {
			// backpressure: this peer's outbound queue is already
			// saturated, coalesce by skipping it this round rather than
			// piling on more sync-requests it can't keep up with.
			continue
		}
		peers = append(peers, p)
	}
	s.mu.Unlock()

	if requester == nil {
		return
	}
	for _, p := range peers {
		if !s.limiter.Allow() {
			continue
		}
		s.mu.Lock()
		s.queueDepth[p]++
		s.mu.Unlock()
		if err := requester.TriggerSync(p); err != nil {
			metrics.SyncRoundsTotal.WithLabelValues("failed").Inc()
			continue
		}
		metrics.SyncRoundsTotal.WithLabelValues("sent").Inc()
	}
}

// syncPayload is the JSON wire shape carried inside sync-request and
// sync-response mesh messages.
type syncPayload struct {
	Frontier []store.ChangeID `json:"frontier"`
	Changes  []*store.Change  `json:"changes,omitempty"`
}

// BuildSyncRequest reports the local causal summary so the peer can
// compute a minimal delta (spec.md §4.1's compact-summary sync path).
func (s *Scheduler) BuildSyncRequest(peer types.PeerID) []byte {
	data, err := json.Marshal(syncPayload{Frontier: s.st.Doc().CausalSummary()})
	if err != nil {
		return nil
	}
	metrics.SyncPayloadBytes.WithLabelValues("request").Observe(float64(len(data)))
	return data
}

// BuildSyncResponse computes and returns the delta the requester needs
// given the causal summary in its request.
func (s *Scheduler) BuildSyncResponse(peer types.PeerID, request []byte) []byte {
	var req syncPayload
	if len(request) > 0 {
		_ = json.Unmarshal(request, &req)
	}
	delta := s.st.Doc().ComputeDelta(req.Frontier)
	data, err := json.Marshal(syncPayload{Frontier: s.st.Doc().CausalSummary(), Changes: delta})
	if err != nil {
		return nil
	}
	metrics.SyncPayloadBytes.WithLabelValues("response").Observe(float64(len(data)))
	return data
}

// HandleSyncResponse applies a peer's delta and caches its reported
// frontier, then eases this peer's backpressure counter.
func (s *Scheduler) HandleSyncResponse(peer types.PeerID, payload []byte) {
	s.mu.Lock()
	if s.queueDepth[peer] > 0 {
		s.queueDepth[peer]--
	}
	s.mu.Unlock()

	var resp syncPayload
	if err := json.Unmarshal(payload, &resp); err != nil {
		return
	}
	if len(resp.Changes) > 0 {
		if _, err := s.st.ApplyRemote(resp.Changes); err != nil {
			return
		}
	}
	s.mu.Lock()
	s.peerFrontier[peer] = resp.Frontier
	s.mu.Unlock()
}

// PeerFrontier returns the last causal summary this scheduler received
// from peer, for diagnostics.
func (s *Scheduler) PeerFrontier(peer types.PeerID) ([]store.ChangeID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.peerFrontier[peer]
	return f, ok
}
