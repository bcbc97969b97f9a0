package mesh

import (
	"sync"
	"time"

	"github.com/aidcollective/meshcore/pkg/types"
)

// PeerTable is the single-writer, many-reader record of peers the
// mesh manager currently knows about (spec.md §4.5: "peer table ...
// idle peers are evicted after a configurable timeout").
type PeerTable struct {
	mu    sync.RWMutex
	peers map[types.PeerID]*types.Peer
}

// NewPeerTable creates an empty table.
func NewPeerTable() *PeerTable {
	return &PeerTable{peers: make(map[types.PeerID]*types.Peer)}
}

// Upsert records or refreshes a peer sighting over transport, merging
// the transport into the peer's known-reachable-over set.
func (t *PeerTable) Upsert(id types.PeerID, transport types.TransportKind, seenAt time.Time) *types.Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[id]
	if !ok {
		p = &types.Peer{ID: id}
		t.peers[id] = p
	}
	p.LastSeen = seenAt
	if !hasTransport(p.Transports, transport) {
		p.Transports = append(p.Transports, transport)
	}
	return p
}

func hasTransport(have []types.TransportKind, want types.TransportKind) bool {
	for _, t := range have {
		if t == want {
			return true
		}
	}
	return false
}

// Get returns a copy of a peer's current record.
func (t *PeerTable) Get(id types.PeerID) (types.Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok {
		return types.Peer{}, false
	}
	return *p, true
}

// List returns a snapshot of every known peer.
func (t *PeerTable) List() []types.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	return out
}

// SetTrust updates a peer's trust/quarantine flags, as decided by the
// secure session layer (C7) after a key-conflict or TOFU check.
func (t *PeerTable) SetTrust(id types.PeerID, trusted, quarantined bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.Trusted = trusted
		p.Quarantined = quarantined
	}
}

// EvictIdle removes every peer whose LastSeen is older than threshold
// as of now, returning the evicted ids.
func (t *PeerTable) EvictIdle(now time.Time, threshold time.Duration) []types.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []types.PeerID
	for id, p := range t.peers {
		if now.Sub(p.LastSeen) > threshold {
			evicted = append(evicted, id)
			delete(t.peers, id)
		}
	}
	return evicted
}

// Remove drops a peer outright (transport reported it permanently lost).
func (t *PeerTable) Remove(id types.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}
