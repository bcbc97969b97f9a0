package transport

import (
	"context"
	"sync"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/types"
)

// loopRegistry wires LoopAdapters addressed by peer id together so
// tests can exercise C5's routing and C6's DTN logic without a real
// medium underneath.
type loopRegistry struct {
	mu       sync.Mutex
	adapters map[types.PeerID]*LoopAdapter
}

// NewLoopRegistry creates a registry of in-memory adapters that share
// a single delivery fabric — every LoopAdapter created from the same
// registry can Send directly to every other one.
func NewLoopRegistry() *loopRegistry {
	return &loopRegistry{adapters: make(map[types.PeerID]*LoopAdapter)}
}

// LoopAdapter is an Adapter implementation with no physical medium at
// all: Send hands payload straight to the recipient's message handler.
// It exists for tests; production nodes never construct one directly.
type LoopAdapter struct {
	reg     *loopRegistry
	self    types.PeerID
	mu      sync.Mutex
	running bool
	onMsg   MessageHandler
	onFound PeerHandler
	onLost  PeerHandler
}

// NewLoopAdapter registers self with reg and returns its adapter.
func (r *loopRegistry) NewLoopAdapter(self types.PeerID) *LoopAdapter {
	a := &LoopAdapter{reg: r, self: self}
	r.mu.Lock()
	r.adapters[self] = a
	r.mu.Unlock()
	return a
}

func (a *LoopAdapter) Kind() types.TransportKind { return types.TransportLocalNet }

func (a *LoopAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	a.reg.mu.Lock()
	peers := make([]types.PeerID, 0, len(a.reg.adapters))
	for id := range a.reg.adapters {
		if id != a.self {
			peers = append(peers, id)
		}
	}
	a.reg.mu.Unlock()

	a.mu.Lock()
	found := a.onFound
	a.mu.Unlock()
	if found != nil {
		for _, p := range peers {
			found(p)
		}
	}
	return nil
}

func (a *LoopAdapter) Stop() error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

func (a *LoopAdapter) DiscoverPeers(ctx context.Context) error { return nil }

func (a *LoopAdapter) Send(ctx context.Context, peer types.PeerID, payload []byte) error {
	a.reg.mu.Lock()
	dst, ok := a.reg.adapters[peer]
	a.reg.mu.Unlock()
	if !ok {
		return meshcoreerr.New(meshcoreerr.KindTransient, "peer-unreachable", errPeerUnknown(peer))
	}

	dst.mu.Lock()
	handler := dst.onMsg
	alive := dst.running
	dst.mu.Unlock()
	if !alive {
		return meshcoreerr.New(meshcoreerr.KindTransient, "peer-unreachable", errPeerUnknown(peer))
	}
	if handler != nil {
		handler(a.self, append([]byte(nil), payload...))
	}
	return nil
}

func (a *LoopAdapter) OnMessage(h MessageHandler) { a.mu.Lock(); a.onMsg = h; a.mu.Unlock() }
func (a *LoopAdapter) OnPeerFound(h PeerHandler)   { a.mu.Lock(); a.onFound = h; a.mu.Unlock() }
func (a *LoopAdapter) OnPeerLost(h PeerHandler)    { a.mu.Lock(); a.onLost = h; a.mu.Unlock() }

func (a *LoopAdapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Kind: types.TransportLocalNet, Running: a.running, PeersDiscovered: len(a.reg.adapters) - 1}
}

type errPeerUnknown types.PeerID

func (e errPeerUnknown) Error() string { return "transport: unknown peer " + string(e) }
