package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/types"
)

// DefaultBLEMTU is a conservative BLE 4.x GATT MTU after ATT overhead;
// real devices negotiate higher MTUs but adapters should work even
// against the lowest common denominator.
const DefaultBLEMTU = 20

// partialReassemblyTTL bounds how long a chunked message can sit
// incomplete before its chunks are dropped.
const partialReassemblyTTL = 30 * time.Second

// BLELink is the minimum surface a BLE GATT characteristic (or a
// stand-in for one in tests) must expose. No BLE stack ships in the
// examples this module was grounded on, so the adapter is written
// against this narrow interface rather than a concrete driver —
// production wiring plugs in whatever platform BLE library is
// available behind it.
type BLELink interface {
	WriteChunk(peer types.PeerID, frame []byte) error
	SetReceiveHandler(func(peer types.PeerID, frame []byte))
	SetPeerHandlers(found, lost func(types.PeerID))
	Open() error
	Close() error
}

// BLEAdapter implements Adapter over a chunked, MTU-limited link.
type BLEAdapter struct {
	link BLELink
	mtu  int

	mu      sync.Mutex
	running bool
	onMsg   MessageHandler
	onFound PeerHandler
	onLost  PeerHandler
	peers   map[types.PeerID]struct{}

	reasm *reassembler
}

// NewBLEAdapter wraps link, chunking outbound payloads to mtu bytes.
func NewBLEAdapter(link BLELink, mtu int) *BLEAdapter {
	if mtu <= 0 {
		mtu = DefaultBLEMTU
	}
	return &BLEAdapter{
		link:  link,
		mtu:   mtu,
		peers: make(map[types.PeerID]struct{}),
		reasm: newReassembler(partialReassemblyTTL),
	}
}

func (a *BLEAdapter) Kind() types.TransportKind { return types.TransportBLE }

func (a *BLEAdapter) Start(ctx context.Context) error {
	a.link.SetReceiveHandler(a.handleFrame)
	a.link.SetPeerHandlers(a.handlePeerFound, a.handlePeerLost)
	if err := a.link.Open(); err != nil {
		return meshcoreerr.New(meshcoreerr.KindTransient, "ble-open-failed", err)
	}
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	return nil
}

func (a *BLEAdapter) Stop() error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return a.link.Close()
}

// DiscoverPeers is a no-op trigger: BLE peripherals advertise
// continuously, so discovery is passive and driven by handlePeerFound.
func (a *BLEAdapter) DiscoverPeers(ctx context.Context) error { return nil }

func (a *BLEAdapter) Send(ctx context.Context, peer types.PeerID, payload []byte) error {
	msgID := rand.Uint32()
	frames, err := chunkPayload(msgID, payload, a.mtu)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := a.link.WriteChunk(peer, frame); err != nil {
			return meshcoreerr.New(meshcoreerr.KindTransient, "ble-write-failed", err)
		}
	}
	return nil
}

func (a *BLEAdapter) handleFrame(peer types.PeerID, frame []byte) {
	payload, complete, err := a.reasm.feed(frame)
	if err != nil || !complete {
		return
	}
	a.mu.Lock()
	handler := a.onMsg
	a.mu.Unlock()
	if handler != nil {
		handler(peer, payload)
	}
}

func (a *BLEAdapter) handlePeerFound(peer types.PeerID) {
	a.mu.Lock()
	a.peers[peer] = struct{}{}
	handler := a.onFound
	a.mu.Unlock()
	if handler != nil {
		handler(peer)
	}
}

func (a *BLEAdapter) handlePeerLost(peer types.PeerID) {
	a.mu.Lock()
	delete(a.peers, peer)
	handler := a.onLost
	a.mu.Unlock()
	if handler != nil {
		handler(peer)
	}
}

func (a *BLEAdapter) OnMessage(h MessageHandler) { a.mu.Lock(); a.onMsg = h; a.mu.Unlock() }
func (a *BLEAdapter) OnPeerFound(h PeerHandler)   { a.mu.Lock(); a.onFound = h; a.mu.Unlock() }
func (a *BLEAdapter) OnPeerLost(h PeerHandler)    { a.mu.Lock(); a.onLost = h; a.mu.Unlock() }

func (a *BLEAdapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Kind: types.TransportBLE, Running: a.running, PeersDiscovered: len(a.peers)}
}
