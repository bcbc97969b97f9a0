// Package transport implements C4: one adapter per physical medium,
// behind a common interface the mesh manager (C5) drives without
// caring which medium a peer is reachable over. Each concrete adapter
// models the bandwidth and addressing shape of its medium — BLE-class
// GATT writes (tens of bytes, chunked), a local-net ordered data
// channel (pion/webrtc, rendezvous via mDNS), and a LoRa-class radio
// link (tens of bytes per frame, short numeric node addressing) — plus
// an in-memory loop adapter used by tests and by C5's own test suite.
package transport

import (
	"context"

	"github.com/aidcollective/meshcore/pkg/types"
)

// MessageHandler receives a decoded mesh message's raw bytes from a peer.
type MessageHandler func(from types.PeerID, payload []byte)

// PeerHandler is invoked when an adapter discovers or loses a peer.
type PeerHandler func(peer types.PeerID)

// Status is a point-in-time snapshot of an adapter's health, surfaced
// through the bridge API and the metrics layer.
type Status struct {
	Kind            types.TransportKind
	Running         bool
	PeersDiscovered int
	LastError       string
}

// Adapter is the contract every transport medium implements. All
// methods except Send/Status must be safe to call before Start and
// after Stop (registering handlers is allowed at any time).
type Adapter interface {
	Kind() types.TransportKind

	// Start brings the adapter up: opens whatever link or listener the
	// medium needs. It returns once the adapter is ready to send and
	// receive, not once discovery has found anyone.
	Start(ctx context.Context) error
	Stop() error

	// DiscoverPeers actively probes for reachable peers; adapters that
	// discover passively (e.g. via periodic broadcast) may treat this
	// as a no-op trigger rather than a blocking scan.
	DiscoverPeers(ctx context.Context) error

	// Send delivers payload to peer. The caller (C5) is responsible for
	// retry/backoff and for falling back to the DTN layer (C6) on
	// failure; Send itself makes one attempt and respects ctx's deadline.
	Send(ctx context.Context, peer types.PeerID, payload []byte) error

	OnMessage(MessageHandler)
	OnPeerFound(PeerHandler)
	OnPeerLost(PeerHandler)

	Status() Status
}
