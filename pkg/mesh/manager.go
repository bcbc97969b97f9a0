// Package mesh implements C5, the mesh manager: it owns every
// transport adapter, keeps the peer table current, and carries out
// the announce / sync-request / sync-response protocol sequence
// (spec.md §4.5). Messages with no single destination are relayed
// with TTL decrement and loop-freedom backed by a bounded seen-id
// cache; directed messages that can't be delivered now are handed to
// the DTN bundle layer (C6) through the narrow BundleSink interface so
// this package never has to import it back.
package mesh

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/metrics"
	"github.com/aidcollective/meshcore/pkg/transport"
	"github.com/aidcollective/meshcore/pkg/types"
)

// adapterPriority is the tie-break order spec.md §4.5 fixes for peers
// reachable over more than one medium at once: prefer the
// highest-bandwidth link available.
var adapterPriority = []types.TransportKind{
	types.TransportLocalNet,
	types.TransportBLE,
	types.TransportLoRa,
}

// BundleSink accepts a message the manager could not deliver directly,
// handing it to the DTN store-carry-forward layer (C6). Declared here
// rather than imported from pkg/bundle so this package has no
// compile-time dependency on that one.
type BundleSink interface {
	Submit(bundle *types.Bundle) error
}

// SyncDelegate lets the sync scheduler (C8) answer sync-request
// messages and consume sync-response messages without this package
// depending on pkg/syncer.
type SyncDelegate interface {
	BuildSyncRequest(peer types.PeerID) []byte
	BuildSyncResponse(peer types.PeerID, request []byte) []byte
	HandleSyncResponse(peer types.PeerID, payload []byte)
}

// Config controls a Manager's protocol timing.
type Config struct {
	Self             types.PeerID
	MessageTTL       uint8
	PeerIdleEviction time.Duration
	SeenCacheSize    int
	AnnounceInterval time.Duration
}

// DefaultConfig matches spec.md §6's documented defaults.
var DefaultConfig = Config{
	MessageTTL:       8,
	PeerIdleEviction: 10 * time.Minute,
	SeenCacheSize:    4096,
	AnnounceInterval: 30 * time.Second,
}

// Manager is C5: the coordination point between every transport
// adapter and the rest of the node.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	adapters map[types.TransportKind]transport.Adapter
	table    *PeerTable
	seen     *seenCache

	sink    BundleSink
	syncd   SyncDelegate
	onData  func(from types.PeerID, payload []byte)
	onContact func(peer types.PeerID)

	backoffs map[types.TransportKind]*backoff.Backoff

	stop chan struct{}
}

// NewManager creates a manager for the given identity with no
// adapters attached yet; call AddAdapter for each medium.
func NewManager(cfg Config, sink BundleSink, syncd SyncDelegate, logger zerolog.Logger) (*Manager, error) {
	seen, err := newSeenCache(cfg.SeenCacheSize)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindFatal, "seen-cache-failed", err)
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		adapters: make(map[types.TransportKind]transport.Adapter),
		table:    NewPeerTable(),
		seen:     seen,
		sink:     sink,
		syncd:    syncd,
		backoffs: make(map[types.TransportKind]*backoff.Backoff),
		stop:     make(chan struct{}),
	}, nil
}

// AddAdapter registers a transport adapter and wires its handlers.
// Call before Start.
func (m *Manager) AddAdapter(a transport.Adapter) {
	kind := a.Kind()
	m.mu.Lock()
	m.adapters[kind] = a
	m.backoffs[kind] = &backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2}
	m.mu.Unlock()

	a.OnMessage(func(from types.PeerID, payload []byte) { m.handleIncoming(kind, from, payload) })
	a.OnPeerFound(func(peer types.PeerID) { m.handlePeerFound(kind, peer) })
	a.OnPeerLost(func(peer types.PeerID) { m.table.Remove(peer) })
}

// OnData registers the handler invoked for application-directed data
// messages (the secure session layer, C7, unwraps these).
func (m *Manager) OnData(h func(from types.PeerID, payload []byte)) {
	m.mu.Lock()
	m.onData = h
	m.mu.Unlock()
}

// OnPeerContact registers the handler invoked whenever a peer is newly
// discovered over any adapter, letting the DTN bundle layer (C6) flush
// any queued bundles addressed to (or epidemically eligible for) that
// peer. Kept as a callback rather than a typed dependency so this
// package never imports pkg/bundle.
func (m *Manager) OnPeerContact(h func(peer types.PeerID)) {
	m.mu.Lock()
	m.onContact = h
	m.mu.Unlock()
}

// SendRaw sends already-encoded bytes directly to peer over the best
// reachable adapter, without DTN fallback — this is the method the
// bundle layer calls once OnPeerContact tells it delivery is possible.
func (m *Manager) SendRaw(peer types.PeerID, payload []byte) error {
	rec, ok := m.table.Get(peer)
	if !ok {
		return meshcoreerr.New(meshcoreerr.KindTransient, "peer-unreachable", errUnreachable(peer))
	}
	for _, kind := range adapterPriority {
		if !hasTransport(rec.Transports, kind) {
			continue
		}
		m.mu.RLock()
		adapter, have := m.adapters[kind]
		m.mu.RUnlock()
		if !have {
			continue
		}
		if err := adapter.Send(context.Background(), peer, payload); err == nil {
			return nil
		}
	}
	return meshcoreerr.New(meshcoreerr.KindTransient, "peer-unreachable", errUnreachable(peer))
}

// Table exposes the peer table for read access (bridge API, metrics).
func (m *Manager) Table() *PeerTable { return m.table }

// Start brings up every registered adapter and begins the periodic
// announce and idle-eviction loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	adapters := make([]transport.Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.RUnlock()

	// Each adapter's Start can block on its own hardware or socket
	// setup (BLE scan init, LoRa serial handshake, mDNS registration);
	// starting them concurrently keeps a slow radio from delaying the
	// others.
	var g errgroup.Group
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			if err := a.Start(ctx); err != nil {
				m.logger.Warn().Err(err).Str("transport", string(a.Kind())).Msg("adapter failed to start, retrying with backoff")
				go m.retryStart(ctx, a)
				return nil
			}
			_ = a.DiscoverPeers(ctx)
			return nil
		})
	}
	_ = g.Wait()

	go m.loop(ctx)
	return nil
}

// Stop halts every adapter and the background loops.
func (m *Manager) Stop() error {
	close(m.stop)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.adapters {
		_ = a.Stop()
	}
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	announce := time.NewTicker(m.cfg.AnnounceInterval)
	evict := time.NewTicker(m.cfg.PeerIdleEviction / 2)
	defer announce.Stop()
	defer evict.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-announce.C:
			m.broadcastAnnounce(ctx)
		case <-evict.C:
			for _, id := range m.table.EvictIdle(time.Now(), m.cfg.PeerIdleEviction) {
				m.logger.Debug().Str("peer", string(id)).Msg("evicted idle peer")
			}
		}
	}
}

// retryStart retries a failed adapter start with exponential backoff
// until it succeeds or the manager stops.
func (m *Manager) retryStart(ctx context.Context, a transport.Adapter) {
	m.mu.RLock()
	b := m.backoffs[a.Kind()]
	m.mu.RUnlock()
	if b == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-time.After(b.Duration()):
		}
		if err := a.Start(ctx); err != nil {
			m.logger.Debug().Err(err).Str("transport", string(a.Kind())).Msg("adapter retry failed")
			continue
		}
		b.Reset()
		_ = a.DiscoverPeers(ctx)
		return
	}
}

func (m *Manager) handlePeerFound(kind types.TransportKind, peer types.PeerID) {
	m.table.Upsert(peer, kind, time.Now())
	m.logger.Debug().Str("peer", string(peer)).Str("transport", string(kind)).Msg("peer discovered")
	go m.sendSyncRequest(context.Background(), peer)

	m.mu.RLock()
	onContact := m.onContact
	m.mu.RUnlock()
	if onContact != nil {
		onContact(peer)
	}
}

// handleIncoming is the single dispatch point for every decoded mesh
// message, regardless of which adapter delivered it.
func (m *Manager) handleIncoming(kind types.TransportKind, from types.PeerID, raw []byte) {
	msg, err := decodeIncoming(raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("dropping malformed mesh message")
		return
	}

	m.table.Upsert(from, kind, time.Now())

	if m.seen.markSeen(msg.ID) {
		return // already processed; loop freedom
	}

	// A directed message addressed to some other peer is only ever
	// relayed on, never handed to the local handlers below — otherwise
	// an intermediate node would treat traffic passing through it as
	// if it were the addressee.
	broadcast := msg.Destination == ""
	forMe := msg.Destination == m.cfg.Self

	if broadcast || forMe {
		switch msg.Type {
		case types.MessageAnnounce:
			// presence already recorded by the Upsert above
		case types.MessageSyncRequest:
			if m.syncd != nil {
				resp := m.syncd.BuildSyncResponse(from, msg.Payload)
				_ = m.sendTo(context.Background(), from, types.MessageSyncResponse, resp)
			}
		case types.MessageSyncResponse:
			if m.syncd != nil {
				m.syncd.HandleSyncResponse(from, msg.Payload)
			}
		case types.MessageData:
			m.mu.RLock()
			handler := m.onData
			m.mu.RUnlock()
			if handler != nil {
				handler(from, msg.Payload)
			}
		case types.MessagePing:
			_ = m.sendTo(context.Background(), from, types.MessagePong, nil)
		case types.MessagePong:
			// liveness only; peer table already refreshed above
		}
	}

	if msg.TTL > 0 && (broadcast || !forMe) {
		m.relay(msg, from)
	}
}

// relay forwards a broadcast message, or a directed message addressed
// to another peer, to every other known peer with its TTL decremented,
// skipping the peer it arrived from.
func (m *Manager) relay(msg *types.Message, arrivedFrom types.PeerID) {
	msg.TTL--
	encoded, err := encodeOutgoing(msg)
	if err != nil {
		return
	}
	for _, peer := range m.table.List() {
		if peer.ID == arrivedFrom {
			continue
		}
		if err := m.sendRaw(context.Background(), peer.ID, encoded); err == nil {
			metrics.MessagesRelayedTotal.WithLabelValues(relayTransportLabel(peer)).Inc()
		}
	}
}

// relayTransportLabel picks one transport label to attribute a relay
// to when a peer is reachable over more than one.
func relayTransportLabel(peer types.Peer) string {
	for _, kind := range adapterPriority {
		if hasTransport(peer.Transports, kind) {
			return string(kind)
		}
	}
	return "unknown"
}

// sendTo builds and sends a mesh message of the given type to peer.
func (m *Manager) sendTo(ctx context.Context, peer types.PeerID, msgType types.MessageType, payload []byte) error {
	id, err := newMessageID()
	if err != nil {
		return meshcoreerr.New(meshcoreerr.KindCrypto, "id-gen-failed", err)
	}
	msg := &types.Message{
		ID:          id,
		Type:        msgType,
		Source:      m.cfg.Self,
		Destination: peer,
		CreatedAt:   time.Now(),
		TTL:         m.cfg.MessageTTL,
		Payload:     payload,
	}
	encoded, err := encodeOutgoing(msg)
	if err != nil {
		return err
	}
	return m.sendRaw(ctx, peer, encoded)
}

// sendRaw sends pre-encoded bytes to peer over the best adapter
// currently reachable, falling back to the DTN bundle layer if every
// attempt fails.
func (m *Manager) sendRaw(ctx context.Context, peer types.PeerID, encoded []byte) error {
	rec, ok := m.table.Get(peer)
	if !ok {
		return m.toBundle(peer, encoded)
	}

	for _, kind := range adapterPriority {
		if !hasTransport(rec.Transports, kind) {
			continue
		}
		m.mu.RLock()
		adapter, have := m.adapters[kind]
		m.mu.RUnlock()
		if !have {
			continue
		}
		if err := adapter.Send(ctx, peer, encoded); err == nil {
			return nil
		}
		metrics.AdapterSendErrorsTotal.WithLabelValues(string(kind)).Inc()
	}
	return m.toBundle(peer, encoded)
}

func (m *Manager) toBundle(peer types.PeerID, encoded []byte) error {
	if m.sink == nil {
		return meshcoreerr.New(meshcoreerr.KindTransient, "peer-unreachable", errUnreachable(peer))
	}
	bundle := &types.Bundle{
		Source:      m.cfg.Self,
		Destination: peer,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
		Priority:    types.PriorityNormal,
		HopSet:      map[types.PeerID]struct{}{m.cfg.Self: {}},
		Payload:     encoded,
	}
	return m.sink.Submit(bundle)
}

func (m *Manager) broadcastAnnounce(ctx context.Context) {
	id, err := newMessageID()
	if err != nil {
		return
	}
	msg := &types.Message{
		ID:        id,
		Type:      types.MessageAnnounce,
		Source:    m.cfg.Self,
		CreatedAt: time.Now(),
		TTL:       m.cfg.MessageTTL,
	}
	encoded, err := encodeOutgoing(msg)
	if err != nil {
		return
	}
	for _, peer := range m.table.List() {
		_ = m.sendRaw(ctx, peer.ID, encoded)
	}
}

func (m *Manager) sendSyncRequest(ctx context.Context, peer types.PeerID) {
	var payload []byte
	if m.syncd != nil {
		payload = m.syncd.BuildSyncRequest(peer)
	}
	_ = m.sendTo(ctx, peer, types.MessageSyncRequest, payload)
}

// TriggerSync proactively starts a sync round with peer — called by
// the sync scheduler (C8) after a debounced local commit, so peers
// already in contact catch up without waiting for the next periodic
// announce.
func (m *Manager) TriggerSync(peer types.PeerID) error {
	return m.sendTo(context.Background(), peer, types.MessageSyncRequest, m.buildSyncRequestPayload(peer))
}

func (m *Manager) buildSyncRequestPayload(peer types.PeerID) []byte {
	if m.syncd == nil {
		return nil
	}
	return m.syncd.BuildSyncRequest(peer)
}

func newMessageID() (types.MessageID, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	h := hex.EncodeToString(buf)
	return types.MessageID(h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]), nil
}

type errUnreachable types.PeerID

func (e errUnreachable) Error() string { return "mesh: peer unreachable and no bundle sink configured: " + string(e) }
