// Package bridge implements C9: the single stable surface domain
// modules and UIs are meant to address. It owns the concrete wiring
// between C3–C8 that those packages deliberately avoid doing
// themselves (the mesh manager's BundleSink/SyncDelegate callbacks,
// the bundle store's OnPeerContact hook, the sync scheduler's
// Requester) so no other package needs a compile-time dependency on
// its siblings.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aidcollective/meshcore/pkg/bundle"
	"github.com/aidcollective/meshcore/pkg/crypto"
	"github.com/aidcollective/meshcore/pkg/events"
	"github.com/aidcollective/meshcore/pkg/identity"
	"github.com/aidcollective/meshcore/pkg/mesh"
	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/session"
	"github.com/aidcollective/meshcore/pkg/store"
	"github.com/aidcollective/meshcore/pkg/syncer"
	"github.com/aidcollective/meshcore/pkg/transport"
	"github.com/aidcollective/meshcore/pkg/types"
)

// Validator checks a proposed set of field ops against a record's
// current fields before the bridge lets the commit through. Domain
// modules register one per record type; the core never interprets
// field semantics itself (spec.md §1).
type Validator func(current map[string]types.FieldValue, ops []store.FieldOp) error

// Config controls every subsystem the bridge wires together. Zero
// values are filled in from the component defaults.
type Config struct {
	DataDir   string
	TrustMode session.TrustMode
	Mesh      mesh.Config
	Bundle    bundle.Config
	Sync      syncer.Config
	MaxSkew   time.Duration
	Logger    zerolog.Logger
}

// Bridge is C9.
type Bridge struct {
	cfg    Config
	id     *identity.Identity
	logger zerolog.Logger

	broker  *events.Broker
	doc     *store.Store
	bundles *bundle.Store
	trust   *session.TrustTable
	sess    *session.Session
	mesh    *mesh.Manager
	sync    *syncer.Scheduler

	mu         sync.RWMutex
	invariants map[types.RecordType]Validator
	adapters   map[types.TransportKind]transport.Adapter

	started bool
}

// CreateIdentity generates a fresh node identity. Thin wrapper kept
// here so callers only ever import pkg/bridge for node setup.
func CreateIdentity(profile identity.Profile) (*identity.Identity, error) {
	return identity.New(profile)
}

// LoadIdentity opens a previously-exported, passphrase-sealed identity.
func LoadIdentity(sealed, passphrase []byte) (*identity.Identity, error) {
	return identity.Open(sealed, passphrase)
}

// Open brings up every core component for id and wires them together.
// Call Start to begin mesh participation.
func Open(id *identity.Identity, cfg Config) (*Bridge, error) {
	if cfg.DataDir == "" {
		return nil, meshcoreerr.New(meshcoreerr.KindValidation, "missing-data-dir", fmt.Errorf("bridge: DataDir is required"))
	}
	if cfg.TrustMode == "" {
		cfg.TrustMode = session.TrustTOFU
	}
	if cfg.Mesh == (mesh.Config{}) {
		cfg.Mesh = mesh.DefaultConfig
	}
	cfg.Mesh.Self = id.ID()
	if cfg.Bundle == (bundle.Config{}) {
		cfg.Bundle = bundle.DefaultConfig
	}
	if cfg.Sync == (syncer.Config{}) {
		cfg.Sync = syncer.DefaultConfig
	}

	broker := events.NewBroker()
	broker.Start()

	doc, err := store.Open(cfg.DataDir, id.ID(), broker)
	if err != nil {
		broker.Stop()
		return nil, err
	}

	bundles, err := bundle.Open(cfg.DataDir, cfg.Bundle)
	if err != nil {
		doc.Close()
		broker.Stop()
		return nil, err
	}

	trust, err := session.OpenTrustTable(cfg.DataDir, cfg.TrustMode)
	if err != nil {
		bundles.Close()
		doc.Close()
		broker.Stop()
		return nil, err
	}

	sess := session.New(id, trust, cfg.MaxSkew)
	sync := syncer.New(doc, cfg.Sync)

	b := &Bridge{
		cfg:        cfg,
		id:         id,
		logger:     cfg.Logger,
		broker:     broker,
		doc:        doc,
		bundles:    bundles,
		trust:      trust,
		sess:       sess,
		sync:       sync,
		invariants: make(map[types.RecordType]Validator),
		adapters:   make(map[types.TransportKind]transport.Adapter),
	}

	m, err := mesh.NewManager(cfg.Mesh, bundleSink{bundles}, sync, cfg.Logger)
	if err != nil {
		trust.Close()
		bundles.Close()
		doc.Close()
		broker.Stop()
		return nil, err
	}
	b.mesh = m

	sync.SetRequester(m)
	m.OnPeerContact(func(peer types.PeerID) {
		sync.NotePeer(peer)
		bundles.OnPeerContact(peer, m)
	})

	return b, nil
}

// bundleSink adapts *bundle.Store to mesh.BundleSink without the mesh
// package importing pkg/bundle.
type bundleSink struct{ s *bundle.Store }

func (b bundleSink) Submit(bdl *types.Bundle) error { return b.s.Submit(bdl) }

// Close shuts down every component in reverse dependency order.
func (b *Bridge) Close() error {
	if b.started {
		b.mesh.Stop()
		b.sync.Stop()
	}
	b.trust.Close()
	b.bundles.Close()
	err := b.doc.Close()
	b.broker.Stop()
	return err
}

// Start brings up the mesh manager, the sync scheduler, and every
// transport adapter registered via EnableTransport so far.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	b.sync.Start(b.broker)
	return b.mesh.Start(ctx)
}

// Identity returns the node's own identity.
func (b *Bridge) Identity() *identity.Identity { return b.id }

// ExportIdentity seals the node identity under passphrase; there is no
// plaintext export path.
func (b *Bridge) ExportIdentity(passphrase []byte, params crypto.KDFParams) ([]byte, error) {
	return b.id.Seal(passphrase, params)
}

// RegisterInvariant installs a domain-declared validator consulted by
// UpdateRecord before a commit for recordType is accepted.
func (b *Bridge) RegisterInvariant(recordType types.RecordType, v Validator) {
	b.mu.Lock()
	b.invariants[recordType] = v
	b.mu.Unlock()
}

// UpdateRecord validates ops against any registered invariant for the
// record's type, then commits them to the document store.
func (b *Bridge) UpdateRecord(key types.RecordKey, ops []store.FieldOp) (store.ChangeID, error) {
	b.mu.RLock()
	v, have := b.invariants[key.Type]
	b.mu.RUnlock()

	if have {
		_, current, _ := b.doc.Doc().Get(key)
		if err := v(current, ops); err != nil {
			return store.ChangeID{}, meshcoreerr.New(meshcoreerr.KindValidation, meshcoreerr.CodeConflictInvariant, err)
		}
	}
	return b.doc.Commit(ops)
}

// GetRecord returns a record's current materialized fields.
func (b *Bridge) GetRecord(key types.RecordKey) (types.RecordMeta, map[string]types.FieldValue, bool) {
	return b.doc.Doc().Get(key)
}

// ListRecords lists every known record id of the given type. Pass ""
// to list every type (spec.md §4.9's "list records with filters").
func (b *Bridge) ListRecords(recordType types.RecordType) []types.RecordKey {
	return b.doc.Doc().List(recordType)
}

// Subscribe returns a channel of change events for record updates.
func (b *Bridge) Subscribe() events.Subscriber { return b.broker.Subscribe() }

// Unsubscribe releases a subscription returned by Subscribe.
func (b *Bridge) Unsubscribe(sub events.Subscriber) { b.broker.Unsubscribe(sub) }

// Export snapshots the full change log for out-of-band transfer.
func (b *Bridge) Export() ([]byte, error) { return b.doc.Export() }

// Import merges a snapshot produced by Export.
func (b *Bridge) Import(data []byte) (int, error) { return b.doc.Import(data) }

// EnableTransport registers and, if the bridge is already running,
// starts a transport adapter.
func (b *Bridge) EnableTransport(ctx context.Context, a transport.Adapter) error {
	b.mu.Lock()
	b.adapters[a.Kind()] = a
	started := b.started
	b.mu.Unlock()

	b.mesh.AddAdapter(a)
	if started {
		return a.Start(ctx)
	}
	return nil
}

// DisableTransport stops a previously-enabled adapter. The mesh
// manager keeps its reference (it has no concept of adapter removal,
// only start/stop) but a stopped adapter reports no peers and refuses
// sends, which is all "disable" needs to mean operationally.
func (b *Bridge) DisableTransport(kind types.TransportKind) error {
	b.mu.RLock()
	a, ok := b.adapters[kind]
	b.mu.RUnlock()
	if !ok {
		return meshcoreerr.New(meshcoreerr.KindValidation, meshcoreerr.CodeNotFound, fmt.Errorf("bridge: transport %q not enabled", kind))
	}
	return a.Stop()
}

// TriggerDiscovery asks a transport to actively probe for peers.
func (b *Bridge) TriggerDiscovery(ctx context.Context, kind types.TransportKind) error {
	b.mu.RLock()
	a, ok := b.adapters[kind]
	b.mu.RUnlock()
	if !ok {
		return meshcoreerr.New(meshcoreerr.KindValidation, meshcoreerr.CodeNotFound, fmt.Errorf("bridge: transport %q not enabled", kind))
	}
	return a.DiscoverPeers(ctx)
}

// TransportStatus reports the health of every enabled transport.
func (b *Bridge) TransportStatus() []transport.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]transport.Status, 0, len(b.adapters))
	for _, a := range b.adapters {
		out = append(out, a.Status())
	}
	return out
}

// Peers lists every peer currently known to the mesh manager.
func (b *Bridge) Peers() []types.Peer { return b.mesh.Table().List() }

// BundleStats reports the DTN bundle store's current queue depth by
// priority and total bytes used against its budget, for the metrics
// collector's gauges.
func (b *Bridge) BundleStats() (byPriority map[types.Priority]int, usedBytes int) {
	return b.bundles.CountByPriority(), b.bundles.UsedBytes()
}

// SubmitBundle queues an arbitrary payload for store-carry-forward
// delivery. destination == "" submits an epidemic bundle.
func (b *Bridge) SubmitBundle(destination types.PeerID, payload []byte, priority types.Priority, ttl time.Duration) (types.BundleID, error) {
	if ttl <= 0 {
		ttl = b.cfg.Bundle.DefaultTTL
	}
	bdl := &types.Bundle{
		Source:      b.id.ID(),
		Destination: destination,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(ttl),
		Priority:    priority,
		HopSet:      map[types.PeerID]struct{}{b.id.ID(): {}},
		Payload:     payload,
	}
	if err := b.bundles.Submit(bdl); err != nil {
		return "", err
	}
	return bdl.ID, nil
}

// Session exposes the secure session layer for domain modules that
// need to wrap/unwrap payloads before calling SubmitBundle or before
// handling OnData directly (an escape hatch beyond spec.md §4.9's
// enumerated surface, grounded in the same "small, stable surface"
// requirement — domain code needs some way to actually secure the
// bytes it hands to the bundle layer).
func (b *Bridge) Session() *session.Session { return b.sess }

// Trust exposes the trust table for operator approval flows in strict mode.
func (b *Bridge) Trust() *session.TrustTable { return b.trust }
