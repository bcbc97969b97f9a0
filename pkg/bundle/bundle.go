// Package bundle implements C6, the delay-tolerant store-carry-forward
// layer: messages the mesh manager (C5) can't deliver right now are
// queued here, scheduled by priority and expiry, evicted under a byte
// budget, and handed back out the moment a relevant peer comes into
// contact (spec.md §4.6).
package bundle

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/metrics"
	"github.com/aidcollective/meshcore/pkg/types"
	"github.com/aidcollective/meshcore/pkg/wire"
)

var bucketBundles = []byte("bundles")

// Sender delivers a bundle's payload to a peer directly; the Store
// calls it when a peer contact makes delivery possible. Declared here
// rather than importing pkg/mesh, so neither package imports the other
// (mesh declares its own BundleSink interface for the other direction).
type Sender interface {
	SendRaw(peer types.PeerID, payload []byte) error
}

// Config controls scheduling and eviction.
type Config struct {
	BudgetBytes int
	DefaultTTL  time.Duration
}

// DefaultConfig matches spec.md §6's documented defaults.
var DefaultConfig = Config{BudgetBytes: 8 << 20, DefaultTTL: 72 * time.Hour}

// Store is C6: a priority-and-expiry-scheduled, byte-budgeted,
// bbolt-backed bundle queue.
type Store struct {
	cfg Config
	db  *bolt.DB

	mu      sync.Mutex
	bundles map[types.BundleID]*types.Bundle
	usedBytes int
}

// Open opens (creating if absent) the bundle database at
// dataDir/bundles.db and loads any unexpired bundles into memory.
func Open(dataDir string, cfg Config) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "bundles.db"), 0600, nil)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "open-failed", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBundles)
		return err
	}); err != nil {
		db.Close()
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "init-failed", err)
	}

	s := &Store{cfg: cfg, db: db, bundles: make(map[types.BundleID]*types.Bundle)}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	now := time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBundles)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			bundle, err := wire.DecodeBundle(v)
			if err != nil {
				return meshcoreerr.New(meshcoreerr.KindStorage, meshcoreerr.CodeCorruptSnapshot, err)
			}
			if bundle.Expired(now) {
				if err := b.Delete(k); err != nil {
					return err
				}
				continue
			}
			s.bundles[bundle.ID] = bundle
			s.usedBytes += len(bundle.Payload)
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Submit queues a bundle for later delivery. If the byte budget would
// be exceeded it evicts bundles of strictly lower priority than b,
// lowest priority first and then greatest remaining TTL first (spec.md
// §4.6); if evicting all of those would still not make room, b is
// rejected and nothing is evicted.
func (s *Store) Submit(b *types.Bundle) error {
	if b.ID == "" {
		b.ID = types.BundleID(newBundleID())
	}
	if b.ExpiresAt.IsZero() {
		b.ExpiresAt = time.Now().Add(s.cfg.DefaultTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	needed := len(b.Payload)
	freeable := 0
	for _, q := range s.bundles {
		if q.Priority < b.Priority {
			freeable += len(q.Payload)
		}
	}
	if s.usedBytes-freeable+needed > s.cfg.BudgetBytes {
		return meshcoreerr.New(meshcoreerr.KindExhaustion, meshcoreerr.CodeStorageExhausted, errBudgetExceeded)
	}
	for s.usedBytes+needed > s.cfg.BudgetBytes && len(s.bundles) > 0 {
		victim := s.pickEvictionVictimLocked()
		if victim == "" {
			break
		}
		metrics.BundlesEvictedTotal.WithLabelValues(s.bundles[victim].Priority.String()).Inc()
		s.deleteLocked(victim)
	}
	if s.usedBytes+needed > s.cfg.BudgetBytes {
		return meshcoreerr.New(meshcoreerr.KindExhaustion, meshcoreerr.CodeStorageExhausted, errBudgetExceeded)
	}

	s.bundles[b.ID] = b
	s.usedBytes += needed
	return s.persistLocked(b)
}

// pickEvictionVictimLocked returns the bundle id to evict: lowest
// priority first, then the bundle with the greatest remaining TTL
// (evicting it loses the least urgency relative to bundles closer to
// expiring anyway).
func (s *Store) pickEvictionVictimLocked() types.BundleID {
	var victim *types.Bundle
	for _, b := range s.bundles {
		if victim == nil {
			victim = b
			continue
		}
		if b.Priority < victim.Priority {
			victim = b
			continue
		}
		if b.Priority == victim.Priority && b.ExpiresAt.After(victim.ExpiresAt) {
			victim = b
		}
	}
	if victim == nil {
		return ""
	}
	return victim.ID
}

func (s *Store) deleteLocked(id types.BundleID) {
	b, ok := s.bundles[id]
	if !ok {
		return
	}
	s.usedBytes -= len(b.Payload)
	delete(s.bundles, id)
	_ = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBundles).Delete([]byte(id))
	})
}

func (s *Store) persistLocked(b *types.Bundle) error {
	data, err := wire.EncodeBundle(b)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBundles).Put([]byte(b.ID), data)
	})
}

// OnPeerContact is called by the mesh manager whenever a peer becomes
// reachable. Every bundle addressed to that peer (directed), or not
// yet marked seen by it (epidemic), is handed to sender; delivered
// directed bundles are removed, epidemic bundles are marked seen and
// kept until they expire naturally (other peers may still want them).
func (s *Store) OnPeerContact(peer types.PeerID, sender Sender) {
	s.mu.Lock()
	candidates := s.scheduledLocked()
	s.mu.Unlock()

	now := time.Now()
	for _, b := range candidates {
		if b.Expired(now) {
			continue
		}
		if !b.Epidemic() && b.Destination != peer {
			continue
		}
		if b.Epidemic() && b.Seen(peer) {
			continue
		}
		if err := sender.SendRaw(peer, b.Payload); err != nil {
			continue
		}

		s.mu.Lock()
		if b.Epidemic() {
			if b.HopSet == nil {
				b.HopSet = make(map[types.PeerID]struct{})
			}
			b.HopSet[peer] = struct{}{}
			_ = s.persistLocked(b)
			metrics.BundlesDeliveredTotal.WithLabelValues("epidemic").Inc()
		} else {
			s.deleteLocked(b.ID)
			metrics.BundlesDeliveredTotal.WithLabelValues("directed").Inc()
		}
		s.mu.Unlock()
	}
}

// scheduledLocked returns bundles in delivery priority order: critical
// before high before normal before low, then earliest expiry first,
// then bundle id order for a stable tie-break. Bundle ids are random
// UUIDs, so bundles with equal priority and expiry come out in an
// arbitrary order, not in submission order.
func (s *Store) scheduledLocked() []*types.Bundle {
	out := make([]*types.Bundle, 0, len(s.bundles))
	for _, b := range s.bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SweepExpired drops every bundle past its expiry, returning how many
// were removed. The bridge/cmd layer calls this on a timer.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, b := range s.bundles {
		if b.Expired(now) {
			s.deleteLocked(id)
			removed++
		}
	}
	return removed
}

// Len reports how many bundles are currently queued.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bundles)
}

// UsedBytes reports the current total payload bytes under management.
func (s *Store) UsedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedBytes
}

// CountByPriority reports how many bundles are currently queued at
// each priority level, for the metrics gauge.
func (s *Store) CountByPriority() map[types.Priority]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[types.Priority]int, 4)
	for _, b := range s.bundles {
		counts[b.Priority]++
	}
	return counts
}

// newBundleID mints a fresh bundle identifier. It must round-trip
// through uuid.Parse (pkg/wire's EncodeBundle calls it), so a random
// UUID rather than a raw byte string.
func newBundleID() string {
	return uuid.New().String()
}

type bundleErr string

func (e bundleErr) Error() string { return string(e) }

const errBudgetExceeded = bundleErr("bundle: payload exceeds remaining budget even if every lower-priority bundle were evicted")
