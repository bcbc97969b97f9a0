package session

import (
	"crypto/ed25519"
	"encoding/json"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/metrics"
	"github.com/aidcollective/meshcore/pkg/types"
)

var bucketTrust = []byte("trust")

// TrustMode selects how an unknown peer's public key is handled the
// first time it's observed (spec.md §4.3 Open Question, resolved per
// SPEC_FULL.md §12: TOFU is the default, strict requires an operator
// to approve new keys out of band).
type TrustMode string

const (
	TrustTOFU   TrustMode = "tofu"
	TrustStrict TrustMode = "strict"
)

type trustRecord struct {
	PublicKey   []byte `json:"public_key"`
	Quarantined bool   `json:"quarantined"`
}

// TrustTable is the durable peer-id → signing-public-key map the
// secure session layer checks every signature against.
type TrustTable struct {
	mode TrustMode
	db   *bolt.DB

	mu      sync.Mutex
	records map[types.PeerID]*trustRecord
}

// OpenTrustTable opens (creating if absent) trust.db under dataDir.
func OpenTrustTable(dataDir string, mode TrustMode) (*TrustTable, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "trust.db"), 0600, nil)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "open-failed", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTrust)
		return err
	}); err != nil {
		db.Close()
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "init-failed", err)
	}

	t := &TrustTable{mode: mode, db: db, records: make(map[types.PeerID]*trustRecord)}
	if err := t.load(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *TrustTable) load() error {
	return t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrust)
		return b.ForEach(func(k, v []byte) error {
			var rec trustRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			t.records[types.PeerID(k)] = &rec
			return nil
		})
	})
}

// Close closes the underlying database.
func (t *TrustTable) Close() error { return t.db.Close() }

// Verify checks candidate against whatever key is on file for peer,
// applying the table's trust mode on first sight. A key-conflict
// quarantines the peer rather than silently accepting the new key —
// every subsequent Verify for that peer fails until an operator clears
// the quarantine (ClearQuarantine).
func (t *TrustTable) Verify(peer types.PeerID, candidate ed25519.PublicKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, known := t.records[peer]
	if !known {
		if t.mode == TrustStrict {
			return meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeUnknownPeerKey, errUnknownPeer(peer))
		}
		rec = &trustRecord{PublicKey: append([]byte(nil), candidate...)}
		t.records[peer] = rec
		if err := t.persistLocked(peer, rec); err != nil {
			return err
		}
		return nil
	}

	if rec.Quarantined {
		return meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeKeyConflict, errQuarantined(peer))
	}
	if !ed25519.PublicKey(rec.PublicKey).Equal(candidate) {
		rec.Quarantined = true
		_ = t.persistLocked(peer, rec)
		metrics.QuarantineEventsTotal.WithLabelValues(string(t.mode)).Inc()
		return meshcoreerr.New(meshcoreerr.KindCrypto, meshcoreerr.CodeKeyConflict, errKeyConflict(peer))
	}
	return nil
}

// Trust records a peer's key without requiring it to appear in a
// signed message first — how an operator approves a peer in strict
// mode, or how the identity layer seeds a key learned out of band.
func (t *TrustTable) Trust(peer types.PeerID, key ed25519.PublicKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := &trustRecord{PublicKey: append([]byte(nil), key...)}
	t.records[peer] = rec
	return t.persistLocked(peer, rec)
}

// ClearQuarantine lifts a quarantine after an operator has manually
// confirmed which key is authentic.
func (t *TrustTable) ClearQuarantine(peer types.PeerID, key ed25519.PublicKey) error {
	return t.Trust(peer, key)
}

// Quarantined reports whether peer is currently quarantined.
func (t *TrustTable) Quarantined(peer types.PeerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[peer]
	return ok && rec.Quarantined
}

func (t *TrustTable) persistLocked(peer types.PeerID, rec *trustRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return meshcoreerr.New(meshcoreerr.KindStorage, "marshal-failed", err)
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrust).Put([]byte(peer), data)
	})
}

type errUnknownPeer types.PeerID

func (e errUnknownPeer) Error() string {
	return "session: peer key not yet approved by operator (strict trust mode): " + string(e)
}

type errQuarantined types.PeerID

func (e errQuarantined) Error() string { return "session: peer is quarantined after a prior key conflict: " + string(e) }

type errKeyConflict types.PeerID

func (e errKeyConflict) Error() string {
	return "session: signing key does not match the one on file, quarantining peer: " + string(e)
}
