package store

import (
	"encoding/binary"
	"encoding/json"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"

	"github.com/aidcollective/meshcore/pkg/events"
	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/metrics"
	"github.com/aidcollective/meshcore/pkg/types"
)

var (
	bucketChanges = []byte("changes")
	bucketMeta    = []byte("meta")
)

var keyCommitSeq = []byte("commit_seq")

// Store is the durable, bbolt-backed home for a Document: every
// committed Change is appended to a bucket keyed by its id, so restart
// replays the full change log and rebuilds identical materialized
// state (the replay itself leans on the same commutative/idempotent
// property that makes peer-to-peer merge order-independent).
type Store struct {
	db  *bolt.DB
	doc *Document
}

// Open opens (creating if absent) the document database at
// dataDir/document.db and replays its change log into memory.
func Open(dataDir string, actor types.PeerID, broker *events.Broker) (*Store, error) {
	dbPath := filepath.Join(dataDir, "document.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "open-failed", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketChanges, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "init-failed", err)
	}

	doc := NewDocument(actor, broker)
	s := &Store{db: db, doc: doc}
	if err := s.replay(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) replay() error {
	var changes []*Change
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChanges)
		return b.ForEach(func(_, v []byte) error {
			var c Change
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			changes = append(changes, &c)
			return nil
		})
	})
	if err != nil {
		return meshcoreerr.New(meshcoreerr.KindStorage, meshcoreerr.CodeCorruptSnapshot, err)
	}
	if _, err := s.doc.ApplyChanges(changes); err != nil {
		return meshcoreerr.New(meshcoreerr.KindStorage, meshcoreerr.CodeCorruptSnapshot, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Doc returns the in-memory materialized document for reads, change-feed
// subscription, causal summaries, and delta computation.
func (s *Store) Doc() *Document { return s.doc }

// Commit applies ops and durably appends the resulting Change before
// returning, so a crash after Commit returns never loses the write.
func (s *Store) Commit(ops []FieldOp) (ChangeID, error) {
	timer := metrics.NewTimer()
	id, err := s.doc.Commit(ops)
	if err != nil {
		return ChangeID{}, err
	}
	defer timer.ObserveDuration(metrics.CommitDuration)
	for _, op := range ops {
		metrics.DocumentsCommitted.WithLabelValues(string(op.Key.Type)).Inc()
	}

	s.doc.mu.RLock()
	change := s.doc.changes[id]
	seq := s.doc.commitSeq
	s.doc.mu.RUnlock()

	err = s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(change)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketChanges).Put(id[:], data); err != nil {
			return err
		}
		seqBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBytes, seq)
		return tx.Bucket(bucketMeta).Put(keyCommitSeq, seqBytes)
	})
	if err != nil {
		return ChangeID{}, meshcoreerr.New(meshcoreerr.KindStorage, "persist-failed", err)
	}
	return id, nil
}

// ApplyRemote persists and applies changes received from a peer during
// sync (C8), returning how many were new.
func (s *Store) ApplyRemote(changes []*Change) (int, error) {
	applied, err := s.doc.ApplyChanges(changes)
	if err != nil {
		return applied, err
	}
	if applied == 0 {
		return 0, nil
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChanges)
		for _, c := range changes {
			if c == nil {
				continue
			}
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := b.Put(c.ID[:], data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return applied, meshcoreerr.New(meshcoreerr.KindStorage, "persist-failed", err)
	}
	return applied, nil
}

// snapshot is the exported/imported wire shape for a whole document:
// every change in the local history, portable between nodes that
// don't yet share any causal ancestry (fresh node bootstrap).
type snapshot struct {
	Actor   types.PeerID `json:"actor"`
	Changes []*Change    `json:"changes"`
}

// Export serializes the entire change log for a full-state transfer —
// distinct from ComputeDelta's incremental sync path, used for first
// contact or disaster recovery onto a fresh node. The result is
// zstd-compressed: a full history snapshot is the one payload in this
// system large enough, and repetitive enough across records, for
// compression to matter over a bandwidth-constrained transport.
func (s *Store) Export() ([]byte, error) {
	s.doc.mu.RLock()
	changes := make([]*Change, 0, len(s.doc.changes))
	for _, c := range s.doc.changes {
		changes = append(changes, c)
	}
	actor := s.doc.actor
	s.doc.mu.RUnlock()

	data, err := json.Marshal(snapshot{Actor: actor, Changes: changes})
	if err != nil {
		return nil, meshcoreerr.New(meshcoreerr.KindStorage, "marshal-failed", err)
	}
	return zstdCompress(data)
}

// Import merges a snapshot produced by Export into this store.
func (s *Store) Import(data []byte) (int, error) {
	raw, err := zstdDecompress(data)
	if err != nil {
		return 0, meshcoreerr.New(meshcoreerr.KindStorage, meshcoreerr.CodeCorruptSnapshot, err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return 0, meshcoreerr.New(meshcoreerr.KindStorage, meshcoreerr.CodeCorruptSnapshot, err)
	}
	return s.ApplyRemote(snap.Changes)
}

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// CommitSeq reports the number of commits applied locally, including
// those replayed from disk or merged from peers.
func (s *Store) CommitSeq() uint64 {
	s.doc.mu.RLock()
	defer s.doc.mu.RUnlock()
	return s.doc.commitSeq
}
