//go:build meshcore_testreset

package store

import (
	bolt "go.etcd.io/bbolt"

	"github.com/aidcollective/meshcore/pkg/types"
)

// ResetForTest wipes all persisted changes and the in-memory document,
// leaving the store as if freshly created at an empty data directory.
// Only built into test binaries via the meshcore_testreset build tag
// (spec.md §12 supplemented features) — production builds never link
// this method in.
func (s *Store) ResetForTest() error {
	s.doc.mu.Lock()
	s.doc.changes = make(map[ChangeID]*Change)
	s.doc.frontier = make(map[ChangeID]struct{})
	s.doc.records = make(map[types.RecordKey]*recordState)
	s.doc.commitSeq = 0
	s.doc.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketChanges, bucketMeta} {
			if err := tx.DeleteBucket(b); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}
