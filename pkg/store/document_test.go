package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/types"
)

func recordKey(id string) types.RecordKey {
	return types.RecordKey{Type: types.RecordResourceOffer, ID: types.RecordID(id)}
}

func TestCommitAndGet(t *testing.T) {
	doc := NewDocument("node-a", nil)

	_, err := doc.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("drill")},
	})
	require.NoError(t, err)

	meta, fields, ok := doc.Get(recordKey("r1"))
	require.True(t, ok)
	require.Equal(t, types.RecordID("r1"), meta.ID)
	require.Equal(t, "drill", *fields["title"].Scalar.Str)
}

func TestMergeIsCommutativeAndIdempotent(t *testing.T) {
	a := NewDocument("node-a", nil)
	idA, err := a.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("drill")},
	})
	require.NoError(t, err)
	changeA := a.changes[idA]

	b := NewDocument("node-b", nil)
	idB, err := b.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("ladder")},
	})
	require.NoError(t, err)
	changeB := b.changes[idB]

	// replica 1: apply in one order
	r1 := NewDocument("node-r1", nil)
	_, err = r1.ApplyChanges([]*Change{changeA, changeB})
	require.NoError(t, err)

	// replica 2: apply in the reverse order
	r2 := NewDocument("node-r2", nil)
	_, err = r2.ApplyChanges([]*Change{changeB, changeA})
	require.NoError(t, err)

	_, f1, _ := r1.Get(recordKey("r1"))
	_, f2, _ := r2.Get(recordKey("r1"))
	require.Equal(t, f1["title"], f2["title"])

	// idempotent: re-applying the same changes changes nothing further
	applied, err := r1.ApplyChanges([]*Change{changeA, changeB})
	require.NoError(t, err)
	require.Equal(t, 0, applied)
	_, f1again, _ := r1.Get(recordKey("r1"))
	require.Equal(t, f1, f1again)
}

func TestGrowOnlySetUnionsConcurrentAdds(t *testing.T) {
	a := NewDocument("node-a", nil)
	idA, _ := a.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "tags", Kind: OpSetAdd, Value: types.StrScalar("urgent")},
	})
	changeA := a.changes[idA]

	b := NewDocument("node-b", nil)
	idB, _ := b.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "tags", Kind: OpSetAdd, Value: types.StrScalar("food")},
	})
	changeB := b.changes[idB]

	merged := NewDocument("node-c", nil)
	_, err := merged.ApplyChanges([]*Change{changeA, changeB})
	require.NoError(t, err)

	_, fields, _ := merged.Get(recordKey("r1"))
	require.Len(t, fields["tags"].Sequence, 2)
}

func TestComputeDeltaReturnsOnlyUnknownChanges(t *testing.T) {
	a := NewDocument("node-a", nil)
	_, err := a.Commit([]FieldOp{{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("v1")}})
	require.NoError(t, err)
	id2, err := a.Commit([]FieldOp{{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("v2")}})
	require.NoError(t, err)

	b := NewDocument("node-b", nil)
	delta := a.ComputeDelta(b.CausalSummary())
	require.Len(t, delta, 2)

	applied, err := b.ApplyChanges(delta)
	require.NoError(t, err)
	require.Equal(t, 2, applied)
	require.Equal(t, a.CausalSummary(), b.CausalSummary())

	// b is now caught up; a second delta against b's new frontier is empty
	require.Empty(t, a.ComputeDelta(b.CausalSummary()))
	_ = id2
}

func TestSequenceInsertOrdersConcurrentElementsDeterministically(t *testing.T) {
	a := NewDocument("node-a", nil)
	idA, _ := a.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "updates", Kind: OpSeqInsert, ElementID: "e-a", OriginID: "", Value: types.StrScalar("from-a")},
	})
	changeA := a.changes[idA]

	b := NewDocument("node-b", nil)
	idB, _ := b.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "updates", Kind: OpSeqInsert, ElementID: "e-b", OriginID: "", Value: types.StrScalar("from-b")},
	})
	changeB := b.changes[idB]

	r1 := NewDocument("node-r1", nil)
	r1.ApplyChanges([]*Change{changeA, changeB})
	r2 := NewDocument("node-r2", nil)
	r2.ApplyChanges([]*Change{changeB, changeA})

	_, f1, _ := r1.Get(recordKey("r1"))
	_, f2, _ := r2.Get(recordKey("r1"))
	require.Equal(t, f1["updates"].Sequence, f2["updates"].Sequence)
}
