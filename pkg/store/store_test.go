package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/types"
)

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir, "node-a", nil)
	require.NoError(t, err)
	_, err = s1.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("drill")},
	})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dir, "node-a", nil)
	require.NoError(t, err)
	defer s2.Close()

	meta, fields, ok := s2.Doc().Get(recordKey("r1"))
	require.True(t, ok)
	require.Equal(t, types.RecordID("r1"), meta.ID)
	require.Equal(t, "drill", *fields["title"].Scalar.Str)
}

func TestExportImportRoundTrip(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()

	src, err := Open(srcDir, "node-a", nil)
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Commit([]FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("drill")},
	})
	require.NoError(t, err)

	blob, err := src.Export()
	require.NoError(t, err)

	dst, err := Open(dstDir, "node-b", nil)
	require.NoError(t, err)
	defer dst.Close()

	applied, err := dst.Import(blob)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	_, fields, ok := dst.Doc().Get(recordKey("r1"))
	require.True(t, ok)
	require.Equal(t, "drill", *fields["title"].Scalar.Str)
}

func TestApplyRemoteRejectsTamperedChangeID(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "node-a", nil)
	require.NoError(t, err)
	defer s.Close()

	bad := &Change{ID: ChangeID{0xFF}, Ops: []FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: OpSetScalar, Value: types.StrScalar("x")},
	}}
	_, err = s.ApplyRemote([]*Change{bad})
	require.Error(t, err)
}
