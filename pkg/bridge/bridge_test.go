package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/identity"
	"github.com/aidcollective/meshcore/pkg/mesh"
	"github.com/aidcollective/meshcore/pkg/store"
	"github.com/aidcollective/meshcore/pkg/syncer"
	"github.com/aidcollective/meshcore/pkg/transport"
	"github.com/aidcollective/meshcore/pkg/types"
)

func newTestBridge(t *testing.T, name string) (*Bridge, *identity.Identity) {
	t.Helper()
	id, err := identity.New(identity.Profile{DisplayName: name})
	require.NoError(t, err)

	cfg := Config{
		DataDir: t.TempDir(),
		Mesh:    mesh.DefaultConfig,
		Sync:    syncer.DefaultConfig,
	}
	cfg.Mesh.AnnounceInterval = time.Hour
	cfg.Mesh.PeerIdleEviction = time.Hour
	cfg.Sync.Debounce = 10 * time.Millisecond

	b, err := Open(id, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, id
}

func recordKey(id string) types.RecordKey {
	return types.RecordKey{Type: types.RecordResourceOffer, ID: types.RecordID(id)}
}

func TestUpdateRecordEnforcesRegisteredInvariant(t *testing.T) {
	b, _ := newTestBridge(t, "alice")

	b.RegisterInvariant(types.RecordResourceOffer, func(current map[string]types.FieldValue, ops []store.FieldOp) error {
		for _, op := range ops {
			if op.Field == "quantity" && op.Value.Num != nil && *op.Value.Num < 0 {
				return fmt.Errorf("quantity must be >= 0")
			}
		}
		return nil
	})

	_, err := b.UpdateRecord(recordKey("r1"), []store.FieldOp{
		{Key: recordKey("r1"), Field: "quantity", Kind: store.OpSetScalar, Value: types.NumScalar(-1)},
	})
	require.Error(t, err)

	_, err = b.UpdateRecord(recordKey("r1"), []store.FieldOp{
		{Key: recordKey("r1"), Field: "quantity", Kind: store.OpSetScalar, Value: types.NumScalar(3)},
	})
	require.NoError(t, err)

	_, fields, ok := b.GetRecord(recordKey("r1"))
	require.True(t, ok)
	require.Equal(t, 3.0, *fields["quantity"].Scalar.Num)
}

func TestSubmitBundleQueuesEpidemicBundle(t *testing.T) {
	b, _ := newTestBridge(t, "alice")

	id, err := b.SubmitBundle("", []byte("help needed"), types.PriorityHigh, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestEnabledTransportSyncsRecordsBetweenBridges(t *testing.T) {
	reg := transport.NewLoopRegistry()

	a, _ := newTestBridge(t, "alice")
	b, _ := newTestBridge(t, "bob")

	adapterA := reg.NewLoopAdapter(a.Identity().ID())
	adapterB := reg.NewLoopAdapter(b.Identity().ID())

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	require.NoError(t, a.EnableTransport(ctx, adapterA))
	require.NoError(t, b.EnableTransport(ctx, adapterB))

	_, err := a.UpdateRecord(recordKey("r1"), []store.FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: store.OpSetScalar, Value: types.StrScalar("drill")},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, fields, ok := b.GetRecord(recordKey("r1"))
		return ok && fields["title"].Scalar != nil && *fields["title"].Scalar.Str == "drill"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestTransportStatusReportsEnabledAdapter(t *testing.T) {
	reg := transport.NewLoopRegistry()
	b, _ := newTestBridge(t, "alice")
	adapter := reg.NewLoopAdapter(b.Identity().ID())

	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.EnableTransport(context.Background(), adapter))

	statuses := b.TransportStatus()
	require.Len(t, statuses, 1)
	require.Equal(t, types.TransportLocalNet, statuses[0].Kind)
}
