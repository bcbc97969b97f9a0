package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/events"
	"github.com/aidcollective/meshcore/pkg/store"
	"github.com/aidcollective/meshcore/pkg/types"
)

func recordKey(id string) types.RecordKey {
	return types.RecordKey{Type: types.RecordResourceOffer, ID: types.RecordID(id)}
}

func openTestStore(t *testing.T, actor types.PeerID) (*store.Store, *events.Broker) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	st, err := store.Open(t.TempDir(), actor, broker)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, broker
}

type recordingRequester struct {
	peers []types.PeerID
}

func (r *recordingRequester) TriggerSync(peer types.PeerID) error {
	r.peers = append(r.peers, peer)
	return nil
}

func TestDebouncedCommitsTriggerSingleSyncRound(t *testing.T) {
	st, broker := openTestStore(t, "node-a")

	sched := New(st, DefaultConfig)
	sched.cfg.Debounce = 20 * time.Millisecond
	req := &recordingRequester{}
	sched.SetRequester(req)
	sched.NotePeer("peer-b")
	sched.Start(broker)
	defer sched.Stop()

	for i := 0; i < 5; i++ {
		_, err := st.Commit([]store.FieldOp{
			{Key: recordKey("r1"), Field: "title", Kind: store.OpSetScalar, Value: types.StrScalar("drill")},
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(req.peers) >= 1 }, time.Second, 5*time.Millisecond)
	require.Len(t, req.peers, 1)
	require.Equal(t, types.PeerID("peer-b"), req.peers[0])
}

func TestBuildSyncRequestAndResponseRoundTripDelta(t *testing.T) {
	local, localBroker := openTestStore(t, "node-a")
	remote, remoteBroker := openTestStore(t, "node-b")

	_, err := remote.Commit([]store.FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: store.OpSetScalar, Value: types.StrScalar("drill")},
	})
	require.NoError(t, err)

	localSched := New(local, DefaultConfig)
	localSched.Start(localBroker)
	defer localSched.Stop()

	remoteSched := New(remote, DefaultConfig)
	remoteSched.Start(remoteBroker)
	defer remoteSched.Stop()

	req := localSched.BuildSyncRequest("node-b")
	require.NotNil(t, req)

	resp := remoteSched.BuildSyncResponse("node-a", req)
	require.NotNil(t, resp)

	localSched.HandleSyncResponse("node-b", resp)

	_, fields, ok := local.Doc().Get(recordKey("r1"))
	require.True(t, ok)
	require.Equal(t, "drill", *fields["title"].Scalar.Str)
}

func TestOutboundQueueLimitSkipsSaturatedPeer(t *testing.T) {
	st, broker := openTestStore(t, "node-a")

	sched := New(st, DefaultConfig)
	sched.cfg.OutboundQueueLimit = 1
	req := &recordingRequester{}
	sched.SetRequester(req)
	sched.NotePeer("peer-b")
	sched.queueDepth["peer-b"] = 1

	sched.Start(broker)
	defer sched.Stop()

	_, err := st.Commit([]store.FieldOp{
		{Key: recordKey("r1"), Field: "title", Kind: store.OpSetScalar, Value: types.StrScalar("drill")},
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, req.peers)
}

func TestForgetPeerClearsCachedState(t *testing.T) {
	st, _ := openTestStore(t, "node-a")
	sched := New(st, DefaultConfig)
	sched.NotePeer("peer-b")
	sched.peerFrontier["peer-b"] = []store.ChangeID{}
	sched.ForgetPeer("peer-b")

	_, ok := sched.PeerFrontier("peer-b")
	require.False(t, ok)
}
