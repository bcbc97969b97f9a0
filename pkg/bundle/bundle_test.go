package bundle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/types"
)

type recordingSender struct {
	sent map[types.PeerID][][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[types.PeerID][][]byte)}
}

func (s *recordingSender) SendRaw(peer types.PeerID, payload []byte) error {
	s.sent[peer] = append(s.sent[peer], payload)
	return nil
}

func TestSubmitAndDeliverDirectedBundle(t *testing.T) {
	store, err := Open(t.TempDir(), DefaultConfig)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Submit(&types.Bundle{
		Destination: "peer-b",
		Priority:    types.PriorityHigh,
		Payload:     []byte("need a drill"),
	}))
	require.Equal(t, 1, store.Len())

	sender := newRecordingSender()
	store.OnPeerContact("peer-b", sender)

	require.Len(t, sender.sent["peer-b"], 1)
	require.Equal(t, 0, store.Len(), "directed bundle removed after delivery")
}

func TestEpidemicBundleStaysQueuedAfterDeliveryToOnePeer(t *testing.T) {
	store, err := Open(t.TempDir(), DefaultConfig)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Submit(&types.Bundle{
		Priority: types.PriorityNormal,
		Payload:  []byte("community announcement"),
	}))

	sender := newRecordingSender()
	store.OnPeerContact("peer-b", sender)
	require.Equal(t, 1, store.Len())

	// same peer again: already seen, no redundant delivery
	store.OnPeerContact("peer-b", sender)
	require.Len(t, sender.sent["peer-b"], 1)

	// a different peer still receives it
	store.OnPeerContact("peer-c", sender)
	require.Len(t, sender.sent["peer-c"], 1)
}

func TestEvictionPrefersLowestPriorityThenGreatestRemainingTTL(t *testing.T) {
	cfg := Config{BudgetBytes: 20, DefaultTTL: time.Hour}
	store, err := Open(t.TempDir(), cfg)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	require.NoError(t, store.Submit(&types.Bundle{
		Destination: "p1", Priority: types.PriorityLow, Payload: []byte("0123456789"), ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.Submit(&types.Bundle{
		Destination: "p2", Priority: types.PriorityCritical, Payload: []byte("0123456789"), ExpiresAt: now.Add(time.Minute),
	}))

	// a third bundle forces eviction; the low-priority one should go
	// even though the critical one expires sooner.
	require.NoError(t, store.Submit(&types.Bundle{
		Destination: "p3", Priority: types.PriorityNormal, Payload: []byte("0123456789"),
	}))

	sender := newRecordingSender()
	store.OnPeerContact("p1", sender)
	store.OnPeerContact("p2", sender)
	require.Empty(t, sender.sent["p1"], "low priority bundle should have been evicted")
	require.Len(t, sender.sent["p2"], 1)
}

func TestSweepExpiredRemovesPastDeadlineBundles(t *testing.T) {
	store, err := Open(t.TempDir(), DefaultConfig)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Submit(&types.Bundle{
		Destination: "p1", Priority: types.PriorityNormal, Payload: []byte("x"), ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.Equal(t, 1, store.SweepExpired())
	require.Equal(t, 0, store.Len())
}
