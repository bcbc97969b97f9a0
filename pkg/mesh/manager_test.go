package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/transport"
	"github.com/aidcollective/meshcore/pkg/types"
)

type recordingSink struct {
	bundles []*types.Bundle
}

func (s *recordingSink) Submit(b *types.Bundle) error {
	s.bundles = append(s.bundles, b)
	return nil
}

type noopSync struct{}

func (noopSync) BuildSyncRequest(types.PeerID) []byte            { return nil }
func (noopSync) BuildSyncResponse(types.PeerID, []byte) []byte { return nil }
func (noopSync) HandleSyncResponse(types.PeerID, []byte)        {}

func newTestManager(t *testing.T, self types.PeerID, sink BundleSink) *Manager {
	t.Helper()
	cfg := DefaultConfig
	cfg.Self = self
	cfg.AnnounceInterval = time.Hour
	cfg.PeerIdleEviction = time.Hour
	m, err := NewManager(cfg, sink, noopSync{}, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestDirectDataMessageDeliveredOverLoopTransport(t *testing.T) {
	reg := transport.NewLoopRegistry()

	a := newTestManager(t, "peer-a", nil)
	b := newTestManager(t, "peer-b", nil)

	a.AddAdapter(reg.NewLoopAdapter("peer-a"))
	b.AddAdapter(reg.NewLoopAdapter("peer-b"))

	var received []byte
	done := make(chan struct{})
	b.OnData(func(from types.PeerID, payload []byte) {
		received = payload
		close(done)
	})

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	require.NoError(t, a.sendTo(ctx, "peer-b", types.MessageData, []byte("hello mesh")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for data message")
	}
	require.Equal(t, []byte("hello mesh"), received)
}

func TestSendToUnreachablePeerFallsBackToBundle(t *testing.T) {
	sink := &recordingSink{}
	m := newTestManager(t, "peer-a", sink)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	err := m.sendTo(context.Background(), "peer-unknown", types.MessageData, []byte("payload"))
	require.NoError(t, err)
	require.Len(t, sink.bundles, 1)
	require.Equal(t, types.PeerID("peer-unknown"), sink.bundles[0].Destination)
}

func TestSeenCachePreventsReprocessingRelayedBroadcast(t *testing.T) {
	sc, err := newSeenCache(16)
	require.NoError(t, err)
	require.False(t, sc.markSeen("m1"))
	require.True(t, sc.markSeen("m1"))
}

func TestDirectedMessageToOtherPeerIsRelayedNotDelivered(t *testing.T) {
	reg := transport.NewLoopRegistry()

	b := newTestManager(t, "peer-b", nil)
	c := newTestManager(t, "peer-c", nil)

	b.AddAdapter(reg.NewLoopAdapter("peer-b"))
	c.AddAdapter(reg.NewLoopAdapter("peer-c"))

	var deliveredToB bool
	b.OnData(func(types.PeerID, []byte) { deliveredToB = true })

	var receivedByC []byte
	doneC := make(chan struct{})
	c.OnData(func(from types.PeerID, payload []byte) {
		receivedByC = payload
		close(doneC)
	})

	ctx := context.Background()
	require.NoError(t, b.Start(ctx))
	require.NoError(t, c.Start(ctx))
	defer b.Stop()
	defer c.Stop()

	// peer-a is not a participant in this test's registry at all: the
	// point is that peer-b, upon receiving a message addressed to
	// peer-c, must relay it on rather than handing it to its own onData
	// handler.
	msg := &types.Message{
		ID:          "m-relay-1",
		Type:        types.MessageData,
		Source:      "peer-a",
		Destination: "peer-c",
		CreatedAt:   time.Now(),
		TTL:         2,
		Payload:     []byte("to peer-c via peer-b"),
	}
	encoded, err := encodeOutgoing(msg)
	require.NoError(t, err)

	b.handleIncoming(types.TransportLocalNet, "peer-a", encoded)

	select {
	case <-doneC:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
	require.Equal(t, []byte("to peer-c via peer-b"), receivedByC)
	require.False(t, deliveredToB, "message addressed to peer-c must not be handed to peer-b's own handler")
}
