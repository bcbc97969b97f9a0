package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/types"
)

func TestLoopAdapterDeliversToPeer(t *testing.T) {
	reg := NewLoopRegistry()
	a := reg.NewLoopAdapter("peer-a")
	b := reg.NewLoopAdapter("peer-b")

	var got []byte
	b.OnMessage(func(from types.PeerID, payload []byte) {
		got = payload
		require.Equal(t, types.PeerID("peer-a"), from)
	})

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))

	require.NoError(t, a.Send(context.Background(), "peer-b", []byte("hello")))
	require.Equal(t, []byte("hello"), got)
}

func TestLoopAdapterSendToUnknownPeerFails(t *testing.T) {
	reg := NewLoopRegistry()
	a := reg.NewLoopAdapter("peer-a")
	require.NoError(t, a.Start(context.Background()))

	err := a.Send(context.Background(), "nobody", []byte("x"))
	require.Error(t, err)
}
