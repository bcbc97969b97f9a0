package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/types"
)

func TestDeflateCompressRoundTrip(t *testing.T) {
	payload := []byte("need a drill and a ladder this weekend, available saturday morning")
	compressed, err := deflateCompress(payload)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(payload))

	got, err := deflateDecompress(compressed)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// fakeRadio is an in-memory LoRaRadio double for testing LoRaAdapter
// without a real modem.
type fakeRadio struct {
	peers   map[uint16]*fakeRadio
	self    uint16
	onFrame func(nodeID uint16, frame []byte)
}

func (r *fakeRadio) Open() error  { return nil }
func (r *fakeRadio) Close() error { return nil }
func (r *fakeRadio) SetReceiveHandler(h func(nodeID uint16, frame []byte)) { r.onFrame = h }
func (r *fakeRadio) SendFrame(nodeID uint16, frame []byte) error {
	dst, ok := r.peers[nodeID]
	if !ok || dst.onFrame == nil {
		return nil
	}
	dst.onFrame(r.self, frame)
	return nil
}

func TestLoRaAdapterSendReceiveRoundTrip(t *testing.T) {
	radioA := &fakeRadio{self: 1, peers: map[uint16]*fakeRadio{}}
	radioB := &fakeRadio{self: 2, peers: map[uint16]*fakeRadio{}}
	radioA.peers[2] = radioB
	radioB.peers[1] = radioA

	adapterA := NewLoRaAdapter(radioA, 0, map[types.PeerID]uint16{"peer-b": 2})
	adapterB := NewLoRaAdapter(radioB, 0, map[types.PeerID]uint16{"peer-a": 1})

	var received []byte
	adapterB.OnMessage(func(from types.PeerID, payload []byte) {
		received = payload
	})

	require.NoError(t, adapterA.Start(context.Background()))
	require.NoError(t, adapterB.Start(context.Background()))

	payload := []byte("resource offer: spare tent, available this week")
	require.NoError(t, adapterA.Send(context.Background(), "peer-b", payload))
	require.Equal(t, payload, received)
}
