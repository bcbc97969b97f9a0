package transport

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkAndReassembleRoundTrip(t *testing.T) {
	payload := make([]byte, 137)
	for i := range payload {
		payload[i] = byte(i)
	}

	frames, err := chunkPayload(42, payload, 20)
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)

	r := newReassembler(partialReassemblyTTL)
	var got []byte
	var complete bool
	for _, f := range frames {
		got, complete, err = r.feed(f)
		require.NoError(t, err)
	}
	require.True(t, complete)
	require.Equal(t, payload, got)
}

func TestReassembleToleratesOutOfOrderAndDuplicateFrames(t *testing.T) {
	payload := []byte("need a drill and a ladder this weekend")
	frames, err := chunkPayload(7, payload, 16)
	require.NoError(t, err)
	require.Greater(t, len(frames), 2)

	shuffled := append([][]byte(nil), frames...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	shuffled = append(shuffled, frames[0]) // duplicate

	r := newReassembler(partialReassemblyTTL)
	var got []byte
	var complete bool
	for _, f := range shuffled {
		got, complete, err = r.feed(f)
		require.NoError(t, err)
	}
	require.True(t, complete)
	require.Equal(t, payload, got)
}

func TestChunkPayloadRejectsMTUTooSmallForHeader(t *testing.T) {
	_, err := chunkPayload(1, []byte("x"), chunkHeaderSize)
	require.Error(t, err)
}
