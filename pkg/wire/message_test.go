package wire

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aidcollective/meshcore/pkg/types"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  *types.Message
	}{
		{
			name: "directed data message",
			msg: &types.Message{
				ID:          types.MessageID(uuid.New().String()),
				Type:        types.MessageData,
				Source:      "meshcore:src",
				Destination: "meshcore:dst",
				CreatedAt:   time.UnixMilli(1_700_000_000_000).UTC(),
				TTL:         5,
				Payload:     []byte("hello mesh"),
			},
		},
		{
			name: "broadcast announce with empty payload",
			msg: &types.Message{
				ID:        types.MessageID(uuid.New().String()),
				Type:      types.MessageAnnounce,
				Source:    "meshcore:src",
				CreatedAt: time.UnixMilli(0).UTC(),
				TTL:       1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeMessage(tt.msg)
			require.NoError(t, err)

			decoded, err := DecodeMessage(encoded)
			require.NoError(t, err)
			require.Equal(t, tt.msg.ID, decoded.ID)
			require.Equal(t, tt.msg.Type, decoded.Type)
			require.Equal(t, tt.msg.Source, decoded.Source)
			require.Equal(t, tt.msg.Destination, decoded.Destination)
			require.True(t, tt.msg.CreatedAt.Equal(decoded.CreatedAt))
			require.Equal(t, tt.msg.TTL, decoded.TTL)
			require.Equal(t, tt.msg.Payload, decoded.Payload)
		})
	}
}

func TestDecodeMessageRejectsTruncated(t *testing.T) {
	msg := &types.Message{
		ID:        types.MessageID(uuid.New().String()),
		Type:      types.MessagePing,
		Source:    "meshcore:src",
		CreatedAt: time.Now(),
		TTL:       1,
	}
	encoded, err := EncodeMessage(msg)
	require.NoError(t, err)

	_, err = DecodeMessage(encoded[:len(encoded)-3])
	require.Error(t, err)
}

func TestDecodeMessageRejectsTrailingBytes(t *testing.T) {
	msg := &types.Message{
		ID:        types.MessageID(uuid.New().String()),
		Type:      types.MessagePong,
		Source:    "meshcore:src",
		CreatedAt: time.Now(),
		TTL:       1,
	}
	encoded, err := EncodeMessage(msg)
	require.NoError(t, err)

	_, err = DecodeMessage(append(encoded, 0xff))
	require.Error(t, err)
}
