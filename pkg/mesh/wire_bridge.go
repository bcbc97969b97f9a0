package mesh

import (
	"github.com/aidcollective/meshcore/pkg/types"
	"github.com/aidcollective/meshcore/pkg/wire"
)

// decodeIncoming and encodeOutgoing adapt pkg/wire's byte-exact mesh
// message codec (spec.md §6) for this package's internal use.
func decodeIncoming(raw []byte) (*types.Message, error) { return wire.DecodeMessage(raw) }

func encodeOutgoing(msg *types.Message) ([]byte, error) { return wire.EncodeMessage(msg) }
