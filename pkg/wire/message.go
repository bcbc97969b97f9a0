// Package wire implements the bit-exact binary formats from spec.md
// §6: mesh messages, DTN bundles, and the signed/encrypted envelope
// that wraps them. These formats are the one place in the core where
// interop between independent replicas matters byte-for-byte, so they
// are hand-rolled with encoding/binary rather than a general-purpose
// serialization library — there is no framing format in the example
// corpus shaped like this one to reuse.
//
// Identifier fields (source/destination peer id, hop-set entries) use
// a single-byte length prefix: self-certifying identifiers never
// exceed 255 bytes and every byte matters on the LoRa-class adapter's
// tens-of-bytes payload budget. Payload length uses the 4-byte
// big-endian width spec.md §6 specifies explicitly.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/types"
)

// EncodeMessage renders m into the wire format:
//
//	1 byte type tag
//	16 bytes message id
//	1 byte source id length + source id bytes
//	1 byte destination id length + destination id bytes (0 = broadcast)
//	8 bytes big-endian unix-millis timestamp
//	1 byte TTL
//	4 bytes big-endian payload length
//	payload bytes
func EncodeMessage(m *types.Message) ([]byte, error) {
	id, err := uuid.Parse(string(m.ID))
	if err != nil {
		return nil, malformed(err)
	}
	src := []byte(m.Source)
	dst := []byte(m.Destination)
	if len(src) > 255 || len(dst) > 255 {
		return nil, malformed(fmt.Errorf("peer id longer than 255 bytes"))
	}

	buf := make([]byte, 0, 1+16+1+len(src)+1+len(dst)+8+1+4+len(m.Payload))
	buf = append(buf, byte(m.Type))
	idBytes, _ := id.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = append(buf, byte(len(src)))
	buf = append(buf, src...)
	buf = append(buf, byte(len(dst)))
	buf = append(buf, dst...)
	buf = appendU64(buf, uint64(m.CreatedAt.UnixMilli()))
	buf = append(buf, m.TTL)
	buf = appendU32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	return buf, nil
}

// DecodeMessage is the inverse of EncodeMessage. It never panics on
// malformed input; truncated or oversized-length frames return a
// protocol-kind error so the caller can drop the frame per §7.
func DecodeMessage(b []byte) (*types.Message, error) {
	r := &reader{buf: b}

	typeTag, err := r.byteVal()
	if err != nil {
		return nil, malformed(err)
	}
	idBytes, err := r.take(16)
	if err != nil {
		return nil, malformed(err)
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return nil, malformed(err)
	}
	src, err := r.shortLenPrefixed()
	if err != nil {
		return nil, malformed(err)
	}
	dst, err := r.shortLenPrefixed()
	if err != nil {
		return nil, malformed(err)
	}
	millis, err := r.u64()
	if err != nil {
		return nil, malformed(err)
	}
	ttl, err := r.byteVal()
	if err != nil {
		return nil, malformed(err)
	}
	payload, err := r.u32Prefixed()
	if err != nil {
		return nil, malformed(err)
	}
	if !r.exhausted() {
		return nil, malformed(fmt.Errorf("trailing bytes after message"))
	}

	return &types.Message{
		ID:          types.MessageID(id.String()),
		Type:        types.MessageType(typeTag),
		Source:      types.PeerID(src),
		Destination: types.PeerID(dst),
		CreatedAt:   millisToTime(millis),
		TTL:         ttl,
		Payload:     payload,
	}, nil
}

func malformed(err error) error {
	return meshcoreerr.New(meshcoreerr.KindProtocol, meshcoreerr.CodeMalformedEnvelope, err)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
