package wire

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aidcollective/meshcore/pkg/types"
)

// EncodeBundle renders b as:
//
//	16 bytes bundle id
//	1 byte source id length + source id bytes
//	1 byte destination id length + destination id bytes
//	8 bytes big-endian created-at (unix-millis)
//	8 bytes big-endian expiry (unix-millis)
//	1 byte priority
//	1 byte hop-set count + that many 1-byte-length-prefixed peer ids
//	4 bytes big-endian payload length + payload bytes
//
// The id, source, destination and created-at fields use the message
// header's encodings, but there is no type tag and no TTL byte;
// destination absent (empty) means epidemic.
func EncodeBundle(b *types.Bundle) ([]byte, error) {
	id, err := uuid.Parse(string(b.ID))
	if err != nil {
		return nil, malformed(err)
	}
	src := []byte(b.Source)
	dst := []byte(b.Destination)
	if len(src) > 255 || len(dst) > 255 {
		return nil, malformed(fmt.Errorf("peer id longer than 255 bytes"))
	}
	if len(b.HopSet) > 255 {
		return nil, malformed(fmt.Errorf("hop set larger than 255 entries"))
	}

	buf := make([]byte, 0, 64+len(b.Payload))
	idBytes, _ := id.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = append(buf, byte(len(src)))
	buf = append(buf, src...)
	buf = append(buf, byte(len(dst)))
	buf = append(buf, dst...)
	buf = appendU64(buf, uint64(b.CreatedAt.UnixMilli()))
	buf = appendU64(buf, uint64(b.ExpiresAt.UnixMilli()))
	buf = append(buf, byte(b.Priority))
	buf = append(buf, byte(len(b.HopSet)))
	for peer := range b.HopSet {
		pb := []byte(peer)
		if len(pb) > 255 {
			return nil, malformed(fmt.Errorf("hop peer id longer than 255 bytes"))
		}
		buf = append(buf, byte(len(pb)))
		buf = append(buf, pb...)
	}
	buf = appendU32(buf, uint32(len(b.Payload)))
	buf = append(buf, b.Payload...)
	return buf, nil
}

// DecodeBundle is the inverse of EncodeBundle.
func DecodeBundle(raw []byte) (*types.Bundle, error) {
	r := &reader{buf: raw}

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
	createdMillis, err := r.u64()
	if err != nil {
		return nil, malformed(err)
	}
	expiresMillis, err := r.u64()
	if err != nil {
		return nil, malformed(err)
	}
	priority, err := r.byteVal()
	if err != nil {
		return nil, malformed(err)
	}
	hopCount, err := r.byteVal()
	if err != nil {
		return nil, malformed(err)
	}
	hopSet := make(map[types.PeerID]struct{}, hopCount)
	for i := 0; i < int(hopCount); i++ {
		peer, err := r.shortLenPrefixed()
		if err != nil {
			return nil, malformed(err)
		}
		hopSet[types.PeerID(peer)] = struct{}{}
	}
	payload, err := r.u32Prefixed()
	if err != nil {
		return nil, malformed(err)
	}
	if !r.exhausted() {
		return nil, malformed(fmt.Errorf("trailing bytes after bundle"))
	}

	return &types.Bundle{
		ID:          types.BundleID(id.String()),
		Source:      types.PeerID(src),
		Destination: types.PeerID(dst),
		CreatedAt:   millisToTime(createdMillis),
		ExpiresAt:   millisToTime(expiresMillis),
		Priority:    types.Priority(priority),
		HopSet:      hopSet,
		Payload:     payload,
	}, nil
}
