package transport

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
)

// chunkHeaderSize is msgID(4) + seq(1) + total(1).
const chunkHeaderSize = 6

// chunkPayload splits payload into frames no larger than mtu bytes
// total (header included), for mediums where a single write can't
// carry a whole message — BLE-class GATT characteristics in
// particular (spec.md §4.4: "messages are chunked to fit the
// characteristic's negotiated MTU, with sequence headers for
// reassembly").
func chunkPayload(msgID uint32, payload []byte, mtu int) ([][]byte, error) {
	budget := mtu - chunkHeaderSize
	if budget <= 0 {
		return nil, meshcoreerr.New(meshcoreerr.KindValidation, "mtu-too-small", errMTUTooSmall)
	}
	if len(payload) == 0 {
		payload = []byte{}
	}

	total := (len(payload) + budget - 1) / budget
	if total == 0 {
		total = 1
	}
	if total > 255 {
		return nil, meshcoreerr.New(meshcoreerr.KindValidation, "message-too-large", errTooManyChunks)
	}

	frames := make([][]byte, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * budget
		end := start + budget
		if end > len(payload) {
			end = len(payload)
		}
		frame := make([]byte, chunkHeaderSize+(end-start))
		binary.BigEndian.PutUint32(frame[0:4], msgID)
		frame[4] = byte(seq)
		frame[5] = byte(total)
		copy(frame[chunkHeaderSize:], payload[start:end])
		frames = append(frames, frame)
	}
	return frames, nil
}

type errString string

func (e errString) Error() string { return string(e) }

const (
	errMTUTooSmall   = errString("transport: mtu too small for chunk header")
	errTooManyChunks = errString("transport: payload needs more than 255 chunks")
)

// reassembler buffers out-of-order, possibly duplicated chunk frames
// per in-flight message id and completes a message once every
// sequence number has arrived. Stale partial messages are evicted
// after ttl so a lost chunk doesn't leak memory forever.
type reassembler struct {
	mu      sync.Mutex
	ttl     time.Duration
	partial map[uint32]*partialMessage
}

type partialMessage struct {
	total    int
	have     map[byte][]byte
	deadline time.Time
}

func newReassembler(ttl time.Duration) *reassembler {
	return &reassembler{ttl: ttl, partial: make(map[uint32]*partialMessage)}
}

// feed ingests one frame and returns the completed payload plus true
// once all its chunks have arrived. Re-delivering an already-seen
// chunk (or a duplicate frame entirely) is harmless.
func (r *reassembler) feed(frame []byte) (payload []byte, complete bool, err error) {
	if len(frame) < chunkHeaderSize {
		return nil, false, meshcoreerr.New(meshcoreerr.KindProtocol, meshcoreerr.CodeMalformedEnvelope, errShortFrame)
	}
	msgID := binary.BigEndian.Uint32(frame[0:4])
	seq := frame[4]
	total := frame[5]
	body := append([]byte(nil), frame[chunkHeaderSize:]...)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	pm, ok := r.partial[msgID]
	if !ok {
		pm = &partialMessage{total: int(total), have: make(map[byte][]byte), deadline: time.Now().Add(r.ttl)}
		r.partial[msgID] = pm
	}
	pm.have[seq] = body

	if len(pm.have) < pm.total {
		return nil, false, nil
	}

	full := make([]byte, 0, pm.total*len(body))
	for i := byte(0); i < byte(pm.total); i++ {
		chunk, ok := pm.have[i]
		if !ok {
			return nil, false, nil
		}
		full = append(full, chunk...)
	}
	delete(r.partial, msgID)
	return full, true, nil
}

func (r *reassembler) evictExpiredLocked() {
	now := time.Now()
	for id, pm := range r.partial {
		if now.After(pm.deadline) {
			delete(r.partial, id)
		}
	}
}

const errShortFrame = errString("transport: chunk frame shorter than header")
