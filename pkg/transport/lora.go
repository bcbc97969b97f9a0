package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/types"
)

// DefaultLoRaFrameSize is a representative payload budget for a
// long-range, low-bandwidth LoRa link (spec.md §4.4: "tens of bytes
// per frame"). Real radio/region parameters vary; callers with a
// specific modem should override it.
const DefaultLoRaFrameSize = 48

// loraFrameHeaderSize is nodeID(2) + seq(1) + total(1).
const loraFrameHeaderSize = 4

// LoRaRadio is the minimal surface a LoRa modem driver (or a test
// double) exposes. No LoRa driver ships in the examples this module
// learned from, so — as with BLELink — the adapter is written against
// this narrow interface and production code supplies the concrete
// driver.
type LoRaRadio interface {
	SendFrame(nodeID uint16, frame []byte) error
	SetReceiveHandler(func(nodeID uint16, frame []byte))
	Open() error
	Close() error
}

// LoRaAdapter implements Adapter over a short-numeric-address radio.
// Payloads are deflate-compressed before framing, since every byte
// matters at LoRa bitrates, and then chunked to DefaultLoRaFrameSize.
type LoRaAdapter struct {
	radio     LoRaRadio
	frameSize int

	mu        sync.Mutex
	running   bool
	onMsg     MessageHandler
	onFound   PeerHandler
	onLost    PeerHandler
	idToPeer  map[uint16]types.PeerID
	peerToID  map[types.PeerID]uint16
	reasm     *reassembler
}

// NewLoRaAdapter wraps radio. mapping assigns each known peer its
// short on-air node id — LoRa frames are too small to carry a
// self-certifying identifier's full base58 public key, so the mesh
// manager hands the adapter a mapping learned out-of-band (from an
// announce message received over a richer transport, or provisioned
// by an operator).
func NewLoRaAdapter(radio LoRaRadio, frameSize int, mapping map[types.PeerID]uint16) *LoRaAdapter {
	if frameSize <= 0 {
		frameSize = DefaultLoRaFrameSize
	}
	idToPeer := make(map[uint16]types.PeerID, len(mapping))
	peerToID := make(map[types.PeerID]uint16, len(mapping))
	for peer, id := range mapping {
		idToPeer[id] = peer
		peerToID[peer] = id
	}
	return &LoRaAdapter{
		radio:     radio,
		frameSize: frameSize,
		idToPeer:  idToPeer,
		peerToID:  peerToID,
		reasm:     newReassembler(partialReassemblyTTL),
	}
}

func (a *LoRaAdapter) Kind() types.TransportKind { return types.TransportLoRa }

func (a *LoRaAdapter) Start(ctx context.Context) error {
	a.radio.SetReceiveHandler(a.handleFrame)
	if err := a.radio.Open(); err != nil {
		return meshcoreerr.New(meshcoreerr.KindTransient, "lora-open-failed", err)
	}
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	return nil
}

func (a *LoRaAdapter) Stop() error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return a.radio.Close()
}

// DiscoverPeers is a no-op: LoRa peer addressing is provisioned, not
// discovered over the air.
func (a *LoRaAdapter) DiscoverPeers(ctx context.Context) error { return nil }

func (a *LoRaAdapter) Send(ctx context.Context, peer types.PeerID, payload []byte) error {
	a.mu.Lock()
	nodeID, ok := a.peerToID[peer]
	a.mu.Unlock()
	if !ok {
		return meshcoreerr.New(meshcoreerr.KindValidation, "unmapped-peer", errUnmappedLoRaPeer(peer))
	}

	compressed, err := deflateCompress(payload)
	if err != nil {
		return meshcoreerr.New(meshcoreerr.KindProtocol, "compress-failed", err)
	}

	total := (len(compressed) + a.frameSize - loraFrameHeaderSize - 1) / (a.frameSize - loraFrameHeaderSize)
	if total == 0 {
		total = 1
	}
	budget := a.frameSize - loraFrameHeaderSize
	for seq := 0; seq < total; seq++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		start := seq * budget
		end := start + budget
		if end > len(compressed) {
			end = len(compressed)
		}
		frame := make([]byte, loraFrameHeaderSize+(end-start))
		binary.BigEndian.PutUint16(frame[0:2], nodeID)
		frame[2] = byte(seq)
		frame[3] = byte(total)
		copy(frame[loraFrameHeaderSize:], compressed[start:end])
		if err := a.radio.SendFrame(nodeID, frame); err != nil {
			return meshcoreerr.New(meshcoreerr.KindTransient, "lora-send-failed", err)
		}
	}
	return nil
}

func (a *LoRaAdapter) handleFrame(nodeID uint16, frame []byte) {
	if len(frame) < loraFrameHeaderSize {
		return
	}
	// The reassembler keys in-flight messages by a 32-bit id; a LoRa
	// frame only has a 16-bit node id; zero-extend it. This only
	// distinguishes in-flight messages per sender, which is all the
	// reassembler needs (one in-flight chunked message per peer at a
	// time is the LoRa-class assumption here).
	shim := make([]byte, chunkHeaderSize+(len(frame)-loraFrameHeaderSize))
	binary.BigEndian.PutUint32(shim[0:4], uint32(nodeID))
	shim[4] = frame[2]
	shim[5] = frame[3]
	copy(shim[chunkHeaderSize:], frame[loraFrameHeaderSize:])

	compressed, complete, err := a.reasm.feed(shim)
	if err != nil || !complete {
		return
	}
	payload, err := deflateDecompress(compressed)
	if err != nil {
		return
	}

	a.mu.Lock()
	peer, known := a.idToPeer[nodeID]
	handler := a.onMsg
	a.mu.Unlock()
	if known && handler != nil {
		handler(peer, payload)
	}
}

func (a *LoRaAdapter) OnMessage(h MessageHandler) { a.mu.Lock(); a.onMsg = h; a.mu.Unlock() }
func (a *LoRaAdapter) OnPeerFound(h PeerHandler)   { a.mu.Lock(); a.onFound = h; a.mu.Unlock() }
func (a *LoRaAdapter) OnPeerLost(h PeerHandler)    { a.mu.Lock(); a.onLost = h; a.mu.Unlock() }

func (a *LoRaAdapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Kind: types.TransportLoRa, Running: a.running, PeersDiscovered: len(a.idToPeer)}
}

func deflateCompress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deflateDecompress(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	return io.ReadAll(r)
}

type errUnmappedLoRaPeer types.PeerID

func (e errUnmappedLoRaPeer) Error() string { return "transport: no lora node id mapped for " + string(e) }
