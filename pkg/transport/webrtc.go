package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/webrtc/v3"

	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/types"
)

// serviceName is the mDNS service type local-net nodes advertise
// themselves under, per spec.md §4.4's local-net-class adapter
// ("discovery via mDNS/zeroconf, a single ordered reliable data
// channel per peer").
const serviceName = "_meshcore._udp"

// sdpTXTKey names a TXT record key for a node's WebRTC offer. Start
// publishes only a "peer=<id>" TXT entry; nothing in this adapter
// writes or reads an entry under this key.
const sdpTXTKey = "sdp"

// WebRTCAdapter is the local-net-class transport: peer discovery over
// mDNS, and an ordered data channel created per discovered peer (see
// connectTo for how far connection setup goes).
type WebRTCAdapter struct {
	self types.PeerID
	port int

	mu        sync.Mutex
	running   bool
	onMsg     MessageHandler
	onFound   PeerHandler
	onLost    PeerHandler
	peers     map[types.PeerID]*webrtcPeer
	server    *zeroconf.Server
	resolver  *zeroconf.Resolver
	stopBrowse context.CancelFunc
}

type webrtcPeer struct {
	conn    *webrtc.PeerConnection
	channel *webrtc.DataChannel
}

// NewWebRTCAdapter creates an adapter that advertises itself on port
// (an arbitrary discovery-only port; actual data travels over ICE).
func NewWebRTCAdapter(self types.PeerID, port int) *WebRTCAdapter {
	return &WebRTCAdapter{self: self, port: port, peers: make(map[types.PeerID]*webrtcPeer)}
}

func (a *WebRTCAdapter) Kind() types.TransportKind { return types.TransportLocalNet }

func (a *WebRTCAdapter) Start(ctx context.Context) error {
	server, err := zeroconf.Register(string(a.self), serviceName, "local.", a.port, []string{"peer=" + string(a.self)}, nil)
	if err != nil {
		return meshcoreerr.New(meshcoreerr.KindTransient, "mdns-register-failed", err)
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return meshcoreerr.New(meshcoreerr.KindTransient, "mdns-resolver-failed", err)
	}

	browseCtx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(browseCtx, serviceName, "local.", entries); err != nil {
		cancel()
		server.Shutdown()
		return meshcoreerr.New(meshcoreerr.KindTransient, "mdns-browse-failed", err)
	}

	a.mu.Lock()
	a.server = server
	a.resolver = resolver
	a.stopBrowse = cancel
	a.running = true
	a.mu.Unlock()

	go a.watchEntries(entries)
	return nil
}

func (a *WebRTCAdapter) watchEntries(entries chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		peer := peerIDFromEntry(entry)
		if peer == "" || peer == a.self {
			continue
		}
		a.mu.Lock()
		_, known := a.peers[peer]
		a.mu.Unlock()
		if known {
			continue
		}
		if err := a.connectTo(peer); err != nil {
			continue
		}
		a.mu.Lock()
		found := a.onFound
		a.mu.Unlock()
		if found != nil {
			found(peer)
		}
	}
}

func peerIDFromEntry(entry *zeroconf.ServiceEntry) types.PeerID {
	for _, txt := range entry.Text {
		if strings.HasPrefix(txt, "peer=") {
			return types.PeerID(strings.TrimPrefix(txt, "peer="))
		}
	}
	return ""
}

// connectTo creates a peer connection with an ordered data channel and
// sets a local offer, then records peer. Only the lexicographically
// greater peer id does this; the other side records nothing. The offer
// is not delivered to peer and no answer is applied, so the data
// channel does not open and Send to peer returns an error.
func (a *WebRTCAdapter) connectTo(peer types.PeerID) error {
	if a.self <= peer {
		return nil
	}

	config := webrtc.Configuration{}
	conn, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return meshcoreerr.New(meshcoreerr.KindTransient, "webrtc-pc-failed", err)
	}

	ordered := true
	channel, err := conn.CreateDataChannel("meshcore", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		conn.Close()
		return meshcoreerr.New(meshcoreerr.KindTransient, "webrtc-channel-failed", err)
	}
	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		a.mu.Lock()
		handler := a.onMsg
		a.mu.Unlock()
		if handler != nil {
			handler(peer, msg.Data)
		}
	})

	offer, err := conn.CreateOffer(nil)
	if err != nil {
		conn.Close()
		return meshcoreerr.New(meshcoreerr.KindTransient, "webrtc-offer-failed", err)
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		conn.Close()
		return meshcoreerr.New(meshcoreerr.KindTransient, "webrtc-offer-failed", err)
	}

	a.mu.Lock()
	a.peers[peer] = &webrtcPeer{conn: conn, channel: channel}
	a.mu.Unlock()
	return nil
}

func (a *WebRTCAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopBrowse != nil {
		a.stopBrowse()
	}
	if a.server != nil {
		a.server.Shutdown()
	}
	for _, p := range a.peers {
		p.conn.Close()
	}
	a.peers = make(map[types.PeerID]*webrtcPeer)
	a.running = false
	return nil
}

func (a *WebRTCAdapter) DiscoverPeers(ctx context.Context) error {
	// mDNS browsing runs continuously from Start; DiscoverPeers just
	// gives callers a bounded window to wait for entries before
	// proceeding (used by the mesh manager's join sequence).
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func (a *WebRTCAdapter) Send(ctx context.Context, peer types.PeerID, payload []byte) error {
	a.mu.Lock()
	p, ok := a.peers[peer]
	a.mu.Unlock()
	if !ok {
		return meshcoreerr.New(meshcoreerr.KindTransient, "peer-unreachable", fmt.Errorf("no data channel to %s", peer))
	}
	if err := p.channel.Send(payload); err != nil {
		return meshcoreerr.New(meshcoreerr.KindTransient, "webrtc-send-failed", err)
	}
	return nil
}

func (a *WebRTCAdapter) OnMessage(h MessageHandler) { a.mu.Lock(); a.onMsg = h; a.mu.Unlock() }
func (a *WebRTCAdapter) OnPeerFound(h PeerHandler)   { a.mu.Lock(); a.onFound = h; a.mu.Unlock() }
func (a *WebRTCAdapter) OnPeerLost(h PeerHandler)    { a.mu.Lock(); a.onLost = h; a.mu.Unlock() }

func (a *WebRTCAdapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Kind: types.TransportLocalNet, Running: a.running, PeersDiscovered: len(a.peers)}
}

// encodeSDP base64-encodes an SDP blob so it could travel in a TXT
// record without raw JSON. Nothing in this adapter calls it, and there
// is no matching decoder.
func encodeSDP(sd webrtc.SessionDescription) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(sd.SDP)), nil
}
