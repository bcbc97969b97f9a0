// Package transport, adapter tie-break and shape per medium:
//
//	BLE-class    — chunked writes, MTU ~20B, passive discovery via advertisement
//	local-net    — pion/webrtc ordered data channel, mDNS rendezvous (grandcat/zeroconf)
//	LoRa-class   — deflate-compressed frames, MTU ~48B, provisioned node-id addressing
//	loop         — in-memory, no medium; tests only
//
// C5 (pkg/mesh) prefers local-net over BLE over LoRa when a peer is
// reachable over more than one medium at once, reflecting the
// bandwidth gradient between them.
package transport
