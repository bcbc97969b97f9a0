// Package mesh implements C5. One Manager per node owns every
// transport adapter (pkg/transport), the peer table, and the
// announce/sync-request/sync-response protocol sequence:
//
//	peer discovered  ──▶  announce/Upsert  ──▶  sync-request
//	                                              │
//	                                              ▼
//	                                       sync-response (via SyncDelegate)
//
// Broadcast messages relay with TTL decrement through every other
// known peer, guarded against loops by a bounded seen-id cache.
// Directed sends that fail on every reachable adapter fall through to
// the DTN bundle layer via BundleSink, so the manager never blocks
// waiting for a peer that has gone out of range.
package mesh
