// Package syncer implements C8: it watches the document store's
// change feed, coalesces bursts of local commits into one debounced
// sync round per reachable peer, and throttles how often a peer gets
// poked so a single chatty node can't starve the rest of the mesh.
//
//	commit ──▶ broker event ──▶ debounce timer ──▶ TriggerSync(peer)
//
// Scheduler implements mesh.SyncDelegate's three methods by reading
// and writing the store's causal summary directly, so pkg/mesh never
// imports this package (wired together instead via SetRequester in
// the bridge layer).
package syncer
