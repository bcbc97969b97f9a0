// Package bridge implements C9, the only surface a domain module or
// UI should import from this core. Every other package (store, mesh,
// bundle, session, syncer, transport) is reachable only indirectly,
// through the methods here:
//
//	identity ──▶ Bridge.Open ──▶ doc store + bundle store + trust table
//	                              │
//	                              ├─▶ mesh.Manager  (BundleSink, SyncDelegate)
//	                              └─▶ syncer.Scheduler (Requester)
//
// Domain modules register per-record-type invariants and subscribe to
// the change feed; nothing outside this package ever sees a
// store.FieldOp construct a mesh.Message directly.
package bridge
