// Package store, the C3 Document Store:
//
//	┌─────────────┐   Commit(ops)    ┌──────────────────┐
//	│   caller    │ ───────────────▶ │     Document      │
//	│ (bridge,    │                  │  (hash-DAG +      │
//	│  domain     │ ◀─────────────── │  field CRDTs)      │
//	│  modules)   │   change events  └─────────┬─────────┘
//	└─────────────┘                             │ append
//	                                            ▼
//	                                   ┌──────────────────┐
//	                                   │   Store (bbolt)   │
//	                                   │  changes bucket    │
//	                                   └──────────────────┘
//
// Every commit becomes one content-addressed Change node; two replicas
// that have applied the same set of Changes converge to the same
// materialized records no matter what order they received them in,
// because every field CRDT in use (last-writer-wins register,
// grow-only set, RGA sequence) is individually commutative and
// idempotent. Document.CausalSummary/ComputeDelta give the sync
// scheduler (C8) a minimal-delta sync protocol without needing a
// global order over the DAG.
package store
