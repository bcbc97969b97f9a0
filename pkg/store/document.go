// Package store implements C3, the per-node document store: a
// bespoke hash-DAG causal history over field-level CRDTs (spec.md §4.1
// Design Notes explicitly sanction "a bespoke hash-DAG implementation"
// in place of an opaque third-party CRDT library). Every change is
// content-addressed by SHA-256 over its canonical encoding and names
// its causal parents explicitly, so two replicas that have applied the
// same set of changes converge to the same materialized state
// regardless of the order they received them in — each field CRDT
// (last-writer-wins register, grow-only set, RGA sequence) is
// individually commutative and idempotent, and the DAG only has to
// track "which changes exist", not impose an order on them.
package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aidcollective/meshcore/pkg/events"
	"github.com/aidcollective/meshcore/pkg/meshcoreerr"
	"github.com/aidcollective/meshcore/pkg/types"
)

// ChangeID is a SHA-256 digest identifying a Change by content.
type ChangeID [32]byte

func (c ChangeID) String() string { return fmt.Sprintf("%x", [32]byte(c)) }

func (c ChangeID) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *ChangeID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s) != 64 {
		return fmt.Errorf("store: malformed change id %q", s)
	}
	for i := 0; i < 32; i++ {
		var v int
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &v); err != nil {
			return err
		}
		c[i] = byte(v)
	}
	return nil
}

// OpKind enumerates the field-level CRDT operations a Change can carry.
type OpKind byte

const (
	OpSetScalar OpKind = iota + 1
	OpSetAdd
	OpSeqInsert
	OpSeqRemove
	OpTombstone
)

// FieldOp is one field-level mutation within a Change. Every op names
// the record it targets; the store creates the record's RecordMeta
// lazily on first touch.
type FieldOp struct {
	Key       types.RecordKey
	Field     string
	Kind      OpKind
	Value     types.Scalar `json:",omitempty"`
	ElementID string       `json:",omitempty"` // OpSeqInsert/OpSeqRemove
	OriginID  string       `json:",omitempty"` // OpSeqInsert: predecessor element id
}

// Change is one node of the hash-DAG: a batch of field ops plus the
// causal parents it was built on top of.
type Change struct {
	ID      ChangeID   `json:"id"`
	Parents []ChangeID `json:"parents"`
	Ops     []FieldOp  `json:"ops"`
	HLC     HLC        `json:"hlc"`
	Actor   types.PeerID `json:"actor"`
}

// canonicalBytes is the exact byte sequence hashed to produce a
// Change's ID: parents, ops, hlc and actor, JSON-encoded. Struct field
// order is fixed by the Go type, so this is deterministic across
// replicas without a custom canonicalizer.
func (c *Change) canonicalBytes() ([]byte, error) {
	return json.Marshal(struct {
		Parents []ChangeID   `json:"parents"`
		Ops     []FieldOp    `json:"ops"`
		HLC     HLC          `json:"hlc"`
		Actor   types.PeerID `json:"actor"`
	}{c.Parents, c.Ops, c.HLC, c.Actor})
}

func (c *Change) computeID() (ChangeID, error) {
	b, err := c.canonicalBytes()
	if err != nil {
		return ChangeID{}, err
	}
	return sha256.Sum256(b), nil
}

type lwwRegister struct {
	value types.Scalar
	hlc   HLC
	actor types.PeerID
	set   bool
}

type recordState struct {
	meta      types.RecordMeta
	scalars   map[string]*lwwRegister
	sets      map[string]*growOnlySet
	sequences map[string]*rga
}

func newRecordState(key types.RecordKey, creator types.PeerID, createdAt time.Time) *recordState {
	return &recordState{
		meta:      types.RecordMeta{ID: key.ID, Type: key.Type, Creator: creator, CreatedAt: createdAt},
		scalars:   make(map[string]*lwwRegister),
		sets:      make(map[string]*growOnlySet),
		sequences: make(map[string]*rga),
	}
}

func (r *recordState) fields() map[string]types.FieldValue {
	out := make(map[string]types.FieldValue, len(r.scalars)+len(r.sets)+len(r.sequences))
	for name, reg := range r.scalars {
		v := reg.value
		out[name] = types.FieldValue{Scalar: &v}
	}
	for name, s := range r.sets {
		seq := make([]types.Scalar, 0, len(s.elements))
		for _, m := range s.members() {
			seq = append(seq, decodeSetMember(m))
		}
		out[name] = types.FieldValue{Sequence: seq}
	}
	for name, seq := range r.sequences {
		out[name] = types.FieldValue{Sequence: seq.materialize()}
	}
	return out
}

// decodeSetMember round-trips a Scalar through scalarKey so growOnlySet can
// dedupe structurally-equal values while still returning real Scalars
// to callers.
func decodeSetMember(key string) types.Scalar {
	if len(key) < 2 {
		return types.Scalar{}
	}
	switch key[:2] {
	case "s:":
		s := key[2:]
		return types.StrScalar(s)
	case "b:":
		return types.BoolScalar(key[2:] == "true")
	case "n:":
		if f, err := parseFloat(key[2:]); err == nil {
			return types.NumScalar(f)
		}
		return types.Scalar{}
	default:
		return types.Scalar{}
	}
}

func (r *recordState) clone() *recordState {
	cp := &recordState{
		meta:      r.meta,
		scalars:   make(map[string]*lwwRegister, len(r.scalars)),
		sets:      make(map[string]*growOnlySet, len(r.sets)),
		sequences: make(map[string]*rga, len(r.sequences)),
	}
	for k, v := range r.scalars {
		reg := *v
		cp.scalars[k] = &reg
	}
	for k, v := range r.sets {
		cp.sets[k] = v.clone()
	}
	for k, v := range r.sequences {
		cp.sequences[k] = v.clone()
	}
	return cp
}

// Document is a single node's materialized view of the shared
// hash-DAG, plus the bookkeeping needed to compute minimal sync deltas
// against a peer.
type Document struct {
	mu        sync.RWMutex
	clock     *clock
	actor     types.PeerID
	changes   map[ChangeID]*Change
	frontier  map[ChangeID]struct{}
	records   map[types.RecordKey]*recordState
	commitSeq uint64
	broker    *events.Broker
}

// NewDocument creates an empty document for a node identified by
// actor. broker may be nil if no one needs the change feed.
func NewDocument(actor types.PeerID, broker *events.Broker) *Document {
	return &Document{
		clock:    newClock(),
		actor:    actor,
		changes:  make(map[ChangeID]*Change),
		frontier: make(map[ChangeID]struct{}),
		records:  make(map[types.RecordKey]*recordState),
		broker:   broker,
	}
}

func (d *Document) sortedFrontier() []ChangeID {
	out := make([]ChangeID, 0, len(d.frontier))
	for id := range d.frontier {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Commit applies ops atomically, recording one new Change whose
// parents are the document's current frontier.
func (d *Document) Commit(ops []FieldOp) (ChangeID, error) {
	if len(ops) == 0 {
		return ChangeID{}, meshcoreerr.New(meshcoreerr.KindValidation, "empty-commit", fmt.Errorf("commit requires at least one op"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	hlc := d.clock.tick()
	change := &Change{
		Parents: d.sortedFrontier(),
		Ops:     ops,
		HLC:     hlc,
		Actor:   d.actor,
	}
	id, err := change.computeID()
	if err != nil {
		return ChangeID{}, meshcoreerr.New(meshcoreerr.KindStorage, "hash-failed", err)
	}
	change.ID = id

	if _, exists := d.changes[id]; exists {
		// a change with this exact id is already in the history; every
		// Commit takes a fresh HLC tick, so repeating a call with the
		// same ops records a new change rather than landing here.
		return id, nil
	}

	d.applyChangeLocked(change)
	return id, nil
}

// applyChangeLocked applies a change's ops to materialized state and
// updates DAG bookkeeping. Caller must hold d.mu.
func (d *Document) applyChangeLocked(change *Change) {
	d.changes[change.ID] = change
	for _, p := range change.Parents {
		delete(d.frontier, p)
	}
	d.frontier[change.ID] = struct{}{}

	touched := make([]types.RecordKey, 0, len(change.Ops))
	for _, op := range change.Ops {
		d.applyOpLocked(op, change.HLC, change.Actor)
		touched = append(touched, op.Key)
	}
	d.commitSeq++

	if d.broker != nil {
		d.broker.Publish(&types.ChangeEvent{Keys: dedupeKeys(touched), CommitSeq: d.commitSeq})
	}
}

func dedupeKeys(keys []types.RecordKey) []types.RecordKey {
	seen := make(map[types.RecordKey]struct{}, len(keys))
	out := make([]types.RecordKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func (d *Document) applyOpLocked(op FieldOp, hlc HLC, actor types.PeerID) {
	rec, ok := d.records[op.Key]
	if !ok {
		rec = newRecordState(op.Key, actor, hlc.asTime())
		d.records[op.Key] = rec
	}

	switch op.Kind {
	case OpSetScalar:
		cur, have := rec.scalars[op.Field]
		if !have || lwwWins(hlc, actor, cur.hlc, cur.actor) {
			rec.scalars[op.Field] = &lwwRegister{value: op.Value, hlc: hlc, actor: actor, set: true}
		}
	case OpSetAdd:
		s, have := rec.sets[op.Field]
		if !have {
			s = newGrowOnlySet()
			rec.sets[op.Field] = s
		}
		s.add(scalarKey(op.Value))
	case OpSeqInsert:
		seq, have := rec.sequences[op.Field]
		if !have {
			seq = newRGA()
			rec.sequences[op.Field] = seq
		}
		seq.insert(op.ElementID, op.OriginID, op.Value)
	case OpSeqRemove:
		if seq, have := rec.sequences[op.Field]; have {
			seq.remove(op.ElementID)
		}
	case OpTombstone:
		rec.meta.Tombstone = true
	}
}

// asTime converts an HLC's wall component back to a time.Time, used
// only to stamp RecordMeta.CreatedAt on first touch.
func (h HLC) asTime() time.Time { return time.UnixMilli(h.WallMillis) }

// ApplyChanges merges changes received from a peer (already in
// whatever order the wire delivered them — the DAG only needs the set,
// not an order) and returns how many were new. Already-known changes
// are skipped, which is what makes repeated sync rounds idempotent.
func (d *Document) ApplyChanges(remote []*Change) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	applied := 0
	for _, change := range remote {
		if change == nil {
			continue
		}
		wantID, err := change.computeID()
		if err != nil {
			return applied, meshcoreerr.New(meshcoreerr.KindProtocol, "hash-failed", err)
		}
		if wantID != change.ID {
			return applied, meshcoreerr.New(meshcoreerr.KindValidation, meshcoreerr.CodeConflictInvariant,
				fmt.Errorf("change id does not match its content"))
		}
		if _, known := d.changes[change.ID]; known {
			continue
		}
		d.clock.observe(change.HLC)
		d.applyChangeLocked(change)
		applied++
	}
	return applied, nil
}

// CausalSummary returns the document's current frontier — the compact
// causal position a peer needs to compute a minimal delta against.
// Its size tracks the amount of concurrent, not-yet-converged history
// rather than total history length, so in the common low-conflict
// case it stays small even as the document grows (spec.md §4.1:
// "summaries are compact").
func (d *Document) CausalSummary() []ChangeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sortedFrontier()
}

// ComputeDelta returns the changes this document has that a peer whose
// frontier is remoteFrontier does not.
func (d *Document) ComputeDelta(remoteFrontier []ChangeID) []*Change {
	d.mu.RLock()
	defer d.mu.RUnlock()

	known := make(map[ChangeID]struct{}, len(remoteFrontier))
	queue := append([]ChangeID(nil), remoteFrontier...)
	for _, id := range remoteFrontier {
		known[id] = struct{}{}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		change, ok := d.changes[id]
		if !ok {
			// Remote's frontier references a change we've never seen
			// (can happen if remote is ahead of us too); treat it as a
			// boundary we can't walk past.
			continue
		}
		for _, p := range change.Parents {
			if _, seen := known[p]; !seen {
				known[p] = struct{}{}
				queue = append(queue, p)
			}
		}
	}

	delta := make([]*Change, 0)
	for id, change := range d.changes {
		if _, ok := known[id]; ok {
			continue
		}
		delta = append(delta, change)
	}
	sort.Slice(delta, func(i, j int) bool { return delta[i].ID.String() < delta[j].ID.String() })
	return delta
}

// Get returns a record's envelope and materialized fields.
func (d *Document) Get(key types.RecordKey) (types.RecordMeta, map[string]types.FieldValue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[key]
	if !ok {
		return types.RecordMeta{}, nil, false
	}
	return rec.meta, rec.fields(), true
}

// List returns every known record key of the given type (pass "" for
// all types), including tombstoned records.
func (d *Document) List(recordType types.RecordType) []types.RecordKey {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]types.RecordKey, 0, len(d.records))
	for key := range d.records {
		if recordType != "" && key.Type != recordType {
			continue
		}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChangeCount reports how many changes are in the local history, used
// by the metrics layer and by tests asserting convergence.
func (d *Document) ChangeCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.changes)
}
