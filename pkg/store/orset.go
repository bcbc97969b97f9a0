package store

import "github.com/aidcollective/meshcore/pkg/types"

// growOnlySet is the set CRDT spec.md §4.1 requires: elements are only
// ever added, so merge is a plain union — commutative, associative,
// and idempotent by construction. Soft-delete of a whole record
// (RecordMeta.Tombstone) is how items stop being "live"; individual
// elements are never removed from the set itself.
type growOnlySet struct {
	elements map[string]struct{}
}

func newGrowOnlySet() *growOnlySet {
	return &growOnlySet{elements: make(map[string]struct{})}
}

// add is idempotent: adding the same element twice leaves the set
// unchanged, satisfying the CRDT idempotence requirement on its own.
func (s *growOnlySet) add(elem string) {
	s.elements[elem] = struct{}{}
}

func (s *growOnlySet) members() []string {
	out := make([]string, 0, len(s.elements))
	for e := range s.elements {
		out = append(out, e)
	}
	return out
}

func (s *growOnlySet) clone() *growOnlySet {
	out := newGrowOnlySet()
	for e := range s.elements {
		out.elements[e] = struct{}{}
	}
	return out
}

func scalarKey(v types.Scalar) string {
	switch {
	case v.Str != nil:
		return "s:" + *v.Str
	case v.Num != nil:
		return "n:" + formatFloat(*v.Num)
	case v.Bool != nil:
		if *v.Bool {
			return "b:true"
		}
		return "b:false"
	default:
		return "null"
	}
}
