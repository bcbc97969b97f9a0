package mesh

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aidcollective/meshcore/pkg/types"
)

// seenCache is the bounded loop-freedom guard: every message id the
// manager has already processed (received directly or relayed) is
// remembered so a re-broadcast of the same message is dropped instead
// of circulating the mesh forever (spec.md §4.5: "a bounded cache of
// recently seen message ids prevents routing loops").
type seenCache struct {
	cache *lru.Cache[types.MessageID, struct{}]
}

func newSeenCache(size int) (*seenCache, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[types.MessageID, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &seenCache{cache: c}, nil
}

// markSeen records id and reports whether it had already been seen.
func (s *seenCache) markSeen(id types.MessageID) (alreadySeen bool) {
	if s.cache.Contains(id) {
		return true
	}
	s.cache.Add(id, struct{}{})
	return false
}
