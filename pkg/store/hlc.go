package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/aidcollective/meshcore/pkg/types"
)

// HLC is a hybrid logical clock: a wall-clock millisecond reading plus
// a logical counter that breaks ties when multiple changes land in the
// same millisecond. Combined with the creator id it gives every field
// update a total order for last-writer-wins, independent of which
// replica observes it first.
type HLC struct {
	WallMillis int64
	Logical    uint32
}

// Compare returns -1, 0, or 1. Ties on WallMillis break on Logical;
// remaining ties are broken by the caller comparing creator ids, so
// LWW never depends on which replica runs the comparison.
func (h HLC) Compare(o HLC) int {
	switch {
	case h.WallMillis != o.WallMillis:
		if h.WallMillis < o.WallMillis {
			return -1
		}
		return 1
	case h.Logical != o.Logical:
		if h.Logical < o.Logical {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (h HLC) String() string { return fmt.Sprintf("%d.%d", h.WallMillis, h.Logical) }

// clock generates monotonically non-decreasing HLC values even across
// out-of-order wall-clock readings on the same node.
type clock struct {
	mu   sync.Mutex
	last HLC
	now  func() time.Time
}

func newClock() *clock { return &clock{now: time.Now} }

func (c *clock) tick() HLC {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if wall > c.last.WallMillis {
		c.last = HLC{WallMillis: wall, Logical: 0}
	} else {
		c.last.Logical++
	}
	return c.last
}

// observe folds in an HLC seen from a remote change, per the standard
// HLC merge rule, so the local clock never regresses behind a peer's.
func (c *clock) observe(remote HLC) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	max := c.last
	if remote.Compare(max) > 0 {
		max = remote
	}
	if wall > max.WallMillis {
		c.last = HLC{WallMillis: wall, Logical: 0}
		return
	}
	c.last = HLC{WallMillis: max.WallMillis, Logical: max.Logical + 1}
}

// lwwWins reports whether a change from (hlc, actor) should overwrite
// the current register valued at (curHLC, curActor). Actor id is the
// final tiebreaker so the outcome never depends on arrival order.
func lwwWins(hlc HLC, actor types.PeerID, curHLC HLC, curActor types.PeerID) bool {
	switch hlc.Compare(curHLC) {
	case 1:
		return true
	case -1:
		return false
	default:
		return actor > curActor
	}
}
