package stages

import (
	"sort"

	"github.com/gputfe/tfe/timeflow"
	"github.com/gputfe/tfe/timeq"
)

// barrierKey identifies one barrier instance within a cluster.
type barrierKey struct {
	ClusterID int
	BarrierID int
}

// barrierEntry tracks arrivals for one (cluster, barrier) instance between
// the first arrival and its release.
type barrierEntry struct {
	arrived  map[int]bool
	expected int
	released bool
}

// Barrier implements the arrival/release state machine of spec.md §4.5: a
// set of arrived warps accumulates per (cluster, barrier_id); once the set
// reaches expected_warps, a release is scheduled on the underlying timed
// station so the release itself still costs BaseLatency cycles, and the
// full arrived set is emitted together when that ticket becomes ready.
type Barrier struct {
	q       *timeflow.SimpleTimedQueue[[]int]
	entries map[barrierKey]*barrierEntry
}

func NewBarrier(enabled bool, cfg timeq.ServerConfig) *Barrier {
	return &Barrier{
		q:       timeflow.NewSimpleTimedQueue[[]int](enabled, cfg),
		entries: make(map[barrierKey]*barrierEntry),
	}
}

// Arrive records warpID's arrival at the named barrier. When the arrival
// set reaches expectedWarps, it schedules a release and returns the ticket
// for the caller's bookkeeping; scheduled is false while still waiting for
// more arrivals.
func (b *Barrier) Arrive(now timeq.Cycle, clusterID, barrierID, warpID, expectedWarps int) (ticket timeq.Ticket, scheduled bool, reject *timeflow.Reject) {
	key := barrierKey{ClusterID: clusterID, BarrierID: barrierID}
	e, ok := b.entries[key]
	if !ok {
		e = &barrierEntry{arrived: make(map[int]bool), expected: expectedWarps}
		b.entries[key] = e
	}
	e.arrived[warpID] = true
	if len(e.arrived) < e.expected || e.released {
		return timeq.Ticket{}, false, nil
	}

	warps := make([]int, 0, len(e.arrived))
	for w := range e.arrived {
		warps = append(warps, w)
	}
	sort.Ints(warps)

	ticket, rej := b.q.TryIssue(now, warps, 0)
	if rej != nil {
		return timeq.Ticket{}, false, rej
	}
	e.released = true
	return ticket, true, nil
}

// Tick drains any releases ready at now, handing each full arrived-warp set
// to onRelease and clearing that barrier instance so it can be reused by a
// later threadblock.
func (b *Barrier) Tick(now timeq.Cycle, onRelease func(clusterID, barrierID int, warps []int)) {
	b.q.Tick(now, func(warps []int) {
		for key, e := range b.entries {
			if e.released && sameWarpSet(e.arrived, warps) {
				onRelease(key.ClusterID, key.BarrierID, warps)
				delete(b.entries, key)
				return
			}
		}
	})
}

func sameWarpSet(arrived map[int]bool, warps []int) bool {
	if len(arrived) != len(warps) {
		return false
	}
	for _, w := range warps {
		if !arrived[w] {
			return false
		}
	}
	return true
}
