// Package stages holds the thin auxiliary timed-queue wrappers around
// issue and completion: instruction fetch, operand fetch, writeback, DMA,
// fence, and barrier (spec.md §4.5).
package stages

import (
	"github.com/gputfe/tfe/gmem"
	"github.com/gputfe/tfe/timeflow"
	"github.com/gputfe/tfe/timeq"
)

// IcacheRequest is a single fetch for one warp's next instruction block.
type IcacheRequest struct {
	WarpID int
	PC     uint64
}

// Icache is a two-station fetch stage: a low-latency hit path and a
// higher-latency miss path, selected once per request by a deterministic
// hit-rate decision so the same (seed, warp, PC) always resolves the same
// way.
type Icache struct {
	hitRate float64
	seed    uint64
	hit     *timeflow.SimpleTimedQueue[*IcacheRequest]
	miss    *timeflow.SimpleTimedQueue[*IcacheRequest]
}

// NewIcache builds the stage. enabled false bypasses both stations with
// synthetic zero-cost tickets (spec.md's disabled-stage passthrough).
func NewIcache(enabled bool, hitRate float64, seed uint64, hitCfg, missCfg timeq.ServerConfig) *Icache {
	return &Icache{
		hitRate: hitRate,
		seed:    seed,
		hit:     timeflow.NewSimpleTimedQueue[*IcacheRequest](enabled, hitCfg),
		miss:    timeflow.NewSimpleTimedQueue[*IcacheRequest](enabled, missCfg),
	}
}

// TryFetch admits req to whichever station the hit decision selects.
func (s *Icache) TryFetch(now timeq.Cycle, req *IcacheRequest, bytes uint32) (timeq.Ticket, *timeflow.Reject, bool) {
	key := gmem.HashU64(uint64(req.WarpID)<<32 ^ req.PC ^ s.seed)
	hit := gmem.Decide(s.hitRate, key)
	if hit {
		t, r := s.hit.TryIssue(now, req, bytes)
		return t, r, true
	}
	t, r := s.miss.TryIssue(now, req, bytes)
	return t, r, false
}

// Tick drains both stations.
func (s *Icache) Tick(now timeq.Cycle, onReady func(*IcacheRequest)) {
	s.hit.Tick(now, onReady)
	s.miss.Tick(now, onReady)
}
