package stages

import (
	"github.com/gputfe/tfe/timeflow"
	"github.com/gputfe/tfe/timeq"
)

// FenceRequest carries the warp and request identity through the fence
// ordering stage.
type FenceRequest struct {
	WarpID    int
	RequestID uint64
}

// Fence is a FIFO ordering stage: requests release in the order they were
// admitted, never out of order, regardless of which warp they belong to
// (spec.md §4.5: "releases into a FIFO of ready fences").
type Fence struct {
	q *timeflow.SimpleTimedQueue[*FenceRequest]
}

func NewFence(enabled bool, cfg timeq.ServerConfig) *Fence {
	return &Fence{q: timeflow.NewSimpleTimedQueue[*FenceRequest](enabled, cfg)}
}

func (s *Fence) TryIssue(now timeq.Cycle, req *FenceRequest) (timeq.Ticket, *timeflow.Reject) {
	return s.q.TryIssue(now, req, 0)
}

func (s *Fence) Tick(now timeq.Cycle, onReady func(*FenceRequest)) {
	s.q.Tick(now, onReady)
}
