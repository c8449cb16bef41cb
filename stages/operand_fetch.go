package stages

import (
	"github.com/gputfe/tfe/timeflow"
	"github.com/gputfe/tfe/timeq"
)

// OperandFetchRequest represents gathering a warp's source operands before
// issue.
type OperandFetchRequest struct {
	WarpID int
	Lanes  uint32
}

// OperandFetch is a single timed queue stage sitting between eligibility and
// issue.
type OperandFetch struct {
	q *timeflow.SimpleTimedQueue[*OperandFetchRequest]
}

func NewOperandFetch(enabled bool, cfg timeq.ServerConfig) *OperandFetch {
	return &OperandFetch{q: timeflow.NewSimpleTimedQueue[*OperandFetchRequest](enabled, cfg)}
}

func (s *OperandFetch) TryIssue(now timeq.Cycle, req *OperandFetchRequest, bytes uint32) (timeq.Ticket, *timeflow.Reject) {
	return s.q.TryIssue(now, req, bytes)
}

func (s *OperandFetch) Tick(now timeq.Cycle, onReady func(*OperandFetchRequest)) {
	s.q.Tick(now, onReady)
}
