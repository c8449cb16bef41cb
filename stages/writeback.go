package stages

import (
	"github.com/gputfe/tfe/timeflow"
	"github.com/gputfe/tfe/timeq"
)

// WritebackPayload is any completion value (gmem/smem/operand-fetch
// results) flowing through the shared writeback union stage (spec.md §4.5:
// "a single throttled union-payload stage").
type WritebackPayload any

// WritebackStats restores the source's per-queue reject-reason breakdown
// (timeflow/writeback.rs), which spec.md's distillation collapses into a
// single throttled stage with no visible counters.
type WritebackStats struct {
	Issued           uint64
	Completed        uint64
	QueueFullRejects uint64
	BusyRejects      uint64
}

func (s *WritebackStats) recordReject(reason timeq.RejectReason) {
	if reason == timeq.Busy {
		s.BusyRejects++
	} else {
		s.QueueFullRejects++
	}
}

// ClearStats resets the counters, mirroring the source's per-reporting-
// interval reset.
func (s *WritebackStats) ClearStats() { *s = WritebackStats{} }

// Writeback is the single shared retirement stage every warp's completed
// request drains through before its result is visible.
type Writeback struct {
	q     *timeflow.SimpleTimedQueue[WritebackPayload]
	stats WritebackStats
}

func NewWriteback(enabled bool, cfg timeq.ServerConfig) *Writeback {
	return &Writeback{q: timeflow.NewSimpleTimedQueue[WritebackPayload](enabled, cfg)}
}

func (s *Writeback) TryIssue(now timeq.Cycle, payload WritebackPayload, bytes uint32) (timeq.Ticket, *timeflow.Reject) {
	s.stats.Issued++
	ticket, reject := s.q.TryIssue(now, payload, bytes)
	if reject != nil {
		s.stats.recordReject(reject.Reason)
	}
	return ticket, reject
}

func (s *Writeback) Tick(now timeq.Cycle, onReady func(WritebackPayload)) {
	s.q.Tick(now, func(p WritebackPayload) {
		s.stats.Completed++
		onReady(p)
	})
}

func (s *Writeback) Stats() WritebackStats { return s.stats }
