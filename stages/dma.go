package stages

import (
	"github.com/gputfe/tfe/timeflow"
	"github.com/gputfe/tfe/timeq"
)

// DMARequest is a bulk transfer issued outside the regular gmem pipeline
// (host<->device copies, prefetch streams).
type DMARequest struct {
	ID    uint64
	Bytes uint32
}

// DMA is a single bandwidth-modeled queue: latency is base_latency plus
// ceil(bytes/bytes_per_cycle), same as any other TimedServer station, with
// a running completed-transfer counter restored from the source
// (timeflow/dma.rs).
type DMA struct {
	q         *timeflow.SimpleTimedQueue[*DMARequest]
	completed uint64
}

func NewDMA(enabled bool, cfg timeq.ServerConfig) *DMA {
	return &DMA{q: timeflow.NewSimpleTimedQueue[*DMARequest](enabled, cfg)}
}

func (s *DMA) TryIssue(now timeq.Cycle, req *DMARequest) (timeq.Ticket, *timeflow.Reject) {
	return s.q.TryIssue(now, req, req.Bytes)
}

func (s *DMA) Tick(now timeq.Cycle, onReady func(*DMARequest)) {
	s.q.Tick(now, func(r *DMARequest) {
		s.completed++
		onReady(r)
	})
}

func (s *DMA) Completed() uint64 { return s.completed }
