package smem

import (
	"fmt"
	"sync"

	"github.com/gputfe/tfe/timeq"
)

// Subgraph is the shared per-cluster bank/sub-bank pipeline: one timed
// station per (bank, sub-bank) pair, arbitrated under a single
// writer-exclusive mutex the same way clustermem.ClusterGmemGraph is
// (spec.md §5).
type Subgraph struct {
	mu       sync.Mutex
	banks    int
	subbanks int
	stations []*timeq.TimedServer[*Request]
	ready    []*Request
}

// NewSubgraph builds banks*subbanks independent stations, all sharing cfg.
func NewSubgraph(banks, subbanks int, cfg timeq.ServerConfig) *Subgraph {
	if banks <= 0 {
		banks = 1
	}
	if subbanks <= 0 {
		subbanks = 1
	}
	s := &Subgraph{banks: banks, subbanks: subbanks}
	s.stations = make([]*timeq.TimedServer[*Request], banks*subbanks)
	for i := range s.stations {
		s.stations[i] = timeq.NewTimedServer[*Request](cfg)
	}
	return s
}

func (s *Subgraph) index(bank, subbank int) int {
	return bank*s.subbanks + subbank
}

// Name describes a station for diagnostics/logging.
func (s *Subgraph) Name(bank, subbank int) string {
	return fmt.Sprintf("smem[bank=%d,subbank=%d]", bank, subbank)
}

// TryAdmit attempts to admit one bank-group of a split request. wordBytes
// is the per-word byte size used so ConflictDeg maps directly to replay
// cycles through the station's bandwidth limit.
func (s *Subgraph) TryAdmit(now timeq.Cycle, req *Request, wordBytes uint32) (timeq.Ticket, *timeq.Backpressure[*Request]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	station := s.stations[s.index(req.Bank, req.Subbank)]
	bytes := uint32(req.ConflictDeg) * wordBytes
	return station.TryEnqueue(now, timeq.NewServiceRequest(req, bytes))
}

// Tick advances every bank/sub-bank station once for the whole cluster
// (not once per core, the same rule clustermem.ClusterGmemGraph follows),
// buffering completions for CollectCompletions to drain per core.
func (s *Subgraph) Tick(now timeq.Cycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.stations {
		st.ServiceReady(now, func(r timeq.ServiceResult[*Request]) {
			s.ready = append(s.ready, r.Payload)
		})
	}
}

// CollectCompletions drains every bank-group completed by the last Tick
// that belongs to coreID. Called once per core per cycle, after Tick; fan-in
// across a single warp-wide access's bank-groups is the caller's
// (core.Model's) responsibility, mirroring how gmem's MSHR fan-in lives one
// layer up from the station itself.
func (s *Subgraph) CollectCompletions(coreID int, now timeq.Cycle) []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Request
	remaining := s.ready[:0]
	for _, r := range s.ready {
		if r.CoreID == coreID {
			out = append(out, r)
		} else {
			remaining = append(remaining, r)
		}
	}
	s.ready = remaining
	return out
}

// Outstanding sums in-flight bank-groups across every station.
func (s *Subgraph) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, st := range s.stations {
		total += st.Outstanding()
	}
	return total
}
