package gmem

// Stats accumulates per-core gmem pipeline counters for the metrics package
// to sample (spec.md §11's stage stats: issued/completed bytes plus
// backpressure counts and a completion-queue-length gauge).
type Stats struct {
	Issued             uint64
	Completed          uint64
	BusyRejects        uint64
	QueueFullRejects   uint64
	BytesIssued        uint64
	BytesCompleted     uint64
	CompletionQueueLen int
	L0Hits             uint64
	L0Misses           uint64
	L1Hits             uint64
	L1Misses           uint64
	L2Hits             uint64
	L2Misses           uint64
	MshrMerges         uint64
}

func (s *Stats) RecordIssue(bytes uint32) {
	s.Issued++
	s.BytesIssued += uint64(bytes)
}

func (s *Stats) RecordCompletion(bytes uint32) {
	s.Completed++
	s.BytesCompleted += uint64(bytes)
}

func (s *Stats) RecordBusyReject()      { s.BusyRejects++ }
func (s *Stats) RecordQueueFullReject() { s.QueueFullRejects++ }
func (s *Stats) RecordMshrMerge()       { s.MshrMerges++ }

func (s *Stats) RecordL0(hit bool) {
	if hit {
		s.L0Hits++
	} else {
		s.L0Misses++
	}
}

func (s *Stats) RecordL1(hit bool) {
	if hit {
		s.L1Hits++
	} else {
		s.L1Misses++
	}
}

func (s *Stats) RecordL2(hit bool) {
	if hit {
		s.L2Hits++
	} else {
		s.L2Misses++
	}
}

func (s *Stats) SetCompletionQueueLen(n int) {
	s.CompletionQueueLen = n
}
