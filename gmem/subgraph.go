package gmem

import "github.com/gputfe/tfe/timeq"

// ClusterPort is the shared-tier surface a per-core Subgraph needs from the
// cluster-level graph (clustermem.ClusterGmemGraph implements it). Keeping
// it as an interface here, rather than importing clustermem directly, keeps
// gmem free of a dependency on the package that depends on it.
type ClusterPort interface {
	TryAdmitL1(now timeq.Cycle, coreID int, req *Request) (timeq.Ticket, *Reject)
	CollectCompletions(coreID int, now timeq.Cycle) []*Request
}

// Subgraph is the private per-core ingress/coalesce/L0 pipeline: it splits
// a warp-wide request into per-line children, resolves the private L0
// cache and MSHR locally, and hands any remaining miss on to the shared
// cluster tiers through ClusterPort (spec.md §4.3).
type Subgraph struct {
	cfg       PolicyConfig
	coreID    int
	clusterID int
	l0        *CacheTagArray
	mshr      *MSHRTable
	admission *Admission
	flush     *timeq.TimedServer[*Request]
	cluster   ClusterPort

	stats Stats

	local []*Request // L0-hit children completed this cycle, not needing the cluster
}

// NewSubgraph builds a core's gmem pipeline.
func NewSubgraph(cfg PolicyConfig, coreID, clusterID int, cluster ClusterPort, admissionCfg, flushCfg timeq.ServerConfig) *Subgraph {
	return &Subgraph{
		cfg:       cfg,
		coreID:    coreID,
		clusterID: clusterID,
		l0:        NewCacheTagArray(cfg.L0Sets, cfg.L0Ways),
		mshr:      NewMSHRTable(cfg.MSHRCapacity),
		admission: NewAdmission(admissionCfg),
		flush:     timeq.NewTimedServer[*Request](flushCfg),
		cluster:   cluster,
	}
}

// Stats returns the accumulated counters for this core's pipeline.
func (s *Subgraph) Stats() *Stats { return &s.stats }

// Rejected pairs a split child that failed to admit with its retry reason,
// so a caller can retry exactly that child later via IssueRetry instead of
// re-splitting and re-deciding the whole parent request.
type Rejected struct {
	Child *Request
	Retry Reject
}

// Issue submits a warp-wide request, returning the number of split children
// it produced (so the caller can track warp-level retirement: the request
// isn't done until all childCount children have completed) and the subset
// of children that could not be admitted this cycle. Children that did
// admit keep their progress (L0/MSHR state already applied); only the
// rejected children need retrying, at the warp-level retry granularity
// the rest of the engine uses.
func (s *Subgraph) Issue(now timeq.Cycle, req *Request) (childCount int, rejected []Rejected) {
	if req.IsFlush() {
		if rej := s.issueFlush(now, req); rej != nil {
			return 1, []Rejected{{Child: req, Retry: *rej}}
		}
		return 1, nil
	}

	children := Split(req, s.cfg.L0LineBytes)
	for _, child := range children {
		if rej := s.admitChild(now, child, req.Kind); rej != nil {
			rejected = append(rejected, Rejected{Child: child, Retry: *rej})
		}
	}
	return len(children), rejected
}

// IssueRetry re-attempts admission for a single previously-split child
// returned by Issue's Rejected list. Unlike Issue, it never re-runs the
// L0/hit decision (already stamped on the child the first time); only the
// MSHR/cluster admission step is retried, since re-deciding a hit/miss on
// retry would let the same child flip outcome across cycles.
func (s *Subgraph) IssueRetry(now timeq.Cycle, child *Request) *Reject {
	if child.IsFlush() {
		return s.issueFlush(now, child)
	}
	return s.admitDecidedChild(now, child)
}

// admitChild runs the full per-child pipeline: L0 probe/decide, then (on
// miss) MSHR coalescing or a fresh cluster admission.
func (s *Subgraph) admitChild(now timeq.Cycle, child *Request, kind Kind) *Reject {
	s.stats.RecordIssue(child.Bytes)
	key := HashU64(child.LineAddr ^ uint64(child.CoreID) ^ s.cfg.Seed)
	hit := s.l0.Probe(child.LineAddr) && Decide(s.cfg.L0HitRate, key)
	child.L0Hit = hit
	s.stats.RecordL0(hit)
	if hit {
		s.l0.Touch(child.LineAddr)
		s.local = append(s.local, child)
		return nil
	}
	s.l0.Fill(child.LineAddr)

	child.L1Bank = BankFor(child.LineAddr, uint64(s.cfg.L1Banks), 0x9e3779b97f4a7c15)
	child.L2Bank = BankFor(child.LineAddr, uint64(s.cfg.L2Banks), 0xc2b2ae3d27d4eb4f)
	child.L1Writeback = kind == Store && Decide(s.cfg.L1WritebackRate, key^1)
	child.L2Writeback = kind == Store && Decide(s.cfg.L2WritebackRate, key^2)

	if s.mshr.HasEntry(child.LineAddr) {
		s.mshr.MergeRequest(child.LineAddr, child)
		s.stats.RecordMshrMerge()
		return nil
	}

	if _, err := s.mshr.EnsureEntry(child.LineAddr); err != nil {
		return &Reject{RetryAt: uint64(timeq.NormalizeRetry(now, now)), Reason: QueueFull}
	}

	if _, bp := s.admission.TryAdmit(now, child.LineAddr); bp != nil {
		s.mshr.RemoveEntry(child.LineAddr)
		return &Reject{RetryAt: uint64(timeq.NormalizeRetry(now, bp.AvailableAt)), Reason: mapReason(bp.Reason)}
	}

	s.mshr.MergeRequest(child.LineAddr, child)

	if _, clusterReject := s.cluster.TryAdmitL1(now, s.coreID, child); clusterReject != nil {
		s.mshr.RemoveEntry(child.LineAddr)
		return clusterReject
	}
	return nil
}

// admitDecidedChild retries MSHR coalescing or cluster admission for a
// child whose L0/bank/writeback decisions are already final (used by
// IssueRetry for a child that Issue rejected at the MSHR, admission or
// cluster step). The admission rate limiter is not consulted again.
func (s *Subgraph) admitDecidedChild(now timeq.Cycle, child *Request) *Reject {
	if s.mshr.HasEntry(child.LineAddr) {
		s.mshr.MergeRequest(child.LineAddr, child)
		s.stats.RecordMshrMerge()
		return nil
	}

	if _, err := s.mshr.EnsureEntry(child.LineAddr); err != nil {
		return &Reject{RetryAt: uint64(timeq.NormalizeRetry(now, now)), Reason: QueueFull}
	}
	s.mshr.MergeRequest(child.LineAddr, child)

	if _, clusterReject := s.cluster.TryAdmitL1(now, s.coreID, child); clusterReject != nil {
		s.mshr.RemoveEntry(child.LineAddr)
		return clusterReject
	}
	return nil
}

func (s *Subgraph) issueFlush(now timeq.Cycle, req *Request) *Reject {
	s.stats.RecordIssue(s.cfg.FlushBytes)
	_, bp := s.flush.TryEnqueue(now, timeq.NewServiceRequest(req, s.cfg.FlushBytes))
	if bp == nil {
		return nil
	}
	retry := bp.AvailableAt
	if bp.Reason == timeq.QueueFull {
		if oldest, ok := s.flush.OldestTicket(); ok {
			retry = oldest.ReadyAt
		}
	}
	return &Reject{RetryAt: uint64(timeq.NormalizeRetry(now, retry)), Reason: mapReason(bp.Reason)}
}

// Tick drains the admission rate limiter's ready slots (freeing room for
// next cycle's TryAdmit calls), advances the local flush queue, and
// collects cluster completions that belong to this core, fanning
// MSHR-merged completions back out to every coalesced request.
func (s *Subgraph) Tick(now timeq.Cycle) []*Request {
	var done []*Request

	s.admission.Drain(now, func(uint64) {})

	s.flush.ServiceReady(now, func(r timeq.ServiceResult[*Request]) {
		if r.Payload.Kind == FlushL0 {
			s.l0.InvalidateAll()
		}
		s.stats.RecordCompletion(s.cfg.FlushBytes)
		done = append(done, r.Payload)
	})

	for _, child := range s.local {
		s.stats.RecordCompletion(child.Bytes)
		done = append(done, child)
	}
	s.local = nil

	for _, completed := range s.cluster.CollectCompletions(s.coreID, now) {
		s.mshr.SetReadyAt(completed.LineAddr, timeq.Cycle(now))
		merged := s.mshr.RemoveEntry(completed.LineAddr)
		for _, m := range merged {
			s.stats.RecordCompletion(m.Bytes)
			done = append(done, m)
		}
	}

	s.stats.SetCompletionQueueLen(len(done))
	return done
}

func mapReason(r timeq.RejectReason) RejectReason {
	if r == timeq.Busy {
		return Busy
	}
	return QueueFull
}
