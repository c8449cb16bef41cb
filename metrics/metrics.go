// Package metrics aggregates per-stage counters, latency and bank-conflict
// histograms, and hit-rate summaries into the per-cycle metrics stream of
// spec.md §6, throttled to a reporting interval. Percentile/mean
// computation over latency samples uses gonum/stat on a sorted copy of the
// samples rather than hand-rolled percentile math.
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StageCounters is the issued/completed/reject/inflight snapshot for one
// timed stage in one cycle (spec.md §6: "per-stage issued/completed/
// rejects, inflight, max-inflight, completion queue length").
type StageCounters struct {
	Issued             uint64
	Completed          uint64
	BusyRejects        uint64
	QueueFullRejects   uint64
	Inflight           int
	MaxInflight        int
	CompletionQueueLen int
}

// Record accumulates a cycle's stage counters; MaxInflight tracks the
// running high-water mark rather than the latest sample.
func (c *StageCounters) Record(issued, completed uint64, busyReject, queueFullReject bool, inflight, completionQueueLen int) {
	c.Issued += issued
	c.Completed += completed
	if busyReject {
		c.BusyRejects++
	}
	if queueFullReject {
		c.QueueFullRejects++
	}
	c.Inflight = inflight
	if inflight > c.MaxInflight {
		c.MaxInflight = inflight
	}
	c.CompletionQueueLen = completionQueueLen
}

// LatencyHistogram accumulates per-request completion latencies
// (now - issue_cycle, per spec.md §4.7 step 1) for percentile reporting.
type LatencyHistogram struct {
	samples []float64
}

// Observe records one completion latency in cycles.
func (h *LatencyHistogram) Observe(latencyCycles uint64) {
	h.samples = append(h.samples, float64(latencyCycles))
}

// Summary is the Mean/P50/P90/P99 rollup of every observed latency sample.
type Summary struct {
	Count int
	Mean  float64
	P50   float64
	P90   float64
	P99   float64
}

// Summarize computes the rollup via gonum/stat. gonum's Quantile requires
// its input sorted ascending, hence the copy-and-sort rather than sorting
// h.samples in place (Observe may still be called after a Summarize call).
func (h *LatencyHistogram) Summarize() Summary {
	if len(h.samples) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(h.samples))
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	return Summary{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}

// ConflictHistogram tallies shared-memory bank-conflict degrees observed
// across every split smem access (spec.md §4.4's compute_smem_conflict).
type ConflictHistogram struct {
	byDegree map[int]uint64
}

// Observe records one bank-group's conflict degree.
func (h *ConflictHistogram) Observe(degree int) {
	if h.byDegree == nil {
		h.byDegree = make(map[int]uint64)
	}
	h.byDegree[degree]++
}

// Counts returns the degree -> occurrence-count map, safe to range over
// even when nothing has been observed.
func (h *ConflictHistogram) Counts() map[int]uint64 {
	if h.byDegree == nil {
		return map[int]uint64{}
	}
	return h.byDegree
}

// HitRateSummary reports the running hit ratio for one cache tier.
type HitRateSummary struct {
	Hits   uint64
	Misses uint64
}

func (s *HitRateSummary) Observe(hit bool) {
	if hit {
		s.Hits++
	} else {
		s.Misses++
	}
}

// Ratio returns Hits/(Hits+Misses), or 0 when nothing has been observed.
func (s HitRateSummary) Ratio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CycleReport is one throttled sample of the metrics stream (spec.md §6's
// "metrics stream per cycle, throttled").
type CycleReport struct {
	Cycle    uint64
	Stages   map[string]StageCounters
	Latency  Summary
	Conflict map[int]uint64
	L0       HitRateSummary
	L1       HitRateSummary
	L2       HitRateSummary
}

// Aggregator assembles CycleReports at a configurable reporting interval,
// the way the teacher's sim.Metrics accumulates across a run for a single
// end-of-run Print rather than every cycle.
type Aggregator struct {
	intervalCycles uint64
	stages         map[string]*StageCounters
	latency        LatencyHistogram
	conflict       ConflictHistogram
	l0, l1, l2     HitRateSummary
}

// NewAggregator builds an aggregator reporting every intervalCycles
// cycles. intervalCycles <= 0 reports every cycle.
func NewAggregator(intervalCycles uint64) *Aggregator {
	return &Aggregator{
		intervalCycles: intervalCycles,
		stages:         make(map[string]*StageCounters),
	}
}

// Stage returns (creating if needed) the named stage's running counters.
func (a *Aggregator) Stage(name string) *StageCounters {
	s, ok := a.stages[name]
	if !ok {
		s = &StageCounters{}
		a.stages[name] = s
	}
	return s
}

func (a *Aggregator) ObserveLatency(latencyCycles uint64) { a.latency.Observe(latencyCycles) }
func (a *Aggregator) ObserveConflict(degree int)          { a.conflict.Observe(degree) }
func (a *Aggregator) ObserveL0(hit bool)                  { a.l0.Observe(hit) }
func (a *Aggregator) ObserveL1(hit bool)                  { a.l1.Observe(hit) }
func (a *Aggregator) ObserveL2(hit bool)                  { a.l2.Observe(hit) }

// ShouldReport reports whether cycle now falls on a reporting boundary.
func (a *Aggregator) ShouldReport(now uint64) bool {
	if a.intervalCycles <= 0 {
		return true
	}
	return now%a.intervalCycles == 0
}

// Report snapshots the current aggregation into a CycleReport for now.
func (a *Aggregator) Report(now uint64) CycleReport {
	stages := make(map[string]StageCounters, len(a.stages))
	for name, s := range a.stages {
		stages[name] = *s
	}
	return CycleReport{
		Cycle:    now,
		Stages:   stages,
		Latency:  a.latency.Summarize(),
		Conflict: a.conflict.Counts(),
		L0:       a.l0,
		L1:       a.l1,
		L2:       a.l2,
	}
}
