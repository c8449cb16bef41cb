package gmem

import (
	"errors"

	"github.com/gputfe/tfe/timeq"
)

// ErrMSHRFull is returned by EnsureEntry when the table already holds
// Capacity distinct line entries and lineAddr is not among them.
var ErrMSHRFull = errors.New("gmem: mshr table at capacity")

// mshrEntry tracks the single in-flight fill for a line address and every
// request that has coalesced onto it while the fill is outstanding.
type mshrEntry struct {
	lineAddr uint64
	readyAt  timeq.Cycle
	merged   []*Request
}

// MSHRTable enforces at-most-one outstanding fill per line address
// (gmem_mshr.rs's coalescing table): a second miss to the same line merges
// onto the existing entry instead of issuing a redundant fill. The table
// itself is capacity-bounded (gmem_mshr.rs's MshrTable::capacity),
// independent of the per-cycle Admission rate limiter below: Admission
// bounds how many new misses may be admitted in a single cycle, Capacity
// bounds how many distinct lines may be outstanding at once.
type MSHRTable struct {
	capacity int
	entries  map[uint64]*mshrEntry
}

// NewMSHRTable constructs an empty table that holds at most capacity
// distinct outstanding line entries. capacity <= 0 means unbounded.
func NewMSHRTable(capacity int) *MSHRTable {
	return &MSHRTable{capacity: capacity, entries: make(map[uint64]*mshrEntry)}
}

// HasEntry reports whether lineAddr already has an outstanding fill.
func (t *MSHRTable) HasEntry(lineAddr uint64) bool {
	_, ok := t.entries[lineAddr]
	return ok
}

// EnsureEntry allocates a fresh entry for lineAddr if one doesn't already
// exist, returning whether this call created it (the caller should only
// issue a downstream fill on creation). If the table is already at
// capacity and lineAddr has no entry, it returns ErrMSHRFull and allocates
// nothing (spec.md §8 scenario 4: "attempting to allocate line 2 → Err").
func (t *MSHRTable) EnsureEntry(lineAddr uint64) (created bool, err error) {
	if _, ok := t.entries[lineAddr]; ok {
		return false, nil
	}
	if t.capacity > 0 && len(t.entries) >= t.capacity {
		return false, ErrMSHRFull
	}
	t.entries[lineAddr] = &mshrEntry{lineAddr: lineAddr}
	return true, nil
}

// MergeRequest attaches req to lineAddr's outstanding entry. The caller must
// have confirmed HasEntry first. It returns nothing: the ready cycle stored
// by SetReadyAt is not reported back to the merging caller.
func (t *MSHRTable) MergeRequest(lineAddr uint64, req *Request) {
	e, ok := t.entries[lineAddr]
	if !ok {
		return
	}
	e.merged = append(e.merged, req)
}

// SetReadyAt records when the outstanding fill for lineAddr will complete.
func (t *MSHRTable) SetReadyAt(lineAddr uint64, readyAt timeq.Cycle) {
	if e, ok := t.entries[lineAddr]; ok {
		e.readyAt = readyAt
	}
}

// RemoveEntry releases lineAddr's entry and returns every request that had
// merged onto it, so the caller can fan the single completion back out to
// all of them.
func (t *MSHRTable) RemoveEntry(lineAddr uint64) []*Request {
	e, ok := t.entries[lineAddr]
	if !ok {
		return nil
	}
	delete(t.entries, lineAddr)
	return e.merged
}

// Outstanding reports the number of distinct in-flight line fills.
func (t *MSHRTable) Outstanding() int {
	return len(t.entries)
}

// Admission rate-limits new MSHR allocations independent of line-fill
// latency itself: a configurable number of new misses may be admitted per
// cycle (spec.md's "MSHR admission" stage), wrapping the same TimedServer
// primitive used everywhere else rather than a bespoke token bucket.
type Admission struct {
	server *timeq.TimedServer[uint64]
}

// NewAdmission builds an admission gate. BaseLatency is expected to be 0;
// only CompletionsPerCycle and QueueCapacity matter here.
func NewAdmission(cfg timeq.ServerConfig) *Admission {
	return &Admission{server: timeq.NewTimedServer[uint64](cfg)}
}

// TryAdmit attempts to admit one new miss this cycle for lineAddr.
func (a *Admission) TryAdmit(now timeq.Cycle, lineAddr uint64) (timeq.Ticket, *timeq.Backpressure[uint64]) {
	return a.server.TryEnqueue(now, timeq.NewServiceRequest(lineAddr, 0))
}

// Drain releases admitted slots that have reached their ready cycle, making
// room for new admissions. onReady is invoked once per freed line address.
func (a *Admission) Drain(now timeq.Cycle, onReady func(uint64)) {
	a.server.ServiceReady(now, func(r timeq.ServiceResult[uint64]) {
		onReady(r.Payload)
	})
}
