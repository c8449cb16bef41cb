// Package smem implements the shared-memory bank/sub-bank pipeline: a
// warp-wide access is split per bank, and every lane landing on the same
// bank replays serially, one service cycle per lane (the conflict degree),
// regardless of whether any of those lanes target the same word
// (spec.md §4.4).
package smem

// Request is one bank's share of a split warp-wide shared-memory access.
type Request struct {
	ID          uint64
	CoreID      int
	WarpID      int
	Bank        int
	Subbank     int
	Addrs       []uint64 // every lane address landing on this bank, in issue order
	ConflictDeg int       // len(Addrs); 1 means no conflict
	IsStore     bool
}

// Conflict summarizes one bank's replay cost for a single warp access.
type Conflict struct {
	Bank        int
	Degree      int
	BroadcastOK bool
}
