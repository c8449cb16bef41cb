package gmem

// Split breaks a warp-wide request into its per-line children
// (original_source's split_gmem_request). Flush kinds bypass splitting
// entirely (spec.md §4.3): a flush touches every line in the target cache,
// not a lane-address set, so there is nothing to coalesce. If the request
// already carries CoalescedLines (the coalescer having grouped lane
// addresses into distinct lines upstream), one fixed-size child is emitted
// per entry; otherwise a single child is derived from the request's own
// Addr, matching the source's single-line fallback.
func Split(req *Request, lineBytes uint32) []*Request {
	if req.IsFlush() {
		return []*Request{req}
	}

	lines := req.CoalescedLines
	if len(lines) == 0 {
		lines = []uint64{LineAddr(req.Addr, lineBytes)}
	}

	children := make([]*Request, 0, len(lines))
	for _, line := range lines {
		children = append(children, &Request{
			ID:              req.ID,
			CoreID:          req.CoreID,
			ClusterID:       req.ClusterID,
			WarpID:          req.WarpID,
			Addr:            line,
			LineAddr:        line,
			Bytes:           lineBytes,
			ActiveLanes:     req.ActiveLanes,
			Kind:            req.Kind,
			StallOnComplete: req.StallOnComplete,
			IssueAt:         req.IssueAt,
		})
	}
	return children
}
