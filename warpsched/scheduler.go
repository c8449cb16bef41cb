// Package warpsched implements the round-robin warp issue scheduler
// (spec.md §4.6): given an eligibility vector, it grants up to issue_width
// warps per cycle and advances its cursor so every eligible warp gets a
// fair share of issue slots over time.
package warpsched

// Config groups the issue-stage parameters (spec.md §6's Issue group).
type Config struct {
	Enabled    bool `yaml:"enabled"`
	IssueWidth int  `yaml:"issue_width"`
}

// Scheduler holds the round-robin cursor across calls to Select.
type Scheduler struct {
	cfg       Config
	rrCursor  int
}

// NewScheduler builds a scheduler. IssueWidth <= 0 behaves as unlimited
// (every eligible warp is granted, same as a disabled scheduler).
func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// Select grants up to IssueWidth warps from eligible, starting at the
// current cursor and wrapping around; the cursor advances to one past the
// last grant. When disabled, every eligible warp is granted and the cursor
// does not move. An all-false eligible vector grants nothing and leaves the
// cursor untouched.
func (s *Scheduler) Select(eligible []bool) []bool {
	n := len(eligible)
	grants := make([]bool, n)
	if n == 0 {
		return grants
	}

	if !s.cfg.Enabled {
		copy(grants, eligible)
		return grants
	}

	width := s.cfg.IssueWidth
	if width <= 0 || width > n {
		width = n
	}

	granted := 0
	lastGranted := -1
	for i := 0; i < n && granted < width; i++ {
		idx := (s.rrCursor + i) % n
		if eligible[idx] {
			grants[idx] = true
			granted++
			lastGranted = idx
		}
	}

	if lastGranted >= 0 {
		s.rrCursor = (lastGranted + 1) % n
	}
	return grants
}

// Cursor exposes the current round-robin position, for diagnostics/tests.
func (s *Scheduler) Cursor() int { return s.rrCursor }
