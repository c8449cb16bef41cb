package warpsched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelect_RoundRobinWrapsAcrossCalls(t *testing.T) {
	// Scenario 7 from spec.md §8: issue_width=1, eligible=[T,T,F].
	s := NewScheduler(Config{Enabled: true, IssueWidth: 1})
	require.Equal(t, []bool{true, false, false}, s.Select([]bool{true, true, false}))
	require.Equal(t, []bool{false, true, false}, s.Select([]bool{true, true, false}))
	require.Equal(t, []bool{true, false, false}, s.Select([]bool{true, true, false}))
}

func TestSelect_GrantsAtMostIssueWidth(t *testing.T) {
	s := NewScheduler(Config{Enabled: true, IssueWidth: 2})
	eligible := []bool{true, true, true, true}
	grants := s.Select(eligible)
	count := 0
	for _, g := range grants {
		if g {
			count++
		}
	}
	require.Equal(t, 2, count)
}

func TestSelect_DisabledGrantsEveryEligible(t *testing.T) {
	s := NewScheduler(Config{Enabled: false})
	eligible := []bool{true, false, true, true}
	require.Equal(t, eligible, s.Select(eligible))
	require.Equal(t, 0, s.Cursor())
}

func TestSelect_EmptyEligibleReturnsEmpty(t *testing.T) {
	s := NewScheduler(Config{Enabled: true, IssueWidth: 1})
	require.Empty(t, s.Select(nil))
}

func TestSelect_AllFalseGrantsNothingCursorUnchanged(t *testing.T) {
	s := NewScheduler(Config{Enabled: true, IssueWidth: 1})
	before := s.Cursor()
	grants := s.Select([]bool{false, false, false})
	require.Equal(t, []bool{false, false, false}, grants)
	require.Equal(t, before, s.Cursor())
}

func TestSelect_FairnessOverManyRoundsWithAllEligible(t *testing.T) {
	// Invariant 9 from spec.md §8: over N*issue_width grants with all
	// warps eligible, each warp is granted issue_width times.
	const n = 5
	const width = 2
	s := NewScheduler(Config{Enabled: true, IssueWidth: width})
	eligible := make([]bool, n)
	for i := range eligible {
		eligible[i] = true
	}

	counts := make([]int, n)
	for round := 0; round < n; round++ {
		grants := s.Select(eligible)
		granted := 0
		for i, g := range grants {
			if g {
				counts[i]++
				granted++
			}
		}
		require.LessOrEqual(t, granted, width)
	}
	for i, c := range counts {
		require.Equal(t, width, c, "warp %d", i)
	}
}
