package trace

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ModeStats aggregates the time agents spent in one mode.
type ModeStats struct {
	Mode      string
	Visits    int     // rows entering the mode, initial rows included
	Occupancy float64 // total agent-time spent in the mode up to the end time
	Sojourns  int     // visits that ended with a transition before the end time

	// Holding-time statistics over completed sojourns. NaN when undefined.
	MeanHolding   float64
	StdDevHolding float64
	MedianHolding float64
}

// Summary aggregates statistics from the rows of a run.
type Summary struct {
	Agents      int
	Transitions int // rows that are not an agent's first row
	End         float64
	Modes       []ModeStats    // sorted by mode name
	PerAgent    map[string]int // agent ID → transitions
	Static      int            // agents that never left their initial mode
}

// Summarize computes aggregate statistics from rows ending at time end.
// Rows may come in any agent interleaving but must be time-ordered per agent.
// Safe for nil or empty input (returns zero-value fields).
func Summarize(rows []Row, end float64) *Summary {
	summary := &Summary{
		End:      end,
		PerAgent: make(map[string]int),
	}

	byAgent := make(map[string][]Row)
	var order []string
	for _, r := range rows {
		if _, ok := byAgent[r.AgentID]; !ok {
			order = append(order, r.AgentID)
		}
		byAgent[r.AgentID] = append(byAgent[r.AgentID], r)
	}
	summary.Agents = len(order)

	visits := make(map[string]int)
	occupancy := make(map[string]float64)
	holdings := make(map[string][]float64)
	for _, id := range order {
		agentRows := byAgent[id]
		summary.PerAgent[id] = len(agentRows) - 1
		summary.Transitions += len(agentRows) - 1
		if len(agentRows) == 1 {
			summary.Static++
		}
		for i, r := range agentRows {
			visits[r.Mode]++
			if i+1 < len(agentRows) {
				h := agentRows[i+1].Time - r.Time
				holdings[r.Mode] = append(holdings[r.Mode], h)
				occupancy[r.Mode] += h
			} else if end > r.Time {
				occupancy[r.Mode] += end - r.Time
			}
		}
	}

	for mode, n := range visits {
		ms := ModeStats{
			Mode:          mode,
			Visits:        n,
			Occupancy:     occupancy[mode],
			Sojourns:      len(holdings[mode]),
			MeanHolding:   math.NaN(),
			StdDevHolding: math.NaN(),
			MedianHolding: math.NaN(),
		}
		if xs := holdings[mode]; len(xs) > 0 {
			sorted := slices.Clone(xs)
			sort.Float64s(sorted)
			ms.MeanHolding = stat.Mean(sorted, nil)
			ms.MedianHolding = stat.Quantile(0.5, stat.Empirical, sorted, nil)
			if len(sorted) > 1 {
				ms.StdDevHolding = stat.StdDev(sorted, nil)
			}
		}
		summary.Modes = append(summary.Modes, ms)
	}
	slices.SortFunc(summary.Modes, func(a, b ModeStats) int {
		return cmp.Compare(a.Mode, b.Mode)
	})
	return summary
}

// Print writes the summary in the simulator's report layout.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Agents               : %d\n", s.Agents)
	fmt.Fprintf(w, "Transitions          : %d\n", s.Transitions)
	fmt.Fprintf(w, "Never transitioned   : %d\n", s.Static)
	fmt.Fprintf(w, "End time             : %.6f\n", s.End)
	if s.Agents > 0 {
		fmt.Fprintf(w, "Mean transitions     : %.2f per agent\n", float64(s.Transitions)/float64(s.Agents))
	}
	for _, m := range s.Modes {
		share := 0.0
		if total := s.End * float64(s.Agents); total > 0 {
			share = m.Occupancy / total * 100
		}
		fmt.Fprintf(w, "Mode %-16s: visits=%d occupancy=%.4f (%.1f%%) mean_hold=%.4f sd_hold=%.4f median_hold=%.4f\n",
			m.Mode, m.Visits, m.Occupancy, share, m.MeanHolding, m.StdDevHolding, m.MedianHolding)
	}
}
