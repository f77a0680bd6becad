package cmd

import (
	"fmt"
	"io"

	"github.com/agentsim/agentsim/sim"
	"github.com/agentsim/agentsim/sim/trace"
)

// RowsFromResult flattens a run into trace rows in (time, agent ID) order,
// labelling modes with each agent's matrix names.
func RowsFromResult(res *sim.Result) []trace.Row {
	byID := make(map[string]*sim.Timeline, len(res.Timelines))
	for _, tl := range res.Timelines {
		byID[tl.AgentID] = tl
	}
	records := res.Records()
	rows := make([]trace.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, trace.Row{
			AgentID: rec.AgentID,
			Time:    rec.Time,
			Mode:    byID[rec.AgentID].ModeName(rec.Mode),
			State:   rec.State.String(),
			Changed: rec.Changed,
		})
	}
	return rows
}

// writeRows renders rows to w in the given format.
func writeRows(w io.Writer, format trace.OutputFormat, rows []trace.Row) error {
	switch format {
	case trace.FormatCSV:
		return trace.WriteCSV(w, rows)
	case trace.FormatText:
		return trace.WriteText(w, rows)
	case trace.FormatNone, "":
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// summaryEnd is the time at which a run's last sojourns close: the duration for
// completed runs, the clock at which a cancelled or failed run stopped.
func summaryEnd(res *sim.Result) float64 {
	if res.Status == sim.StatusCompleted {
		return res.Duration
	}
	return res.Clock
}

// lastTime returns the latest row time, or 0 for no rows.
func lastTime(rows []trace.Row) float64 {
	end := 0.0
	for _, r := range rows {
		end = max(end, r.Time)
	}
	return end
}
