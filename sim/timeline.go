package sim

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Record is one entry of an agent's timeline: the mode and payload the agent
// holds from Time onwards.
type Record struct {
	Time  float64
	Mode  Mode
	State State
	// Changed lists, in key order, the payload fields that differ from the
	// previous record. It is nil for the initial record.
	Changed []string
}

// Timeline is the append-only history of one agent.
type Timeline struct {
	AgentID string
	Matrix  *TransitionMatrix
	Records []Record

	fields map[string]string // fields of the last record
}

// NewTimeline creates an empty timeline for an agent.
func NewTimeline(agentID string, matrix *TransitionMatrix) *Timeline {
	return &Timeline{
		AgentID: agentID,
		Matrix:  matrix,
		Records: make([]Record, 0, 8),
	}
}

// Append records that the agent entered mode at time t with payload snapshot.
// Panics if t is earlier than the last record: the simulator never goes back in time.
func (tl *Timeline) Append(t float64, mode Mode, snapshot State) {
	fields := fieldsOf(snapshot)
	rec := Record{Time: t, Mode: mode, State: snapshot}
	if n := len(tl.Records); n > 0 {
		if last := tl.Records[n-1].Time; t < last {
			panic(fmt.Sprintf("Timeline(%s): record at %v before previous record at %v", tl.AgentID, t, last))
		}
		rec.Changed = changedFields(tl.fields, fields)
	}
	tl.Records = append(tl.Records, rec)
	tl.fields = fields
}

// Len returns the number of records.
func (tl *Timeline) Len() int {
	return len(tl.Records)
}

// Last returns the most recent record. Panics on an empty timeline.
func (tl *Timeline) Last() Record {
	return tl.Records[len(tl.Records)-1]
}

// ModeName returns the label of mode in this agent's matrix.
func (tl *Timeline) ModeName(mode Mode) string {
	if tl.Matrix == nil {
		return fmt.Sprintf("mode_%d", int(mode))
	}
	return tl.Matrix.Name(mode)
}

// ChangeEvent is a single field change of one agent.
type ChangeEvent struct {
	Time    float64
	AgentID string
	Field   string
	Old     string
	New     string
}

// Changes returns the field-level changes recorded in the timeline, in time order.
func (tl *Timeline) Changes() []ChangeEvent {
	var changes []ChangeEvent
	for i := 1; i < len(tl.Records); i++ {
		rec := tl.Records[i]
		if len(rec.Changed) == 0 {
			continue
		}
		prev := fieldsOf(tl.Records[i-1].State)
		cur := fieldsOf(rec.State)
		for _, f := range rec.Changed {
			changes = append(changes, ChangeEvent{
				Time:    rec.Time,
				AgentID: tl.AgentID,
				Field:   f,
				Old:     prev[f],
				New:     cur[f],
			})
		}
	}
	return changes
}

func (tl *Timeline) String() string {
	var sb strings.Builder
	for i, rec := range tl.Records {
		events := "Initial State"
		if i > 0 {
			events = "Events: " + strings.Join(rec.Changed, ", ")
		}
		fmt.Fprintf(&sb, "[t=%.6f] %s %s State -> [ %s ] *(%s)*\n",
			rec.Time, tl.AgentID, tl.ModeName(rec.Mode), formatFields(fieldsOf(rec.State)), events)
	}
	return sb.String()
}

// changedFields returns the sorted names of fields whose values differ between
// prev and cur, including fields present in only one of them.
func changedFields(prev, cur map[string]string) []string {
	var changed []string
	for k, v := range cur {
		if old, ok := prev[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			changed = append(changed, k)
		}
	}
	slices.Sort(changed)
	return changed
}

// AgentRecord is a timeline record tagged with its agent, used for merged views.
type AgentRecord struct {
	AgentID string
	Record
}

// MergeTimelines merges per-agent timelines into one sequence ordered by
// (time, agent ID). The sort is stable, so records of one agent sharing a
// timestamp keep their recorded order. The result is the same whichever worker
// produced each timeline.
func MergeTimelines(timelines []*Timeline) []AgentRecord {
	total := 0
	for _, tl := range timelines {
		total += tl.Len()
	}
	merged := make([]AgentRecord, 0, total)
	for _, tl := range timelines {
		for _, rec := range tl.Records {
			merged = append(merged, AgentRecord{AgentID: tl.AgentID, Record: rec})
		}
	}
	slices.SortStableFunc(merged, func(a, b AgentRecord) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return strings.Compare(a.AgentID, b.AgentID)
	})
	return merged
}

// MergeChanges merges the field changes of all timelines in (time, agent ID) order.
func MergeChanges(timelines []*Timeline) []ChangeEvent {
	var changes []ChangeEvent
	for _, tl := range timelines {
		changes = append(changes, tl.Changes()...)
	}
	slices.SortStableFunc(changes, func(a, b ChangeEvent) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return strings.Compare(a.AgentID, b.AgentID)
	})
	return changes
}
