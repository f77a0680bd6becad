package sim

import "fmt"

// Event is a scheduled transition of one agent.
// Events are ordered by (Time, Seq); Seq comes from a per-simulator counter
// incremented at creation, so two events sharing a timestamp pop in creation order.
type Event struct {
	Time  float64 // simulated time at which the transition happens
	Agent int     // index of the owning agent in the simulator's agent table
	Dest  Mode    // mode the agent moves to
	Seq   uint64  // creation sequence number, unique per simulator
}

// Timestamp returns the scheduled time of the event.
func (e Event) Timestamp() float64 {
	return e.Time
}

// Before reports whether e is ordered before o.
func (e Event) Before(o Event) bool {
	if e.Time != o.Time {
		return e.Time < o.Time
	}
	return e.Seq < o.Seq
}

func (e Event) String() string {
	return fmt.Sprintf("event#%d(agent=%d dest=%d t=%v)", e.Seq, e.Agent, e.Dest, e.Time)
}
