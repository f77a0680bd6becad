// sim/simulator.go
package sim

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// EventQueue implements heap.Interface and orders events by (timestamp, sequence).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue struct {
	events   []Event
	lastTime float64 // time of the last popped event
	popped   bool
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{events: make([]Event, 0)}
	heap.Init(q)
	return q
}

func (q *EventQueue) Len() int           { return len(q.events) }
func (q *EventQueue) Less(i, j int) bool { return q.events[i].Before(q.events[j]) }
func (q *EventQueue) Swap(i, j int)      { q.events[i], q.events[j] = q.events[j], q.events[i] }

// Push implements heap.Interface. Use Schedule instead.
func (q *EventQueue) Push(x any) {
	q.events = append(q.events, x.(Event))
}

// Pop implements heap.Interface. Use PopNext instead.
func (q *EventQueue) Pop() any {
	old := q.events
	n := len(old)
	item := old[n-1]
	q.events = old[0 : n-1]
	return item
}

// Schedule adds an event to the queue.
// Returns *InvalidEventError, leaving the queue unchanged, if the event is earlier
// than the last popped event or its time is NaN.
func (q *EventQueue) Schedule(e Event) error {
	if math.IsNaN(e.Time) || (q.popped && e.Time < q.lastTime) {
		return &InvalidEventError{Time: e.Time, LastTime: q.lastTime, Seq: e.Seq}
	}
	heap.Push(q, e)
	return nil
}

// PopNext removes and returns the earliest event. ok is false when the queue is empty.
func (q *EventQueue) PopNext() (e Event, ok bool) {
	if len(q.events) == 0 {
		return Event{}, false
	}
	e = heap.Pop(q).(Event)
	q.lastTime, q.popped = e.Time, true
	return e, true
}

// PeekTime returns the time of the earliest event without removing it.
func (q *EventQueue) PeekTime() (float64, bool) {
	if len(q.events) == 0 {
		return 0, false
	}
	return q.events[0].Time, true
}

// Phase is the lifecycle stage of a Simulator.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseRunning
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status describes how a run ended.
type Status string

const (
	// StatusCompleted: the queue emptied or the next event lay beyond the duration.
	StatusCompleted Status = "completed"
	// StatusCancelled: the context was cancelled or the event budget ran out.
	// Timelines hold everything applied up to that point.
	StatusCancelled Status = "cancelled"
	// StatusFailed: a sampler or queue error aborted the loop.
	// Timelines hold everything applied before the failure.
	StatusFailed Status = "failed"
)

// AgentConfig describes one agent at setup.
type AgentConfig struct {
	ID           string
	InitialMode  Mode
	Matrix       *TransitionMatrix
	InitialState State // nil means Config.NewState(InitialMode)
}

// Config is the full input of a simulation run.
type Config struct {
	Seed     int64
	Duration float64 // exclusive ceiling on event times, in the rate time unit
	Agents   []AgentConfig
	// NewState builds the payload of agents without an InitialState.
	// Defaults to NewTransitionCounter.
	NewState StateFactory
	// MaxEvents stops the run after this many applied events; 0 means unlimited.
	MaxEvents int64
}

// Validate checks the configuration without side effects.
// Returns *ConfigError describing the first problem found.
func (c *Config) Validate() error {
	if math.IsNaN(c.Duration) || math.IsInf(c.Duration, 0) || c.Duration <= 0 {
		return configErrorf("duration", "must be positive and finite, got %v", c.Duration)
	}
	if c.MaxEvents < 0 {
		return configErrorf("max_events", "must be non-negative, got %d", c.MaxEvents)
	}
	if len(c.Agents) == 0 {
		return configErrorf("agents", "at least one agent required")
	}
	seen := make(map[string]int, len(c.Agents))
	for i, a := range c.Agents {
		field := fmt.Sprintf("agents[%d]", i)
		if a.ID == "" {
			return configErrorf(field, "id must not be empty")
		}
		if j, dup := seen[a.ID]; dup {
			return configErrorf(field, "duplicate id %q (also agents[%d])", a.ID, j)
		}
		seen[a.ID] = i
		if a.Matrix == nil || a.Matrix.Size() == 0 {
			return configErrorf(field, "transition matrix required")
		}
		if !a.Matrix.Valid(a.InitialMode) {
			return configErrorf(field, "initial mode %d outside matrix with %d modes", a.InitialMode, a.Matrix.Size())
		}
	}
	return nil
}

// Result is the output of a run: one timeline per agent, in configuration order.
type Result struct {
	Status        Status
	Cause         error // *CancelledError for cancelled runs, the fatal error for failed runs
	Clock         float64
	Duration      float64
	EventsApplied int64
	Timelines     []*Timeline
}

// Timeline returns the timeline of the agent with the given ID, or nil.
func (r *Result) Timeline(agentID string) *Timeline {
	for _, tl := range r.Timelines {
		if tl.AgentID == agentID {
			return tl
		}
	}
	return nil
}

// Records returns all records merged in (time, agent ID) order.
func (r *Result) Records() []AgentRecord {
	return MergeTimelines(r.Timelines)
}

// Changes returns all field changes merged in (time, agent ID) order.
func (r *Result) Changes() []ChangeEvent {
	return MergeChanges(r.Timelines)
}

// Simulator is the core object that holds simulation time, the agents and the event loop.
// It runs once: Uninitialized -> Running -> Finished.
type Simulator struct {
	Clock    float64
	Duration float64
	// EventQueue holds at most one pending transition per agent
	EventQueue *EventQueue

	agents    []*Agent
	timelines []*Timeline
	rng       *PartitionedRNG
	phase     Phase

	nextEventID uint64 // per-simulator event counter for deterministic ordering
	maxEvents   int64
	applied     int64
	progress    rate.Sometimes
}

// NewSimulator validates cfg and builds the agents, each with the initial record
// (time 0, initial mode, initial payload) on its timeline.
// Returns *ConfigError on malformed configuration; nothing is built in that case.
func NewSimulator(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	newState := cfg.NewState
	if newState == nil {
		newState = NewTransitionCounter
	}

	states := make([]State, len(cfg.Agents))
	for i, a := range cfg.Agents {
		states[i] = a.InitialState
		if states[i] == nil {
			states[i] = newState(a.InitialMode)
		}
		if states[i] == nil {
			return nil, configErrorf(fmt.Sprintf("agents[%d]", i), "state factory returned nil for mode %d", a.InitialMode)
		}
	}

	sim := &Simulator{
		Clock:      0,
		Duration:   cfg.Duration,
		EventQueue: NewEventQueue(),
		agents:     make([]*Agent, 0, len(cfg.Agents)),
		timelines:  make([]*Timeline, 0, len(cfg.Agents)),
		rng:        NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
		phase:      PhaseUninitialized,
		maxEvents:  cfg.MaxEvents,
		progress:   rate.Sometimes{Interval: time.Second},
	}
	for i, a := range cfg.Agents {
		agent := NewAgent(a.ID, a.InitialMode, a.Matrix, states[i], sim.rng.ForAgent(a.ID))
		tl := NewTimeline(a.ID, a.Matrix)
		tl.Append(0, agent.CurrentMode(), agent.Snapshot())
		sim.agents = append(sim.agents, agent)
		sim.timelines = append(sim.timelines, tl)
	}
	return sim, nil
}

// Phase returns the simulator's lifecycle stage.
func (sim *Simulator) Phase() Phase {
	return sim.phase
}

// Agents returns the simulator's agents in configuration order.
func (sim *Simulator) Agents() []*Agent {
	return append([]*Agent(nil), sim.agents...)
}

// newEventID generates the next event sequence number for this simulator.
func (sim *Simulator) newEventID() uint64 {
	sim.nextEventID++
	return sim.nextEventID
}

// scheduleNext samples the next transition of agent i from its current mode and
// pushes it, unless the agent is absorbed.
func (sim *Simulator) scheduleNext(i int) error {
	agent := sim.agents[i]
	tr, err := agent.NextTransition()
	if err != nil {
		return fmt.Errorf("sampling agent %s: %w", agent.ID, err)
	}
	if tr.Absorbing {
		logrus.Debugf("[t=%014.6f] %s absorbed in %s", sim.Clock, agent.ID, agent.Matrix().Name(agent.CurrentMode()))
		return nil
	}
	ev := Event{
		Time:  sim.Clock + tr.Holding,
		Agent: i,
		Dest:  tr.Dest,
		Seq:   sim.newEventID(),
	}
	if err := sim.EventQueue.Schedule(ev); err != nil {
		return fmt.Errorf("scheduling agent %s: %w", agent.ID, err)
	}
	return nil
}

// apply advances the clock to ev and moves its agent, recording the new state.
func (sim *Simulator) apply(ev Event) {
	if ev.Time < sim.Clock {
		panic(fmt.Sprintf("Clock went backwards: %v < %v", ev.Time, sim.Clock))
	}
	sim.Clock = ev.Time

	agent := sim.agents[ev.Agent]
	from := agent.CurrentMode()
	snapshot := agent.ApplyTransition(ev.Dest)
	sim.timelines[ev.Agent].Append(sim.Clock, ev.Dest, snapshot)
	sim.applied++

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		m := agent.Matrix()
		logrus.Debugf("[t=%014.6f] %s: %s -> %s", sim.Clock, agent.ID, m.Name(from), m.Name(ev.Dest))
	}
}

// cancelled returns the reason to stop early, or nil.
func (sim *Simulator) cancelled(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	if sim.maxEvents > 0 && sim.applied >= sim.maxEvents {
		return errBudgetExhausted
	}
	return nil
}

// Run executes the simulation until the duration is reached, every agent is
// absorbed, or ctx is cancelled.
//
// Cancellation and an exhausted event budget are not errors: the result has
// StatusCancelled and a nil error is returned. A sampler or queue failure aborts
// the loop; the partial result (StatusFailed) is returned together with the error.
// Run may be called only once.
func (sim *Simulator) Run(ctx context.Context) (*Result, error) {
	if sim.phase != PhaseUninitialized {
		return nil, ErrAlreadyRun
	}
	sim.phase = PhaseRunning
	logrus.Infof("Starting simulation with %d agents, duration=%v", len(sim.agents), sim.Duration)

	for i := range sim.agents {
		if err := sim.scheduleNext(i); err != nil {
			return sim.fail(err)
		}
	}

	for {
		ev, ok := sim.EventQueue.PopNext()
		if !ok {
			logrus.Debugf("[t=%014.6f] event queue empty", sim.Clock)
			break
		}
		// the duration is an exclusive ceiling: events past it are discarded unapplied
		if ev.Time > sim.Duration {
			logrus.Debugf("[t=%014.6f] next event at %v beyond duration, discarded", sim.Clock, ev.Time)
			break
		}
		if cause := sim.cancelled(ctx); cause != nil {
			logrus.Warnf("[t=%014.6f] Simulation cancelled after %d events: %v", sim.Clock, sim.applied, cause)
			return sim.finish(StatusCancelled, &CancelledError{Cause: cause}), nil
		}

		sim.apply(ev)
		if err := sim.scheduleNext(ev.Agent); err != nil {
			return sim.fail(err)
		}

		sim.progress.Do(func() {
			logrus.Infof("[t=%014.6f] %d events applied, %d pending", sim.Clock, sim.applied, sim.EventQueue.Len())
		})
	}

	res := sim.finish(StatusCompleted, nil)
	logrus.Infof("[t=%014.6f] Simulation ended after %d events", sim.Clock, sim.applied)
	return res, nil
}

func (sim *Simulator) fail(err error) (*Result, error) {
	logrus.Errorf("[t=%014.6f] Simulation failed after %d events: %v", sim.Clock, sim.applied, err)
	return sim.finish(StatusFailed, err), err
}

func (sim *Simulator) finish(status Status, cause error) *Result {
	sim.phase = PhaseFinished
	return &Result{
		Status:        status,
		Cause:         cause,
		Clock:         sim.Clock,
		Duration:      sim.Duration,
		EventsApplied: sim.applied,
		Timelines:     append([]*Timeline(nil), sim.timelines...),
	}
}
