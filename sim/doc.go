// Package sim provides the event-driven simulation kernel for populations of
// independent agents whose modes evolve as continuous-time Markov chains.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - matrix.go: Mode and TransitionMatrix (rates, absorbing modes, labels)
//   - sampler.go: SampleTransition, the holding-time and destination draw
//   - agent.go: Agent and its state-advance protocol (ApplyTransition)
//   - simulator.go: EventQueue, Config validation and the event loop
//
// # Architecture
//
// The Simulator pops the earliest Event from its EventQueue, advances its clock,
// applies the transition to the owning Agent, appends the new state to that agent's
// Timeline and samples the agent's next Event. Events are ordered by
// (time, sequence number), so runs are reproducible even when timestamps tie.
//
// Randomness is never global: PartitionedRNG derives one stream per agent from the
// seed and the agent ID. RunParallel uses this to split agents across workers while
// producing the same per-agent timelines as a single Simulator.
//
// Sub-packages:
//   - sim/scenario/: YAML scenario files compiled into a Config
//   - sim/trace/: flat records, CSV/YAML export, text rendering and run summaries
//
// # Key Interfaces
//
// State is the only extension point: payloads implement Clone, Transition and
// String, and optionally Fields (FieldState) to get field-level change events.
// TransitionCounter and ProfileState are the built-in payloads.
package sim
