package sim

import (
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical timelines.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// AgentStreamName returns the stream name for the agent with the given ID.
func AgentStreamName(agentID string) string {
	return "agent/" + agentID
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG streams, one per named
// stream (in practice one per agent).
//
// Derivation formula: masterSeed XOR fnv1a64(streamName).
//
// A stream depends only on the key and its own name, so streams are identical
// regardless of how many other streams exist, in which order they are created,
// or which goroutine creates them.
//
// Thread-safety: NOT thread-safe. Each worker of a parallel run owns its own
// PartitionedRNG built from the same key.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:     key,
		streams: make(map[string]*rand.Rand),
	}
}

// ForStream returns a deterministically-seeded RNG for the named stream.
// The same name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForStream(name string) *rand.Rand {
	if rng, ok := p.streams[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(DeriveSeed(p.key, name)))
	p.streams[name] = rng
	return rng
}

// ForAgent returns the RNG stream owned by the agent with the given ID.
func (p *PartitionedRNG) ForAgent(agentID string) *rand.Rand {
	return p.ForStream(AgentStreamName(agentID))
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// DeriveSeed returns the seed of the named stream under key.
func DeriveSeed(key SimulationKey, name string) int64 {
	return int64(key) ^ fnv1a64(name)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
