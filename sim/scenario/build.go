package scenario

import (
	"maps"
	"slices"

	"github.com/agentsim/agentsim/sim"
)

// Chain is a compiled chain: its transition matrix and mode profiles.
type Chain struct {
	Name     string
	Matrix   *sim.TransitionMatrix
	Profiles sim.ModeProfiles // nil when the chain declares no profiles
}

// Build validates the scenario and compiles it into a sim.Config.
// Agents of chains with profiles carry a sim.ProfileState; the others use the
// default sim.TransitionCounter payload.
func (s *ScenarioSpec) Build() (*sim.Config, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	chains, err := s.Compile()
	if err != nil {
		return nil, err
	}

	cfg := &sim.Config{
		Seed:      s.Seed,
		Duration:  s.Duration,
		MaxEvents: s.MaxEvents,
		Agents:    make([]sim.AgentConfig, 0, s.AgentCount()),
	}
	for i := range s.Agents {
		g := &s.Agents[i]
		chain := chains[g.Chain]
		initial, _ := chain.Matrix.ModeByName(g.InitialMode)
		for _, id := range g.agentIDs() {
			ac := sim.AgentConfig{
				ID:          id,
				InitialMode: initial,
				Matrix:      chain.Matrix,
			}
			if chain.Profiles != nil {
				ac.InitialState = sim.NewProfileState(chain.Profiles, initial)
			}
			cfg.Agents = append(cfg.Agents, ac)
		}
	}
	return cfg, nil
}

// Compile builds the transition matrix and profiles of every chain.
// The scenario must already be valid.
func (s *ScenarioSpec) Compile() (map[string]*Chain, error) {
	chains := make(map[string]*Chain, len(s.Chains))
	for _, name := range sortedKeys(s.Chains) {
		c := s.Chains[name]
		matrix, err := sim.NewTransitionMatrix(c.rateTable(), c.Modes...)
		if err != nil {
			return nil, err
		}
		chain := &Chain{Name: name, Matrix: matrix}
		if len(c.Profiles) > 0 {
			chain.Profiles = make(sim.ModeProfiles, len(c.Profiles))
			for label, fields := range c.Profiles {
				mode, _ := matrix.ModeByName(label)
				chain.Profiles[mode] = maps.Clone(fields)
			}
		}
		chains[name] = chain
	}
	return chains, nil
}

// rateTable converts the chain's rates and weighted transitions into a dense
// matrix indexed by mode position.
//
// For a weighted mode with mean holding time h and weights w, jump attempts happen
// at rate 1/h and go to j with probability w_j / sum(w); attempts landing on the
// mode itself are self-loops, so the rate to any other mode j is w_j / sum(w) / h.
func (c *ChainSpec) rateTable() [][]float64 {
	index := make(map[string]int, len(c.Modes))
	for i, m := range c.Modes {
		index[m] = i
	}
	rates := make([][]float64, len(c.Modes))
	for i := range rates {
		rates[i] = make([]float64, len(c.Modes))
	}
	for from, row := range c.Rates {
		for to, r := range row {
			rates[index[from]][index[to]] = r
		}
	}
	for from, w := range c.Weighted {
		total := 0.0
		for _, v := range w.Weights {
			total += v
		}
		for to, v := range w.Weights {
			if to == from {
				continue
			}
			rates[index[from]][index[to]] = v / total / w.MeanHolding
		}
	}
	return rates
}

// sortedKeys returns the keys of m in ascending order, so validation reports
// problems deterministically.
func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
