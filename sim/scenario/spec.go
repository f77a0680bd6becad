// Package scenario loads YAML scenario files and compiles them into a sim.Config.
//
// A scenario names one or more chains (mode labels, transition rates, optional
// per-mode field profiles) and groups of agents running them:
//
//	version: "1"
//	seed: 42
//	duration: 100
//	time_unit: s
//	chains:
//	  device:
//	    modes: [Idle, Active]
//	    rates:
//	      Idle: {Active: 0.5}
//	      Active: {Idle: 1.0}
//	    profiles:
//	      Idle: {status: idle}
//	      Active: {status: active}
//	agents:
//	  - id_prefix: device
//	    count: 2
//	    chain: device
//	    initial_mode: Idle
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/agentsim/agentsim/sim"
)

// CurrentVersion is the scenario format version written by this package.
const CurrentVersion = "1"

// validVersions lists accepted scenario versions.
var validVersions = map[string]bool{CurrentVersion: true}

// ScenarioSpec is the top-level scenario configuration.
// Loaded from YAML via LoadScenario(path).
type ScenarioSpec struct {
	Version   string               `yaml:"version"`
	Seed      int64                `yaml:"seed"`
	Duration  float64              `yaml:"duration"`
	TimeUnit  string               `yaml:"time_unit,omitempty"`
	MaxEvents int64                `yaml:"max_events,omitempty"` // 0 = unlimited
	Chains    map[string]ChainSpec `yaml:"chains"`
	Agents    []AgentGroupSpec     `yaml:"agents"`
}

// ChainSpec defines one CTMC: its modes and how each mode is left.
// Each mode is described either by explicit rates or by a mean holding time and
// destination weights, never both. Modes described by neither are absorbing.
type ChainSpec struct {
	Modes []string `yaml:"modes"`
	// Rates maps source mode → destination mode → rate per time unit.
	Rates map[string]map[string]float64 `yaml:"rates,omitempty"`
	// Weighted maps source mode → mean holding time and destination weights.
	Weighted map[string]WeightedSpec `yaml:"weighted,omitempty"`
	// Profiles maps mode → field values taken on when an agent enters the mode.
	Profiles map[string]map[string]string `yaml:"profiles,omitempty"`
}

// WeightedSpec describes leaving a mode by the mean time between jump attempts and
// the relative weight of each destination. A weight on the mode itself is a
// self-loop: the attempt leaves the agent where it is, which lengthens the
// effective holding time.
type WeightedSpec struct {
	MeanHolding float64            `yaml:"mean_holding"`
	Weights     map[string]float64 `yaml:"weights"`
}

// AgentGroupSpec declares one agent (ID) or Count agents named <id_prefix>_000, ...
type AgentGroupSpec struct {
	ID          string `yaml:"id,omitempty"`
	IDPrefix    string `yaml:"id_prefix,omitempty"`
	Count       int    `yaml:"count,omitempty"`
	Chain       string `yaml:"chain,omitempty"` // may be omitted when only one chain exists
	InitialMode string `yaml:"initial_mode"`
	// Start is the deprecated name of InitialMode.
	Start string `yaml:"start,omitempty"`
}

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*ScenarioSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a YAML scenario document.
func ParseScenario(data []byte) (*ScenarioSpec, error) {
	var spec ScenarioSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	Upgrade(&spec)
	return &spec, nil
}

// Upgrade fills defaults and maps deprecated keys in-place. Idempotent.
// Emits logrus.Warn deprecation notices for mapped keys.
func Upgrade(spec *ScenarioSpec) {
	if spec.Version == "" {
		spec.Version = CurrentVersion
	}
	for i := range spec.Agents {
		g := &spec.Agents[i]
		if g.Start != "" && g.InitialMode == "" {
			logrus.Warnf("agents[%d]: deprecated key \"start\" mapped to \"initial_mode\"; update your scenario", i)
			g.InitialMode = g.Start
		}
		g.Start = ""
		if g.Chain == "" && len(spec.Chains) == 1 {
			for name := range spec.Chains {
				g.Chain = name
			}
		}
	}
}

// Validate checks that all fields in the spec are valid.
// Returns *sim.ConfigError describing the first problem found.
func (s *ScenarioSpec) Validate() error {
	if !validVersions[s.Version] {
		return configErr("version", "unsupported version %q; valid: %s", s.Version, CurrentVersion)
	}
	if err := validateFinitePositive("duration", s.Duration); err != nil {
		return err
	}
	if s.MaxEvents < 0 {
		return configErr("max_events", "must be non-negative, got %d", s.MaxEvents)
	}
	if len(s.Chains) == 0 {
		return configErr("chains", "at least one chain required")
	}
	for _, name := range sortedKeys(s.Chains) {
		c := s.Chains[name]
		if err := validateChain("chains."+name, &c); err != nil {
			return err
		}
	}
	if len(s.Agents) == 0 {
		return configErr("agents", "at least one agent group required")
	}
	seen := make(map[string]string)
	for i, g := range s.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if err := validateGroup(prefix, &g, s.Chains); err != nil {
			return err
		}
		for _, id := range g.agentIDs() {
			if other, dup := seen[id]; dup {
				return configErr(prefix, "duplicate agent id %q (also %s)", id, other)
			}
			seen[id] = prefix
		}
	}
	return nil
}

func validateChain(prefix string, c *ChainSpec) error {
	if len(c.Modes) == 0 {
		return configErr(prefix+".modes", "at least one mode required")
	}
	modes := make(map[string]bool, len(c.Modes))
	for i, m := range c.Modes {
		if m == "" {
			return configErr(fmt.Sprintf("%s.modes[%d]", prefix, i), "mode name must not be empty")
		}
		if modes[m] {
			return configErr(fmt.Sprintf("%s.modes[%d]", prefix, i), "duplicate mode %q", m)
		}
		modes[m] = true
	}
	for _, from := range sortedKeys(c.Rates) {
		field := prefix + ".rates." + from
		if !modes[from] {
			return configErr(field, "unknown mode %q", from)
		}
		for _, to := range sortedKeys(c.Rates[from]) {
			if !modes[to] {
				return configErr(field+"."+to, "unknown mode %q", to)
			}
			if to == from {
				return configErr(field+"."+to, "self-transition rates are not allowed; use weighted for self-loops")
			}
			if err := validateFiniteNonNegative(field+"."+to, c.Rates[from][to]); err != nil {
				return err
			}
		}
	}
	for _, from := range sortedKeys(c.Weighted) {
		field := prefix + ".weighted." + from
		if !modes[from] {
			return configErr(field, "unknown mode %q", from)
		}
		if _, both := c.Rates[from]; both {
			return configErr(field, "mode %q has both rates and weighted transitions", from)
		}
		w := c.Weighted[from]
		if err := validateFinitePositive(field+".mean_holding", w.MeanHolding); err != nil {
			return err
		}
		total := 0.0
		for _, to := range sortedKeys(w.Weights) {
			if !modes[to] {
				return configErr(field+".weights."+to, "unknown mode %q", to)
			}
			if err := validateFiniteNonNegative(field+".weights."+to, w.Weights[to]); err != nil {
				return err
			}
			total += w.Weights[to]
		}
		if total <= 0 {
			return configErr(field+".weights", "weights must sum to a positive value")
		}
	}
	for _, mode := range sortedKeys(c.Profiles) {
		if !modes[mode] {
			return configErr(prefix+".profiles."+mode, "unknown mode %q", mode)
		}
	}
	return nil
}

func validateGroup(prefix string, g *AgentGroupSpec, chains map[string]ChainSpec) error {
	switch {
	case g.ID != "" && g.IDPrefix != "":
		return configErr(prefix, "id and id_prefix are mutually exclusive")
	case g.ID != "" && g.Count > 1:
		return configErr(prefix, "count must be 0 or 1 with a fixed id, got %d", g.Count)
	case g.ID == "" && g.IDPrefix == "":
		return configErr(prefix, "id or id_prefix required")
	case g.IDPrefix != "" && g.Count < 1:
		return configErr(prefix+".count", "must be at least 1 with id_prefix, got %d", g.Count)
	}
	if g.Chain == "" {
		return configErr(prefix+".chain", "required when more than one chain is defined")
	}
	c, ok := chains[g.Chain]
	if !ok {
		return configErr(prefix+".chain", "unknown chain %q", g.Chain)
	}
	for _, m := range c.Modes {
		if m == g.InitialMode {
			return nil
		}
	}
	return configErr(prefix+".initial_mode", "unknown mode %q in chain %q", g.InitialMode, g.Chain)
}

// agentIDs returns the agent IDs declared by the group.
func (g *AgentGroupSpec) agentIDs() []string {
	if g.ID != "" {
		return []string{g.ID}
	}
	ids := make([]string, g.Count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s_%03d", g.IDPrefix, i)
	}
	return ids
}

// AgentCount returns the total number of agents the scenario declares.
func (s *ScenarioSpec) AgentCount() int {
	n := 0
	for i := range s.Agents {
		n += len(s.Agents[i].agentIDs())
	}
	return n
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return configErr(name, "must be a finite number, got %f", val)
	}
	if val <= 0 {
		return configErr(name, "must be positive, got %f", val)
	}
	return nil
}

func validateFiniteNonNegative(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return configErr(name, "must be a finite number, got %f", val)
	}
	if val < 0 {
		return configErr(name, "must be non-negative, got %f", val)
	}
	return nil
}

func configErr(field, format string, args ...any) *sim.ConfigError {
	return &sim.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
