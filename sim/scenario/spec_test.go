package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsim/agentsim/sim"
	"github.com/agentsim/agentsim/sim/internal/testutil"
)

const deviceScenario = `
version: "1"
seed: 42
duration: 100
time_unit: s
chains:
  device:
    modes: [Idle, Active]
    rates:
      Idle: {Active: 0.5}
      Active: {Idle: 1.0}
    profiles:
      Idle: {status: idle}
      Active: {status: active}
agents:
  - id_prefix: device
    count: 2
    initial_mode: Idle
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScenario_ValidFile_ParsesAndInfersChain(t *testing.T) {
	// GIVEN a scenario with a single chain and no explicit agent chain
	path := writeScenario(t, deviceScenario)

	// WHEN loading it
	spec, err := LoadScenario(path)

	// THEN the fields are parsed and the only chain is assigned to the group
	require.NoError(t, err)
	assert.Equal(t, int64(42), spec.Seed)
	assert.Equal(t, 100.0, spec.Duration)
	assert.Equal(t, "s", spec.TimeUnit)
	assert.Equal(t, "device", spec.Agents[0].Chain)
	assert.Equal(t, 2, spec.AgentCount())
	assert.NoError(t, spec.Validate())
}

func TestLoadScenario_UnknownKey_Rejected(t *testing.T) {
	// GIVEN a typo in a field name
	path := writeScenario(t, strings.Replace(deviceScenario, "duration:", "duraton:", 1))

	// WHEN loading it
	_, err := LoadScenario(path)

	// THEN strict parsing rejects it
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing scenario")
}

func TestLoadScenario_MissingFile_ReturnsReadError(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading scenario")
}

func TestParseScenario_DeprecatedStart_MappedToInitialMode(t *testing.T) {
	spec, err := ParseScenario([]byte(strings.Replace(deviceScenario, "initial_mode:", "start:", 1)))
	require.NoError(t, err)
	assert.Equal(t, "Idle", spec.Agents[0].InitialMode)
	assert.Empty(t, spec.Agents[0].Start)
	assert.NoError(t, spec.Validate())
}

func TestParseScenario_EmptyVersion_DefaultsToCurrent(t *testing.T) {
	spec, err := ParseScenario([]byte(strings.Replace(deviceScenario, `version: "1"`, "", 1)))
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, spec.Version)
}

func TestValidate_InvalidSpecs_ReturnConfigErrorNamingField(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(s *ScenarioSpec)
		field string
	}{
		{"bad version", func(s *ScenarioSpec) { s.Version = "9" }, "version"},
		{"zero duration", func(s *ScenarioSpec) { s.Duration = 0 }, "duration"},
		{"negative max events", func(s *ScenarioSpec) { s.MaxEvents = -1 }, "max_events"},
		{"no chains", func(s *ScenarioSpec) { s.Chains = nil }, "chains"},
		{"no agents", func(s *ScenarioSpec) { s.Agents = nil }, "agents"},
		{"negative rate", func(s *ScenarioSpec) {
			s.Chains["device"].Rates["Idle"]["Active"] = -1
		}, "chains.device.rates.Idle.Active"},
		{"unknown destination", func(s *ScenarioSpec) {
			s.Chains["device"].Rates["Idle"]["Busy"] = 1
		}, "chains.device.rates.Idle.Busy"},
		{"self rate", func(s *ScenarioSpec) {
			s.Chains["device"].Rates["Idle"]["Idle"] = 1
		}, "chains.device.rates.Idle.Idle"},
		{"unknown profile mode", func(s *ScenarioSpec) {
			s.Chains["device"].Profiles["Busy"] = map[string]string{"status": "busy"}
		}, "chains.device.profiles.Busy"},
		{"unknown initial mode", func(s *ScenarioSpec) { s.Agents[0].InitialMode = "Busy" }, "agents[0].initial_mode"},
		{"unknown chain", func(s *ScenarioSpec) { s.Agents[0].Chain = "router" }, "agents[0].chain"},
		{"prefix without count", func(s *ScenarioSpec) { s.Agents[0].Count = 0 }, "agents[0].count"},
		{"id and prefix", func(s *ScenarioSpec) { s.Agents[0].ID = "x" }, "agents[0]"},
		{"duplicate ids", func(s *ScenarioSpec) {
			s.Agents = append(s.Agents, AgentGroupSpec{ID: "device_001", Chain: "device", InitialMode: "Idle"})
		}, "agents[1]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := ParseScenario([]byte(deviceScenario))
			require.NoError(t, err)
			tc.edit(spec)

			err = spec.Validate()

			var cfgErr *sim.ConfigError
			require.True(t, errors.As(err, &cfgErr), "want *sim.ConfigError, got %v", err)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestValidate_WeightedMode_Checks(t *testing.T) {
	spec, err := ParseScenario([]byte(deviceScenario))
	require.NoError(t, err)
	c := spec.Chains["device"]

	// both forms for the same mode
	c.Weighted = map[string]WeightedSpec{"Idle": {MeanHolding: 2, Weights: map[string]float64{"Active": 1}}}
	spec.Chains["device"] = c
	var cfgErr *sim.ConfigError
	require.ErrorAs(t, spec.Validate(), &cfgErr)
	assert.Equal(t, "chains.device.weighted.Idle", cfgErr.Field)

	// all-zero weights
	delete(c.Rates, "Idle")
	c.Weighted["Idle"] = WeightedSpec{MeanHolding: 2, Weights: map[string]float64{"Active": 0}}
	require.ErrorAs(t, spec.Validate(), &cfgErr)
	assert.Equal(t, "chains.device.weighted.Idle.weights", cfgErr.Field)

	// non-positive mean holding
	c.Weighted["Idle"] = WeightedSpec{MeanHolding: 0, Weights: map[string]float64{"Active": 1}}
	require.ErrorAs(t, spec.Validate(), &cfgErr)
	assert.Equal(t, "chains.device.weighted.Idle.mean_holding", cfgErr.Field)
}

func TestBuild_DeviceScenario_ProducesProfiledAgents(t *testing.T) {
	// GIVEN the two-device scenario
	spec, err := ParseScenario([]byte(deviceScenario))
	require.NoError(t, err)

	// WHEN building the simulation config
	cfg, err := spec.Build()

	// THEN agents are numbered from the prefix, share one matrix and carry profiles
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "device_000", cfg.Agents[0].ID)
	assert.Equal(t, "device_001", cfg.Agents[1].ID)
	assert.Same(t, cfg.Agents[0].Matrix, cfg.Agents[1].Matrix)
	assert.Equal(t, []string{"Idle", "Active"}, cfg.Agents[0].Matrix.Names())
	assert.Equal(t, 0.5, cfg.Agents[0].Matrix.Rate(0, 1))
	assert.Equal(t, 1.0, cfg.Agents[0].Matrix.Rate(1, 0))
	assert.Equal(t, sim.Mode(0), cfg.Agents[0].InitialMode)

	ps, ok := cfg.Agents[0].InitialState.(*sim.ProfileState)
	require.True(t, ok)
	assert.Equal(t, "idle", ps.Get("status"))
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 100.0, cfg.Duration)
}

func TestBuild_NoProfiles_LeavesDefaultPayload(t *testing.T) {
	spec, err := ParseScenario([]byte(deviceScenario))
	require.NoError(t, err)
	c := spec.Chains["device"]
	c.Profiles = nil
	spec.Chains["device"] = c

	cfg, err := spec.Build()
	require.NoError(t, err)
	assert.Nil(t, cfg.Agents[0].InitialState)
}

func TestBuild_WeightedMode_ConvertsToRates(t *testing.T) {
	// GIVEN Idle left on average every 10 time units, with weight 1 to Active,
	// 1 to Offline and 2 to itself
	spec := &ScenarioSpec{
		Version:  CurrentVersion,
		Duration: 10,
		Chains: map[string]ChainSpec{"device": {
			Modes: []string{"Idle", "Active", "Offline"},
			Weighted: map[string]WeightedSpec{
				"Idle": {MeanHolding: 10, Weights: map[string]float64{"Idle": 2, "Active": 1, "Offline": 1}},
			},
		}},
		Agents: []AgentGroupSpec{{ID: "d", Chain: "device", InitialMode: "Idle"}},
	}

	// WHEN building
	cfg, err := spec.Build()

	// THEN each destination gets weight/total/mean and the self-loop is dropped
	require.NoError(t, err)
	m := cfg.Agents[0].Matrix
	assert.InDelta(t, 0.025, m.Rate(0, 1), 1e-12)
	assert.InDelta(t, 0.025, m.Rate(0, 2), 1e-12)
	assert.InDelta(t, 0.05, m.ExitRate(0), 1e-12)
	assert.True(t, m.IsAbsorbing(1), "modes without transitions are absorbing")
}

func TestBuild_RunsDeterministically(t *testing.T) {
	// GIVEN the same scenario built twice
	build := func() *sim.Result {
		spec, err := ParseScenario([]byte(deviceScenario))
		require.NoError(t, err)
		cfg, err := spec.Build()
		require.NoError(t, err)
		s, err := sim.NewSimulator(*cfg)
		require.NoError(t, err)
		res, err := s.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	// WHEN both are run
	a, b := build(), build()

	// THEN the profiled timelines match record for record
	require.Len(t, a.Timelines, 2)
	for i := range a.Timelines {
		assert.Equal(t, a.Timelines[i].String(), b.Timelines[i].String())
	}
	// the status field flips on every transition
	for _, rec := range a.Timelines[0].Records[1:] {
		assert.Equal(t, []string{"status"}, rec.Changed)
	}
}

func TestLoadScenario_DeviceFleetFixture(t *testing.T) {
	// GIVEN the five-device weekly fixture
	spec, err := LoadScenario(testutil.ScenarioPath(t, "device_fleet.yaml"))
	require.NoError(t, err)

	// WHEN building it
	cfg, err := spec.Build()

	// THEN Idle is left at (0.4 + 0.1) / 3600 per second, split 4:1
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 5)
	assert.Equal(t, "device_004", cfg.Agents[4].ID)
	m := cfg.Agents[0].Matrix
	idle, ok := m.ModeByName("Idle")
	require.True(t, ok)
	working, _ := m.ModeByName("Working")
	offline, _ := m.ModeByName("Offline")
	testutil.AssertFloat64Equal(t, "Idle exit rate", 0.5/3600, m.ExitRate(idle), 1e-12)
	testutil.AssertFloat64Equal(t, "Idle->Working", 0.4/3600, m.Rate(idle, working), 1e-12)
	testutil.AssertFloat64Equal(t, "Idle->Offline", 0.1/3600, m.Rate(idle, offline), 1e-12)
	assert.Equal(t, "true", cfg.Agents[0].InitialState.(*sim.ProfileState).Get("connected"))
}
