// Package trace provides flat timeline records, their CSV/YAML export and text
// rendering, and run summaries.
// This package has no dependencies on sim/; it stores pure data types.
package trace

import (
	"time"

	"github.com/google/uuid"
)

// TraceVersion is the version written into exported headers.
const TraceVersion = 1

// Row is one timeline record of one agent.
type Row struct {
	AgentID string
	Time    float64
	Mode    string
	State   string
	// Changed lists the payload fields that differ from the agent's previous row.
	// Empty for the first row of an agent.
	Changed []string
}

// Header captures run metadata for exported traces.
type Header struct {
	Version       int     `yaml:"trace_version"`
	RunID         string  `yaml:"run_id"`
	CreatedAt     string  `yaml:"created_at,omitempty"`
	Scenario      string  `yaml:"scenario,omitempty"`
	TimeUnit      string  `yaml:"time_unit,omitempty"`
	Seed          int64   `yaml:"seed"`
	Duration      float64 `yaml:"duration"`
	Workers       int     `yaml:"workers"`
	Agents        int     `yaml:"agents"`
	Status        string  `yaml:"status"`
	EventsApplied int64   `yaml:"events_applied"`
	Rows          int     `yaml:"rows"`
}

// NewHeader returns a header with a fresh run ID and creation time.
func NewHeader() *Header {
	return &Header{
		Version:   TraceVersion,
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
