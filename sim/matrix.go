package sim

import (
	"fmt"
	"math"
)

// Mode identifies one discrete state of an agent's chain.
// It is a dense index into the agent's TransitionMatrix.
type Mode int

// TransitionMatrix holds the transition rates of a CTMC.
// rates[i][j] is the rate of leaving mode i for mode j, in transitions per unit of
// simulated time. Diagonal entries are ignored. A mode whose off-diagonal rates
// sum to zero is absorbing.
//
// A TransitionMatrix is immutable after construction and may be shared by any
// number of agents and goroutines.
type TransitionMatrix struct {
	rates  [][]float64
	names  []string
	byName map[string]Mode
}

// NewTransitionMatrix validates and copies rates into a new TransitionMatrix.
// names optionally labels each mode; when given there must be exactly one unique,
// non-empty name per row.
// Returns *ConfigError if the matrix is empty or not square, or if any off-diagonal
// rate is negative, NaN or infinite.
func NewTransitionMatrix(rates [][]float64, names ...string) (*TransitionMatrix, error) {
	n := len(rates)
	if n == 0 {
		return nil, configErrorf("matrix", "must have at least one mode")
	}
	m := &TransitionMatrix{
		rates: make([][]float64, n),
	}
	for i, row := range rates {
		if len(row) != n {
			return nil, configErrorf(fmt.Sprintf("matrix[%d]", i), "row has %d entries, want %d (matrix must be square)", len(row), n)
		}
		for j, r := range row {
			if i == j {
				continue
			}
			if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
				return nil, configErrorf(fmt.Sprintf("matrix[%d][%d]", i, j), "rate must be finite and non-negative, got %v", r)
			}
		}
		m.rates[i] = append([]float64(nil), row...)
		// diagonal is never read; zero it so a generator-style -λ cannot leak into sums
		m.rates[i][i] = 0
	}

	if len(names) > 0 {
		if len(names) != n {
			return nil, configErrorf("matrix.names", "got %d names for %d modes", len(names), n)
		}
		m.names = append([]string(nil), names...)
		m.byName = make(map[string]Mode, n)
		for i, name := range names {
			if name == "" {
				return nil, configErrorf(fmt.Sprintf("matrix.names[%d]", i), "mode name must not be empty")
			}
			if _, dup := m.byName[name]; dup {
				return nil, configErrorf(fmt.Sprintf("matrix.names[%d]", i), "duplicate mode name %q", name)
			}
			m.byName[name] = Mode(i)
		}
	}
	return m, nil
}

// Size returns the number of modes.
func (m *TransitionMatrix) Size() int {
	return len(m.rates)
}

// Valid reports whether mode indexes a row of the matrix.
func (m *TransitionMatrix) Valid(mode Mode) bool {
	return mode >= 0 && int(mode) < len(m.rates)
}

// Rate returns the rate of the from -> to transition. Diagonal entries are 0.
func (m *TransitionMatrix) Rate(from, to Mode) float64 {
	return m.rates[from][to]
}

// Row returns a copy of the outgoing-rate row of mode from, indexed by destination.
func (m *TransitionMatrix) Row(from Mode) []float64 {
	return append([]float64(nil), m.rates[from]...)
}

// row returns the internal row without copying. Callers must not modify it.
func (m *TransitionMatrix) row(from Mode) []float64 {
	return m.rates[from]
}

// ExitRate returns the total rate of leaving mode from.
func (m *TransitionMatrix) ExitRate(from Mode) float64 {
	total := 0.0
	for j, r := range m.rates[from] {
		if Mode(j) != from {
			total += r
		}
	}
	return total
}

// IsAbsorbing reports whether mode from has no outgoing transitions.
func (m *TransitionMatrix) IsAbsorbing(from Mode) bool {
	return m.ExitRate(from) == 0
}

// Name returns the label of mode, or "mode_<n>" when the matrix is unlabelled.
func (m *TransitionMatrix) Name(mode Mode) string {
	if m.names != nil && m.Valid(mode) {
		return m.names[mode]
	}
	return fmt.Sprintf("mode_%d", int(mode))
}

// ModeByName looks up a mode by its label.
func (m *TransitionMatrix) ModeByName(name string) (Mode, bool) {
	mode, ok := m.byName[name]
	return mode, ok
}

// Names returns a copy of the mode labels, or nil for an unlabelled matrix.
func (m *TransitionMatrix) Names() []string {
	if m.names == nil {
		return nil
	}
	return append([]string(nil), m.names...)
}
