package sim

import (
	"math"
	"math/rand"
)

// Transition is the outcome of sampling one CTMC step from a mode.
type Transition struct {
	Holding   float64 // time spent in the current mode before moving
	Dest      Mode    // destination mode
	Absorbing bool    // true when the mode has no outgoing rate; Holding and Dest are unset
}

// SampleTransition samples the holding time and destination of the next transition
// out of mode from, given its outgoing-rate row indexed by destination.
//
// The holding time is exponential with rate λ = sum of off-diagonal rates. The
// destination is chosen with probability rate/λ by walking destinations in ascending
// mode order, so the same uniform draw always selects the same destination.
// An absorbing row (λ = 0) consumes no draws.
func SampleTransition(row []float64, from Mode, rng *rand.Rand) (Transition, error) {
	total := 0.0
	for j, r := range row {
		if Mode(j) == from {
			continue
		}
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return Transition{}, &InvalidRateError{From: from, To: Mode(j), Rate: r}
		}
		total += r
	}
	if total == 0 {
		return Transition{Absorbing: true}, nil
	}

	// 1 - Float64() lies in (0, 1]
	u := 1 - rng.Float64()
	holding := -math.Log(u) / total

	target := rng.Float64() * total
	dest := Mode(-1)
	cumulative := 0.0
	for j, r := range row {
		if Mode(j) == from || r == 0 {
			continue
		}
		dest = Mode(j)
		cumulative += r
		if target < cumulative {
			break
		}
	}
	// rounding can leave target == cumulative on the last interval; dest then holds the
	// last destination with a positive rate
	return Transition{Holding: holding, Dest: dest}, nil
}
