package sim

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsim/agentsim/sim/internal/testutil"
)

func TestSampleTransition_HoldingMeanIsInverseExitRate(t *testing.T) {
	// GIVEN a mode left at total rate 2.0
	row := []float64{0, 0.5, 1.5}
	rng := rand.New(rand.NewSource(42))

	// WHEN sampling 20000 transitions
	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		tr, err := SampleTransition(row, 0, rng)
		require.NoError(t, err)
		require.Greater(t, tr.Holding, 0.0)
		sum += tr.Holding
	}

	// THEN the mean holding time is within 5% of 1/λ = 0.5
	testutil.AssertFloat64Equal(t, "mean holding", 0.5, sum/n, 0.05)
}

func TestSampleTransition_DestinationProportionalToRate(t *testing.T) {
	// GIVEN rates 1 and 3 out of mode 0: expected split 25% / 75%
	row := []float64{0, 1, 3}
	rng := rand.New(rand.NewSource(7))

	const n = 20000
	counts := make(map[Mode]int)
	for i := 0; i < n; i++ {
		tr, err := SampleTransition(row, 0, rng)
		require.NoError(t, err)
		counts[tr.Dest]++
	}

	// THEN the observed split is within 2 percentage points
	assert.Zero(t, counts[0], "the source mode is never a destination")
	testutil.AssertWithinAbs(t, "share of mode 1", 0.25, float64(counts[1])/n, 0.02)
	testutil.AssertWithinAbs(t, "share of mode 2", 0.75, float64(counts[2])/n, 0.02)
}

func TestSampleTransition_ZeroRateNeverChosen(t *testing.T) {
	row := []float64{2, 0, 0, 1}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		tr, err := SampleTransition(row, 1, rng)
		require.NoError(t, err)
		assert.Contains(t, []Mode{0, 3}, tr.Dest)
	}
}

func TestSampleTransition_Absorbing_ConsumesNoDraws(t *testing.T) {
	// GIVEN an absorbing row and two identical generators
	rng := rand.New(rand.NewSource(3))
	ref := rand.New(rand.NewSource(3))

	// WHEN sampling from the absorbing row
	tr, err := SampleTransition([]float64{0, 0}, 0, rng)

	// THEN it reports absorption and the stream is untouched
	require.NoError(t, err)
	assert.True(t, tr.Absorbing)
	assert.Equal(t, ref.Int63(), rng.Int63())
}

func TestSampleTransition_SelfRateIgnored(t *testing.T) {
	// A non-zero diagonal entry neither adds to λ nor can be selected.
	tr, err := SampleTransition([]float64{5, 0}, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.True(t, tr.Absorbing)
}

func TestSampleTransition_InvalidRate(t *testing.T) {
	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := SampleTransition([]float64{0, 1, bad}, 0, rand.New(rand.NewSource(1)))
		var rateErr *InvalidRateError
		require.True(t, errors.As(err, &rateErr), "rate %v: want *InvalidRateError, got %v", bad, err)
		assert.Equal(t, Mode(0), rateErr.From)
		assert.Equal(t, Mode(2), rateErr.To)
	}
}

func TestSampleTransition_Deterministic(t *testing.T) {
	// GIVEN two generators with the same seed
	a := rand.New(rand.NewSource(11))
	b := rand.New(rand.NewSource(11))
	row := []float64{0, 0.3, 0.7, 1.1}

	// THEN the sampled sequences are identical
	for i := 0; i < 100; i++ {
		ta, errA := SampleTransition(row, 0, a)
		tb, errB := SampleTransition(row, 0, b)
		require.NoError(t, errA)
		require.NoError(t, errB)
		require.Equal(t, ta, tb)
	}
}
