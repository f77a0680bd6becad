// Package testutil provides shared test infrastructure for the simulator.
// It consolidates scenario fixtures and assertion helpers used across
// sim/, sim/scenario/ and cmd/ test packages.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// ScenarioPath returns the path of a scenario fixture under testdata/scenarios/.
// The path is resolved relative to this source file, so it works from any package.
func ScenarioPath(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "scenarios", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Failed to find scenario fixture: %v", err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertWithinAbs checks |got - want| <= tol. Used for empirical frequencies,
// where a relative bound misbehaves near zero.
func AssertWithinAbs(t *testing.T, name string, want, got, tol float64) {
	t.Helper()
	if diff := math.Abs(want - got); diff > tol || math.IsNaN(got) {
		t.Errorf("%s: got %v, want %v ± %v (diff=%v)", name, got, want, tol, diff)
	}
}
