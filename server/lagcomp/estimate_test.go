package lagcomp

import (
	"math"
	"testing"
)

func TestEstimatePredictionTime(t *testing.T) {
	cases := []struct {
		name               string
		ping, fudge, ceil  float64
		secondsPerMs, want float64
	}{
		{"clamped to ceiling", 500, 20, 120, 0.001, 0.12},
		{"below fudge", 10, 20, 120, 0.001, 0},
		{"in range", 100, 20, 120, 0.001, 0.08},
		{"half rtt scale", 100, 0, 200, 0.0005, 0.05},
		{"nan ping", math.NaN(), 0, 200, 0.001, 0},
		{"inf ping", math.Inf(1), 0, 200, 0.001, 0},
		{"zero ceiling", 100, 0, 0, 0.001, 0},
	}
	for _, c := range cases {
		got := EstimatePredictionTime(c.ping, c.fudge, c.ceil, c.secondsPerMs)
		if math.Abs(got-c.want) > 1e-12 {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

type fakeLatency map[EntityID]float64

func (f fakeLatency) RTT(id EntityID) (float64, bool) {
	ms, ok := f[id]
	return ms, ok
}

func TestEstimatorForShooter(t *testing.T) {
	e := Estimator{SecondsPerMs: 0.001, CeilingMs: 200}
	src := fakeLatency{1: 150}

	if got := e.ForShooter(src, 1); math.Abs(got-0.15) > 1e-12 {
		t.Fatalf("depth = %v, want 0.15", got)
	}
	if got := e.ForShooter(src, 2); got != 0 {
		t.Fatalf("unknown shooter depth = %v, want 0", got)
	}
	if got := e.ForShooter(nil, 1); got != 0 {
		t.Fatalf("nil source depth = %v, want 0", got)
	}
}

func TestEstimatorClamp(t *testing.T) {
	e := Estimator{SecondsPerMs: 0.001, CeilingMs: 200}
	deepest := e.MaxDepth()
	if math.Abs(deepest-0.2) > 1e-12 {
		t.Fatalf("max depth = %v", deepest)
	}
	for _, c := range []struct{ in, want float64 }{{-1, 0}, {0.1, 0.1}, {5, deepest}, {math.NaN(), 0}} {
		if got := e.Clamp(c.in); got != c.want {
			t.Errorf("Clamp(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
