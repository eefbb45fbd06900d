package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestStructureKeyIgnoresOrderAndZeros(t *testing.T) {
	a := Structure{Sentence: 1, Features: []FeatureCount{
		{Index: Index{0, 1}, Count: 2},
		{Index: Index{1, 0}, Count: 1},
	}}
	b := Structure{Sentence: 1, Features: []FeatureCount{
		{Index: Index{1, 0}, Count: 1},
		{Index: Index{0, 1}, Count: 1},
		{Index: Index{0, 1}, Count: 1},
		{Index: Index{2, 2}, Count: 0},
	}}
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %q and %q", a.Key(), b.Key())
	}
	c := Structure{Sentence: 2, Features: a.Features}
	if a.Key() == c.Key() {
		t.Fatal("structures of different sentences must not share a key")
	}
}

func TestStructureScoreZeroCountWithNegInf(t *testing.T) {
	weights := [][]float64{{math.Inf(-1), -1}}
	s := Structure{Features: []FeatureCount{
		{Index: Index{0, 0}, Count: 0},
		{Index: Index{0, 1}, Count: 3},
	}}
	if got := s.Score(weights); got != -3 {
		t.Fatalf("expected -3, got %g", got)
	}
}

func TestObjective(t *testing.T) {
	logProbs := [][]float64{{math.Log(0.5), math.Log(0.5)}}
	structures := []Structure{
		{Sentence: 0, Features: []FeatureCount{{Index: Index{0, 0}, Count: 1}}},
		{Sentence: 1, Features: []FeatureCount{{Index: Index{0, 1}, Count: 2}}},
	}
	want := 3 * math.Log(0.5)
	if got := Objective(structures, logProbs); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %g, got %g", want, got)
	}
}

func TestResultJSONSafe(t *testing.T) {
	r := &Result{
		Termination: TerminationExhausted,
		UpperBound:  math.Inf(1),
		LowerBound:  math.Inf(-1),
		Gap:         math.Inf(1),
		History:     []BoundPoint{{Upper: math.Inf(1), Lower: math.Inf(-1)}},
	}
	if _, err := json.Marshal(r.JSONSafe()); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !math.IsInf(r.UpperBound, 1) {
		t.Fatal("JSONSafe must not modify the receiver")
	}
	if r.Optimal() {
		t.Fatal("exhausted result is not optimal")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunStatusPending, RunStatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
