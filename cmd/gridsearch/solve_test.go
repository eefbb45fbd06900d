package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

// Runs first: cobra keeps flag state between executions.
func TestSolveCommandRequiresProblem(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"solve"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "problem") {
		t.Fatalf("expected a missing --problem error, got %v", err)
	}
}

func TestSolveCommandPrintsResult(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"solve",
		"--problem", filepath.Join("..", "..", "config", "problem.yaml"),
		"--config", filepath.Join("..", "..", "config", "solver.yaml"),
		"--timeout", "1m",
		"--log-level", "error",
	})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	var got struct {
		Termination string `json:"termination"`
		Optimal     bool   `json:"optimal"`
		Incumbent   *struct {
			Objective  float64 `json:"objective"`
			Structures []struct {
				Name string `json:"name"`
			} `json:"structures"`
		} `json:"incumbent"`
		History []any `json:"history"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if got.Termination != "CONVERGED" || !got.Optimal {
		t.Fatalf("expected a proven optimum, got %s (optimal=%v)", got.Termination, got.Optimal)
	}
	if got.Incumbent == nil || len(got.Incumbent.Structures) != 2 {
		t.Fatalf("expected one structure per sentence, got %+v", got.Incumbent)
	}
	if got.Incumbent.Objective > 0 {
		t.Fatalf("log-likelihood must be non-positive, got %g", got.Incumbent.Objective)
	}
	if got.History != nil {
		t.Fatalf("history should be omitted without --history")
	}
}
