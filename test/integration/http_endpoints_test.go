//go:build integration
// +build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/gridsearch/internal/gridsd"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
)

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("GET %s: invalid json: %v", url, err)
	}
	return body
}

// TestIntegration_HTTPRunLifecycle drives a run through a real listener:
// create and start, poll until terminal, then read metrics.
func TestIntegration_HTTPRunLifecycle(t *testing.T) {
	problem, err := os.ReadFile(filepath.Join("..", "..", "config", "problem.yaml"))
	if err != nil {
		t.Fatalf("read problem: %v", err)
	}
	base := config.DefaultSolverConfig()
	base.Timeout = "2m"

	store := gridsd.NewRunStore()
	executor := gridsd.NewRunExecutor(store, base)
	ts := httptest.NewServer(gridsd.NewHTTPServer(store, executor).Handler())
	defer ts.Close()

	payload, _ := json.Marshal(map[string]any{
		"run_id":       "integration-1",
		"problem_yaml": string(problem),
		"config_yaml":  "brancher: regret\n",
		"start":        true,
	})
	resp, err := http.Post(ts.URL+"/v1/runs", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /v1/runs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var run map[string]any
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		run = getJSON(t, ts.URL+"/v1/runs/integration-1")["run"].(map[string]any)
		if run["status"] != "running" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if run["status"] != "completed" {
		t.Fatalf("expected completed, got %v (error %v)", run["status"], run["error"])
	}
	result := run["result"].(map[string]any)
	if result["termination"] != "CONVERGED" || result["optimal"] != true {
		t.Fatalf("unexpected result %v", result)
	}

	summary := getJSON(t, ts.URL+"/v1/runs/integration-1/metrics")["summary"]
	if summary == nil {
		t.Fatalf("expected a metrics summary")
	}
	points := getJSON(t, ts.URL+"/v1/runs/integration-1/metrics/timeseries?metric=upper_bound")["points"].([]any)
	if len(points) == 0 {
		t.Fatalf("expected upper bound history")
	}

	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	var exposition bytes.Buffer
	_, _ = exposition.ReadFrom(metricsResp.Body)
	metricsResp.Body.Close()
	if !bytes.Contains(exposition.Bytes(), []byte("gridsearch_runs_total")) {
		t.Fatalf("expected gridsearch_runs_total in the Prometheus exposition")
	}
}
