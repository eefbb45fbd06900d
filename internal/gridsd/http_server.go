package gridsd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

type HTTPServer struct {
	mux      *http.ServeMux
	store    *RunStore
	Executor *RunExecutor
}

func NewHTTPServer(store *RunStore, executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRuns handles /v1/runs
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunByID handles /v1/runs/{id}, {id}:start, {id}:stop,
// {id}/metrics and {id}/metrics/timeseries
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	route := func(suffix, method string, h func(http.ResponseWriter, *http.Request, string)) bool {
		if !strings.HasSuffix(path, suffix) {
			return false
		}
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return true
		}
		h(w, r, strings.TrimSuffix(path, suffix))
		return true
	}
	switch {
	case route(":start", http.MethodPost, s.handleStartRun):
	case route(":stop", http.MethodPost, s.handleStopRun):
	case route("/metrics/timeseries", http.MethodGet, s.handleTimeSeries):
	case route("/metrics", http.MethodGet, s.handleGetRunMetrics):
	case route("", http.MethodGet, s.handleGetRun):
	}
}

// handleCreateRun handles POST /v1/runs. With "start": true the run is
// started immediately.
func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID string `json:"run_id,omitempty"`
		Start bool   `json:"start,omitempty"`
		RunInput
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	input := req.RunInput
	if err := s.Executor.Validate(&input); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.Create(req.RunID, &input)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	logger.Info("run created (HTTP)", "run_id", rec.Run.ID)

	if req.Start {
		if rec, err = s.Executor.Start(rec.Run.ID); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"run": convertRunToJSON(&rec.Run),
	})
}

// handleListRuns handles GET /v1/runs with pagination and status filter
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, 1000)
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	runs := s.store.List(limit, offset, runStatus(r.URL.Query().Get("status")))
	runsJSON := make([]map[string]any, 0, len(runs))
	for _, rec := range runs {
		runsJSON = append(runsJSON, convertRunToJSON(&rec.Run))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs": runsJSON,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(runs),
		},
	})
}

func (s *HTTPServer) handleGetRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": convertRunToJSON(&rec.Run),
	})
}

func (s *HTTPServer) handleStartRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, err := s.Executor.Start(runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": convertRunToJSON(&rec.Run),
	})
}

func (s *HTTPServer) handleStopRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, err := s.Executor.Stop(runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": convertRunToJSON(&rec.Run),
	})
}

// handleGetRunMetrics returns the aggregated bound history of a run.
func (s *HTTPServer) handleGetRunMetrics(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Collector == nil {
		s.writeError(w, http.StatusPreconditionFailed, "metrics not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"summary": rec.Collector.GetSummary(),
	})
}

// handleTimeSeries returns the points of one collected metric,
// ?metric=upper_bound by default.
func (s *HTTPServer) handleTimeSeries(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Collector == nil {
		s.writeError(w, http.StatusPreconditionFailed, "metrics not available")
		return
	}
	name := r.URL.Query().Get("metric")
	if name == "" {
		name = "upper_bound"
	}
	labels := map[string]string{}
	if worker := r.URL.Query().Get("worker"); worker != "" {
		labels["worker"] = worker
	}
	points := rec.Collector.GetTimeSeries(name, labels)
	out := make([]map[string]any, 0, len(points))
	for _, p := range points {
		out = append(out, map[string]any{
			"timestamp": p.Timestamp.Format(time.RFC3339Nano),
			"value":     p.Value,
			"labels":    p.Labels,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"metric": name,
		"points": out,
	})
}

func (s *HTTPServer) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunExists), errors.Is(err, ErrRunTerminal):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

// runStatus parses a status filter; an empty string matches every run.
func runStatus(s string) models.RunStatus {
	return models.RunStatus(strings.ToLower(strings.TrimSpace(s)))
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func convertRunToJSON(run *models.Run) map[string]any {
	out := map[string]any{
		"id":                 run.ID,
		"status":             string(run.Status),
		"created_at_unix_ms": unixMs(run.CreatedAt),
		"started_at_unix_ms": unixMs(run.StartTime),
		"ended_at_unix_ms":   unixMs(run.EndTime),
		"error":              run.Error,
	}
	if run.Result != nil {
		out["result"] = convertResultToJSON(run.Result)
	}
	return out
}

// convertResultToJSON renders a result with infinities clamped to the
// largest finite float. The bound history is left to the metrics routes.
func convertResultToJSON(res *models.Result) map[string]any {
	safe := res.JSONSafe()
	out := map[string]any{
		"termination": string(safe.Termination),
		"upper_bound": safe.UpperBound,
		"lower_bound": safe.LowerBound,
		"gap":         safe.Gap,
		"optimal":     res.Optimal(),
		"stats": map[string]any{
			"nodes_processed":     safe.Stats.NodesProcessed,
			"fathomed_infeasible": safe.Stats.FathomedInfeasible,
			"fathomed_pruned":     safe.Stats.FathomedPruned,
			"fathomed_integral":   safe.Stats.FathomedIntegral,
			"unsplittable":        safe.Stats.Unsplittable,
			"branched":            safe.Stats.Branched,
			"max_depth":           safe.Stats.MaxDepth,
			"incumbent_updates":   safe.Stats.IncumbentUpdates,
			"elapsed_ms":          safe.Stats.Elapsed.Milliseconds(),
		},
	}
	if inc := safe.Incumbent; inc != nil {
		structures := make([]any, len(inc.Structures))
		for i, st := range inc.Structures {
			structures[i] = st.Name
		}
		logProbs := make([]any, len(inc.LogProbs))
		for c, row := range inc.LogProbs {
			vals := make([]any, len(row))
			for m, v := range row {
				vals[m] = v
			}
			logProbs[c] = vals
		}
		out["incumbent"] = map[string]any{
			"objective":  inc.Objective,
			"structures": structures,
			"log_probs":  logProbs,
		}
	}
	return out
}
