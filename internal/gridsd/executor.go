package gridsd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/internal/search"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	base     *config.SolverConfig
	notifier *Notifier

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
}

// NewRunExecutor runs searches with base as the solver configuration that
// each run's config_yaml overrides. A nil base uses the defaults.
func NewRunExecutor(store *RunStore, base *config.SolverConfig) *RunExecutor {
	if base == nil {
		base = config.DefaultSolverConfig()
	}
	return &RunExecutor{
		store:    store,
		base:     base,
		notifier: NewNotifier(),
		cancels:  make(map[string]context.CancelFunc),
		done:     make(map[string]chan struct{}),
	}
}

// SetNotifier replaces the callback notifier.
func (e *RunExecutor) SetNotifier(n *Notifier) {
	e.notifier = n
}

// Validate checks a payload the way Start will, without creating a run.
func (e *RunExecutor) Validate(input *RunInput) error {
	_, err := input.compile(e.base)
	return err
}

// Start begins executing a run asynchronously and returns it RUNNING.
// Starting a running run is a no-op.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	switch {
	case rec.Run.Status == models.RunStatusRunning:
		return rec, nil
	case rec.Run.Status.Terminal():
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, executing := e.cancels[runID]; executing {
		return rec, nil
	}
	updated, err := e.store.SetStatus(runID, models.RunStatusRunning, "")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancels[runID] = cancel
	e.done[runID] = done

	go e.runSearch(ctx, runID, rec.Input, done)
	return updated, nil
}

// Stop cancels a run and marks it CANCELLED. The search notices between
// nodes and refinement rounds.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	updated, err := e.store.SetStatus(runID, models.RunStatusCancelled, "")
	if err != nil {
		return updated, err
	}
	logger.Info("run cancelled", "run_id", runID)
	return updated, nil
}

// Wait blocks until the run's search goroutine has finished, or ctx ends.
// It returns immediately for runs that are not executing.
func (e *RunExecutor) Wait(ctx context.Context, runID string) error {
	e.mu.Lock()
	done, ok := e.done[runID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every executing run and waits for them to finish.
func (e *RunExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.cancels))
	for id, cancel := range e.cancels {
		cancel()
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.Wait(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	delete(e.done, runID)
	e.mu.Unlock()
}

func (e *RunExecutor) runSearch(ctx context.Context, runID string, input *RunInput, done chan struct{}) {
	defer close(done)
	defer e.cleanup(runID)

	job, err := input.compile(e.base)
	if err != nil {
		logger.Error("invalid run input", "run_id", runID, "error", err)
		e.finish(runID, input, models.RunStatusFailed, err.Error())
		return
	}

	collector := metrics.NewCollector()
	if err := e.store.SetCollector(runID, collector); err != nil {
		logger.Error("failed to store collector", "run_id", runID, "error", err)
	}

	logger.Info("starting search", "run_id", runID, "instance", job.inst.Name, "timeout", job.cfg.Timeout)
	res, err := search.Search(ctx, job.cfg, job.inst, job.table, collector)
	if res != nil {
		if setErr := e.store.SetResult(runID, res); setErr != nil {
			logger.Error("failed to store result", "run_id", runID, "error", setErr)
		}
	}

	switch {
	case err != nil:
		logger.Error("search failed", "run_id", runID, "error", err)
		e.finish(runID, input, models.RunStatusFailed, err.Error())
	case res.Termination == models.TerminationCancelled:
		e.finish(runID, input, models.RunStatusCancelled, "")
	default:
		logger.Info("run completed", "run_id", runID,
			"termination", res.Termination,
			"nodes", res.Stats.NodesProcessed,
			"gap", res.Gap)
		e.finish(runID, input, models.RunStatusCompleted, "")
	}
}

// finish records the terminal status, unless Stop got there first, and
// notifies the callback URL.
func (e *RunExecutor) finish(runID string, input *RunInput, status models.RunStatus, errMsg string) {
	rec, err := e.store.SetStatus(runID, status, errMsg)
	if err != nil && !errors.Is(err, ErrRunTerminal) {
		logger.Error("failed to set final status", "run_id", runID, "status", status, "error", err)
		return
	}
	if input != nil && e.notifier != nil {
		e.notifier.Notify(input.CallbackURL, input.CallbackSecret, rec)
	}
}
