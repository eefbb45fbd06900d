// Package gridsd serves grid searches over HTTP and gRPC. Runs are created
// from a problem payload, executed asynchronously and polled for status and
// results.
package gridsd

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunTerminal  = errors.New("run is terminal")
	ErrRunIDMissing = errors.New("run_id is required")
	ErrRunExists    = errors.New("run already exists")
)

// RunRecord is a run together with the payload it was created from.
type RunRecord struct {
	Run       models.Run
	Input     *RunInput
	Collector *metrics.Collector
}

// RunStore keeps runs in memory. Records handed out are copies, so callers
// may read them while the executor updates the stored run.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
	}
}

func snapshot(rec *RunRecord) *RunRecord {
	out := *rec
	if rec.Run.Metadata != nil {
		out.Run.Metadata = make(map[string]string, len(rec.Run.Metadata))
		for k, v := range rec.Run.Metadata {
			out.Run.Metadata[k] = v
		}
	}
	return &out
}

func (s *RunStore) Create(runID string, input *RunInput) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	rec := &RunRecord{
		Run: models.Run{
			ID:        runID,
			Status:    models.RunStatusPending,
			CreatedAt: time.Now().UTC(),
		},
		Input: input,
	}
	s.runs[runID] = rec
	return snapshot(rec), nil
}

func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return snapshot(rec), true
}

// List returns runs oldest first, optionally filtered by status. An empty
// status matches every run.
func (s *RunStore) List(limit, offset int, status models.RunStatus) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	all := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status == "" || rec.Run.Status == status {
			all = append(all, rec)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Run.CreatedAt.Equal(all[j].Run.CreatedAt) {
			return all[i].Run.CreatedAt.Before(all[j].Run.CreatedAt)
		}
		return all[i].Run.ID < all[j].Run.ID
	})
	if offset >= len(all) {
		return []*RunRecord{}
	}
	all = all[offset:utils.MinInt(offset+limit, len(all))]
	out := make([]*RunRecord, len(all))
	for i, rec := range all {
		out[i] = snapshot(rec)
	}
	return out
}

// SetStatus moves a run to status. Terminal runs never change status again.
func (s *RunStore) SetStatus(runID string, status models.RunStatus, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return snapshot(rec), fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Run.Status)
	}

	rec.Run.Status = status
	if errMsg != "" {
		rec.Run.Error = errMsg
	}
	now := time.Now().UTC()
	switch {
	case status == models.RunStatusRunning:
		if rec.Run.StartTime.IsZero() {
			rec.Run.StartTime = now
		}
	case status.Terminal():
		rec.Run.EndTime = now
	}
	return snapshot(rec), nil
}

func (s *RunStore) SetResult(runID string, res *models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.Run.Result = res
	return nil
}

func (s *RunStore) SetCollector(runID string, c *metrics.Collector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.Collector = c
	return nil
}
