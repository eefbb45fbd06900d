package search

import (
	"errors"
	"math"
	"sync"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

// ErrNoIncumbent is returned when a search has not found a feasible
// solution.
var ErrNoIncumbent = errors.New("no incumbent found")

// Incumbent holds the best known solution. It is shared by the workers of a
// partitioned search, so every access takes the lock.
type Incumbent struct {
	mu      sync.RWMutex
	best    *models.Incumbent
	updates int
}

// NewIncumbent returns an empty holder.
func NewIncumbent() *Incumbent {
	return &Incumbent{}
}

// Objective is the incumbent's objective, -Inf when there is none.
func (i *Incumbent) Objective() float64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.best == nil {
		return math.Inf(-1)
	}
	return i.best.Objective
}

// Get returns the incumbent or ErrNoIncumbent.
func (i *Incumbent) Get() (*models.Incumbent, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.best == nil {
		return nil, ErrNoIncumbent
	}
	return i.best, nil
}

// Offer replaces the incumbent when cand is strictly better.
func (i *Incumbent) Offer(cand *models.Incumbent) bool {
	if cand == nil || math.IsNaN(cand.Objective) || math.IsInf(cand.Objective, -1) {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.best != nil && cand.Objective <= i.best.Objective {
		return false
	}
	i.best = cand
	i.updates++
	return true
}

// Updates counts accepted replacements.
func (i *Incumbent) Updates() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.updates
}
