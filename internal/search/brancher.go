package search

import (
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/relax"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

// ErrNothingToSplit is returned when every interval of a box is too narrow
// to split.
var ErrNothingToSplit = errors.New("no interval wide enough to split")

// minSplitWidth is the narrowest interval, in probability space, that is
// still split.
const minSplitWidth = 1e-9

// Brancher splits a box into two children that partition it on one
// coordinate. The first child keeps the lower part of the interval, the
// second the upper part.
type Brancher interface {
	Branch(box *bounds.Store, sol *relax.RelaxedSolution, depth int) (bounds.DeltaList, bounds.DeltaList, error)
}

// NewBrancher returns the brancher named in the configuration.
func NewBrancher(name string, regretTol float64) (Brancher, error) {
	switch name {
	case config.BrancherWidest, "":
		return WidestBrancher{}, nil
	case config.BrancherRegret:
		return RegretBrancher{Tolerance: regretTol}, nil
	case config.BrancherRoundRobin:
		return RoundRobinBrancher{}, nil
	default:
		return nil, fmt.Errorf("unknown brancher %q", name)
	}
}

// split returns the deltas that cut idx at the log-probability point.
func split(box *bounds.Store, idx models.Index, point float64) (bounds.DeltaList, bounds.DeltaList) {
	lb, ub := box.Get(idx)
	lower := bounds.DeltaList{{Index: idx, Side: bounds.Upper, Amount: point - ub}}
	upper := bounds.DeltaList{{Index: idx, Side: bounds.Lower, Amount: point - lb}}
	return lower, upper
}

// probMidpoint is the log of the interval's midpoint in probability space.
func probMidpoint(box *bounds.Store, idx models.Index) float64 {
	lb, ub := box.Get(idx)
	mid := math.Log(0.5 * (math.Exp(lb) + math.Exp(ub)))
	return math.Min(math.Max(mid, lb), ub)
}

func splittable(box *bounds.Store, idx models.Index) bool {
	lb, ub := box.Get(idx)
	if box.ProbWidth(idx) <= minSplitWidth {
		return false
	}
	mid := probMidpoint(box, idx)
	return mid > lb && mid < ub
}

// WidestBrancher splits the parameter whose interval is widest in
// probability space at its probability midpoint.
type WidestBrancher struct{}

func (WidestBrancher) Branch(box *bounds.Store, _ *relax.RelaxedSolution, _ int) (bounds.DeltaList, bounds.DeltaList, error) {
	idx, ok := widest(box)
	if !ok {
		return nil, nil, ErrNothingToSplit
	}
	lower, upper := split(box, idx, probMidpoint(box, idx))
	return lower, upper, nil
}

func widest(box *bounds.Store) (models.Index, bool) {
	best, bestWidth := models.Index{}, -1.0
	for c := 0; c < box.NumConditions(); c++ {
		for m := 0; m < box.NumOutcomes(c); m++ {
			idx := models.Index{C: c, M: m}
			if !splittable(box, idx) {
				continue
			}
			if w := box.ProbWidth(idx); w > bestWidth {
				best, bestWidth = idx, w
			}
		}
	}
	return best, bestWidth >= 0
}

// RegretBrancher splits the parameter whose McCormick envelope overshoots
// the bilinear objective the most, at its relaxed value when that lies
// well inside the interval. Without positive regret it splits the widest
// interval.
type RegretBrancher struct {
	Tolerance float64
}

func (r RegretBrancher) Branch(box *bounds.Store, sol *relax.RelaxedSolution, depth int) (bounds.DeltaList, bounds.DeltaList, error) {
	if sol == nil || len(sol.Regret) == 0 {
		return WidestBrancher{}.Branch(box, sol, depth)
	}
	best, bestRegret := models.Index{}, r.Tolerance
	found := false
	for idx, v := range sol.Regret {
		if !splittable(box, idx) {
			continue
		}
		if v > bestRegret || (found && v == bestRegret && less(idx, best)) {
			best, bestRegret, found = idx, v, true
		}
	}
	if !found {
		return WidestBrancher{}.Branch(box, sol, depth)
	}
	point := probMidpoint(box, best)
	if sol.LogProbs != nil {
		lb, ub := box.Get(best)
		margin := 0.01 * (ub - lb)
		if v := sol.LogProbs[best.C][best.M]; v > lb+margin && v < ub-margin {
			point = v
		}
	}
	lower, upper := split(box, best, point)
	return lower, upper, nil
}

func less(a, b models.Index) bool {
	if a.C != b.C {
		return a.C < b.C
	}
	return a.M < b.M
}

// RoundRobinBrancher cycles through the parameters by depth, skipping
// intervals that are too narrow, and splits at the probability midpoint.
type RoundRobinBrancher struct{}

func (RoundRobinBrancher) Branch(box *bounds.Store, _ *relax.RelaxedSolution, depth int) (bounds.DeltaList, bounds.DeltaList, error) {
	var all []models.Index
	for c := 0; c < box.NumConditions(); c++ {
		for m := 0; m < box.NumOutcomes(c); m++ {
			all = append(all, models.Index{C: c, M: m})
		}
	}
	for k := 0; k < len(all); k++ {
		idx := all[(depth+k)%len(all)]
		if splittable(box, idx) {
			lower, upper := split(box, idx, probMidpoint(box, idx))
			return lower, upper, nil
		}
	}
	return nil, nil, ErrNothingToSplit
}
