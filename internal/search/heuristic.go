package search

import (
	"context"
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/relax"
	"github.com/GoSim-25-26J-441/gridsearch/internal/subproblem"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// rounder turns fractional relaxed solutions into feasible incumbents over
// the root box.
type rounder struct {
	sub    subproblem.Solver
	rootLb [][]float64
	rootUb [][]float64
}

// candidate derives the best integral solution it can from sol: once from
// the relaxed parameters (normalised and re-parsed) and once from the
// heaviest structure of every sentence. Each structure choice is scored
// with its best parameters inside the root box.
func (r *rounder) candidate(ctx context.Context, sol *relax.RelaxedSolution) (*models.Incumbent, error) {
	var best *models.Incumbent
	if sol.LogProbs != nil {
		theta := make([][]float64, len(sol.LogProbs))
		for c := range sol.LogProbs {
			theta[c] = r.intoRoot(c, normalize(sol.LogProbs[c]))
		}
		structures := make([]models.Structure, r.sub.NumSentences())
		for s := range structures {
			st, _, err := r.sub.Solve(ctx, s, theta)
			if err != nil {
				return nil, err
			}
			structures[s] = st
		}
		best = better(best, r.fit(structures))
	}
	if heavy := heaviest(sol.Structures, r.sub.NumSentences()); heavy != nil {
		best = better(best, r.fit(heavy))
	}
	return best, nil
}

// fit scores a structure choice with the parameters that maximise its
// objective over the root box.
func (r *rounder) fit(structures []models.Structure) *models.Incumbent {
	counts := make([][]float64, len(r.rootLb))
	for c := range counts {
		counts[c] = make([]float64, len(r.rootLb[c]))
	}
	for _, st := range structures {
		for idx, f := range st.Counts() {
			counts[idx.C][idx.M] += f
		}
	}
	theta := make([][]float64, len(counts))
	for c := range counts {
		t, _, ok := relax.MaximizeWeightedLog(counts[c], r.rootLb[c], r.rootUb[c])
		if !ok {
			return nil
		}
		theta[c] = t
	}
	return &models.Incumbent{
		Structures: structures,
		LogProbs:   theta,
		Objective:  models.Objective(structures, theta),
	}
}

func (r *rounder) intoRoot(c int, theta []float64) []float64 {
	if out, ok := bounds.ProjectLog(theta, r.rootLb[c], r.rootUb[c]); ok {
		return out
	}
	return bounds.Clamp(theta, r.rootLb[c], r.rootUb[c])
}

func normalize(theta []float64) []float64 {
	lse := utils.LogSumExp(theta)
	out := make([]float64, len(theta))
	for m, t := range theta {
		out[m] = t - lse
	}
	return out
}

func heaviest(weighted [][]relax.WeightedStructure, n int) []models.Structure {
	if len(weighted) != n {
		return nil
	}
	out := make([]models.Structure, n)
	for s, list := range weighted {
		if len(list) == 0 {
			return nil
		}
		top := list[0]
		for _, ws := range list[1:] {
			if ws.Weight > top.Weight {
				top = ws
			}
		}
		out[s] = top.Structure
	}
	return out
}

func better(a, b *models.Incumbent) *models.Incumbent {
	switch {
	case b == nil || math.IsNaN(b.Objective):
		return a
	case a == nil || b.Objective > a.Objective:
		return b
	default:
		return a
	}
}
