package relax

import (
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"gonum.org/v1/gonum/floats"
)

const waterFillIters = 200

// MaximizeWeightedLog solves max Σ b_m θ_m over θ in [lb, ub] with
// Σ exp(θ_m) = 1, for b >= 0. It returns the maximiser in log space and
// its value, or false when the box holds no distribution.
//
// The optimum is p_m = clip(b_m/κ, e^lb, e^ub) for the κ that makes the
// probabilities sum to one.
func MaximizeWeightedLog(b, lb, ub []float64) ([]float64, float64, bool) {
	n := len(b)
	lo := make([]float64, n)
	hi := make([]float64, n)
	for m := range b {
		lo[m] = math.Exp(lb[m])
		hi[m] = math.Exp(ub[m])
	}
	if floats.Sum(lo) > 1+1e-12 || floats.Sum(hi) < 1-1e-12 {
		return nil, 0, false
	}

	p := make([]float64, n)
	fill := func(kappa float64) float64 {
		for m := range b {
			if b[m] <= 0 {
				p[m] = lo[m]
				continue
			}
			p[m] = math.Min(math.Max(b[m]/kappa, lo[m]), hi[m])
		}
		return floats.Sum(p)
	}

	// Σp(κ) is non-increasing in κ. At κ -> 0 every positive weight sits at
	// its upper bound; if that is still short of one the zero weights take
	// the remainder, which leaves the objective unchanged.
	if short := 1 - fill(math.SmallestNonzeroFloat64); short > 0 || floats.Max(b) <= 0 {
		fillRemainder(b, p, lo, hi)
	} else {
		left, right := math.Inf(1), 0.0
		for m := range b {
			if b[m] > 0 {
				left = math.Min(left, b[m]/hi[m])
				right = math.Max(right, b[m]/lo[m])
			}
		}
		// Work in log κ: the bracket can span many orders of magnitude.
		a, z := math.Log(left), math.Log(right)
		for i := 0; i < waterFillIters && z-a > 1e-15*math.Max(1, math.Abs(a)); i++ {
			mid := 0.5 * (a + z)
			if fill(math.Exp(mid)) > 1 {
				a = mid
			} else {
				z = mid
			}
		}
		fill(math.Exp(0.5 * (a + z)))
	}

	theta := make([]float64, n)
	value := 0.0
	for m := range p {
		theta[m] = math.Min(math.Max(math.Log(p[m]), lb[m]), ub[m])
		if b[m] != 0 {
			value += b[m] * theta[m]
		}
	}
	return theta, value, true
}

// fillRemainder puts the positive weights at their upper bounds and spreads
// the missing mass over the zero weights in proportion to their slack.
func fillRemainder(b, p, lo, hi []float64) {
	slack := 0.0
	for m := range b {
		if b[m] > 0 {
			p[m] = hi[m]
		} else {
			p[m] = lo[m]
			slack += hi[m] - lo[m]
		}
	}
	short := 1 - floats.Sum(p)
	if short <= 0 || slack <= 0 {
		return
	}
	for m := range b {
		if b[m] <= 0 {
			p[m] += short * (hi[m] - lo[m]) / slack
		}
	}
}

// projectCondition moves one condition's log-probabilities into the box,
// falling back to clipping when the box holds no distribution.
func projectCondition(theta, lb, ub []float64) []float64 {
	if out, ok := bounds.ProjectLog(theta, lb, ub); ok {
		return out
	}
	return bounds.Clamp(theta, lb, ub)
}

// uniformLog returns n equal log-probabilities.
func uniformLog(n int) []float64 {
	out := make([]float64, n)
	for m := range out {
		out[m] = -math.Log(float64(n))
	}
	return out
}
