package bounds

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const projectIters = 200

// ProjectProbs returns the Euclidean projection of p onto
// {q : Σq = 1, lo <= q <= hi}. It reports false when the set is empty.
func ProjectProbs(p, lo, hi []float64) ([]float64, bool) {
	if floats.Sum(lo) > 1+1e-12 || floats.Sum(hi) < 1-1e-12 {
		return nil, false
	}
	q := make([]float64, len(p))
	fill := func(tau float64) float64 {
		for i := range p {
			q[i] = math.Min(math.Max(p[i]-tau, lo[i]), hi[i])
		}
		return floats.Sum(q)
	}
	// Σq(τ) is non-increasing in τ.
	left := floats.Min(p) - floats.Max(hi) - 1
	right := floats.Max(p) - floats.Min(lo) + 1
	for i := 0; i < projectIters && right-left > 1e-15*math.Max(1, math.Abs(left)); i++ {
		mid := 0.5 * (left + right)
		if fill(mid) > 1 {
			left = mid
		} else {
			right = mid
		}
	}
	fill(right)
	return q, true
}

// ProjectLog projects log-probabilities theta onto the sum-to-one polytope
// of the box [lb, ub] (log space) and returns the result in log space.
func ProjectLog(theta, lb, ub []float64) ([]float64, bool) {
	p := make([]float64, len(theta))
	lo := make([]float64, len(theta))
	hi := make([]float64, len(theta))
	for i := range theta {
		p[i] = math.Exp(theta[i])
		lo[i] = math.Exp(lb[i])
		hi[i] = math.Exp(ub[i])
	}
	q, ok := ProjectProbs(p, lo, hi)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(q))
	for i, v := range q {
		out[i] = math.Min(math.Max(math.Log(v), lb[i]), ub[i])
	}
	return out, true
}

// Clamp clips theta into [lb, ub] element-wise.
func Clamp(theta, lb, ub []float64) []float64 {
	out := make([]float64, len(theta))
	for i := range theta {
		out[i] = math.Min(math.Max(theta[i], lb[i]), ub[i])
	}
	return out
}

// Inside reports whether theta lies in [lb, ub] element-wise.
func Inside(theta, lb, ub []float64) bool {
	for i := range theta {
		if theta[i] < lb[i] || theta[i] > ub[i] {
			return false
		}
	}
	return true
}
