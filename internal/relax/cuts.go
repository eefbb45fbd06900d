package relax

import (
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// minCutViolation is how far a point must leave the sum-to-one polytope
// before a tangent cut is added for it.
const minCutViolation = 1e-7

// tangentCut linearises Σ exp(θ) <= 1 at θ0 = θ̄ - logsumexp(θ̄):
//
//	Σ e^{θ0_m} θ_m <= 1 - Σ e^{θ0_m} (1 - θ0_m)
//
// It returns the coefficients, the right-hand side and the violation of θ̄
// (logsumexp(θ̄), which is positive when θ̄ lies outside the polytope).
func tangentCut(thetaBar []float64) ([]float64, float64, float64) {
	lse := utils.LogSumExp(thetaBar)
	coefs := make([]float64, len(thetaBar))
	rhs := 1.0
	for m, t := range thetaBar {
		t0 := t - lse
		p := math.Exp(t0)
		if p == 0 {
			continue
		}
		coefs[m] = p
		rhs -= p * (1 - t0)
	}
	return coefs, rhs, lse
}

// secantCut bounds Σ exp(θ) >= 1 from below with the chord of exp over
// each interval: Σ s_m θ_m >= 1 - Σ (e^{lb_m} - s_m·lb_m).
func secantCut(lb, ub []float64) ([]float64, float64) {
	coefs := make([]float64, len(lb))
	rhs := 1.0
	for m := range lb {
		lo := math.Exp(lb[m])
		s := 0.0
		if width := ub[m] - lb[m]; width > 1e-12 {
			s = (math.Exp(ub[m]) - lo) / width
		}
		coefs[m] = s
		rhs -= lo - s*lb[m]
	}
	return coefs, rhs
}
