package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MinInt returns the minimum of two integers
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampFloat64 clamps a float64 value between min and max
func ClampFloat64(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// LogAdd returns log(exp(a) + exp(b)) without leaving log space.
func LogAdd(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// LogSumExp returns log(sum(exp(values))). An empty slice sums to zero
// probability mass, i.e. -Inf.
func LogSumExp(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}
	return floats.LogSumExp(values)
}

// SafeLog returns log(p), mapping p <= 0 to -Inf instead of NaN.
func SafeLog(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}

// ExpAll returns exp(v) for every element of values.
func ExpAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Exp(v)
	}
	return out
}

// LogAll returns SafeLog(v) for every element of values.
func LogAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = SafeLog(v)
	}
	return out
}

// Lte reports a <= b + tol.
func Lte(a, b, tol float64) bool {
	return a <= b+tol
}

// Gte reports a >= b - tol.
func Gte(a, b, tol float64) bool {
	return a >= b-tol
}

// ApproxEqual reports |a-b| <= tol. Equal infinities compare equal.
func ApproxEqual(a, b, tol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= tol
}

// RelativeGap returns |ub-lb| / max(1, |ub|), the gap used for convergence.
func RelativeGap(ub, lb float64) float64 {
	if math.IsInf(ub, 0) || math.IsInf(lb, 0) {
		return math.Inf(1)
	}
	return math.Abs(ub-lb) / math.Max(1, math.Abs(ub))
}

// MulZeroSafe returns count*value with 0*(-Inf) defined as 0.
func MulZeroSafe(count, value float64) float64 {
	if count == 0 {
		return 0
	}
	return count * value
}
