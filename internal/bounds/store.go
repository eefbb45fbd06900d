// Package bounds holds the live parameter box of a branch-and-bound search
// and the reversible edits applied to it.
package bounds

import (
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// ErrInfeasibleBox reports a box whose bounds cannot hold a distribution.
var ErrInfeasibleBox = errors.New("infeasible box")

// Side selects the bound a delta edits.
type Side int

const (
	Lower Side = iota
	Upper
)

func (s Side) String() string {
	if s == Upper {
		return "upper"
	}
	return "lower"
}

type undo struct {
	amount float64
	prev   float64
}

type entryKey struct {
	idx  models.Index
	side Side
}

// Store owns the [lb, ub] log-probability interval of every parameter. It
// is mutated in place and is not safe for concurrent use.
type Store struct {
	lbs  [][]float64
	ubs  [][]float64
	hist map[entryKey][]undo
}

// NewStore copies the given bounds. It panics if any lb exceeds its ub.
func NewStore(lbs, ubs [][]float64) *Store {
	if len(lbs) != len(ubs) {
		panic("bounds: lower and upper shapes differ")
	}
	s := &Store{
		lbs:  make([][]float64, len(lbs)),
		ubs:  make([][]float64, len(ubs)),
		hist: make(map[entryKey][]undo),
	}
	for c := range lbs {
		if len(lbs[c]) != len(ubs[c]) {
			panic(fmt.Sprintf("bounds: condition %d shapes differ", c))
		}
		s.lbs[c] = append([]float64(nil), lbs[c]...)
		s.ubs[c] = append([]float64(nil), ubs[c]...)
		for m := range lbs[c] {
			if lbs[c][m] > ubs[c][m] {
				panic(fmt.Sprintf("bounds: %s has lb %g > ub %g", models.Index{C: c, M: m}, lbs[c][m], ubs[c][m]))
			}
		}
	}
	return s
}

// NumConditions returns the number of conditions.
func (s *Store) NumConditions() int { return len(s.lbs) }

// NumOutcomes returns the number of outcomes of condition c.
func (s *Store) NumOutcomes(c int) int { return len(s.lbs[c]) }

// NumParams returns the outcome count of every condition.
func (s *Store) NumParams() []int {
	out := make([]int, len(s.lbs))
	for c := range s.lbs {
		out[c] = len(s.lbs[c])
	}
	return out
}

// Get returns the interval of one parameter.
func (s *Store) Get(i models.Index) (lb, ub float64) {
	return s.lbs[i.C][i.M], s.ubs[i.C][i.M]
}

func (s *Store) Lb(i models.Index) float64 { return s.lbs[i.C][i.M] }
func (s *Store) Ub(i models.Index) float64 { return s.ubs[i.C][i.M] }

// Lbs returns a copy of the lower bounds of condition c.
func (s *Store) Lbs(c int) []float64 { return append([]float64(nil), s.lbs[c]...) }

// Ubs returns a copy of the upper bounds of condition c.
func (s *Store) Ubs(c int) []float64 { return append([]float64(nil), s.ubs[c]...) }

// Set overwrites one interval and forgets its edit history. It panics if
// lb > ub.
func (s *Store) Set(i models.Index, lb, ub float64) {
	if lb > ub {
		panic(fmt.Sprintf("bounds: set %s to [%g, %g]", i, lb, ub))
	}
	s.lbs[i.C][i.M] = lb
	s.ubs[i.C][i.M] = ub
	delete(s.hist, entryKey{i, Lower})
	delete(s.hist, entryKey{i, Upper})
}

// Apply adds d.Amount to the named bound. Applying the exact negation of the
// most recent edit of the same bound restores the previous value bit for
// bit. It panics if the interval becomes empty.
func (s *Store) Apply(d Delta) {
	key := entryKey{d.Index, d.Side}
	ref := &s.lbs[d.Index.C][d.Index.M]
	if d.Side == Upper {
		ref = &s.ubs[d.Index.C][d.Index.M]
	}
	stack := s.hist[key]
	if n := len(stack); n > 0 && stack[n-1].amount == -d.Amount {
		*ref = stack[n-1].prev
		if n == 1 {
			delete(s.hist, key)
		} else {
			s.hist[key] = stack[:n-1]
		}
	} else {
		s.hist[key] = append(stack, undo{amount: d.Amount, prev: *ref})
		*ref += d.Amount
	}
	if lb, ub := s.Get(d.Index); lb > ub {
		panic(fmt.Sprintf("bounds: delta %s leaves %s empty [%g, %g]", d, d.Index, lb, ub))
	}
}

// InfeasibleCondition returns the first condition whose bounds cannot hold
// a distribution: the upper bounds sum below one or the lower bounds sum
// above one, in log space with slack tol.
func (s *Store) InfeasibleCondition(tol float64) (int, bool) {
	for c := range s.lbs {
		if utils.LogSumExp(s.ubs[c]) < -tol || utils.LogSumExp(s.lbs[c]) > tol {
			return c, true
		}
	}
	return -1, false
}

// IsFeasible checks the sum-to-one invariants of every condition.
func (s *Store) IsFeasible(tol float64) bool {
	_, bad := s.InfeasibleCondition(tol)
	return !bad
}

// Clone returns an independent copy without edit history.
func (s *Store) Clone() *Store {
	return NewStore(s.lbs, s.ubs)
}

// Equal reports whether both stores hold bit-identical bounds.
func (s *Store) Equal(o *Store) bool {
	if len(s.lbs) != len(o.lbs) {
		return false
	}
	for c := range s.lbs {
		if len(s.lbs[c]) != len(o.lbs[c]) {
			return false
		}
		for m := range s.lbs[c] {
			if math.Float64bits(s.lbs[c][m]) != math.Float64bits(o.lbs[c][m]) ||
				math.Float64bits(s.ubs[c][m]) != math.Float64bits(o.ubs[c][m]) {
				return false
			}
		}
	}
	return true
}

// ProbWidth is the width of an interval in probability space.
func (s *Store) ProbWidth(i models.Index) float64 {
	lb, ub := s.Get(i)
	return math.Exp(ub) - math.Exp(lb)
}

// String renders the box for debug logs.
func (s *Store) String() string {
	out := ""
	for c := range s.lbs {
		for m := range s.lbs[c] {
			out += fmt.Sprintf("%s[%.4g,%.4g] ", models.Index{C: c, M: m}, s.lbs[c][m], s.ubs[c][m])
		}
	}
	return out
}
