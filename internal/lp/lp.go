// Package lp defines the linear-programming engine used by the relaxations
// and provides a bounded-variable revised simplex implementation of it.
package lp

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrUnknownRow is returned when a row id does not name a live row
	ErrUnknownRow = errors.New("unknown row")
	// ErrUnknownCol is returned when a column id does not name a live column
	ErrUnknownCol = errors.New("unknown column")
	// ErrSingularBasis is returned when no usable basis factorisation exists
	ErrSingularBasis = errors.New("singular basis")
	// ErrEngine wraps unrecoverable solver failures
	ErrEngine = errors.New("lp engine failure")
)

// Inf is the bound used for unbounded sides.
var Inf = math.Inf(1)

// RowID identifies a constraint row. Ids are never reused.
type RowID int

// ColID identifies a column. Ids are never reused.
type ColID int

// Sense is the optimisation direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Method selects the simplex variant.
type Method int

const (
	// MethodAuto runs the dual simplex when the basis is dual feasible and
	// the primal simplex otherwise.
	MethodAuto Method = iota
	MethodPrimal
	MethodDual
)

func (m Method) String() string {
	switch m {
	case MethodPrimal:
		return "primal"
	case MethodDual:
		return "dual"
	default:
		return "auto"
	}
}

// Status is the outcome of a solve.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	// StatusObjLimit means the dual simplex proved the objective cannot
	// beat the installed limit and stopped early.
	StatusObjLimit
	StatusIterLimit
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusObjLimit:
		return "objective_limit"
	case StatusIterLimit:
		return "iteration_limit"
	default:
		return "unknown"
	}
}

// BasisStatus is the simplex status of a column or of a row's logical
// variable.
type BasisStatus int

const (
	AtLower BasisStatus = iota
	AtUpper
	Basic
	// Free marks a nonbasic variable with no finite bound, held at zero.
	Free
)

func (b BasisStatus) String() string {
	switch b {
	case AtUpper:
		return "at_upper"
	case Basic:
		return "basic"
	case Free:
		return "free"
	default:
		return "at_lower"
	}
}

// Basis is a warm-start snapshot keyed by stable ids. Entries for ids that
// no longer exist are ignored when the basis is installed.
type Basis struct {
	Cols map[ColID]BasisStatus
	Rows map[RowID]BasisStatus
}

// Clone returns a deep copy.
func (b *Basis) Clone() *Basis {
	if b == nil {
		return nil
	}
	out := &Basis{
		Cols: make(map[ColID]BasisStatus, len(b.Cols)),
		Rows: make(map[RowID]BasisStatus, len(b.Rows)),
	}
	for k, v := range b.Cols {
		out.Cols[k] = v
	}
	for k, v := range b.Rows {
		out.Rows[k] = v
	}
	return out
}

// Stats counts engine work.
type Stats struct {
	Solves        int
	Iterations    int
	DualFallbacks int
	BasisRestarts int
	ObjLimitStops int
}

// Engine is the LP contract the relaxations are written against. A row is
// lb <= a·x <= ub; a column has bounds [lb, ub] and an objective
// coefficient. Duals and reduced costs are reported in the engine's sense.
type Engine interface {
	SetSense(s Sense)
	AddRow(name string, lb, ub float64, coefs map[ColID]float64) (RowID, error)
	AddCol(name string, lb, ub, obj float64, coefs map[RowID]float64) (ColID, error)
	RemoveRow(r RowID) error
	RemoveCol(c ColID) error
	SetCoef(r RowID, c ColID, v float64) error
	Coef(r RowID, c ColID) float64
	SetColBounds(c ColID, lb, ub float64) error
	SetRowBounds(r RowID, lb, ub float64) error
	SetObjCoef(c ColID, v float64) error

	// SetObjLimit installs a limit in the engine's sense: a dual simplex
	// solve stops with StatusObjLimit once it proves the optimum cannot be
	// better than limit.
	SetObjLimit(limit float64)
	ClearObjLimit()
	SetIterLimit(n int)

	Solve(ctx context.Context, method Method) (Status, error)
	Status() Status
	Objective() float64
	Value(c ColID) float64
	RowActivity(r RowID) float64
	Dual(r RowID) float64
	ReducedCost(c ColID) float64
	ColStatus(c ColID) BasisStatus
	RowStatus(r RowID) BasisStatus

	Basis() *Basis
	SetBasis(b *Basis)
	// ResetBasis returns to the slack basis.
	ResetBasis()

	NumRows() int
	NumCols() int
	Stats() Stats
}
