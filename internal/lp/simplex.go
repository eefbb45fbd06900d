package lp

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
)

type column struct {
	name   string
	lb, ub float64
	obj    float64
	coefs  map[RowID]float64
	status BasisStatus
	value  float64
	rc     float64
	alive  bool
}

type row struct {
	name     string
	lb, ub   float64
	status   BasisStatus
	activity float64
	dual     float64
	alive    bool
}

// Tolerances used by the simplex iterations.
type Tolerances struct {
	Primal float64
	Dual   float64
	Pivot  float64
}

// DefaultTolerances returns the tolerances NewSimplex installs.
func DefaultTolerances() Tolerances {
	return Tolerances{Primal: 1e-9, Dual: 1e-9, Pivot: 1e-10}
}

// Simplex is an in-memory Engine over dense gonum matrices. Each solve
// factorises the basis once with LU and then updates an explicit inverse
// pivot by pivot, which is adequate for relaxations with at most a few
// hundred rows.
type Simplex struct {
	sense       Sense
	cols        []column
	rows        []row
	numCols     int
	numRows     int
	objLimit    float64
	hasObjLimit bool
	iterLimit   int
	tol         Tolerances
	status      Status
	objective   float64
	stats       Stats
	log         *slog.Logger
}

var _ Engine = (*Simplex)(nil)

// NewSimplex creates an empty minimisation problem.
func NewSimplex() *Simplex {
	return &Simplex{
		sense: Minimize,
		tol:   DefaultTolerances(),
		log:   logger.Component("lp"),
	}
}

// SetTolerances overrides the iteration tolerances.
func (s *Simplex) SetTolerances(t Tolerances) {
	s.tol = t
}

// SetLogger replaces the engine logger.
func (s *Simplex) SetLogger(l *slog.Logger) {
	s.log = l
}

func (s *Simplex) SetSense(sense Sense) {
	s.sense = sense
	s.invalidate()
}

func (s *Simplex) invalidate() {
	s.status = StatusUnknown
}

func (s *Simplex) col(c ColID) (*column, error) {
	if int(c) < 0 || int(c) >= len(s.cols) || !s.cols[c].alive {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCol, c)
	}
	return &s.cols[c], nil
}

func (s *Simplex) row(r RowID) (*row, error) {
	if int(r) < 0 || int(r) >= len(s.rows) || !s.rows[r].alive {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRow, r)
	}
	return &s.rows[r], nil
}

func checkBounds(lb, ub float64) error {
	if math.IsNaN(lb) || math.IsNaN(ub) || lb > ub {
		return fmt.Errorf("invalid bounds [%g, %g]", lb, ub)
	}
	return nil
}

// AddRow appends a constraint. Its logical variable starts basic, so an
// optimal basis stays a valid (dual feasible) basis after the row is added.
func (s *Simplex) AddRow(name string, lb, ub float64, coefs map[ColID]float64) (RowID, error) {
	if err := checkBounds(lb, ub); err != nil {
		return -1, fmt.Errorf("row %s: %w", name, err)
	}
	for c := range coefs {
		if _, err := s.col(c); err != nil {
			return -1, fmt.Errorf("row %s: %w", name, err)
		}
	}
	id := RowID(len(s.rows))
	s.rows = append(s.rows, row{name: name, lb: lb, ub: ub, status: Basic, alive: true})
	for c, v := range coefs {
		if v != 0 {
			s.cols[c].coefs[id] = v
		}
	}
	s.numRows++
	s.invalidate()
	return id, nil
}

// AddCol appends a column, nonbasic at its lower bound (or free at zero).
func (s *Simplex) AddCol(name string, lb, ub, obj float64, coefs map[RowID]float64) (ColID, error) {
	if err := checkBounds(lb, ub); err != nil {
		return -1, fmt.Errorf("column %s: %w", name, err)
	}
	col := column{name: name, lb: lb, ub: ub, obj: obj, alive: true, coefs: make(map[RowID]float64, len(coefs))}
	for r, v := range coefs {
		if _, err := s.row(r); err != nil {
			return -1, fmt.Errorf("column %s: %w", name, err)
		}
		if v != 0 {
			col.coefs[r] = v
		}
	}
	col.value, col.status = nonbasicPlacement(AtLower, lb, ub)
	id := ColID(len(s.cols))
	s.cols = append(s.cols, col)
	s.numCols++
	s.invalidate()
	return id, nil
}

func (s *Simplex) RemoveRow(r RowID) error {
	rw, err := s.row(r)
	if err != nil {
		return err
	}
	rw.alive = false
	for i := range s.cols {
		if s.cols[i].alive {
			delete(s.cols[i].coefs, r)
		}
	}
	s.numRows--
	s.invalidate()
	return nil
}

func (s *Simplex) RemoveCol(c ColID) error {
	col, err := s.col(c)
	if err != nil {
		return err
	}
	col.alive = false
	col.coefs = nil
	s.numCols--
	s.invalidate()
	return nil
}

func (s *Simplex) SetCoef(r RowID, c ColID, v float64) error {
	if _, err := s.row(r); err != nil {
		return err
	}
	col, err := s.col(c)
	if err != nil {
		return err
	}
	if v == 0 {
		delete(col.coefs, r)
	} else {
		col.coefs[r] = v
	}
	s.invalidate()
	return nil
}

func (s *Simplex) Coef(r RowID, c ColID) float64 {
	col, err := s.col(c)
	if err != nil {
		return 0
	}
	return col.coefs[r]
}

func (s *Simplex) SetColBounds(c ColID, lb, ub float64) error {
	col, err := s.col(c)
	if err != nil {
		return err
	}
	if err := checkBounds(lb, ub); err != nil {
		return fmt.Errorf("column %s: %w", col.name, err)
	}
	col.lb, col.ub = lb, ub
	if col.status != Basic {
		col.value, col.status = nonbasicPlacement(col.status, lb, ub)
	}
	s.invalidate()
	return nil
}

func (s *Simplex) SetRowBounds(r RowID, lb, ub float64) error {
	rw, err := s.row(r)
	if err != nil {
		return err
	}
	if err := checkBounds(lb, ub); err != nil {
		return fmt.Errorf("row %s: %w", rw.name, err)
	}
	rw.lb, rw.ub = lb, ub
	if rw.status != Basic {
		_, rw.status = nonbasicPlacement(rw.status, lb, ub)
	}
	s.invalidate()
	return nil
}

func (s *Simplex) SetObjCoef(c ColID, v float64) error {
	col, err := s.col(c)
	if err != nil {
		return err
	}
	col.obj = v
	s.invalidate()
	return nil
}

func (s *Simplex) SetObjLimit(limit float64) {
	s.objLimit = limit
	s.hasObjLimit = true
}

func (s *Simplex) ClearObjLimit() {
	s.hasObjLimit = false
}

func (s *Simplex) SetIterLimit(n int) {
	s.iterLimit = n
}

func (s *Simplex) Status() Status { return s.status }
func (s *Simplex) Objective() float64 { return s.objective }
func (s *Simplex) NumRows() int { return s.numRows }
func (s *Simplex) NumCols() int { return s.numCols }
func (s *Simplex) Stats() Stats { return s.stats }

func (s *Simplex) Value(c ColID) float64 {
	col, err := s.col(c)
	if err != nil {
		return math.NaN()
	}
	return col.value
}

func (s *Simplex) RowActivity(r RowID) float64 {
	rw, err := s.row(r)
	if err != nil {
		return math.NaN()
	}
	return rw.activity
}

func (s *Simplex) Dual(r RowID) float64 {
	rw, err := s.row(r)
	if err != nil {
		return math.NaN()
	}
	return rw.dual
}

func (s *Simplex) ReducedCost(c ColID) float64 {
	col, err := s.col(c)
	if err != nil {
		return math.NaN()
	}
	return col.rc
}

func (s *Simplex) ColStatus(c ColID) BasisStatus {
	col, err := s.col(c)
	if err != nil {
		return AtLower
	}
	return col.status
}

func (s *Simplex) RowStatus(r RowID) BasisStatus {
	rw, err := s.row(r)
	if err != nil {
		return AtLower
	}
	return rw.status
}

// Basis snapshots the current statuses of every live row and column.
func (s *Simplex) Basis() *Basis {
	b := &Basis{
		Cols: make(map[ColID]BasisStatus, s.numCols),
		Rows: make(map[RowID]BasisStatus, s.numRows),
	}
	for i := range s.cols {
		if s.cols[i].alive {
			b.Cols[ColID(i)] = s.cols[i].status
		}
	}
	for i := range s.rows {
		if s.rows[i].alive {
			b.Rows[RowID(i)] = s.rows[i].status
		}
	}
	return b
}

// SetBasis installs a snapshot. Live entities missing from the snapshot keep
// their current status; the next solve repairs an inconsistent basis.
func (s *Simplex) SetBasis(b *Basis) {
	if b == nil {
		return
	}
	for id, st := range b.Cols {
		if col, err := s.col(id); err == nil {
			col.status = st
			if st != Basic {
				col.value, col.status = nonbasicPlacement(st, col.lb, col.ub)
			}
		}
	}
	for id, st := range b.Rows {
		if rw, err := s.row(id); err == nil {
			rw.status = st
			if st != Basic {
				_, rw.status = nonbasicPlacement(st, rw.lb, rw.ub)
			}
		}
	}
	s.invalidate()
}

// ResetBasis drops the current basis for the slack basis: every column
// nonbasic on a finite bound, every row's logical basic.
func (s *Simplex) ResetBasis() {
	for i := range s.cols {
		if col := &s.cols[i]; col.alive {
			col.value, col.status = nonbasicPlacement(AtLower, col.lb, col.ub)
		}
	}
	for i := range s.rows {
		if s.rows[i].alive {
			s.rows[i].status = Basic
		}
	}
	s.invalidate()
}

// Solve optimises the current model.
func (s *Simplex) Solve(ctx context.Context, method Method) (Status, error) {
	s.stats.Solves++
	st := newSolveState(s)
	status, err := st.run(ctx, method)
	s.stats.Iterations += st.iterations
	if err != nil {
		s.status = StatusUnknown
		return StatusUnknown, err
	}
	st.storeBack()
	s.status = status
	if status == StatusObjLimit {
		s.stats.ObjLimitStops++
	}
	s.log.Debug("lp solved",
		"status", status.String(),
		"method", method.String(),
		"rows", s.numRows,
		"cols", s.numCols,
		"iterations", st.iterations,
		"objective", s.objective)
	return status, nil
}

func (s *Simplex) senseSign() float64 {
	if s.sense == Maximize {
		return -1
	}
	return 1
}

// nonbasicPlacement puts a nonbasic variable on the bound its status asks
// for, falling back to whichever bound is finite.
func nonbasicPlacement(want BasisStatus, lb, ub float64) (float64, BasisStatus) {
	switch want {
	case AtUpper:
		if !math.IsInf(ub, 0) {
			return ub, AtUpper
		}
	case AtLower:
		if !math.IsInf(lb, 0) {
			return lb, AtLower
		}
	}
	if !math.IsInf(lb, 0) {
		return lb, AtLower
	}
	if !math.IsInf(ub, 0) {
		return ub, AtUpper
	}
	return 0, Free
}
