package lp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// switch from Dantzig to Bland pricing after this many degenerate steps
	blandAfter = 50
	// pivots between refactorisations of the basis inverse
	refactorEvery = 50
	// basis condition number above which the factorisation is rejected
	maxCondition = 1e13
	// pivot candidates below this fraction of the largest one are rejected
	relPivot = 1e-7
	// relative residual of B·alpha = a_j that forces an early refactorisation
	driftTol = 1e-8
	tieTol   = 1e-12
)

var errNotDualFeasible = errors.New("basis is not dual feasible")

// solveState is the dense working form of one solve: structural variables
// 0..n-1 and one logical variable n+i per row with A x - r = 0 and the row
// range as the bounds of r. The objective is always minimised internally.
//
// The basis inverse is held explicitly. It is computed from an LU
// factorisation when the solve starts, updated in product form after each
// pivot and recomputed every refactorEvery pivots or when a solve against
// it drifts.
type solveState struct {
	s      *Simplex
	m, n   int
	rowIDs []RowID
	colIDs []ColID
	a      *mat.Dense
	lo, up []float64
	cost   []float64
	x      []float64
	stat   []BasisStatus
	head   []int
	pos    []int

	binv        *mat.Dense
	sinceFactor int
	xB          []float64
	y           []float64
	work        *mat.VecDense

	iterations int
	restarted  bool
}

func newSolveState(s *Simplex) *solveState {
	st := &solveState{s: s}
	rowIndex := make(map[RowID]int, s.numRows)
	for i := range s.rows {
		if s.rows[i].alive {
			rowIndex[RowID(i)] = len(st.rowIDs)
			st.rowIDs = append(st.rowIDs, RowID(i))
		}
	}
	for j := range s.cols {
		if s.cols[j].alive {
			st.colIDs = append(st.colIDs, ColID(j))
		}
	}
	st.m, st.n = len(st.rowIDs), len(st.colIDs)
	total := st.m + st.n
	st.lo = make([]float64, total)
	st.up = make([]float64, total)
	st.cost = make([]float64, total)
	st.x = make([]float64, total)
	st.stat = make([]BasisStatus, total)
	st.pos = make([]int, total)
	if st.m > 0 && st.n > 0 {
		st.a = mat.NewDense(st.m, st.n, nil)
	}
	sign := s.senseSign()
	for j, id := range st.colIDs {
		col := &s.cols[id]
		st.lo[j], st.up[j] = col.lb, col.ub
		st.cost[j] = sign * col.obj
		st.stat[j] = col.status
		st.x[j] = col.value
		for r, v := range col.coefs {
			st.a.Set(rowIndex[r], j, v)
		}
	}
	for i, id := range st.rowIDs {
		rw := &s.rows[id]
		k := st.n + i
		st.lo[k], st.up[k] = rw.lb, rw.ub
		st.stat[k] = rw.status
	}
	for j := 0; j < total; j++ {
		if st.stat[j] != Basic {
			st.x[j], st.stat[j] = nonbasicPlacement(st.stat[j], st.lo[j], st.up[j])
		}
	}
	st.xB = make([]float64, st.m)
	st.y = make([]float64, st.m)
	if st.m > 0 {
		st.work = mat.NewVecDense(st.m, nil)
	}
	return st
}

func (st *solveState) run(ctx context.Context, method Method) (Status, error) {
	if st.m == 0 {
		return st.solveUnconstrained()
	}
	if err := st.installBasis(); err != nil {
		return StatusUnknown, err
	}
	limit := st.s.iterLimit
	if limit <= 0 {
		limit = 10000 + 20*(st.m+st.n)
	}

	if method != MethodPrimal {
		status, err := st.dual(ctx, limit)
		if !errors.Is(err, errNotDualFeasible) {
			return status, err
		}
		st.s.stats.DualFallbacks++
	}
	return st.primal(ctx, limit)
}

// solveUnconstrained handles a model without rows: every column sits on
// the bound its cost prefers.
func (st *solveState) solveUnconstrained() (Status, error) {
	for j := 0; j < st.n; j++ {
		switch {
		case st.cost[j] > 0:
			if math.IsInf(st.lo[j], -1) {
				return StatusUnbounded, nil
			}
			st.x[j], st.stat[j] = st.lo[j], AtLower
		case st.cost[j] < 0:
			if math.IsInf(st.up[j], 1) {
				return StatusUnbounded, nil
			}
			st.x[j], st.stat[j] = st.up[j], AtUpper
		}
	}
	return StatusOptimal, nil
}

// installBasis builds the basis header from the stored statuses, topping it
// up with logicals or replacing it with the slack basis when it is unusable.
func (st *solveState) installBasis() error {
	total := st.m + st.n
	st.head = st.head[:0]
	for j := 0; j < total; j++ {
		st.pos[j] = -1
		if st.stat[j] == Basic {
			st.head = append(st.head, j)
		}
	}
	if len(st.head) > st.m {
		return st.slackBasis()
	}
	for i := 0; len(st.head) < st.m && i < st.m; i++ {
		k := st.n + i
		if st.stat[k] != Basic {
			st.stat[k] = Basic
			st.head = append(st.head, k)
		}
	}
	for p, j := range st.head {
		st.pos[j] = p
	}
	if err := st.factor(); err != nil {
		return st.slackBasis()
	}
	return nil
}

func (st *solveState) slackBasis() error {
	st.s.stats.BasisRestarts++
	st.head = st.head[:0]
	for j := 0; j < st.n; j++ {
		st.pos[j] = -1
		if st.stat[j] == Basic {
			st.x[j], st.stat[j] = nonbasicPlacement(AtLower, st.lo[j], st.up[j])
		}
	}
	for i := 0; i < st.m; i++ {
		k := st.n + i
		st.stat[k] = Basic
		st.pos[k] = i
		st.head = append(st.head, k)
	}
	return st.factor()
}

// column writes variable j's constraint column into dst.
func (st *solveState) column(j int, dst []float64) {
	if j < st.n {
		for i := 0; i < st.m; i++ {
			dst[i] = st.a.At(i, j)
		}
		return
	}
	for i := range dst {
		dst[i] = 0
	}
	dst[j-st.n] = -1
}

// dot returns v·a_j without materialising the column.
func (st *solveState) dot(v []float64, j int) float64 {
	if j >= st.n {
		return -v[j-st.n]
	}
	sum := 0.0
	for i := 0; i < st.m; i++ {
		if a := st.a.At(i, j); a != 0 {
			sum += v[i] * a
		}
	}
	return sum
}

func (st *solveState) factor() error {
	b := mat.NewDense(st.m, st.m, nil)
	col := make([]float64, st.m)
	for p, j := range st.head {
		st.column(j, col)
		for i := 0; i < st.m; i++ {
			b.Set(i, p, col[i])
		}
	}
	var lu mat.LU
	lu.Factorize(b)
	if c := lu.Cond(); math.IsInf(c, 0) || math.IsNaN(c) || c > maxCondition {
		return ErrSingularBasis
	}
	ones := make([]float64, st.m)
	for i := range ones {
		ones[i] = 1
	}
	if st.binv == nil {
		st.binv = mat.NewDense(st.m, st.m, nil)
	}
	// The condition number was checked above; a warning still leaves a
	// usable inverse.
	_ = lu.SolveTo(st.binv, false, mat.NewDiagDense(st.m, ones))
	st.sinceFactor = 0
	return nil
}

func (st *solveState) solve(rhs []float64, trans bool) []float64 {
	out := mat.NewVecDense(st.m, nil)
	copy(st.work.RawVector().Data, rhs)
	if trans {
		out.MulVec(st.binv.T(), st.work)
	} else {
		out.MulVec(st.binv, st.work)
	}
	return out.RawVector().Data
}

// update replaces basis slot k in the inverse by the variable whose
// transformed column is alpha.
func (st *solveState) update(k int, alpha []float64) {
	raw := st.binv.RawMatrix()
	rowK := raw.Data[k*raw.Stride : k*raw.Stride+st.m]
	floats.Scale(1/alpha[k], rowK)
	for i := 0; i < st.m; i++ {
		if i == k || alpha[i] == 0 {
			continue
		}
		floats.AddScaled(raw.Data[i*raw.Stride:i*raw.Stride+st.m], -alpha[i], rowK)
	}
}

// residual returns the largest entry of col - B·alpha.
func (st *solveState) residual(alpha, col []float64) float64 {
	res := make([]float64, st.m)
	copy(res, col)
	for p, j := range st.head {
		if alpha[p] == 0 {
			continue
		}
		if j >= st.n {
			res[j-st.n] += alpha[p]
			continue
		}
		for i := 0; i < st.m; i++ {
			if a := st.a.At(i, j); a != 0 {
				res[i] -= a * alpha[p]
			}
		}
	}
	return floats.Norm(res, math.Inf(1))
}

// drifted reports whether the inverse has lost accuracy on the solve
// B·alpha = col. A fresh factorisation is never reported.
func (st *solveState) drifted(alpha, col []float64) bool {
	if st.sinceFactor == 0 {
		return false
	}
	return st.residual(alpha, col) > driftTol*(1+floats.Norm(col, math.Inf(1)))
}

// computeXB solves B x_B = -N x_N.
func (st *solveState) computeXB() {
	rhs := make([]float64, st.m)
	for j := 0; j < st.n+st.m; j++ {
		if st.pos[j] >= 0 || st.x[j] == 0 {
			continue
		}
		if j >= st.n {
			rhs[j-st.n] += st.x[j]
			continue
		}
		for i := 0; i < st.m; i++ {
			if a := st.a.At(i, j); a != 0 {
				rhs[i] -= a * st.x[j]
			}
		}
	}
	copy(st.xB, st.solve(rhs, false))
	for p, j := range st.head {
		st.x[j] = st.xB[p]
	}
}

// computeDuals solves B^T y = c_B for the given cost vector.
func (st *solveState) computeDuals(cost []float64) {
	cB := make([]float64, st.m)
	for p, j := range st.head {
		cB[p] = cost[j]
	}
	copy(st.y, st.solve(cB, true))
}

func (st *solveState) reducedCost(j int, cost []float64) float64 {
	return cost[j] - st.dot(st.y, j)
}

func (st *solveState) objective() float64 {
	sum := 0.0
	for j := 0; j < st.n; j++ {
		if st.cost[j] != 0 && st.x[j] != 0 {
			sum += st.cost[j] * st.x[j]
		}
	}
	return sum
}

func (st *solveState) fixed(j int) bool {
	return st.lo[j] == st.up[j]
}

func (st *solveState) checkContext(ctx context.Context) error {
	if st.iterations%64 == 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("lp solve interrupted: %w", err)
		}
	}
	return nil
}

// refactor recomputes the basis inverse, restarting once from the slack
// basis when the basis has become numerically singular. It reports whether
// the restart happened.
func (st *solveState) refactor() (bool, error) {
	if err := st.factor(); err == nil {
		return false, nil
	}
	if st.restarted {
		return false, fmt.Errorf("%w: %w", ErrEngine, ErrSingularBasis)
	}
	st.restarted = true
	if err := st.slackBasis(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	return true, nil
}

// advance brings the inverse up to date after a pivot into slot k.
func (st *solveState) advance(k int, alpha []float64) (bool, error) {
	st.sinceFactor++
	if st.sinceFactor >= refactorEvery {
		return st.refactor()
	}
	st.update(k, alpha)
	return false, nil
}

// phaseCosts fills the composite phase 1 costs when the basic solution is
// infeasible and reports whether it did.
func (st *solveState) phaseCosts(buf []float64) bool {
	for j := range buf {
		buf[j] = 0
	}
	infeasible := false
	tol := st.s.tol.Primal
	for _, j := range st.head {
		switch {
		case st.x[j] < st.lo[j]-tol:
			buf[j] = -1
			infeasible = true
		case st.x[j] > st.up[j]+tol:
			buf[j] = 1
			infeasible = true
		}
	}
	return infeasible
}

func (st *solveState) primal(ctx context.Context, limit int) (Status, error) {
	tol := st.s.tol
	total := st.m + st.n
	phase1Cost := make([]float64, total)
	alpha := make([]float64, st.m)
	col := make([]float64, st.m)
	degenerate := 0

	for {
		if st.iterations >= limit {
			return StatusIterLimit, nil
		}
		if err := st.checkContext(ctx); err != nil {
			return StatusUnknown, err
		}
		st.computeXB()
		cost := st.cost
		phase1 := st.phaseCosts(phase1Cost)
		if phase1 {
			cost = phase1Cost
		}
		st.computeDuals(cost)

		bland := degenerate > blandAfter
		enter, dir, best := -1, 0, 0.0
		for j := 0; j < total; j++ {
			if st.pos[j] >= 0 || st.fixed(j) {
				continue
			}
			d := st.reducedCost(j, cost)
			dj := 0
			switch st.stat[j] {
			case AtLower:
				if d < -tol.Dual {
					dj = 1
				}
			case AtUpper:
				if d > tol.Dual {
					dj = -1
				}
			case Free:
				if d < -tol.Dual {
					dj = 1
				} else if d > tol.Dual {
					dj = -1
				}
			}
			if dj == 0 {
				continue
			}
			if bland {
				enter, dir = j, dj
				break
			}
			if math.Abs(d) > best {
				enter, dir, best = j, dj, math.Abs(d)
			}
		}
		if enter < 0 {
			if phase1 {
				return StatusInfeasible, nil
			}
			return StatusOptimal, nil
		}

		st.column(enter, col)
		copy(alpha, st.solve(col, false))
		if st.drifted(alpha, col) {
			if _, err := st.refactor(); err != nil {
				return StatusUnknown, err
			}
			continue
		}

		k, step, to, flip := st.primalRatio(alpha, dir, st.span(enter), phase1, bland)
		if k < 0 && !flip {
			if phase1 {
				return StatusUnknown, fmt.Errorf("%w: unbounded phase 1 ray", ErrEngine)
			}
			return StatusUnbounded, nil
		}
		st.iterations++
		if step < tieTol {
			degenerate++
		} else {
			degenerate = 0
		}

		if flip {
			if dir > 0 {
				st.x[enter], st.stat[enter] = st.up[enter], AtUpper
			} else {
				st.x[enter], st.stat[enter] = st.lo[enter], AtLower
			}
			continue
		}
		st.pivot(k, enter, to)
		if _, err := st.advance(k, alpha); err != nil {
			return StatusUnknown, err
		}
	}
}

// span is the distance between variable j's bounds, +Inf unless both are
// finite.
func (st *solveState) span(j int) float64 {
	if math.IsInf(st.lo[j], 0) || math.IsInf(st.up[j], 0) {
		return math.Inf(1)
	}
	return st.up[j] - st.lo[j]
}

// breakpoint returns how far basic slot k may move at rate delta before it
// hits a bound, and the bound it lands on.
func (st *solveState) breakpoint(k int, delta float64, phase1 bool) (float64, BasisStatus, bool) {
	tol := st.s.tol.Primal
	j := st.head[k]
	xk := st.xB[k]
	switch {
	case phase1 && xk < st.lo[j]-tol:
		if delta > 0 {
			return st.lo[j] - xk, AtLower, true
		}
	case phase1 && xk > st.up[j]+tol:
		if delta < 0 {
			return xk - st.up[j], AtUpper, true
		}
	case delta < 0 && !math.IsInf(st.lo[j], -1):
		return xk - st.lo[j], AtLower, true
	case delta > 0 && !math.IsInf(st.up[j], 1):
		return st.up[j] - xk, AtUpper, true
	}
	return 0, AtLower, false
}

// primalRatio chooses the basic slot that leaves when the entering
// variable moves in direction dir with transformed column alpha. flip is
// set when the entering variable reaches its opposite bound, span away,
// first; k < 0 without flip means the ray is unbounded.
//
// Outside Bland mode this is Harris' two-pass test: the first pass finds
// the longest step that keeps every basic within a relaxed bound, the
// second takes the largest pivot among the rows blocking within that step.
func (st *solveState) primalRatio(alpha []float64, dir int, span float64, phase1, bland bool) (k int, step float64, to BasisStatus, flip bool) {
	tol := st.s.tol
	pivTol := math.Max(tol.Pivot, relPivot*floats.Norm(alpha, math.Inf(1)))
	k, to = -1, AtLower

	if bland {
		step = span
		for r := range alpha {
			delta := -float64(dir) * alpha[r]
			if math.Abs(delta) < pivTol {
				continue
			}
			dist, bto, ok := st.breakpoint(r, delta, phase1)
			if !ok {
				continue
			}
			t := math.Max(dist/math.Abs(delta), 0)
			if t < step-tieTol || (k >= 0 && t <= step+tieTol && st.head[r] < st.head[k]) {
				k, step, to = r, t, bto
			}
		}
		if k < 0 {
			return -1, span, to, !math.IsInf(span, 1)
		}
		return k, step, to, false
	}

	// basics may overshoot a bound by at most half the primal tolerance
	thetaMax := math.Inf(1)
	for r := range alpha {
		delta := -float64(dir) * alpha[r]
		if math.Abs(delta) < pivTol {
			continue
		}
		if dist, _, ok := st.breakpoint(r, delta, phase1); ok {
			thetaMax = math.Min(thetaMax, (dist+tol.Primal/2)/math.Abs(delta))
		}
	}
	bestAlpha := 0.0
	for r := range alpha {
		delta := -float64(dir) * alpha[r]
		if math.Abs(delta) < pivTol {
			continue
		}
		dist, bto, ok := st.breakpoint(r, delta, phase1)
		if !ok {
			continue
		}
		if t := dist / math.Abs(delta); t <= thetaMax && math.Abs(alpha[r]) > bestAlpha {
			k, step, to, bestAlpha = r, math.Max(t, 0), bto, math.Abs(alpha[r])
		}
	}
	if k < 0 || span <= step {
		return -1, span, to, !math.IsInf(span, 1)
	}
	return k, step, to, false
}

// pivot makes enter basic in slot k; the leaving variable is placed on the
// bound it reached.
func (st *solveState) pivot(k, enter int, to BasisStatus) {
	leave := st.head[k]
	if to == AtUpper {
		st.x[leave] = st.up[leave]
	} else {
		st.x[leave] = st.lo[leave]
	}
	st.stat[leave] = to
	st.pos[leave] = -1
	st.head[k] = enter
	st.pos[enter] = k
	st.stat[enter] = Basic
}

// makeDualFeasible flips boxed nonbasic variables to the bound their
// reduced cost prefers. It fails when a variable cannot be flipped.
func (st *solveState) makeDualFeasible() error {
	st.computeDuals(st.cost)
	tol := st.s.tol.Dual
	for j := 0; j < st.m+st.n; j++ {
		if st.pos[j] >= 0 || st.fixed(j) {
			continue
		}
		d := st.reducedCost(j, st.cost)
		switch st.stat[j] {
		case AtLower:
			if d < -tol {
				if math.IsInf(st.up[j], 1) {
					return errNotDualFeasible
				}
				st.x[j], st.stat[j] = st.up[j], AtUpper
			}
		case AtUpper:
			if d > tol {
				if math.IsInf(st.lo[j], -1) {
					return errNotDualFeasible
				}
				st.x[j], st.stat[j] = st.lo[j], AtLower
			}
		case Free:
			if math.Abs(d) > tol {
				return errNotDualFeasible
			}
		}
	}
	return nil
}

func (st *solveState) dual(ctx context.Context, limit int) (Status, error) {
	hasLimit := st.s.hasObjLimit
	internalLimit := st.s.senseSign() * st.s.objLimit
	rho := make([]float64, st.m)
	unit := make([]float64, st.m)
	alpha := make([]float64, st.m)
	col := make([]float64, st.m)
	degenerate := 0

	if err := st.makeDualFeasible(); err != nil {
		return StatusUnknown, err
	}
	for {
		if st.iterations >= limit {
			return StatusIterLimit, nil
		}
		if err := st.checkContext(ctx); err != nil {
			return StatusUnknown, err
		}
		st.computeXB()
		st.computeDuals(st.cost)

		if hasLimit && st.objective() >= internalLimit {
			return StatusObjLimit, nil
		}

		bland := degenerate > blandAfter
		r := st.dualLeaving(bland)
		if r < 0 {
			return StatusOptimal, nil
		}
		jr := st.head[r]
		increase := st.xB[r] < st.lo[jr]

		for i := range unit {
			unit[i] = 0
		}
		unit[r] = 1
		copy(rho, st.solve(unit, true))

		enter, ratio := st.dualRatio(rho, increase, bland)
		if enter < 0 {
			return StatusInfeasible, nil
		}
		st.column(enter, col)
		copy(alpha, st.solve(col, false))
		if st.drifted(alpha, col) {
			restarted, err := st.refactor()
			if err != nil {
				return StatusUnknown, err
			}
			if restarted {
				if err := st.makeDualFeasible(); err != nil {
					return StatusUnknown, err
				}
			}
			continue
		}

		st.iterations++
		if ratio < tieTol {
			degenerate++
		} else {
			degenerate = 0
		}
		to := AtUpper
		if increase {
			to = AtLower
		}
		st.pivot(r, enter, to)
		restarted, err := st.advance(r, alpha)
		if err != nil {
			return StatusUnknown, err
		}
		if restarted {
			degenerate = 0
			if err := st.makeDualFeasible(); err != nil {
				return StatusUnknown, err
			}
		}
	}
}

// dualLeaving picks the basic slot to drive to its violated bound: the
// largest violation, or under Bland's rule the violated variable with the
// smallest index. It returns -1 when the basis is primal feasible.
func (st *solveState) dualLeaving(bland bool) int {
	tol := st.s.tol.Primal
	r, worst := -1, tol
	for k, j := range st.head {
		var inf float64
		switch {
		case st.xB[k] < st.lo[j]:
			inf = st.lo[j] - st.xB[k]
		case st.xB[k] > st.up[j]:
			inf = st.xB[k] - st.up[j]
		}
		if inf <= tol {
			continue
		}
		if bland {
			if r < 0 || j < st.head[r] {
				r = k
			}
			continue
		}
		if inf > worst {
			r, worst = k, inf
		}
	}
	return r
}

type dualCandidate struct {
	j     int
	alpha float64
	slack float64
}

// dualRatio chooses the entering variable for the row rho of the inverse
// and returns it with its dual step. Candidates are the nonbasics whose
// movement pushes the leaving variable towards its violated bound.
//
// Outside Bland mode the choice is Harris' two-pass test on the reduced
// costs; under Bland's rule the smallest index among the minimum ratios
// wins.
func (st *solveState) dualRatio(rho []float64, increase, bland bool) (int, float64) {
	tol := st.s.tol
	var cands []dualCandidate
	maxAlpha := 0.0
	for j := 0; j < st.m+st.n; j++ {
		if st.pos[j] >= 0 || st.fixed(j) {
			continue
		}
		a := st.dot(rho, j)
		if a == 0 {
			continue
		}
		var dir float64
		switch st.stat[j] {
		case AtLower:
			dir = 1
		case AtUpper:
			dir = -1
		default:
			if increase == (a < 0) {
				dir = 1
			} else {
				dir = -1
			}
		}
		rate := -a * dir
		if (increase && rate <= 0) || (!increase && rate >= 0) {
			continue
		}
		d := st.reducedCost(j, st.cost)
		slack := d * dir
		if st.stat[j] == Free {
			slack = math.Abs(d)
		}
		cands = append(cands, dualCandidate{j: j, alpha: math.Abs(a), slack: math.Max(slack, 0)})
		maxAlpha = math.Max(maxAlpha, math.Abs(a))
	}
	pivTol := math.Max(tol.Pivot, relPivot*maxAlpha)

	enter, bestRatio := -1, math.Inf(1)
	if bland {
		for _, c := range cands {
			if c.alpha < pivTol {
				continue
			}
			if ratio := c.slack / c.alpha; ratio < bestRatio-tieTol {
				enter, bestRatio = c.j, ratio
			}
		}
		return enter, bestRatio
	}

	// reduced costs may overshoot by at most half the dual tolerance
	thetaMax := math.Inf(1)
	for _, c := range cands {
		if c.alpha >= pivTol {
			thetaMax = math.Min(thetaMax, (c.slack+tol.Dual/2)/c.alpha)
		}
	}
	bestAlpha := 0.0
	for _, c := range cands {
		if c.alpha < pivTol {
			continue
		}
		if ratio := c.slack / c.alpha; ratio <= thetaMax && c.alpha > bestAlpha {
			enter, bestRatio, bestAlpha = c.j, ratio, c.alpha
		}
	}
	return enter, bestRatio
}

// storeBack copies values, statuses, duals and reduced costs to the model.
func (st *solveState) storeBack() {
	s := st.s
	sign := s.senseSign()
	if st.m > 0 {
		st.computeDuals(st.cost)
	}
	for j, id := range st.colIDs {
		col := &s.cols[id]
		col.value = st.x[j]
		col.status = st.stat[j]
		rc := st.cost[j]
		if st.m > 0 {
			rc = st.reducedCost(j, st.cost)
		}
		col.rc = sign * rc
	}
	for i, id := range st.rowIDs {
		rw := &s.rows[id]
		k := st.n + i
		rw.activity = st.x[k]
		rw.status = st.stat[k]
		rw.dual = sign * st.y[i]
	}
	s.objective = sign * st.objective()
}
