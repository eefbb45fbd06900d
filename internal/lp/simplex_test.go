package lp

import (
	"context"
	"errors"
	"math"
	"testing"
)

const testTol = 1e-7

func approx(a, b float64) bool {
	return math.Abs(a-b) <= testTol*math.Max(1, math.Abs(b))
}

// max 3x + 5y s.t. 2y <= 12, 3x + 2y <= 18, 0 <= x <= 4, 0 <= y <= yUb
func buildWyndor(t *testing.T, yUb float64) (*Simplex, ColID, ColID, RowID, RowID) {
	t.Helper()
	s := NewSimplex()
	s.SetSense(Maximize)
	x, err := s.AddCol("x", 0, 4, 3, nil)
	if err != nil {
		t.Fatalf("AddCol failed: %v", err)
	}
	y, err := s.AddCol("y", 0, yUb, 5, nil)
	if err != nil {
		t.Fatalf("AddCol failed: %v", err)
	}
	r1, err := s.AddRow("plant2", math.Inf(-1), 12, map[ColID]float64{y: 2})
	if err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	r2, err := s.AddRow("plant3", math.Inf(-1), 18, map[ColID]float64{x: 3, y: 2})
	if err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	return s, x, y, r1, r2
}

func TestSimplexMaximize(t *testing.T) {
	for _, method := range []Method{MethodPrimal, MethodDual, MethodAuto} {
		s, x, y, r1, r2 := buildWyndor(t, Inf)
		status, err := s.Solve(context.Background(), method)
		if err != nil {
			t.Fatalf("%s: Solve failed: %v", method, err)
		}
		if status != StatusOptimal {
			t.Fatalf("%s: expected optimal, got %s", method, status)
		}
		if !approx(s.Objective(), 36) {
			t.Fatalf("%s: expected objective 36, got %g", method, s.Objective())
		}
		if !approx(s.Value(x), 2) || !approx(s.Value(y), 6) {
			t.Fatalf("%s: expected (2,6), got (%g,%g)", method, s.Value(x), s.Value(y))
		}
		if !approx(s.Dual(r1), 1.5) || !approx(s.Dual(r2), 1) {
			t.Fatalf("%s: expected duals (1.5,1), got (%g,%g)", method, s.Dual(r1), s.Dual(r2))
		}
		if !approx(s.RowActivity(r2), 18) {
			t.Fatalf("%s: expected activity 18, got %g", method, s.RowActivity(r2))
		}
	}
}

func TestSimplexMinimizeGreaterRows(t *testing.T) {
	s := NewSimplex()
	x, _ := s.AddCol("x", 0, Inf, 1, nil)
	y, _ := s.AddCol("y", 0, Inf, 1, nil)
	r1, _ := s.AddRow("a", 4, Inf, map[ColID]float64{x: 1, y: 2})
	r2, _ := s.AddRow("b", 6, Inf, map[ColID]float64{x: 3, y: 1})

	status, err := s.Solve(context.Background(), MethodAuto)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if status != StatusOptimal {
		t.Fatalf("expected optimal, got %s", status)
	}
	if !approx(s.Objective(), 2.8) {
		t.Fatalf("expected 2.8, got %g", s.Objective())
	}
	if !approx(s.Dual(r1), 0.4) || !approx(s.Dual(r2), 0.2) {
		t.Fatalf("expected duals (0.4,0.2), got (%g,%g)", s.Dual(r1), s.Dual(r2))
	}
	if math.Abs(s.ReducedCost(x)) > testTol || math.Abs(s.ReducedCost(y)) > testTol {
		t.Fatalf("basic columns must have zero reduced cost")
	}
}

func TestSimplexEqualityAndFreeColumn(t *testing.T) {
	// min z s.t. z - x = 0, x + y = 3, 1 <= x <= 2, y >= 0, z free
	s := NewSimplex()
	z, _ := s.AddCol("z", math.Inf(-1), Inf, 1, nil)
	x, _ := s.AddCol("x", 1, 2, 0, nil)
	y, _ := s.AddCol("y", 0, Inf, 0, nil)
	if _, err := s.AddRow("link", 0, 0, map[ColID]float64{z: 1, x: -1}); err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	if _, err := s.AddRow("sum", 3, 3, map[ColID]float64{x: 1, y: 1}); err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	status, err := s.Solve(context.Background(), MethodPrimal)
	if err != nil || status != StatusOptimal {
		t.Fatalf("expected optimal, got %s (%v)", status, err)
	}
	if !approx(s.Value(z), 1) || !approx(s.Value(y), 2) {
		t.Fatalf("unexpected solution z=%g y=%g", s.Value(z), s.Value(y))
	}
}

func TestSimplexInfeasible(t *testing.T) {
	s := NewSimplex()
	x, _ := s.AddCol("x", 0, Inf, 1, nil)
	y, _ := s.AddCol("y", 0, Inf, 1, nil)
	s.AddRow("le", math.Inf(-1), 1, map[ColID]float64{x: 1, y: 1})
	s.AddRow("ge", 2, Inf, map[ColID]float64{x: 1, y: 1})
	for _, method := range []Method{MethodPrimal, MethodAuto} {
		status, err := s.Solve(context.Background(), method)
		if err != nil {
			t.Fatalf("Solve failed: %v", err)
		}
		if status != StatusInfeasible {
			t.Fatalf("%s: expected infeasible, got %s", method, status)
		}
	}
}

func TestSimplexUnbounded(t *testing.T) {
	s := NewSimplex()
	s.SetSense(Maximize)
	x, _ := s.AddCol("x", 0, Inf, 1, nil)
	y, _ := s.AddCol("y", 0, Inf, 0, nil)
	s.AddRow("r", math.Inf(-1), 1, map[ColID]float64{x: 1, y: -1})
	status, err := s.Solve(context.Background(), MethodPrimal)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if status != StatusUnbounded {
		t.Fatalf("expected unbounded, got %s", status)
	}
}

func TestSimplexNoRows(t *testing.T) {
	s := NewSimplex()
	s.SetSense(Maximize)
	x, _ := s.AddCol("x", -1, 2, 1, nil)
	status, err := s.Solve(context.Background(), MethodAuto)
	if err != nil || status != StatusOptimal {
		t.Fatalf("expected optimal, got %s (%v)", status, err)
	}
	if s.Value(x) != 2 || s.Objective() != 2 {
		t.Fatalf("expected x=2, got %g", s.Value(x))
	}
}

func TestSimplexWarmStartMatchesCold(t *testing.T) {
	warm, x, _, _, _ := buildWyndor(t, Inf)
	if _, err := warm.Solve(context.Background(), MethodAuto); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	parent := warm.Basis()

	// left child: x <= 1
	if err := warm.SetColBounds(x, 0, 1); err != nil {
		t.Fatalf("SetColBounds failed: %v", err)
	}
	if _, err := warm.Solve(context.Background(), MethodDual); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	// sibling: x >= 3, warm-started from the parent basis
	if err := warm.SetColBounds(x, 3, 4); err != nil {
		t.Fatalf("SetColBounds failed: %v", err)
	}
	warm.SetBasis(parent)
	status, err := warm.Solve(context.Background(), MethodDual)
	if err != nil || status != StatusOptimal {
		t.Fatalf("expected optimal, got %s (%v)", status, err)
	}

	cold, cx, _, _, _ := buildWyndor(t, Inf)
	cold.SetColBounds(cx, 3, 4)
	if _, err := cold.Solve(context.Background(), MethodPrimal); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	// x=3, y=4.5: 9 + 22.5
	if !approx(warm.Objective(), cold.Objective()) || !approx(cold.Objective(), 31.5) {
		t.Fatalf("warm %g and cold %g objectives differ", warm.Objective(), cold.Objective())
	}
}

func TestSimplexObjectiveLimit(t *testing.T) {
	s, _, _, _, _ := buildWyndor(t, 10)
	s.SetObjLimit(40)
	status, err := s.Solve(context.Background(), MethodDual)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if status != StatusObjLimit {
		t.Fatalf("expected objective limit stop, got %s", status)
	}
	if s.Objective() < 36-testTol {
		t.Fatalf("a dual bound must not undercut the optimum, got %g", s.Objective())
	}
	if s.Stats().ObjLimitStops != 1 {
		t.Fatalf("expected one limit stop, got %d", s.Stats().ObjLimitStops)
	}

	s.ClearObjLimit()
	status, _ = s.Solve(context.Background(), MethodDual)
	if status != StatusOptimal || !approx(s.Objective(), 36) {
		t.Fatalf("expected optimal 36 without limit, got %s %g", status, s.Objective())
	}
}

func TestSimplexAddCutAndResolve(t *testing.T) {
	s, x, y, _, _ := buildWyndor(t, Inf)
	if _, err := s.Solve(context.Background(), MethodAuto); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	cut, err := s.AddRow("cut", math.Inf(-1), 5, map[ColID]float64{x: 1, y: 1})
	if err != nil {
		t.Fatalf("AddRow failed: %v", err)
	}
	if s.RowStatus(cut) != Basic {
		t.Fatalf("new rows start with a basic logical")
	}
	status, err := s.Solve(context.Background(), MethodDual)
	if err != nil || status != StatusOptimal {
		t.Fatalf("expected optimal, got %s (%v)", status, err)
	}
	if !approx(s.Objective(), 25) {
		t.Fatalf("expected 25 after the cut, got %g", s.Objective())
	}
}

func TestSimplexCoefficientUpdatesAndRemoval(t *testing.T) {
	s, x, y, r1, r2 := buildWyndor(t, Inf)
	if err := s.SetCoef(r2, x, 6); err != nil {
		t.Fatalf("SetCoef failed: %v", err)
	}
	if s.Coef(r2, x) != 6 {
		t.Fatalf("expected coefficient 6, got %g", s.Coef(r2, x))
	}
	if err := s.RemoveRow(r1); err != nil {
		t.Fatalf("RemoveRow failed: %v", err)
	}
	if s.NumRows() != 1 {
		t.Fatalf("expected 1 row, got %d", s.NumRows())
	}
	// max 3x + 5y s.t. 6x + 2y <= 18: y = 9, x = 0
	status, err := s.Solve(context.Background(), MethodAuto)
	if err != nil || status != StatusOptimal {
		t.Fatalf("expected optimal, got %s (%v)", status, err)
	}
	if !approx(s.Objective(), 45) {
		t.Fatalf("expected 45, got %g", s.Objective())
	}
	if err := s.RemoveCol(y); err != nil {
		t.Fatalf("RemoveCol failed: %v", err)
	}
	if err := s.SetCoef(r1, x, 1); !errors.Is(err, ErrUnknownRow) {
		t.Fatalf("expected ErrUnknownRow, got %v", err)
	}
	if _, err := s.AddRow("bad", 0, 1, map[ColID]float64{y: 1}); !errors.Is(err, ErrUnknownCol) {
		t.Fatalf("expected ErrUnknownCol, got %v", err)
	}
	status, _ = s.Solve(context.Background(), MethodAuto)
	if status != StatusOptimal || !approx(s.Objective(), 9) {
		t.Fatalf("expected 9 with x alone, got %s %g", status, s.Objective())
	}
}

func TestSimplexCancelledContext(t *testing.T) {
	s, _, _, _, _ := buildWyndor(t, Inf)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Solve(ctx, MethodPrimal)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Status() != StatusUnknown {
		t.Fatalf("expected unknown status, got %s", s.Status())
	}
}

func TestBasisClone(t *testing.T) {
	b := &Basis{Cols: map[ColID]BasisStatus{1: Basic}, Rows: map[RowID]BasisStatus{0: AtUpper}}
	c := b.Clone()
	c.Cols[1] = AtLower
	if b.Cols[1] != Basic {
		t.Fatal("clone must not alias the original")
	}
	var nilBasis *Basis
	if nilBasis.Clone() != nil {
		t.Fatal("clone of nil is nil")
	}
}

// min Σ x_j s.t. x_0 >= 1, x_j - x_{j-1}/2 >= 1: every x_j must enter the
// basis, so a cold solve runs through several refactorisations.
func TestSimplexLongChainAcrossRefactorisations(t *testing.T) {
	const n = 3*refactorEvery + 7
	for _, method := range []Method{MethodDual, MethodPrimal} {
		s := NewSimplex()
		cols := make([]ColID, n)
		for j := range cols {
			id, err := s.AddCol("x", 0, Inf, 1, nil)
			if err != nil {
				t.Fatalf("AddCol failed: %v", err)
			}
			cols[j] = id
		}
		for j := range cols {
			coefs := map[ColID]float64{cols[j]: 1}
			if j > 0 {
				coefs[cols[j-1]] = -0.5
			}
			if _, err := s.AddRow("link", 1, Inf, coefs); err != nil {
				t.Fatalf("AddRow failed: %v", err)
			}
		}
		status, err := s.Solve(context.Background(), method)
		if err != nil || status != StatusOptimal {
			t.Fatalf("%s: expected optimal, got %s (%v)", method, status, err)
		}
		want, prev := 0.0, 0.0
		for j := range cols {
			v := 1 + prev/2
			if !approx(s.Value(cols[j]), v) {
				t.Fatalf("%s: x_%d = %g, want %g", method, j, s.Value(cols[j]), v)
			}
			want += v
			prev = v
		}
		if !approx(s.Objective(), want) {
			t.Fatalf("%s: objective %g, want %g", method, s.Objective(), want)
		}
		if s.Stats().Iterations < n {
			t.Fatalf("%s: expected at least %d pivots, got %d", method, n, s.Stats().Iterations)
		}
	}
}

// A 6x6 assignment LP is highly degenerate; its optimum is integral and
// equals the cheapest permutation.
func TestSimplexDegenerateAssignment(t *testing.T) {
	const n = 6
	cost := func(i, j int) float64 { return float64((i*7+j*3+i*j)%5 + 1) }

	best := math.Inf(1)
	perm := []int{0, 1, 2, 3, 4, 5}
	var permute func(k int)
	permute = func(k int) {
		if k == n {
			sum := 0.0
			for i, j := range perm {
				sum += cost(i, j)
			}
			best = math.Min(best, sum)
			return
		}
		for i := k; i < n; i++ {
			perm[k], perm[i] = perm[i], perm[k]
			permute(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	permute(0)

	for _, method := range []Method{MethodDual, MethodPrimal, MethodAuto} {
		s := NewSimplex()
		x := make([][]ColID, n)
		for i := range x {
			x[i] = make([]ColID, n)
			for j := range x[i] {
				id, err := s.AddCol("x", 0, 1, cost(i, j), nil)
				if err != nil {
					t.Fatalf("AddCol failed: %v", err)
				}
				x[i][j] = id
			}
		}
		for i := 0; i < n; i++ {
			rowCoefs := make(map[ColID]float64, n)
			colCoefs := make(map[ColID]float64, n)
			for j := 0; j < n; j++ {
				rowCoefs[x[i][j]] = 1
				colCoefs[x[j][i]] = 1
			}
			if _, err := s.AddRow("worker", 1, 1, rowCoefs); err != nil {
				t.Fatalf("AddRow failed: %v", err)
			}
			if _, err := s.AddRow("task", 1, 1, colCoefs); err != nil {
				t.Fatalf("AddRow failed: %v", err)
			}
		}
		status, err := s.Solve(context.Background(), method)
		if err != nil || status != StatusOptimal {
			t.Fatalf("%s: expected optimal, got %s (%v)", method, status, err)
		}
		if !approx(s.Objective(), best) {
			t.Fatalf("%s: objective %g, want %g", method, s.Objective(), best)
		}
	}
}

func TestSimplexResetBasis(t *testing.T) {
	s, x, y, r1, r2 := buildWyndor(t, Inf)
	if _, err := s.Solve(context.Background(), MethodAuto); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if s.ColStatus(y) != Basic {
		t.Fatalf("expected y basic at the optimum")
	}
	s.ResetBasis()
	if s.ColStatus(x) != AtLower || s.ColStatus(y) != AtLower {
		t.Fatalf("expected columns at lower bound, got %s %s", s.ColStatus(x), s.ColStatus(y))
	}
	if s.RowStatus(r1) != Basic || s.RowStatus(r2) != Basic {
		t.Fatalf("expected basic logicals after reset")
	}
	if s.Status() != StatusUnknown {
		t.Fatalf("reset must invalidate the previous solution")
	}
	status, err := s.Solve(context.Background(), MethodAuto)
	if err != nil || status != StatusOptimal || !approx(s.Objective(), 36) {
		t.Fatalf("expected 36 after reset, got %s %g (%v)", status, s.Objective(), err)
	}
}
