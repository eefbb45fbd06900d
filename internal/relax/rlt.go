package relax

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/lp"
	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/internal/subproblem"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// rltParam holds the linearisation of one objective term w = f·θ.
type rltParam struct {
	f     lp.ColID
	w     lp.ColID
	fdef  lp.RowID // f - Σ count·λ = 0
	upper lp.RowID // w - ub·f <= 0
	lower lp.RowID // w - lb·f - F·θ <= -F·lb
	fmax  float64
}

// RLT bounds the objective with a single LP over every enumerated
// structure, log-probability variables θ in the box, and McCormick
// products w of θ with the feature totals f. The sum-to-one constraint on
// θ is approximated from outside by tangent cuts (Σe^θ <= 1) and a
// box-dependent secant (Σe^θ >= 1).
//
// The LP is in maximisation form, solved with the dual simplex so that an
// objective limit stop is a proof that the box cannot beat the incumbent.
type RLT struct {
	base
	sub Subproblem

	theta   [][]lp.ColID
	terms   map[models.Index]*rltParam
	conv    []lp.RowID
	secant  []lp.RowID
	lambdas []structCol
	cuts    [][][]float64
}

var _ Oracle = (*RLT)(nil)

// NewRLT creates the oracle. Init must run before use.
func NewRLT(store *bounds.Store, sub Subproblem, eng lp.Engine, opts Options) *RLT {
	return &RLT{
		base:  newBase(config.RelaxationRLT, store, eng, opts),
		sub:   sub,
		terms: make(map[models.Index]*rltParam),
	}
}

func (r *RLT) Init(ctx context.Context) error {
	if r.inited {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.eng.SetSense(lp.Maximize)
	r.fmax = subproblem.TotalMaxCounts(r.sub, r.sub.NumSentences())
	r.params = r.objectiveParams()

	nc := r.store.NumConditions()
	r.theta = make([][]lp.ColID, nc)
	r.cuts = make([][][]float64, nc)
	for c := 0; c < nc; c++ {
		r.theta[c] = make([]lp.ColID, r.store.NumOutcomes(c))
		for m := range r.theta[c] {
			idx := models.Index{C: c, M: m}
			lb, ub := r.store.Get(idx)
			id, err := r.eng.AddCol("theta"+idx.String(), lb, ub, 0, nil)
			if err != nil {
				return engineFailure("init", err)
			}
			r.theta[c][m] = id
		}
	}

	r.conv = make([]lp.RowID, r.sub.NumSentences())
	for s := range r.conv {
		id, err := r.eng.AddRow(fmt.Sprintf("conv%d", s), 1, 1, nil)
		if err != nil {
			return engineFailure("init", err)
		}
		r.conv[s] = id
	}

	for _, idx := range r.params {
		t := &rltParam{fmax: r.fmax[idx]}
		var err error
		if t.f, err = r.eng.AddCol("f"+idx.String(), 0, t.fmax, 0, nil); err != nil {
			return engineFailure("init", err)
		}
		if t.w, err = r.eng.AddCol("w"+idx.String(), math.Inf(-1), lp.Inf, 1, nil); err != nil {
			return engineFailure("init", err)
		}
		if t.fdef, err = r.eng.AddRow("fdef"+idx.String(), 0, 0, map[lp.ColID]float64{t.f: 1}); err != nil {
			return engineFailure("init", err)
		}
		if t.upper, err = r.eng.AddRow("upper"+idx.String(), math.Inf(-1), 0, nil); err != nil {
			return engineFailure("init", err)
		}
		if t.lower, err = r.eng.AddRow("lower"+idx.String(), math.Inf(-1), 0, nil); err != nil {
			return engineFailure("init", err)
		}
		r.terms[idx] = t
		if err := r.writeTerm(idx); err != nil {
			return err
		}
	}

	for s := range r.conv {
		for _, st := range r.sub.Candidates(s) {
			if err := r.addLambda(s, st); err != nil {
				return err
			}
		}
	}

	r.secant = make([]lp.RowID, nc)
	for c := 0; c < nc; c++ {
		id, err := r.eng.AddRow(fmt.Sprintf("secant%d", c), math.Inf(-1), lp.Inf, nil)
		if err != nil {
			return engineFailure("init", err)
		}
		r.secant[c] = id
		if err := r.writeSecant(c); err != nil {
			return err
		}
	}
	r.inited = true
	r.log.Debug("lp built",
		"objective_params", len(r.params),
		"structures", len(r.lambdas),
		"rows", r.eng.NumRows(),
		"cols", r.eng.NumCols())
	return nil
}

func (r *RLT) addLambda(sentence int, st models.Structure) error {
	col := structCol{sentence: sentence, st: st, counts: st.Counts()}
	coefs := map[lp.RowID]float64{r.conv[sentence]: 1}
	for idx, f := range col.counts {
		if t := r.terms[idx]; t != nil {
			coefs[t.fdef] = -f
		}
	}
	id, err := r.eng.AddCol(fmt.Sprintf("lambda%d_%d", sentence, len(r.lambdas)), 0, lp.Inf, 0, coefs)
	if err != nil {
		return engineFailure("add lambda", err)
	}
	col.id = id
	r.lambdas = append(r.lambdas, col)
	r.stats.LambdaCols++
	metrics.ColumnsAddedTotal.WithLabelValues("lambda").Inc()
	return nil
}

// writeTerm sets the McCormick coefficients of one parameter for the
// current box.
func (r *RLT) writeTerm(idx models.Index) error {
	t := r.terms[idx]
	lb, ub := r.store.Get(idx)
	th := r.theta[idx.C][idx.M]
	edits := []struct {
		row lp.RowID
		col lp.ColID
		v   float64
	}{
		{t.upper, t.w, 1},
		{t.upper, t.f, -ub},
		{t.lower, t.w, 1},
		{t.lower, t.f, -lb},
		{t.lower, th, -t.fmax},
	}
	for _, e := range edits {
		if err := r.eng.SetCoef(e.row, e.col, e.v); err != nil {
			return engineFailure("update", err)
		}
	}
	if err := r.eng.SetRowBounds(t.lower, math.Inf(-1), -t.fmax*lb); err != nil {
		return engineFailure("update", err)
	}
	// w = θ·f over the box and 0 <= f <= F. A finite upper bound keeps the
	// slack basis dual feasible.
	wLo := math.Min(0, utils.MulZeroSafe(t.fmax, lb))
	wUp := math.Max(0, utils.MulZeroSafe(t.fmax, ub))
	if err := r.eng.SetColBounds(t.w, wLo, wUp); err != nil {
		return engineFailure("update", err)
	}
	return nil
}

func (r *RLT) writeSecant(c int) error {
	coefs, rhs := secantCut(r.store.Lbs(c), r.store.Ubs(c))
	for m, v := range coefs {
		if err := r.eng.SetCoef(r.secant[c], r.theta[c][m], v); err != nil {
			return engineFailure("update", err)
		}
	}
	if err := r.eng.SetRowBounds(r.secant[c], rhs, lp.Inf); err != nil {
		return engineFailure("update", err)
	}
	return nil
}

// addTangent adds the tangent cut of condition c at thetaBar when the point
// violates it. Cuts at an already-used point are skipped.
func (r *RLT) addTangent(c int, thetaBar []float64) (bool, error) {
	coefs, rhs, violation := tangentCut(thetaBar)
	if violation <= minCutViolation {
		return false, nil
	}
	for _, prev := range r.cuts[c] {
		if sameTheta([][]float64{prev}, [][]float64{coefs}, r.opts.Tolerances.Dedup) {
			return false, nil
		}
	}
	row := make(map[lp.ColID]float64, len(coefs))
	for m, v := range coefs {
		row[r.theta[c][m]] = v
	}
	if _, err := r.eng.AddRow(fmt.Sprintf("tangent%d_%d", c, len(r.cuts[c])), math.Inf(-1), rhs, row); err != nil {
		return false, engineFailure("add cut", err)
	}
	r.cuts[c] = append(r.cuts[c], coefs)
	r.stats.CutRows++
	metrics.ColumnsAddedTotal.WithLabelValues("cut").Inc()
	return true, nil
}

func (r *RLT) thetaValues() [][]float64 {
	out := make([][]float64, len(r.theta))
	for c := range r.theta {
		out[c] = make([]float64, len(r.theta[c]))
		for m, id := range r.theta[c] {
			out[c][m] = r.eng.Value(id)
		}
	}
	return out
}

func (r *RLT) method() lp.Method {
	if r.opts.Method == lp.MethodPrimal {
		return lp.MethodPrimal
	}
	return lp.MethodDual
}

func (r *RLT) Solve(ctx context.Context, incumbent float64, depth int) (*RelaxedSolution, error) {
	r.stats.Solves++
	if !r.IsFeasible() {
		return r.infeasible(), nil
	}
	r.installWarmStart()
	if math.IsInf(incumbent, -1) {
		r.eng.ClearObjLimit()
	} else {
		r.eng.SetObjLimit(incumbent)
	}

	maxRounds := r.opts.maxRounds(depth)
	best := math.Inf(1)
	sol := &RelaxedSolution{Status: StatusFeasible}

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sol.Rounds = round
		status, err := r.lpSolve(ctx, r.method())
		if err != nil {
			return nil, err
		}
		switch status {
		case lp.StatusOptimal:
		case lp.StatusObjLimit:
			sol.Status = StatusPruned
			sol.Bound = math.Min(best, incumbent)
			return r.finish(sol), nil
		case lp.StatusInfeasible:
			return r.finish(r.infeasible()), nil
		default:
			return nil, engineFailure("solve", fmt.Errorf("%w: lp status %s", lp.ErrEngine, status))
		}

		ub := r.eng.Objective()
		if ub > best+r.opts.Tolerances.BoundDecrease {
			r.warn("bound_increase", "cut round loosened the bound", "round", round, "previous", best, "current", ub)
		}
		best = math.Min(best, ub)
		if best <= incumbent {
			sol.Status = StatusPruned
			break
		}

		start := time.Now()
		added := 0
		for c, tb := range r.thetaValues() {
			ok, err := r.addTangent(c, tb)
			if err != nil {
				return nil, err
			}
			if ok {
				added++
			}
		}
		r.stats.SubproblemTime += time.Since(start)
		r.log.Debug("cut round", "round", round, "bound", ub, "cuts", added)

		if added == 0 {
			sol.Status = StatusOptimal
			break
		}
		if round >= maxRounds || r.expired() {
			break
		}
	}

	sol.Bound = best
	r.fillSolution(sol)
	return r.finish(sol), nil
}

func (r *RLT) fillSolution(sol *RelaxedSolution) {
	var counts map[models.Index]float64
	sol.Structures, counts, sol.Integral = weightedStructures(len(r.conv), r.lambdas, r.eng.Value, r.opts.Tolerances.Integrality)
	sol.FeatureCounts = counts
	sol.LogProbs = r.thetaValues()

	w := make(map[models.Index]float64, len(r.params))
	theta := make(map[models.Index]float64, len(r.params))
	for _, idx := range r.params {
		w[idx] = r.eng.Value(r.terms[idx].w)
		theta[idx] = sol.LogProbs[idx.C][idx.M]
	}
	sol.Regret = r.checkRegret(w, theta, counts)
}

func (r *RLT) ForwardApply(l bounds.DeltaList) error {
	l.ApplyAll(r.store)
	return r.update(l)
}

func (r *RLT) ReverseApply(l bounds.DeltaList) error {
	l.ReverseAll(r.store)
	return r.update(l)
}

func (r *RLT) update(l bounds.DeltaList) error {
	idxs, conds := touched(l)
	for _, idx := range idxs {
		lb, ub := r.store.Get(idx)
		if err := r.eng.SetColBounds(r.theta[idx.C][idx.M], lb, ub); err != nil {
			return engineFailure("update", err)
		}
		if r.terms[idx] != nil {
			if err := r.writeTerm(idx); err != nil {
				return err
			}
		}
	}
	for _, c := range conds {
		if err := r.writeSecant(c); err != nil {
			return err
		}
	}
	return nil
}

// AddFeasibleSolution cuts at the incumbent's parameter point, which lies on
// the sum-to-one surface and so is a tight supporting plane.
func (r *RLT) AddFeasibleSolution(ctx context.Context, inc *models.Incumbent) error {
	if inc == nil || len(inc.LogProbs) != len(r.theta) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for c, theta := range inc.LogProbs {
		if len(theta) != len(r.theta[c]) {
			continue
		}
		coefs, rhs, _ := tangentCut(theta)
		row := make(map[lp.ColID]float64, len(coefs))
		for m, v := range coefs {
			row[r.theta[c][m]] = v
		}
		if _, err := r.eng.AddRow(fmt.Sprintf("tangent%d_%d", c, len(r.cuts[c])), math.Inf(-1), rhs, row); err != nil {
			return engineFailure("add cut", err)
		}
		r.cuts[c] = append(r.cuts[c], coefs)
		r.stats.CutRows++
	}
	return nil
}
