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

// masterCheckTol is the slack allowed between the Lagrangian bound and the
// restricted master value before it is reported.
const masterCheckTol = 1e-6

// paramRows are the two McCormick coupling rows of one parameter and its
// objective variable z.
type paramRows struct {
	z     lp.ColID
	upper lp.RowID // z - ub·Σfλ <= 0
	lower lp.RowID // z - lb·Σfλ - F·Σθγ <= -F·lb
	fmax  float64
}

type gammaCol struct {
	id    lp.ColID
	theta [][]float64
}

// DantzigWolfe bounds the objective with a column-generation master over
// the convex hulls of each sentence's structures (λ) and of the parameter
// polytope (γ), coupled to per-parameter objective variables through
// McCormick envelopes of the current box.
//
// The master is kept in minimisation form: min -Σz.
type DantzigWolfe struct {
	base
	sub Subproblem

	rows     map[models.Index]*paramRows
	conv     []lp.RowID
	gammaSum lp.RowID

	lambdas    []structCol
	lambdaKeys map[string]bool
	byParam    map[models.Index][]int
	gammas     []*gammaCol
	rng        *utils.RandSource
}

var _ Oracle = (*DantzigWolfe)(nil)

// NewDantzigWolfe creates the oracle. Init must run before use.
func NewDantzigWolfe(store *bounds.Store, sub Subproblem, eng lp.Engine, opts Options) *DantzigWolfe {
	return &DantzigWolfe{
		base:       newBase(config.RelaxationDantzigWolfe, store, eng, opts),
		sub:        sub,
		rows:       make(map[models.Index]*paramRows),
		lambdaKeys: make(map[string]bool),
		byParam:    make(map[models.Index][]int),
		rng:        utils.NewRandSource(opts.Seed),
	}
}

func (d *DantzigWolfe) Init(ctx context.Context) error {
	if d.inited {
		return nil
	}
	d.eng.SetSense(lp.Minimize)
	d.eng.ClearObjLimit()
	d.fmax = subproblem.TotalMaxCounts(d.sub, d.sub.NumSentences())
	d.params = d.objectiveParams()

	for _, idx := range d.params {
		pr := &paramRows{fmax: d.fmax[idx]}
		z, err := d.eng.AddCol("z"+idx.String(), math.Inf(-1), lp.Inf, -1, nil)
		if err != nil {
			return engineFailure("init", err)
		}
		pr.z = z
		if pr.upper, err = d.eng.AddRow("upper"+idx.String(), math.Inf(-1), 0, map[lp.ColID]float64{z: 1}); err != nil {
			return engineFailure("init", err)
		}
		if pr.lower, err = d.eng.AddRow("lower"+idx.String(), math.Inf(-1), -pr.fmax*d.store.Lb(idx), map[lp.ColID]float64{z: 1}); err != nil {
			return engineFailure("init", err)
		}
		d.rows[idx] = pr
	}
	d.conv = make([]lp.RowID, d.sub.NumSentences())
	for s := range d.conv {
		r, err := d.eng.AddRow(fmt.Sprintf("conv%d", s), 1, 1, nil)
		if err != nil {
			return engineFailure("init", err)
		}
		d.conv[s] = r
	}
	r, err := d.eng.AddRow("gamma_sum", 1, 1, nil)
	if err != nil {
		return engineFailure("init", err)
	}
	d.gammaSum = r

	zero := make([][]float64, d.store.NumConditions())
	for c := range zero {
		zero[c] = make([]float64, d.store.NumOutcomes(c))
	}
	for s := 0; s < d.sub.NumSentences(); s++ {
		st, _, err := d.sub.Solve(ctx, s, zero)
		if err != nil {
			return err
		}
		if _, err := d.addLambda(s, st); err != nil {
			return err
		}
	}

	uniform := make([][]float64, d.store.NumConditions())
	for c := range uniform {
		uniform[c] = d.projectTheta(c, uniformLog(d.store.NumOutcomes(c)))
	}
	if _, err := d.addGamma(uniform); err != nil {
		return err
	}
	for k := 0; k < d.opts.InitialGammaCols; k++ {
		theta := make([][]float64, d.store.NumConditions())
		for c := range theta {
			theta[c] = d.projectTheta(c, utils.LogAll(d.rng.Simplex(d.store.NumOutcomes(c))))
		}
		if _, err := d.addGamma(theta); err != nil {
			return err
		}
	}
	d.inited = true
	d.log.Debug("master built",
		"objective_params", len(d.params),
		"rows", d.eng.NumRows(),
		"cols", d.eng.NumCols())
	return nil
}

func (d *DantzigWolfe) projectTheta(c int, theta []float64) []float64 {
	return projectCondition(theta, d.store.Lbs(c), d.store.Ubs(c))
}

func (d *DantzigWolfe) lambdaCoefs(col structCol) map[lp.RowID]float64 {
	coefs := map[lp.RowID]float64{d.conv[col.sentence]: 1}
	for idx, f := range col.counts {
		pr := d.rows[idx]
		if pr == nil {
			continue
		}
		coefs[pr.upper] = -d.store.Ub(idx) * f
		coefs[pr.lower] = -d.store.Lb(idx) * f
	}
	return coefs
}

// addLambda adds a structure column unless an equal one exists.
func (d *DantzigWolfe) addLambda(sentence int, st models.Structure) (bool, error) {
	key := st.Key()
	if d.lambdaKeys[key] {
		d.stats.DuplicateCols++
		return false, nil
	}
	col := structCol{sentence: sentence, st: st, counts: st.Counts()}
	id, err := d.eng.AddCol(fmt.Sprintf("lambda%d_%d", sentence, len(d.lambdas)), 0, lp.Inf, 0, d.lambdaCoefs(col))
	if err != nil {
		return false, engineFailure("add lambda", err)
	}
	col.id = id
	d.lambdaKeys[key] = true
	for idx := range col.counts {
		d.byParam[idx] = append(d.byParam[idx], len(d.lambdas))
	}
	d.lambdas = append(d.lambdas, col)
	d.stats.LambdaCols++
	metrics.ColumnsAddedTotal.WithLabelValues("lambda").Inc()
	return true, nil
}

func (d *DantzigWolfe) gammaCoef(idx models.Index, theta [][]float64) float64 {
	return utils.MulZeroSafe(d.rows[idx].fmax, -theta[idx.C][idx.M])
}

// addGamma adds a parameter column unless one within the dedup tolerance
// exists.
func (d *DantzigWolfe) addGamma(theta [][]float64) (bool, error) {
	for _, g := range d.gammas {
		if sameTheta(g.theta, theta, d.opts.Tolerances.Dedup) {
			d.stats.DuplicateCols++
			return false, nil
		}
	}
	coefs := map[lp.RowID]float64{d.gammaSum: 1}
	for _, idx := range d.params {
		coefs[d.rows[idx].lower] = d.gammaCoef(idx, theta)
	}
	id, err := d.eng.AddCol(fmt.Sprintf("gamma%d", d.stats.GammaCols), 0, lp.Inf, 0, coefs)
	if err != nil {
		return false, engineFailure("add gamma", err)
	}
	d.gammas = append(d.gammas, &gammaCol{id: id, theta: theta})
	d.stats.GammaCols++
	metrics.ColumnsAddedTotal.WithLabelValues("gamma").Inc()
	return true, nil
}

func sameTheta(a, b [][]float64, tol float64) bool {
	for c := range a {
		for m := range a[c] {
			if math.Abs(a[c][m]-b[c][m]) > tol {
				return false
			}
		}
	}
	return true
}

// pruneGammas drops every non-basic γ column once the live count exceeds
// the set size limit (the row count unless configured).
func (d *DantzigWolfe) pruneGammas() error {
	limit := d.opts.MaxSetSize
	if limit <= 0 {
		limit = d.eng.NumRows()
	}
	if len(d.gammas) <= limit {
		return nil
	}
	kept := d.gammas[:0]
	dropped := 0
	for _, g := range d.gammas {
		if d.eng.ColStatus(g.id) == lp.Basic {
			kept = append(kept, g)
			continue
		}
		if err := d.eng.RemoveCol(g.id); err != nil {
			return engineFailure("prune gamma", err)
		}
		dropped++
	}
	d.gammas = kept
	d.stats.GammaPruned += dropped
	d.log.Debug("pruned gamma columns", "dropped", dropped, "kept", len(kept))
	return nil
}

// duals reads the pricing weights w = -(πU·ub + πL·lb) and the lower-row
// duals per parameter.
func (d *DantzigWolfe) duals() ([][]float64, map[models.Index]float64) {
	w := make([][]float64, d.store.NumConditions())
	for c := range w {
		w[c] = make([]float64, d.store.NumOutcomes(c))
	}
	piL := make(map[models.Index]float64, len(d.params))
	for _, idx := range d.params {
		pr := d.rows[idx]
		pu, pl := d.eng.Dual(pr.upper), d.eng.Dual(pr.lower)
		lb, ub := d.store.Get(idx)
		w[idx.C][idx.M] = -(utils.MulZeroSafe(pu, ub) + utils.MulZeroSafe(pl, lb))
		piL[idx] = pl
	}
	return w, piL
}

// priceGamma finds the parameter point of least reduced cost: per
// condition, max Σ b θ with b = -F·πL.
func (d *DantzigWolfe) priceGamma(piL map[models.Index]float64) ([][]float64, float64) {
	theta := make([][]float64, d.store.NumConditions())
	rc := -d.eng.Dual(d.gammaSum)
	for c := range theta {
		n := d.store.NumOutcomes(c)
		b := make([]float64, n)
		for m := 0; m < n; m++ {
			idx := models.Index{C: c, M: m}
			if pr := d.rows[idx]; pr != nil {
				b[m] = math.Max(0, -pr.fmax*piL[idx])
			}
		}
		t, value, ok := MaximizeWeightedLog(b, d.store.Lbs(c), d.store.Ubs(c))
		if !ok {
			t, value = d.projectTheta(c, uniformLog(n)), 0
		}
		theta[c] = t
		rc -= value
	}
	return theta, rc
}

type pricedLambda struct {
	sentence int
	st       models.Structure
	rc       float64
}

func (d *DantzigWolfe) Solve(ctx context.Context, incumbent float64, depth int) (*RelaxedSolution, error) {
	d.stats.Solves++
	if !d.IsFeasible() {
		return d.infeasible(), nil
	}
	d.installWarmStart()

	maxRounds := d.opts.maxRounds(depth)
	tol := d.opts.Tolerances
	best := math.Inf(1)
	master := math.Inf(-1)
	sol := &RelaxedSolution{Status: StatusFeasible}

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sol.Rounds = round
		status, err := d.lpSolve(ctx, d.opts.Method)
		if err != nil {
			return nil, err
		}
		switch status {
		case lp.StatusOptimal:
		case lp.StatusInfeasible:
			d.warn("master_infeasible", "master infeasible on a feasible box", "round", round)
			return d.finish(d.infeasible()), nil
		default:
			return nil, engineFailure("solve", fmt.Errorf("%w: master status %s", lp.ErrEngine, status))
		}

		v := d.eng.Objective()
		if -v < master-tol.BoundDecrease {
			d.warn("bound_decrease", "master value decreased", "round", round, "previous", master, "current", -v)
		}
		master = math.Max(master, -v)

		w, piL := d.duals()
		start := time.Now()
		priced := make([]pricedLambda, 0, len(d.conv))
		lagrangian := v
		for s := range d.conv {
			st, _, err := d.sub.Solve(ctx, s, w)
			if err != nil {
				return nil, err
			}
			rc := -st.Score(w) - d.eng.Dual(d.conv[s])
			lagrangian += math.Min(0, rc)
			priced = append(priced, pricedLambda{sentence: s, st: st, rc: rc})
		}
		gTheta, gRC := d.priceGamma(piL)
		lagrangian += math.Min(0, gRC)
		d.stats.SubproblemTime += time.Since(start)

		ub := -lagrangian
		if ub < -v-masterCheckTol {
			d.warn("lagrangian_below_master", "lagrangian bound below master value", "round", round, "bound", ub, "master", -v)
		}
		best = math.Min(best, ub)
		d.log.Debug("pricing round", "round", round, "master", -v, "bound", ub, "best", best, "gamma_rc", gRC)

		if best <= incumbent {
			sol.Status = StatusPruned
			break
		}

		if err := d.pruneGammas(); err != nil {
			return nil, err
		}
		added := 0
		for _, p := range priced {
			if p.rc >= tol.ReducedCost {
				continue
			}
			ok, err := d.addLambda(p.sentence, p.st)
			if err != nil {
				return nil, err
			}
			if !ok {
				d.warn("duplicate_lambda", "duplicate lambda column with negative reduced cost", "sentence", p.sentence, "rc", p.rc)
				continue
			}
			added++
		}
		if gRC < tol.ReducedCost {
			ok, err := d.addGamma(gTheta)
			if err != nil {
				return nil, err
			}
			if ok {
				added++
			}
		}

		if added == 0 {
			sol.Status = StatusOptimal
			break
		}
		if round >= maxRounds || d.expired() {
			break
		}
	}

	sol.Bound = best
	d.fillSolution(sol)
	return d.finish(sol), nil
}

// fillSolution reads the fractional artifacts of the last master solve.
func (d *DantzigWolfe) fillSolution(sol *RelaxedSolution) {
	var counts map[models.Index]float64
	sol.Structures, counts, sol.Integral = weightedStructures(len(d.conv), d.lambdas, d.eng.Value, d.opts.Tolerances.Integrality)
	sol.FeatureCounts = counts

	sol.LogProbs = make([][]float64, d.store.NumConditions())
	for c := range sol.LogProbs {
		sol.LogProbs[c] = make([]float64, d.store.NumOutcomes(c))
	}
	for _, g := range d.gammas {
		v := d.eng.Value(g.id)
		if v <= 0 {
			continue
		}
		for c := range g.theta {
			for m := range g.theta[c] {
				sol.LogProbs[c][m] += v * g.theta[c][m]
			}
		}
	}

	z := make(map[models.Index]float64, len(d.params))
	theta := make(map[models.Index]float64, len(d.params))
	for _, idx := range d.params {
		z[idx] = d.eng.Value(d.rows[idx].z)
		theta[idx] = sol.LogProbs[idx.C][idx.M]
	}
	sol.Regret = d.checkRegret(z, theta, counts)
}

func (d *DantzigWolfe) ForwardApply(l bounds.DeltaList) error {
	l.ApplyAll(d.store)
	return d.update(l)
}

func (d *DantzigWolfe) ReverseApply(l bounds.DeltaList) error {
	l.ReverseAll(d.store)
	return d.update(l)
}

// update rewrites every coefficient that depends on an edited bound.
func (d *DantzigWolfe) update(l bounds.DeltaList) error {
	idxs, conds := touched(l)
	for _, idx := range idxs {
		pr := d.rows[idx]
		if pr == nil {
			continue
		}
		lb, ub := d.store.Get(idx)
		for _, k := range d.byParam[idx] {
			col := d.lambdas[k]
			f := col.counts[idx]
			if err := d.eng.SetCoef(pr.upper, col.id, -ub*f); err != nil {
				return engineFailure("update", err)
			}
			if err := d.eng.SetCoef(pr.lower, col.id, -lb*f); err != nil {
				return engineFailure("update", err)
			}
		}
		if err := d.eng.SetRowBounds(pr.lower, math.Inf(-1), -pr.fmax*lb); err != nil {
			return engineFailure("update", err)
		}
	}
	for _, c := range conds {
		lbs, ubs := d.store.Lbs(c), d.store.Ubs(c)
		for _, g := range d.gammas {
			if bounds.Inside(g.theta[c], lbs, ubs) {
				continue
			}
			g.theta[c] = projectCondition(g.theta[c], lbs, ubs)
			for m := range g.theta[c] {
				idx := models.Index{C: c, M: m}
				if d.rows[idx] == nil {
					continue
				}
				if err := d.eng.SetCoef(d.rows[idx].lower, g.id, d.gammaCoef(idx, g.theta)); err != nil {
					return engineFailure("update", err)
				}
			}
		}
	}
	return nil
}

// AddFeasibleSolution adds the incumbent's structures and its parameter
// point, moved into the current box.
func (d *DantzigWolfe) AddFeasibleSolution(ctx context.Context, inc *models.Incumbent) error {
	if inc == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for s, st := range inc.Structures {
		if s >= len(d.conv) {
			break
		}
		if _, err := d.addLambda(s, st); err != nil {
			return err
		}
	}
	if len(inc.LogProbs) != d.store.NumConditions() {
		return nil
	}
	theta := make([][]float64, len(inc.LogProbs))
	for c := range theta {
		theta[c] = d.projectTheta(c, inc.LogProbs[c])
	}
	_, err := d.addGamma(theta)
	return err
}
