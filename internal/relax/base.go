package relax

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/lp"
	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/internal/subproblem"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// Subproblem is everything the relaxations need from the structure side.
type Subproblem interface {
	subproblem.Solver
	subproblem.FeatureBounder
	subproblem.Enumerator
}

// New builds the oracle named by kind over a fresh simplex engine.
func New(kind string, store *bounds.Store, sub Subproblem, opts Options) (Oracle, error) {
	switch kind {
	case config.RelaxationDantzigWolfe, "":
		return NewDantzigWolfe(store, sub, lp.NewSimplex(), opts), nil
	case config.RelaxationRLT:
		return NewRLT(store, sub, lp.NewSimplex(), opts), nil
	default:
		return nil, fmt.Errorf("unknown relaxation kind %q", kind)
	}
}

// base carries the state both strategies share: the live box, the engine,
// the time budget and the bookkeeping.
type base struct {
	kind     string
	store    *bounds.Store
	eng      lp.Engine
	opts     Options
	log      *slog.Logger
	stats    Stats
	deadline *utils.Deadline
	warm     *lp.Basis
	fmax     map[models.Index]float64
	params   []models.Index
	inited   bool
}

func newBase(kind string, store *bounds.Store, eng lp.Engine, opts Options) base {
	return base{
		kind:  kind,
		store: store,
		eng:   eng,
		opts:  opts,
		log:   logger.Component("relax").With("relaxation", kind),
	}
}

// objectiveParams lists, in (c, m) order, the parameters that get an
// objective variable: all of them, or only those some structure can use.
func (b *base) objectiveParams() []models.Index {
	var out []models.Index
	for c := 0; c < b.store.NumConditions(); c++ {
		for m := 0; m < b.store.NumOutcomes(c); m++ {
			idx := models.Index{C: c, M: m}
			if b.opts.ObjectiveVarFilter && b.fmax[idx] <= 0 {
				continue
			}
			out = append(out, idx)
		}
	}
	return out
}

func (b *base) IsFeasible() bool {
	return b.store.IsFeasible(b.opts.Tolerances.Feasibility)
}

func (b *base) Bounds() *bounds.Store {
	return b.store
}

// SetTimeRemaining bounds the refinement loop of later solves. A negative
// duration removes the limit.
func (b *base) SetTimeRemaining(d time.Duration) {
	b.deadline = utils.NewDeadline(d)
}

func (b *base) expired() bool {
	return b.deadline != nil && b.deadline.Expired()
}

func (b *base) Stats() Stats {
	return b.stats
}

func (b *base) WarmStart() *lp.Basis {
	return b.eng.Basis()
}

func (b *base) SetWarmStart(basis *lp.Basis) {
	b.warm = basis
}

// installWarmStart hands a pending basis to the engine once.
func (b *base) installWarmStart() {
	if b.warm != nil {
		b.eng.SetBasis(b.warm)
		b.warm = nil
	}
}

// lpSolve runs the engine once. A singular basis or an iteration limit is
// retried once from the slack basis before it counts as an engine failure.
func (b *base) lpSolve(ctx context.Context, method lp.Method) (lp.Status, error) {
	status, err := b.timedSolve(ctx, method)
	if ctx.Err() == nil && (errors.Is(err, lp.ErrSingularBasis) || (err == nil && status == lp.StatusIterLimit)) {
		b.stats.ColdRestarts++
		b.warn("cold_restart", "lp solve restarted from the slack basis", "status", status.String(), "error", err)
		b.eng.ResetBasis()
		status, err = b.timedSolve(ctx, method)
	}
	if err != nil {
		if ctx.Err() != nil {
			return lp.StatusUnknown, ctx.Err()
		}
		metrics.LPSolvesTotal.WithLabelValues(b.kind, "error").Inc()
		b.log.Error("lp solve failed", "error", err)
		return lp.StatusUnknown, engineFailure("solve", err)
	}
	metrics.LPSolvesTotal.WithLabelValues(b.kind, status.String()).Inc()
	return status, nil
}

func (b *base) timedSolve(ctx context.Context, method lp.Method) (lp.Status, error) {
	start := time.Now()
	status, err := b.eng.Solve(ctx, method)
	b.stats.LPTime += time.Since(start)
	b.stats.LPSolves++
	return status, err
}

// warn records a tolerated numerical inconsistency.
func (b *base) warn(check, msg string, args ...any) {
	b.stats.NumericWarnings++
	metrics.NumericWarningsTotal.WithLabelValues(check).Inc()
	b.log.Warn(msg, append([]any{"check", check}, args...)...)
}

// infeasible builds the answer for a box that holds no distribution.
func (b *base) infeasible() *RelaxedSolution {
	b.stats.Infeasible++
	if c, bad := b.store.InfeasibleCondition(b.opts.Tolerances.Feasibility); bad {
		b.log.Debug("box infeasible", "condition", c)
	}
	return &RelaxedSolution{Status: StatusInfeasible, Bound: math.Inf(-1)}
}

func (b *base) finish(sol *RelaxedSolution) *RelaxedSolution {
	b.stats.Rounds += sol.Rounds
	if sol.Status == StatusPruned {
		b.stats.Pruned++
	}
	metrics.RefinementRounds.WithLabelValues(b.kind).Observe(float64(sol.Rounds))
	b.log.Debug("relaxation solved",
		"status", sol.Status.String(),
		"bound", sol.Bound,
		"rounds", sol.Rounds)
	return sol
}

// checkRegret computes z - θ·f per objective parameter and warns when the
// envelope undercuts the product.
func (b *base) checkRegret(z, theta, f map[models.Index]float64) map[models.Index]float64 {
	out := make(map[models.Index]float64, len(z))
	worst, worstIdx := 0.0, models.Index{}
	for idx, zv := range z {
		r := zv - utils.MulZeroSafe(f[idx], theta[idx])
		out[idx] = r
		if r < worst {
			worst, worstIdx = r, idx
		}
	}
	if worst < -b.opts.Tolerances.Regret {
		b.warn("regret", "negative regret", "param", worstIdx.String(), "regret", worst)
	}
	return out
}

// touched returns the distinct parameters and conditions a delta list edits.
func touched(l bounds.DeltaList) ([]models.Index, []int) {
	seenIdx := make(map[models.Index]bool)
	seenCond := make(map[int]bool)
	var idx []models.Index
	var conds []int
	for _, d := range l {
		if !seenIdx[d.Index] {
			seenIdx[d.Index] = true
			idx = append(idx, d.Index)
		}
		if !seenCond[d.Index.C] {
			seenCond[d.Index.C] = true
			conds = append(conds, d.Index.C)
		}
	}
	sort.Ints(conds)
	return idx, conds
}

// weightedStructures groups positive λ values by sentence and flags the
// solution integral when every sentence puts its weight on one structure.
func weightedStructures(numSentences int, cols []structCol, value func(lp.ColID) float64, tol float64) ([][]WeightedStructure, map[models.Index]float64, bool) {
	out := make([][]WeightedStructure, numSentences)
	counts := make(map[models.Index]float64)
	for _, col := range cols {
		v := value(col.id)
		if v <= 1e-12 {
			continue
		}
		out[col.sentence] = append(out[col.sentence], WeightedStructure{Structure: col.st, Weight: v})
		for idx, f := range col.counts {
			counts[idx] += v * f
		}
	}
	integral := true
	for s := range out {
		sort.SliceStable(out[s], func(i, j int) bool { return out[s][i].Weight > out[s][j].Weight })
		if len(out[s]) == 0 || out[s][0].Weight < 1-tol {
			integral = false
		}
	}
	return out, counts, integral
}

// structCol is one structure column in the LP.
type structCol struct {
	id       lp.ColID
	sentence int
	st       models.Structure
	counts   map[models.Index]float64
}
