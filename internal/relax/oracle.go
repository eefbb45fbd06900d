// Package relax bounds the objective over a parameter box with LP
// relaxations that are edited in place as the box changes.
package relax

import (
	"context"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/lp"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

// Status classifies a relaxed solve.
type Status int

const (
	StatusUnknown Status = iota
	// StatusOptimal: the refinement loop converged; Bound is the
	// relaxation optimum.
	StatusOptimal
	// StatusFeasible: the loop stopped early; Bound is valid but loose.
	StatusFeasible
	// StatusInfeasible: the box holds no distribution.
	StatusInfeasible
	// StatusPruned: the box provably cannot beat the incumbent.
	StatusPruned
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusPruned:
		return "PRUNED"
	default:
		return "UNKNOWN"
	}
}

// Fathomed reports whether the node needs no further work.
func (s Status) Fathomed() bool {
	return s == StatusInfeasible || s == StatusPruned
}

// WeightedStructure is one structure with its weight in the fractional
// solution.
type WeightedStructure struct {
	Structure models.Structure
	Weight    float64
}

// RelaxedSolution is the outcome of one bound computation. Bound is an upper
// bound on the objective (a log-likelihood, maximised) over the box.
type RelaxedSolution struct {
	Status        Status
	Bound         float64
	LogProbs      [][]float64
	Structures    [][]WeightedStructure
	FeatureCounts map[models.Index]float64
	// Regret is z - θ̄·f̄ per parameter, the part of the bound the
	// McCormick envelope adds over the bilinear objective.
	Regret   map[models.Index]float64
	Integral bool
	Rounds   int
}

// Stats summarises the work of one oracle.
type Stats struct {
	Solves          int
	LPSolves        int
	Rounds          int
	Infeasible      int
	Pruned          int
	LambdaCols      int
	GammaCols       int
	GammaPruned     int
	CutRows         int
	DuplicateCols   int
	NumericWarnings int
	ColdRestarts    int
	SubproblemTime  time.Duration
	LPTime          time.Duration
}

// Oracle computes bounds over the live box. Implementations own one LP
// engine whose columns and rows are edited as deltas are applied, and are
// not safe for concurrent use.
type Oracle interface {
	// Init builds the LP. It must be called once before any other method.
	Init(ctx context.Context) error
	// Solve bounds the objective over the current box. incumbent is the
	// objective of the best known solution, -Inf when there is none.
	Solve(ctx context.Context, incumbent float64, depth int) (*RelaxedSolution, error)
	ForwardApply(l bounds.DeltaList) error
	ReverseApply(l bounds.DeltaList) error
	WarmStart() *lp.Basis
	SetWarmStart(b *lp.Basis)
	// AddFeasibleSolution seeds the relaxation with a known point.
	AddFeasibleSolution(ctx context.Context, inc *models.Incumbent) error
	IsFeasible() bool
	Bounds() *bounds.Store
	SetTimeRemaining(d time.Duration)
	Stats() Stats
}

// EngineFailureError reports an unrecoverable LP engine error.
type EngineFailureError struct {
	Op  string
	Err error
}

func (e *EngineFailureError) Error() string {
	return fmt.Sprintf("relaxation engine failure during %s: %v", e.Op, e.Err)
}

func (e *EngineFailureError) Unwrap() error {
	return e.Err
}

func engineFailure(op string, err error) error {
	return &EngineFailureError{Op: op, Err: err}
}

// Options tunes an oracle. It is derived from the solver configuration.
type Options struct {
	Method             lp.Method
	MaxRounds          int
	RootMaxRounds      int
	ObjectiveVarFilter bool
	MaxSetSize         int
	InitialGammaCols   int
	Seed               int64
	Tolerances         config.Tolerances
}

// OptionsFromConfig maps the solver configuration onto oracle options.
func OptionsFromConfig(cfg *config.SolverConfig) Options {
	method := lp.MethodDual
	if cfg.Relaxation.LPMethod == config.LPMethodPrimal {
		method = lp.MethodPrimal
	}
	return Options{
		Method:             method,
		MaxRounds:          cfg.Relaxation.MaxRounds,
		RootMaxRounds:      cfg.Relaxation.RootMaxRounds,
		ObjectiveVarFilter: cfg.Relaxation.ObjectiveVarFilter,
		MaxSetSize:         cfg.Relaxation.MaxSetSize,
		InitialGammaCols:   cfg.Relaxation.InitialGammaCols,
		Seed:               cfg.Seed,
		Tolerances:         cfg.Tolerances,
	}
}

func (o Options) maxRounds(depth int) int {
	if depth == 0 {
		return o.RootMaxRounds
	}
	return o.MaxRounds
}

// DefaultOptions returns the options of DefaultSolverConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultSolverConfig())
}
