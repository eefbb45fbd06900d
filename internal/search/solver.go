package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/internal/relax"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// Solver is one branch-and-bound search. It owns a single oracle whose box
// always reflects the node processed last; Run must be called once, from
// one goroutine.
type Solver struct {
	cfg       *config.SolverConfig
	inst      *models.Instance
	oracle    relax.Oracle
	brancher  Brancher
	frontier  *Frontier
	rounder   *rounder
	incumbent *Incumbent
	collector *metrics.Collector
	labels    map[string]string
	log       *slog.Logger

	rootBox *box
	timeout time.Duration
	nextID  int
	current *Node
	// best bound of the nodes left open because their box could not be split
	unsplit float64
	stats   models.SearchStats
	history []models.BoundPoint
}

// Option customises a Solver.
type Option func(*Solver)

// WithOracle replaces the oracle built from the configuration. Its box must
// equal the instance's root box.
func WithOracle(o relax.Oracle) Option {
	return func(s *Solver) { s.oracle = o }
}

// WithIncumbent shares an incumbent holder with other solvers.
func WithIncumbent(i *Incumbent) Option {
	return func(s *Solver) { s.incumbent = i }
}

// WithCollector records bound history into c.
func WithCollector(c *metrics.Collector, labels map[string]string) Option {
	return func(s *Solver) {
		s.collector = c
		s.labels = labels
	}
}

// WithLogger replaces the search logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) { s.log = l }
}

// WithRootBox searches a sub-box of the instance instead of its root box.
// Incumbents are still fitted over the instance's root box.
func WithRootBox(lbs, ubs [][]float64) Option {
	return func(s *Solver) { s.rootBox = &box{lbs: lbs, ubs: ubs} }
}

type box struct {
	lbs, ubs [][]float64
}

// New wires a solver for one instance.
func New(cfg *config.SolverConfig, inst *models.Instance, sub relax.Subproblem, opts ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	brancher, err := NewBrancher(cfg.Brancher, cfg.Tolerances.Regret)
	if err != nil {
		return nil, err
	}
	frontier, err := NewFrontier(cfg.NodeOrder)
	if err != nil {
		return nil, err
	}
	s := &Solver{
		cfg:      cfg,
		inst:     inst,
		brancher: brancher,
		frontier: frontier,
		rounder:  &rounder{sub: sub, rootLb: inst.RootLb, rootUb: inst.RootUb},
		log:      logger.Component("search"),
		timeout:  timeout,
		unsplit:  math.Inf(-1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.incumbent == nil {
		s.incumbent = NewIncumbent()
	}
	if s.oracle == nil {
		lbs, ubs := inst.RootLb, inst.RootUb
		if s.rootBox != nil {
			lbs, ubs = s.rootBox.lbs, s.rootBox.ubs
		}
		o, err := relax.New(cfg.Relaxation.Kind, bounds.NewStore(lbs, ubs), sub, relax.OptionsFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		s.oracle = o
	}
	return s, nil
}

// Oracle exposes the relaxation for inspection.
func (s *Solver) Oracle() relax.Oracle {
	return s.oracle
}

// Incumbent returns the best solution found, or ErrNoIncumbent.
func (s *Solver) Incumbent() (*models.Incumbent, error) {
	return s.incumbent.Get()
}

// Run searches until the frontier is exhausted, the gap closes, the time
// budget runs out or ctx is cancelled. Only an engine failure or a failed
// setup returns an error; the partial result is returned with it.
func (s *Solver) Run(ctx context.Context) (*models.Result, error) {
	deadline := utils.NewDeadline(s.timeout)
	if s.collector != nil {
		s.collector.Start()
		defer s.collector.Stop()
	}

	if err := s.oracle.Init(ctx); err != nil {
		if ctx.Err() != nil {
			return s.result(models.TerminationCancelled, deadline), nil
		}
		return s.result(models.TerminationExhausted, deadline), fmt.Errorf("initialising relaxation: %w", err)
	}
	if s.inst.Initial != nil {
		seed := *s.inst.Initial
		seed.Objective = models.Objective(seed.Structures, seed.LogProbs)
		s.offer(&seed)
		if err := s.oracle.AddFeasibleSolution(ctx, &seed); err != nil {
			return s.result(models.TerminationExhausted, deadline), fmt.Errorf("seeding relaxation: %w", err)
		}
	}

	root := newRoot()
	s.nextID = 1
	s.current = root
	s.frontier.AddRoot(root)
	s.log.Info("search started",
		"instance", s.inst.Name,
		"relaxation", s.cfg.Relaxation.Kind,
		"node_order", s.cfg.NodeOrder,
		"brancher", s.cfg.Brancher,
		"timeout", s.timeout.String())

	termination, err := s.loop(ctx, deadline)
	res := s.result(termination, deadline)
	s.log.Info("search finished",
		"termination", termination,
		"nodes", s.stats.NodesProcessed,
		"upper_bound", res.UpperBound,
		"lower_bound", res.LowerBound,
		"gap", res.Gap,
		"elapsed", utils.FormatDuration(res.Stats.Elapsed))
	return res, err
}

func (s *Solver) loop(ctx context.Context, deadline *utils.Deadline) (models.Termination, error) {
	for {
		if ctx.Err() != nil {
			return models.TerminationCancelled, nil
		}
		if deadline.Expired() {
			return models.TerminationTimedOut, nil
		}
		node, stale := s.frontier.Next(s.incumbent.Objective())
		s.stats.FathomedPruned += stale
		if node == nil {
			if _, err := s.incumbent.Get(); err != nil {
				return models.TerminationExhausted, nil
			}
			if upper, lower := s.globalBounds(); !s.closed(upper, lower) {
				// Only unsplittable nodes are left above the incumbent.
				return models.TerminationExhausted, nil
			}
			return models.TerminationConverged, nil
		}

		if err := s.process(ctx, node, deadline); err != nil {
			if ctx.Err() != nil {
				return models.TerminationCancelled, nil
			}
			s.log.Error("search aborted", "node", node.ID, "error", err)
			return models.TerminationExhausted, err
		}

		upper, lower := s.globalBounds()
		s.record(upper, lower, deadline)
		if !math.IsInf(lower, -1) && s.closed(upper, lower) {
			return models.TerminationConverged, nil
		}
	}
}

// moveTo walks the oracle's box from the current node to target.
func (s *Solver) moveTo(target *Node) error {
	up, down := path(s.current, target)
	for _, n := range up {
		if err := s.oracle.ReverseApply(n.Deltas); err != nil {
			return err
		}
	}
	for _, n := range down {
		if err := s.oracle.ForwardApply(n.Deltas); err != nil {
			return err
		}
	}
	s.current = target
	return nil
}

func (s *Solver) process(ctx context.Context, node *Node, deadline *utils.Deadline) error {
	if err := s.moveTo(node); err != nil {
		return err
	}
	s.oracle.SetTimeRemaining(deadline.Remaining())
	if node.warm != nil {
		s.oracle.SetWarmStart(node.warm)
		node.warm = nil
	}

	incumbent := s.incumbent.Objective()
	sol, err := s.oracle.Solve(ctx, incumbent, node.Depth)
	if err != nil {
		return err
	}
	s.stats.NodesProcessed++
	if node.Depth > s.stats.MaxDepth {
		s.stats.MaxDepth = node.Depth
	}

	outcome := s.resolve(ctx, node, sol)
	metrics.NodesTotal.WithLabelValues(outcome).Inc()
	if s.collector != nil {
		metrics.RecordNode(s.collector, node.Bound, s.frontier.Len(), sol.Rounds, time.Now(), s.labels)
	}
	s.log.Info("node resolved",
		"node", node.ID,
		"depth", node.Depth,
		"status", sol.Status.String(),
		"bound", node.Bound,
		"outcome", outcome,
		"incumbent", s.incumbent.Objective(),
		"frontier", s.frontier.Len())
	return nil
}

// resolve fathoms or branches a solved node and names the outcome.
func (s *Solver) resolve(ctx context.Context, node *Node, sol *relax.RelaxedSolution) string {
	switch sol.Status {
	case relax.StatusInfeasible:
		s.stats.FathomedInfeasible++
		return "infeasible"
	case relax.StatusPruned:
		s.stats.FathomedPruned++
		return "pruned"
	}
	node.Bound = math.Min(node.Bound, sol.Bound)

	cand, err := s.rounder.candidate(ctx, sol)
	if err != nil {
		s.log.Warn("incumbent heuristic failed", "node", node.ID, "error", err)
	} else {
		s.offer(cand)
	}
	incumbent := s.incumbent.Objective()

	if node.Bound <= incumbent {
		s.stats.FathomedPruned++
		return "pruned"
	}
	if s.closed(node.Bound, incumbent) {
		if sol.Integral {
			s.stats.FathomedIntegral++
			return "integral"
		}
		s.stats.FathomedPruned++
		return "pruned"
	}

	lower, upper, err := s.brancher.Branch(s.oracle.Bounds(), sol, node.Depth)
	if errors.Is(err, ErrNothingToSplit) {
		s.log.Warn("box too narrow to split", "node", node.ID, "bound", node.Bound, "incumbent", incumbent)
		s.stats.Unsplittable++
		s.unsplit = math.Max(s.unsplit, node.Bound)
		return "unsplittable"
	}
	if err != nil {
		s.log.Warn("branching failed", "node", node.ID, "error", err)
		s.stats.FathomedPruned++
		return "pruned"
	}
	warm := s.oracle.WarmStart()
	children := []*Node{
		node.child(s.nextID, lower, warm),
		node.child(s.nextID+1, upper, warm.Clone()),
	}
	s.nextID += 2
	s.frontier.AddChildren(children, incumbent)
	s.stats.Branched++
	return "branched"
}

func (s *Solver) offer(cand *models.Incumbent) {
	if !s.incumbent.Offer(cand) {
		return
	}
	s.stats.IncumbentUpdates++
	s.log.Info("incumbent improved", "objective", cand.Objective)
}

// closed reports whether upper is within epsilon of lower, relative to
// |upper| when that exceeds one.
func (s *Solver) closed(upper, lower float64) bool {
	return utils.RelativeGap(upper, lower) <= s.cfg.Epsilon
}

// globalBounds returns the best bound any pending or unsplittable node can
// reach and the incumbent objective.
func (s *Solver) globalBounds() (float64, float64) {
	lower := s.incumbent.Objective()
	upper := math.Max(math.Max(s.frontier.BestBound(), s.unsplit), lower)
	return upper, lower
}

func (s *Solver) record(upper, lower float64, deadline *utils.Deadline) {
	point := models.BoundPoint{
		Node:    s.stats.NodesProcessed,
		Upper:   upper,
		Lower:   lower,
		Elapsed: deadline.Elapsed(),
	}
	s.history = append(s.history, point)
	if s.collector != nil {
		metrics.RecordBounds(s.collector, upper, lower, utils.RelativeGap(upper, lower), time.Now(), s.labels)
	}
}

func (s *Solver) result(termination models.Termination, deadline *utils.Deadline) *models.Result {
	s.stats.Elapsed = deadline.Elapsed()
	upper, lower := s.globalBounds()
	if s.stats.NodesProcessed == 0 && termination != models.TerminationExhausted {
		// The root was never bounded.
		upper = math.Inf(1)
	}
	if termination == models.TerminationExhausted && math.IsInf(lower, -1) {
		upper = math.Inf(-1)
	}
	inc, _ := s.incumbent.Get()
	return &models.Result{
		Termination: termination,
		Incumbent:   inc,
		UpperBound:  upper,
		LowerBound:  lower,
		Gap:         utils.RelativeGap(upper, lower),
		Stats:       s.stats,
		History:     s.history,
	}
}
