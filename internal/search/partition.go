package search

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/internal/relax"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// Search runs one branch-and-bound search. With more than one worker the
// root box is split into disjoint sub-boxes, each searched by its own
// solver and oracle, all sharing one incumbent.
func Search(ctx context.Context, cfg *config.SolverConfig, inst *models.Instance, sub relax.Subproblem, collector *metrics.Collector) (*models.Result, error) {
	start := time.Now()
	var (
		res *models.Result
		err error
	)
	if cfg.Workers <= 1 {
		var opts []Option
		if collector != nil {
			opts = append(opts, WithCollector(collector, nil))
		}
		var s *Solver
		s, err = New(cfg, inst, sub, opts...)
		if err != nil {
			return nil, err
		}
		res, err = s.Run(ctx)
	} else {
		res, err = searchPartitioned(ctx, cfg, inst, sub, collector)
	}
	if res != nil {
		metrics.RunsTotal.WithLabelValues(string(res.Termination)).Inc()
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	return res, err
}

// Partition splits the box into k disjoint boxes by repeatedly halving the
// widest interval of the widest remaining box. It returns fewer boxes when
// nothing is left to split.
func Partition(lbs, ubs [][]float64, k int) []*bounds.Store {
	boxes := []*bounds.Store{bounds.NewStore(lbs, ubs)}
	for len(boxes) < k {
		pick, pickWidth, pickIdx := -1, -1.0, models.Index{}
		for i, b := range boxes {
			if idx, ok := widest(b); ok && b.ProbWidth(idx) > pickWidth {
				pick, pickWidth, pickIdx = i, b.ProbWidth(idx), idx
			}
		}
		if pick < 0 {
			break
		}
		parent := boxes[pick]
		lower, upper := split(parent, pickIdx, probMidpoint(parent, pickIdx))
		left, right := parent.Clone(), parent.Clone()
		lower.ApplyAll(left)
		upper.ApplyAll(right)
		boxes[pick] = left
		boxes = append(boxes, right)
	}
	return boxes
}

func searchPartitioned(ctx context.Context, cfg *config.SolverConfig, inst *models.Instance, sub relax.Subproblem, collector *metrics.Collector) (*models.Result, error) {
	log := logger.Component("search")
	boxes := Partition(inst.RootLb, inst.RootUb, cfg.Workers)
	shared := NewIncumbent()
	results := make([]*models.Result, len(boxes))
	log.Info("partitioned search", "workers", len(boxes))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range boxes {
		lbs := make([][]float64, b.NumConditions())
		ubs := make([][]float64, b.NumConditions())
		for c := range lbs {
			lbs[c], ubs[c] = b.Lbs(c), b.Ubs(c)
		}
		opts := []Option{
			WithRootBox(lbs, ubs),
			WithIncumbent(shared),
			WithLogger(log.With("worker", i)),
		}
		if collector != nil {
			opts = append(opts, WithCollector(collector, metrics.CreateWorkerLabels(i)))
		}
		s, err := New(cfg, inst, sub, opts...)
		if err != nil {
			return nil, err
		}
		i := i
		g.Go(func() error {
			res, err := s.Run(gctx)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	return merge(results, shared, cfg.Epsilon), err
}

// merge combines worker results. The union of the boxes is the root box,
// so the global upper bound is the largest worker bound.
func merge(results []*models.Result, shared *Incumbent, epsilon float64) *models.Result {
	out := &models.Result{UpperBound: math.Inf(-1)}
	counts := make(map[models.Termination]int)
	for _, r := range results {
		if r == nil {
			counts[models.TerminationCancelled]++
			out.UpperBound = math.Inf(1)
			continue
		}
		counts[r.Termination]++
		out.UpperBound = math.Max(out.UpperBound, r.UpperBound)
		out.Stats.NodesProcessed += r.Stats.NodesProcessed
		out.Stats.FathomedInfeasible += r.Stats.FathomedInfeasible
		out.Stats.FathomedPruned += r.Stats.FathomedPruned
		out.Stats.FathomedIntegral += r.Stats.FathomedIntegral
		out.Stats.Unsplittable += r.Stats.Unsplittable
		out.Stats.Branched += r.Stats.Branched
		out.Stats.IncumbentUpdates += r.Stats.IncumbentUpdates
		if r.Stats.MaxDepth > out.Stats.MaxDepth {
			out.Stats.MaxDepth = r.Stats.MaxDepth
		}
		if r.Stats.Elapsed > out.Stats.Elapsed {
			out.Stats.Elapsed = r.Stats.Elapsed
		}
		out.History = append(out.History, r.History...)
	}
	sort.SliceStable(out.History, func(i, j int) bool { return out.History[i].Elapsed < out.History[j].Elapsed })

	out.Incumbent, _ = shared.Get()
	out.LowerBound = shared.Objective()
	if out.Incumbent != nil {
		out.UpperBound = math.Max(out.UpperBound, out.LowerBound)
	}
	out.Gap = utils.RelativeGap(out.UpperBound, out.LowerBound)

	switch {
	case counts[models.TerminationCancelled] > 0:
		out.Termination = models.TerminationCancelled
	case counts[models.TerminationTimedOut] > 0 && out.Gap > epsilon:
		out.Termination = models.TerminationTimedOut
	case out.Incumbent == nil, out.Gap > epsilon:
		out.Termination = models.TerminationExhausted
	default:
		out.Termination = models.TerminationConverged
	}
	return out
}
