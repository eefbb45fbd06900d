package search

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/gridsearch/internal/bounds"
	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/internal/relax"
	"github.com/GoSim-25-26J-441/gridsearch/internal/subproblem"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// The best analysis is verb-right + noun-right at -2 log 2: noun-left
// twice is held back by the 0.4 cap on attach/left.
const toyProblem = `
name: toy
conditions:
  - name: root
    outcomes: [noun, verb]
  - name: attach
    outcomes: [left, right]
sentences:
  - name: a
    structures:
      - name: noun-left
        features:
          - {condition: root, outcome: noun, count: 1}
          - {condition: attach, outcome: left, count: 1}
      - name: verb-right
        features:
          - {condition: root, outcome: verb, count: 1}
          - {condition: attach, outcome: right, count: 1}
  - name: b
    structures:
      - name: noun-left
        features:
          - {condition: root, outcome: noun, count: 1}
          - {condition: attach, outcome: left, count: 1}
      - name: noun-right
        features:
          - {condition: root, outcome: noun, count: 1}
          - {condition: attach, outcome: right, count: 2}
bounds:
  - {condition: attach, outcome: left, max: 0.4}
`

func toyInstance(t *testing.T) (*models.Instance, *subproblem.Table) {
	t.Helper()
	p, err := config.ParseProblemYAMLString(toyProblem)
	require.NoError(t, err)
	in, err := p.Compile(-23)
	require.NoError(t, err)
	table, err := subproblem.NewTableFromInstance(in)
	require.NoError(t, err)
	return in, table
}

// bruteForce scores every structure combination with its best parameters.
func bruteForce(in *models.Instance, table *subproblem.Table) float64 {
	r := &rounder{sub: table, rootLb: in.RootLb, rootUb: in.RootUb}
	best := math.Inf(-1)
	choice := make([]models.Structure, len(in.Candidates))
	var walk func(s int)
	walk = func(s int) {
		if s == len(choice) {
			if inc := r.fit(choice); inc != nil {
				best = math.Max(best, inc.Objective)
			}
			return
		}
		for _, st := range in.Candidates[s] {
			choice[s] = st
			walk(s + 1)
		}
	}
	walk(0)
	return best
}

// singleSentence has one empty structure over two binary conditions, so
// every distribution scores zero.
func singleSentence(t *testing.T, lb, ub [][]float64) (*models.Instance, *subproblem.Table) {
	t.Helper()
	in := &models.Instance{
		Name:           "single",
		ConditionNames: []string{"x", "y"},
		OutcomeNames:   [][]string{{"a", "b"}, {"a", "b"}},
		Candidates:     [][]models.Structure{{{Sentence: 0, Name: "only"}}},
		RootLb:         lb,
		RootUb:         ub,
	}
	table, err := subproblem.NewTableFromInstance(in)
	require.NoError(t, err)
	return in, table
}

func testConfig() *config.SolverConfig {
	cfg := config.DefaultSolverConfig()
	cfg.Timeout = "2m"
	cfg.Epsilon = 1e-4
	return cfg
}

func TestTrivialInstanceConvergesAtRoot(t *testing.T) {
	in, table := singleSentence(t,
		[][]float64{{-23, -23}, {-23, -23}},
		[][]float64{{0, 0}, {0, 0}})
	for _, kind := range []string{config.RelaxationDantzigWolfe, config.RelaxationRLT} {
		t.Run(kind, func(t *testing.T) {
			cfg := testConfig()
			cfg.Relaxation.Kind = kind
			s, err := New(cfg, in, table)
			require.NoError(t, err)
			res, err := s.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, models.TerminationConverged, res.Termination)
			require.NotNil(t, res.Incumbent)
			assert.InDelta(t, 0, res.Incumbent.Objective, 1e-9)
			assert.Zero(t, res.Stats.Branched)
			assert.Equal(t, 1, res.Stats.NodesProcessed)
			assert.True(t, res.Optimal())
		})
	}
}

func TestInfeasibleRootIsExhausted(t *testing.T) {
	in, table := singleSentence(t,
		[][]float64{{-40, -40}, {-23, -23}},
		[][]float64{{-30, -30}, {0, 0}})
	s, err := New(testConfig(), in, table)
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.TerminationExhausted, res.Termination)
	assert.Nil(t, res.Incumbent)
	assert.Equal(t, 1, res.Stats.FathomedInfeasible)
	assert.Zero(t, s.Oracle().Stats().LPSolves)
	assert.True(t, math.IsInf(res.UpperBound, -1))
	_, err = s.Incumbent()
	assert.ErrorIs(t, err, ErrNoIncumbent)
}

func TestZeroTimeoutStopsBeforeRoot(t *testing.T) {
	in, table := toyInstance(t)
	theta := [][]float64{{math.Log(0.5), math.Log(0.5)}, {math.Log(0.25), math.Log(0.75)}}
	in.Initial = &models.Incumbent{
		Structures: []models.Structure{in.Candidates[0][1], in.Candidates[1][1]},
		LogProbs:   theta,
	}

	cfg := testConfig()
	cfg.Timeout = "0"
	s, err := New(cfg, in, table)
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.TerminationTimedOut, res.Termination)
	assert.Zero(t, res.Stats.NodesProcessed)
	require.NotNil(t, res.Incumbent)
	assert.InDelta(t, models.Objective(in.Initial.Structures, theta), res.Incumbent.Objective, 1e-12)
	assert.True(t, math.IsInf(res.UpperBound, 1))
	assert.False(t, res.Optimal())
}

func TestCancelledContext(t *testing.T) {
	in, table := toyInstance(t)
	s, err := New(testConfig(), in, table)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TerminationCancelled, res.Termination)
	assert.Zero(t, res.Stats.NodesProcessed)
}

func TestToyProblemFindsOptimum(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		order    string
		brancher string
	}{
		{"dw best first", config.RelaxationDantzigWolfe, config.OrderBestFirst, config.BrancherWidest},
		{"dw depth first regret", config.RelaxationDantzigWolfe, config.OrderDepthFirst, config.BrancherRegret},
		{"dw breadth first round robin", config.RelaxationDantzigWolfe, config.OrderBreadthFirst, config.BrancherRoundRobin},
		{"rlt best first", config.RelaxationRLT, config.OrderBestFirst, config.BrancherWidest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, table := toyInstance(t)
			truth := bruteForce(in, table)
			require.InDelta(t, -2*math.Log(2), truth, 1e-6)

			cfg := testConfig()
			cfg.Relaxation.Kind = tt.kind
			cfg.NodeOrder = tt.order
			cfg.Brancher = tt.brancher
			s, err := New(cfg, in, table)
			require.NoError(t, err)
			res, err := s.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, models.TerminationConverged, res.Termination)
			require.NotNil(t, res.Incumbent)
			assert.InDelta(t, truth, res.Incumbent.Objective, 1e-3)
			assert.LessOrEqual(t, res.Incumbent.Objective, truth+1e-9)
			assert.LessOrEqual(t, res.Gap, cfg.Epsilon)
			assert.GreaterOrEqual(t, res.UpperBound, res.LowerBound)
			assert.NotEmpty(t, res.History)
			for _, p := range res.History {
				assert.GreaterOrEqual(t, p.Upper, truth-1e-3, "global bound fell below the optimum at node %d", p.Node)
			}
		})
	}
}

func TestSolverRecordsIntoCollector(t *testing.T) {
	in, table := toyInstance(t)
	c := metrics.NewCollector()
	s, err := New(testConfig(), in, table, WithCollector(c, map[string]string{"run": "t"}))
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	names := c.GetMetricNames()
	assert.Contains(t, names, metrics.MetricFrontierSize)
	assert.Contains(t, names, metrics.MetricLowerBound)
	assert.NotEmpty(t, c.GetTimeSeries(metrics.MetricRefinementRound, map[string]string{"run": "t"}))
}

func TestSharedIncumbentSeedsPruning(t *testing.T) {
	in, table := toyInstance(t)
	truth := bruteForce(in, table)
	shared := NewIncumbent()
	require.Less(t, truth, 0.0)
	shared.Offer(&models.Incumbent{Objective: 0.5})

	s, err := New(testConfig(), in, table, WithIncumbent(shared))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	// No relaxed bound exceeds zero, so the root is pruned.
	assert.Equal(t, models.TerminationConverged, res.Termination)
	assert.Equal(t, 1, res.Stats.NodesProcessed)
	assert.Equal(t, 1, res.Stats.FathomedPruned)
	assert.Equal(t, 0.5, res.Incumbent.Objective)
}

func TestWithOracleReplacesRelaxation(t *testing.T) {
	in, table := toyInstance(t)
	cfg := testConfig()
	o, err := relax.New(config.RelaxationRLT, bounds.NewStore(in.RootLb, in.RootUb), table, relax.OptionsFromConfig(cfg))
	require.NoError(t, err)
	s, err := New(cfg, in, table, WithOracle(o))
	require.NoError(t, err)
	assert.Same(t, o, s.Oracle())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	in, table := toyInstance(t)
	cfg := testConfig()
	cfg.Workers = 0
	_, err := New(cfg, in, table)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Relaxation.Kind = "lagrangian"
	_, err = New(cfg, in, table)
	assert.Error(t, err)
}

func TestPartitionCoversRootBox(t *testing.T) {
	in, _ := toyInstance(t)
	boxes := Partition(in.RootLb, in.RootUb, 4)
	require.Len(t, boxes, 4)

	// Sampled distributions inside the root box land in exactly one box.
	for _, b := range boxes {
		for c := range in.RootLb {
			for m := range in.RootLb[c] {
				lb, ub := b.Get(models.Index{C: c, M: m})
				assert.GreaterOrEqual(t, lb, in.RootLb[c][m])
				assert.LessOrEqual(t, ub, in.RootUb[c][m])
			}
		}
	}
	for _, p := range []float64{0.01, 0.3, 0.49, 0.51, 0.7, 0.99} {
		for _, q := range []float64{0.05, 0.35, 0.6, 0.95} {
			point := [][]float64{{math.Log(p), math.Log(1 - p)}, {math.Log(q * 0.4), math.Log(1 - q*0.4)}}
			hits := 0
			for _, b := range boxes {
				if inside(b.Lbs(0), b.Ubs(0), point[0]) && inside(b.Lbs(1), b.Ubs(1), point[1]) {
					hits++
				}
			}
			assert.Equal(t, 1, hits, "point p=%g q=%g", p, q)
		}
	}

	one := Partition([][]float64{{0}}, [][]float64{{0}}, 3)
	assert.Len(t, one, 1)
}

func inside(lb, ub, theta []float64) bool {
	for m := range theta {
		if theta[m] < lb[m] || theta[m] > ub[m] {
			return false
		}
	}
	return true
}

func TestPartitionedSearchFindsOptimum(t *testing.T) {
	in, table := toyInstance(t)
	truth := bruteForce(in, table)

	cfg := testConfig()
	cfg.Workers = 3
	res, err := Search(context.Background(), cfg, in, table, metrics.NewCollector())
	require.NoError(t, err)

	assert.Equal(t, models.TerminationConverged, res.Termination)
	require.NotNil(t, res.Incumbent)
	assert.InDelta(t, truth, res.Incumbent.Objective, 1e-3)
	assert.GreaterOrEqual(t, res.Stats.NodesProcessed, 3)
	assert.GreaterOrEqual(t, res.UpperBound, res.LowerBound)
}

func TestSearchSingleWorker(t *testing.T) {
	in, table := toyInstance(t)
	res, err := Search(context.Background(), testConfig(), in, table, nil)
	require.NoError(t, err)
	assert.True(t, res.Optimal())
	assert.InDelta(t, bruteForce(in, table), res.Incumbent.Objective, 1e-3)
}

func TestMergePrefersCancellation(t *testing.T) {
	shared := NewIncumbent()
	shared.Offer(&models.Incumbent{Objective: -2})
	res := merge([]*models.Result{
		{Termination: models.TerminationConverged, UpperBound: -2, Stats: models.SearchStats{NodesProcessed: 4}},
		{Termination: models.TerminationCancelled, UpperBound: -1, Stats: models.SearchStats{NodesProcessed: 2, MaxDepth: 3}},
	}, shared, 1e-4)
	assert.Equal(t, models.TerminationCancelled, res.Termination)
	assert.Equal(t, 6, res.Stats.NodesProcessed)
	assert.Equal(t, 3, res.Stats.MaxDepth)
	assert.Equal(t, -1.0, res.UpperBound)
	assert.Equal(t, -2.0, res.LowerBound)

	res = merge([]*models.Result{
		{Termination: models.TerminationTimedOut, UpperBound: -2},
		{Termination: models.TerminationConverged, UpperBound: -2.5},
	}, shared, 1e-4)
	assert.Equal(t, models.TerminationConverged, res.Termination, "a closed gap overrides a timeout")

	res = merge([]*models.Result{
		{Termination: models.TerminationExhausted, UpperBound: math.Inf(-1)},
	}, NewIncumbent(), 1e-4)
	assert.Equal(t, models.TerminationExhausted, res.Termination)
}

// randomInstance draws two or three binary conditions, two or three
// sentences of two or three structures, and a root box that caps one
// outcome of roughly half the conditions.
func randomInstance(t *testing.T, rng *utils.RandSource) (*models.Instance, *subproblem.Table) {
	t.Helper()
	nc := 2 + rng.Intn(2)
	in := &models.Instance{
		Name:   "random",
		RootLb: make([][]float64, nc),
		RootUb: make([][]float64, nc),
	}
	for c := 0; c < nc; c++ {
		in.ConditionNames = append(in.ConditionNames, fmt.Sprintf("c%d", c))
		in.OutcomeNames = append(in.OutcomeNames, []string{"a", "b"})
		in.RootLb[c] = []float64{-23, -23}
		in.RootUb[c] = []float64{0, 0}
		if rng.Float64() < 0.5 {
			in.RootUb[c][rng.Intn(2)] = math.Log(0.3 + 0.5*rng.Float64())
		}
	}
	in.Candidates = make([][]models.Structure, 2+rng.Intn(2))
	for s := range in.Candidates {
		for k := 2 + rng.Intn(2); k > 0; k-- {
			st := models.Structure{Sentence: s, Name: fmt.Sprintf("s%d-%d", s, len(in.Candidates[s]))}
			for c := 0; c < nc; c++ {
				if rng.Float64() < 0.75 {
					st.Features = append(st.Features, models.FeatureCount{
						Index: models.Index{C: c, M: rng.Intn(2)},
						Count: float64(1 + rng.Intn(2)),
					})
				}
			}
			in.Candidates[s] = append(in.Candidates[s], st)
		}
	}
	table, err := subproblem.NewTableFromInstance(in)
	require.NoError(t, err)
	return in, table
}

// requireOptimum checks a finished search against the exhaustive optimum.
func requireOptimum(t *testing.T, cfg *config.SolverConfig, res *models.Result, truth float64) {
	t.Helper()
	assert.Equal(t, models.TerminationConverged, res.Termination)
	require.NotNil(t, res.Incumbent)
	slack := cfg.Epsilon*math.Max(1, math.Abs(truth)) + 1e-6
	assert.GreaterOrEqual(t, res.Incumbent.Objective, truth-slack)
	assert.LessOrEqual(t, res.Incumbent.Objective, truth+1e-9)
	assert.GreaterOrEqual(t, res.UpperBound, res.Incumbent.Objective)
	assert.LessOrEqual(t, res.Gap, cfg.Epsilon)
	for _, p := range res.History {
		assert.GreaterOrEqual(t, p.Upper, truth-slack, "global bound fell below the optimum at node %d", p.Node)
	}
}

func TestRandomInstancesMatchBruteForce(t *testing.T) {
	kinds := []string{config.RelaxationDantzigWolfe, config.RelaxationRLT}
	branchers := []string{config.BrancherWidest, config.BrancherRegret, config.BrancherRoundRobin}
	for seed := int64(1); seed <= 8; seed++ {
		in, table := randomInstance(t, utils.NewRandSource(seed))
		truth := bruteForce(in, table)
		require.False(t, math.IsInf(truth, -1), "seed %d has no feasible analysis", seed)
		for _, kind := range kinds {
			for _, br := range branchers {
				t.Run(fmt.Sprintf("seed%d/%s/%s", seed, kind, br), func(t *testing.T) {
					cfg := testConfig()
					cfg.Relaxation.Kind = kind
					cfg.Brancher = br
					s, err := New(cfg, in, table)
					require.NoError(t, err)
					res, err := s.Run(context.Background())
					require.NoError(t, err)
					requireOptimum(t, cfg, res, truth)
				})
			}
		}
	}
}

// Two conditions carry a tight cap on one outcome; under the default
// configuration this instance used to abort with a singular basis after
// about fifty nodes.
func TestCappedThreeConditionInstance(t *testing.T) {
	feat := func(c, m int, n float64) models.FeatureCount {
		return models.FeatureCount{Index: models.Index{C: c, M: m}, Count: n}
	}
	in := &models.Instance{
		Name:           "capped",
		ConditionNames: []string{"c0", "c1", "c2"},
		OutcomeNames:   [][]string{{"a", "b"}, {"a", "b"}, {"a", "b"}},
		RootLb:         [][]float64{{-23, -23}, {-23, -23}, {-23, -23}},
		RootUb:         [][]float64{{0, 0}, {-0.885, 0}, {-0.744, 0}},
		Candidates: [][]models.Structure{
			{
				{Sentence: 0, Name: "x", Features: []models.FeatureCount{feat(0, 0, 1), feat(1, 0, 1)}},
				{Sentence: 0, Name: "y", Features: []models.FeatureCount{feat(0, 1, 1), feat(2, 0, 2)}},
				{Sentence: 0, Name: "z", Features: []models.FeatureCount{feat(1, 1, 1), feat(2, 1, 1)}},
			},
			{
				{Sentence: 1, Name: "x", Features: []models.FeatureCount{feat(0, 0, 2), feat(2, 0, 1)}},
				{Sentence: 1, Name: "y", Features: []models.FeatureCount{feat(1, 0, 1), feat(2, 1, 1)}},
			},
			{
				{Sentence: 2, Name: "x", Features: []models.FeatureCount{feat(0, 1, 1), feat(1, 0, 2)}},
				{Sentence: 2, Name: "y", Features: []models.FeatureCount{feat(0, 0, 1), feat(1, 1, 1), feat(2, 0, 1)}},
				{Sentence: 2, Name: "z", Features: []models.FeatureCount{feat(2, 1, 2)}},
			},
		},
	}
	table, err := subproblem.NewTableFromInstance(in)
	require.NoError(t, err)
	truth := bruteForce(in, table)

	for _, kind := range []string{config.RelaxationDantzigWolfe, config.RelaxationRLT} {
		t.Run(kind, func(t *testing.T) {
			cfg := config.DefaultSolverConfig()
			cfg.Relaxation.Kind = kind
			cfg.Timeout = "2m"
			s, err := New(cfg, in, table)
			require.NoError(t, err)
			res, err := s.Run(context.Background())
			require.NoError(t, err)
			requireOptimum(t, cfg, res, truth)
		})
	}
}

func TestGammaPruningKeepsOptimum(t *testing.T) {
	in, table := toyInstance(t)
	truth := bruteForce(in, table)

	cfg := testConfig()
	cfg.Relaxation.Kind = config.RelaxationDantzigWolfe
	cfg.Relaxation.MaxSetSize = 2
	cfg.Relaxation.InitialGammaCols = 12
	cfg.Seed = 7
	s, err := New(cfg, in, table)
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	requireOptimum(t, cfg, res, truth)
	assert.Greater(t, s.Oracle().Stats().GammaPruned, 0)
}

// fixedBoundOracle answers every node with the same fractional bound and
// never touches an LP.
type fixedBoundOracle struct {
	relax.Oracle
	bound float64
}

func (o *fixedBoundOracle) Init(context.Context) error { return nil }

func (o *fixedBoundOracle) AddFeasibleSolution(context.Context, *models.Incumbent) error {
	return nil
}

func (o *fixedBoundOracle) Solve(context.Context, float64, int) (*relax.RelaxedSolution, error) {
	return &relax.RelaxedSolution{Status: relax.StatusFeasible, Bound: o.bound}, nil
}

func TestUnsplittableNodeKeepsItsBound(t *testing.T) {
	half := math.Log(0.5)
	point := [][]float64{{half, half}, {half, half}}
	in, table := singleSentence(t, point, point)
	in.Initial = &models.Incumbent{Structures: in.Candidates[0][:1], LogProbs: point}

	cfg := testConfig()
	inner, err := relax.New(cfg.Relaxation.Kind, bounds.NewStore(in.RootLb, in.RootUb), table, relax.OptionsFromConfig(cfg))
	require.NoError(t, err)
	s, err := New(cfg, in, table, WithOracle(&fixedBoundOracle{Oracle: inner, bound: 1}))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.TerminationExhausted, res.Termination)
	assert.False(t, res.Optimal())
	assert.Equal(t, 1, res.Stats.Unsplittable)
	assert.Zero(t, res.Stats.FathomedIntegral)
	require.NotNil(t, res.Incumbent)
	assert.InDelta(t, 0, res.LowerBound, 1e-12)
	assert.Equal(t, 1.0, res.UpperBound)
	assert.Greater(t, res.Gap, cfg.Epsilon)
}

func TestMergeReportsOpenGap(t *testing.T) {
	shared := NewIncumbent()
	shared.Offer(&models.Incumbent{Objective: -2})
	res := merge([]*models.Result{
		{Termination: models.TerminationConverged, UpperBound: -2},
		{Termination: models.TerminationExhausted, UpperBound: -1, Stats: models.SearchStats{Unsplittable: 1}},
	}, shared, 1e-4)
	assert.Equal(t, models.TerminationExhausted, res.Termination)
	assert.Equal(t, 1, res.Stats.Unsplittable)
	assert.Equal(t, -1.0, res.UpperBound)
}
