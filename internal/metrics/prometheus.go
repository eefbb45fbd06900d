package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NodesTotal counts resolved search nodes by outcome
	NodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsearch_nodes_total",
		Help: "Search nodes resolved, by outcome",
	}, []string{"outcome"})

	// LPSolvesTotal counts LP engine solves by relaxation kind and status
	LPSolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsearch_lp_solves_total",
		Help: "LP solves issued by the relaxations",
	}, []string{"relaxation", "status"})

	// ColumnsAddedTotal counts generated columns and cuts
	ColumnsAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsearch_columns_added_total",
		Help: "Columns and cut rows added to the relaxation LP, by kind",
	}, []string{"kind"})

	// NumericWarningsTotal counts tolerated numerical inconsistencies
	NumericWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsearch_numeric_warnings_total",
		Help: "Numerical inconsistencies logged and tolerated, by check",
	}, []string{"check"})

	// RefinementRounds tracks refinement rounds per bound computation
	RefinementRounds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridsearch_refinement_rounds",
		Help:    "Refinement rounds per node bound computation",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
	}, []string{"relaxation"})

	// RunsTotal counts finished searches by termination reason
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsearch_runs_total",
		Help: "Finished searches, by termination reason",
	}, []string{"termination"})

	// RunDuration tracks search wall-clock time
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridsearch_run_duration_seconds",
		Help:    "Search duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
	})
)
