package metrics

import (
	"math"
	"strconv"
	"time"
)

// Common metric names
const (
	MetricUpperBound      = "upper_bound"
	MetricLowerBound      = "lower_bound"
	MetricGap             = "gap"
	MetricNodeBound       = "node_bound"
	MetricFrontierSize    = "frontier_size"
	MetricRefinementRound = "refinement_rounds"
)

// RecordBounds records the global bounds after a node. Infinite values are
// skipped so aggregations stay finite.
func RecordBounds(collector *Collector, upper, lower, gap float64, timestamp time.Time, labels map[string]string) {
	if !math.IsInf(upper, 0) {
		collector.Record(MetricUpperBound, upper, timestamp, labels)
	}
	if !math.IsInf(lower, 0) {
		collector.Record(MetricLowerBound, lower, timestamp, labels)
	}
	if !math.IsInf(gap, 0) && !math.IsNaN(gap) {
		collector.Record(MetricGap, gap, timestamp, labels)
	}
}

// RecordNode records the relaxation bound and frontier size after a node.
func RecordNode(collector *Collector, bound float64, frontier int, rounds int, timestamp time.Time, labels map[string]string) {
	if !math.IsInf(bound, 0) {
		collector.Record(MetricNodeBound, bound, timestamp, labels)
	}
	collector.Record(MetricFrontierSize, float64(frontier), timestamp, labels)
	collector.Record(MetricRefinementRound, float64(rounds), timestamp, labels)
}

// CreateWorkerLabels creates a labels map for a partition worker
func CreateWorkerLabels(worker int) map[string]string {
	return map[string]string{
		"worker": strconv.Itoa(worker),
	}
}
