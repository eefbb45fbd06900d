package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordAndAggregate(t *testing.T) {
	c := NewCollector()
	c.Start()
	now := time.Now()
	for i, v := range []float64{3, 1, 2} {
		c.Record("x", v, now.Add(time.Duration(i)*time.Millisecond), nil)
	}
	c.Stop()

	agg := c.GetAggregation("x", nil)
	if agg == nil {
		t.Fatal("expected aggregation")
	}
	if agg.Count != 3 || agg.Sum != 6 || agg.Min != 1 || agg.Max != 3 {
		t.Fatalf("unexpected aggregation %+v", agg)
	}
	if agg.Mean != 2 || agg.Last != 2 {
		t.Fatalf("unexpected mean/last %+v", agg)
	}
	if agg.P50 != 2 {
		t.Fatalf("expected median 2, got %g", agg.P50)
	}

	points := c.GetTimeSeries("x", nil)
	if len(points) != 3 || points[0].Value != 3 {
		t.Fatalf("expected points in arrival order, got %d", len(points))
	}
	summary := c.GetSummary()
	if summary.Aggregations["x"] == nil {
		t.Fatal("summary must include x")
	}
}

func TestCollectorLabels(t *testing.T) {
	c := NewCollector()
	c.RecordNow("bound", 1, CreateWorkerLabels(0))
	c.RecordNow("bound", 2, CreateWorkerLabels(1))
	c.RecordNow("bound", 3, map[string]string{"worker": "1"})

	if got := c.GetTimeSeries("bound", CreateWorkerLabels(1)); len(got) != 2 {
		t.Fatalf("expected 2 points for worker 1, got %d", len(got))
	}
	if c.GetTimeSeries("bound", nil) != nil {
		t.Fatal("unlabelled series should be empty")
	}
	if names := c.GetMetricNames(); len(names) != 1 || names[0] != "bound" {
		t.Fatalf("unexpected names %v", names)
	}
	c.Clear()
	if len(c.GetMetricNames()) != 0 {
		t.Fatal("Clear must drop all series")
	}
}

func TestRecordBoundsSkipsInfinite(t *testing.T) {
	c := NewCollector()
	RecordBounds(c, math.Inf(1), -3, math.Inf(1), time.Now(), nil)
	if c.GetTimeSeries(MetricUpperBound, nil) != nil {
		t.Fatal("infinite upper bound must be skipped")
	}
	if got := c.GetTimeSeries(MetricLowerBound, nil); len(got) != 1 || got[0].Value != -3 {
		t.Fatal("finite lower bound must be recorded")
	}
	RecordNode(c, -1, 4, 7, time.Now(), nil)
	if agg := c.GetAggregation(MetricRefinementRound, nil); agg == nil || agg.Last != 7 {
		t.Fatal("expected refinement rounds to be recorded")
	}
}

func TestPrometheusCounters(t *testing.T) {
	before := testutil.ToFloat64(NodesTotal.WithLabelValues("branched"))
	NodesTotal.WithLabelValues("branched").Inc()
	if got := testutil.ToFloat64(NodesTotal.WithLabelValues("branched")); got != before+1 {
		t.Fatalf("expected counter to increase by one, got %g -> %g", before, got)
	}
}
