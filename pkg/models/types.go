package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Index identifies one parameter: outcome M of condition C.
type Index struct {
	C int `json:"c" yaml:"c"`
	M int `json:"m" yaml:"m"`
}

func (i Index) String() string {
	return fmt.Sprintf("(%d,%d)", i.C, i.M)
}

// FeatureCount is how often a structure uses one parameter.
type FeatureCount struct {
	Index Index   `json:"index"`
	Count float64 `json:"count"`
}

// Structure is one discrete analysis of a sentence, summarised by the
// parameters it uses.
type Structure struct {
	Sentence int            `json:"sentence"`
	Name     string         `json:"name,omitempty"`
	Features []FeatureCount `json:"features"`
}

// Key returns a canonical string for equality checks. Two structures with
// the same multiset of feature counts share a key regardless of order.
func (s Structure) Key() string {
	counts := s.Counts()
	idx := make([]Index, 0, len(counts))
	for i := range counts {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if idx[a].C != idx[b].C {
			return idx[a].C < idx[b].C
		}
		return idx[a].M < idx[b].M
	})
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d:", s.Sentence)
	for _, i := range idx {
		fmt.Fprintf(&sb, "%d.%d=%g;", i.C, i.M, counts[i])
	}
	return sb.String()
}

// Counts merges the feature list into a map, dropping zero entries.
func (s Structure) Counts() map[Index]float64 {
	out := make(map[Index]float64, len(s.Features))
	for _, f := range s.Features {
		out[f.Index] += f.Count
	}
	for i, v := range out {
		if v == 0 {
			delete(out, i)
		}
	}
	return out
}

// Score returns the weighted score Σ f·w of the structure. A zero count
// contributes nothing even when the weight is -Inf.
func (s Structure) Score(weights [][]float64) float64 {
	score := 0.0
	for _, f := range s.Features {
		if f.Count == 0 {
			continue
		}
		score += f.Count * weights[f.Index.C][f.Index.M]
	}
	return score
}

// Incumbent is a complete integral assignment with its true objective.
type Incumbent struct {
	Structures []Structure `json:"structures"`
	LogProbs   [][]float64 `json:"log_probs"`
	Objective  float64     `json:"objective"`
}

// Objective computes Σ_s Σ_cm f_s,cm · θ_cm for a set of structures.
func Objective(structures []Structure, logProbs [][]float64) float64 {
	total := 0.0
	for _, s := range structures {
		total += s.Score(logProbs)
	}
	return total
}

// Termination is the reason a search stopped.
type Termination string

const (
	TerminationConverged Termination = "CONVERGED"
	TerminationTimedOut  Termination = "TIMED_OUT"
	TerminationExhausted Termination = "EXHAUSTED"
	TerminationCancelled Termination = "CANCELLED"
)

// SearchStats summarises one branch-and-bound run.
type SearchStats struct {
	NodesProcessed     int           `json:"nodes_processed"`
	FathomedInfeasible int           `json:"fathomed_infeasible"`
	FathomedPruned     int           `json:"fathomed_pruned"`
	FathomedIntegral   int           `json:"fathomed_integral"`
	Unsplittable       int           `json:"unsplittable"`
	Branched           int           `json:"branched"`
	MaxDepth           int           `json:"max_depth"`
	IncumbentUpdates   int           `json:"incumbent_updates"`
	Elapsed            time.Duration `json:"elapsed"`
}

// BoundPoint is one sample of the global bounds during a search.
type BoundPoint struct {
	Node    int           `json:"node"`
	Upper   float64       `json:"upper"`
	Lower   float64       `json:"lower"`
	Elapsed time.Duration `json:"elapsed"`
}

// Result is what a finished search reports to its caller.
type Result struct {
	Termination Termination  `json:"termination"`
	Incumbent   *Incumbent   `json:"incumbent,omitempty"`
	UpperBound  float64      `json:"upper_bound"`
	LowerBound  float64      `json:"lower_bound"`
	Gap         float64      `json:"gap"`
	Stats       SearchStats  `json:"stats"`
	History     []BoundPoint `json:"history,omitempty"`
}

// Optimal reports whether the search proved its incumbent optimal.
func (r *Result) Optimal() bool {
	return r != nil && r.Termination == TerminationConverged && r.Incumbent != nil
}

// JSONSafe returns a copy with infinite values clamped to the largest
// finite float so the result can be marshalled with encoding/json.
func (r *Result) JSONSafe() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.UpperBound = finiteOr(r.UpperBound)
	out.LowerBound = finiteOr(r.LowerBound)
	out.Gap = finiteOr(r.Gap)
	if len(r.History) > 0 {
		out.History = make([]BoundPoint, len(r.History))
		for i, p := range r.History {
			p.Upper = finiteOr(p.Upper)
			p.Lower = finiteOr(p.Lower)
			out.History[i] = p
		}
	}
	if r.Incumbent != nil {
		inc := *r.Incumbent
		inc.LogProbs = make([][]float64, len(r.Incumbent.LogProbs))
		for c, row := range r.Incumbent.LogProbs {
			inc.LogProbs[c] = make([]float64, len(row))
			for m, v := range row {
				inc.LogProbs[c][m] = finiteOr(v)
			}
		}
		out.Incumbent = &inc
	}
	return &out
}

func finiteOr(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	case math.IsNaN(v):
		return 0
	}
	return v
}

// RunStatus represents the status of a search run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Run represents a search run
type Run struct {
	ID        string            `json:"id"`
	Status    RunStatus         `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	StartTime time.Time         `json:"start_time,omitempty"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Result    *Result           `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Instance is a compiled problem: parameter shape, candidate structures per
// sentence, the root box in log space and an optional feasible seed.
type Instance struct {
	Name           string        `json:"name"`
	ConditionNames []string      `json:"condition_names"`
	OutcomeNames   [][]string    `json:"outcome_names"`
	Candidates     [][]Structure `json:"-"`
	RootLb         [][]float64   `json:"-"`
	RootUb         [][]float64   `json:"-"`
	Initial        *Incumbent    `json:"-"`
}

// NumParams returns the number of outcomes per condition.
func (in *Instance) NumParams() []int {
	out := make([]int, len(in.OutcomeNames))
	for c, names := range in.OutcomeNames {
		out[c] = len(names)
	}
	return out
}

// ParamLabel names a parameter as condition/outcome.
func (in *Instance) ParamLabel(i Index) string {
	return in.ConditionNames[i.C] + "/" + in.OutcomeNames[i.C][i.M]
}
