package config

import (
	"fmt"
	"strings"
	"time"
)

// Relaxation kinds
const (
	RelaxationDantzigWolfe = "dantzig_wolfe"
	RelaxationRLT          = "rlt"
)

// Node orders
const (
	OrderBestFirst    = "best_first"
	OrderBreadthFirst = "breadth_first"
	OrderDepthFirst   = "depth_first"
)

// Branchers
const (
	BrancherWidest     = "widest"
	BrancherRegret     = "regret"
	BrancherRoundRobin = "round_robin"
)

// LP methods
const (
	LPMethodDual   = "dual"
	LPMethodPrimal = "primal"
)

// SolverConfig represents the branch-and-bound solver configuration
type SolverConfig struct {
	LogLevel   string     `yaml:"log_level"`
	Epsilon    float64    `yaml:"epsilon"`
	Timeout    string     `yaml:"timeout"` // e.g. "30s", "0s", "unlimited"
	NodeOrder  string     `yaml:"node_order"`
	Brancher   string     `yaml:"brancher"`
	Relaxation Relaxation `yaml:"relaxation"`
	Tolerances Tolerances `yaml:"tolerances"`
	MinLogProb float64    `yaml:"min_log_prob"`
	Workers    int        `yaml:"workers"`
	Seed       int64      `yaml:"seed,omitempty"`
}

// Relaxation selects and tunes the bounding strategy
type Relaxation struct {
	Kind               string `yaml:"kind"`
	MaxRounds          int    `yaml:"max_rounds"`
	RootMaxRounds      int    `yaml:"root_max_rounds"`
	LPMethod           string `yaml:"lp_method"`
	ObjectiveVarFilter bool   `yaml:"objective_var_filter"`
	MaxSetSize         int    `yaml:"max_set_size"`
	InitialGammaCols   int    `yaml:"initial_gamma_cols"`
}

// Tolerances collects every numeric comparison threshold
type Tolerances struct {
	Feasibility   float64 `yaml:"feasibility"`
	ReducedCost   float64 `yaml:"reduced_cost"`
	BoundDecrease float64 `yaml:"bound_decrease"`
	Regret        float64 `yaml:"regret"`
	Dedup         float64 `yaml:"dedup"`
	Integrality   float64 `yaml:"integrality"`
}

// DefaultSolverConfig returns the configuration used when a field is omitted.
func DefaultSolverConfig() *SolverConfig {
	return &SolverConfig{
		LogLevel:  "info",
		Epsilon:   1e-4,
		Timeout:   "30s",
		NodeOrder: OrderBestFirst,
		Brancher:  BrancherWidest,
		Relaxation: Relaxation{
			Kind:               RelaxationDantzigWolfe,
			MaxRounds:          100,
			RootMaxRounds:      200,
			LPMethod:           LPMethodDual,
			ObjectiveVarFilter: true,
		},
		Tolerances: Tolerances{
			Feasibility:   1e-10,
			ReducedCost:   -1e-8,
			BoundDecrease: 1.0,
			Regret:        1e-7,
			Dedup:         1e-13,
			Integrality:   1e-9,
		},
		MinLogProb: -23,
		Workers:    1,
	}
}

// GetTimeout parses the timeout string. "unlimited" and "" yield a negative
// duration, which never expires.
func (c *SolverConfig) GetTimeout() (time.Duration, error) {
	t := strings.TrimSpace(c.Timeout)
	if t == "" || strings.EqualFold(t, "unlimited") {
		return -1, nil
	}
	if t == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(t)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout cannot be negative: %s", c.Timeout)
	}
	return d, nil
}

// MaxRoundsAt returns the refinement budget at the given depth.
func (r Relaxation) MaxRoundsAt(depth int) int {
	if depth == 0 {
		return r.RootMaxRounds
	}
	return r.MaxRounds
}

// Problem represents a grid-search problem definition
type Problem struct {
	Name       string           `yaml:"name"`
	Conditions []Condition      `yaml:"conditions"`
	Sentences  []Sentence       `yaml:"sentences"`
	Bounds     []BoundOverride  `yaml:"bounds,omitempty"`
	Initial    *InitialSolution `yaml:"initial,omitempty"`
}

// Condition is a group of mutually exclusive outcomes
type Condition struct {
	Name     string   `yaml:"name"`
	Outcomes []string `yaml:"outcomes"`
}

// Sentence lists the candidate structures of one observation
type Sentence struct {
	Name       string          `yaml:"name"`
	Structures []StructureSpec `yaml:"structures"`
}

// StructureSpec is one candidate structure and the parameters it uses
type StructureSpec struct {
	Name     string        `yaml:"name"`
	Features []FeatureSpec `yaml:"features"`
}

// FeatureSpec counts uses of condition/outcome
type FeatureSpec struct {
	Condition string  `yaml:"condition"`
	Outcome   string  `yaml:"outcome"`
	Count     float64 `yaml:"count"`
}

// BoundOverride restricts one parameter at the root, in probability space
type BoundOverride struct {
	Condition string   `yaml:"condition"`
	Outcome   string   `yaml:"outcome"`
	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`
}

// InitialSolution seeds the search with a known feasible point
type InitialSolution struct {
	Structures    []int                `yaml:"structures"` // index per sentence
	Probabilities map[string][]float64 `yaml:"probabilities,omitempty"`
}
