package config

import (
	"fmt"
	"math"
	"os"
)

// ValidationError reports an invalid configuration or problem field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// LoadSolverConfig loads and parses a solver configuration file
func LoadSolverConfig(path string) (*SolverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseSolverConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadProblem loads and parses a problem file
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read problem file %s: %w", path, err)
	}
	problem, err := ParseProblemYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse problem file %s: %w", path, err)
	}
	return problem, nil
}

// validateSolverConfig performs validation on the solver configuration
func validateSolverConfig(cfg *SolverConfig) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return invalid("log_level", "invalid value %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.Epsilon < 0 || math.IsNaN(cfg.Epsilon) {
		return invalid("epsilon", "must be non-negative, got %g", cfg.Epsilon)
	}
	if _, err := cfg.GetTimeout(); err != nil {
		return invalid("timeout", "%v", err)
	}

	validOrders := map[string]bool{
		OrderBestFirst:    true,
		OrderBreadthFirst: true,
		OrderDepthFirst:   true,
	}
	if !validOrders[cfg.NodeOrder] {
		return invalid("node_order", "invalid value %s (must be best_first, breadth_first, or depth_first)", cfg.NodeOrder)
	}
	validBranchers := map[string]bool{
		BrancherWidest:     true,
		BrancherRegret:     true,
		BrancherRoundRobin: true,
	}
	if !validBranchers[cfg.Brancher] {
		return invalid("brancher", "invalid value %s (must be widest, regret, or round_robin)", cfg.Brancher)
	}

	if err := validateRelaxation(&cfg.Relaxation); err != nil {
		return err
	}
	if cfg.Brancher == BrancherRegret && cfg.Relaxation.Kind != RelaxationDantzigWolfe {
		return invalid("brancher", "regret branching requires the dantzig_wolfe relaxation")
	}
	if err := validateTolerances(&cfg.Tolerances); err != nil {
		return err
	}

	if cfg.MinLogProb >= 0 || math.IsInf(cfg.MinLogProb, 0) {
		return invalid("min_log_prob", "must be finite and negative, got %g", cfg.MinLogProb)
	}
	if cfg.Workers < 1 {
		return invalid("workers", "must be at least 1, got %d", cfg.Workers)
	}
	return nil
}

// validateRelaxation validates the relaxation section
func validateRelaxation(r *Relaxation) error {
	if r.Kind != RelaxationDantzigWolfe && r.Kind != RelaxationRLT {
		return invalid("relaxation.kind", "invalid value %s (must be dantzig_wolfe or rlt)", r.Kind)
	}
	if r.MaxRounds <= 0 {
		return invalid("relaxation.max_rounds", "must be positive, got %d", r.MaxRounds)
	}
	if r.RootMaxRounds <= 0 {
		return invalid("relaxation.root_max_rounds", "must be positive, got %d", r.RootMaxRounds)
	}
	if r.LPMethod != LPMethodDual && r.LPMethod != LPMethodPrimal {
		return invalid("relaxation.lp_method", "invalid value %s (must be dual or primal)", r.LPMethod)
	}
	if r.MaxSetSize < 0 {
		return invalid("relaxation.max_set_size", "cannot be negative, got %d", r.MaxSetSize)
	}
	if r.InitialGammaCols < 0 {
		return invalid("relaxation.initial_gamma_cols", "cannot be negative, got %d", r.InitialGammaCols)
	}
	return nil
}

// validateTolerances validates the tolerances section
func validateTolerances(t *Tolerances) error {
	if t.Feasibility < 0 {
		return invalid("tolerances.feasibility", "cannot be negative, got %g", t.Feasibility)
	}
	if t.ReducedCost > 0 {
		return invalid("tolerances.reduced_cost", "must not be positive, got %g", t.ReducedCost)
	}
	if t.BoundDecrease < 0 {
		return invalid("tolerances.bound_decrease", "cannot be negative, got %g", t.BoundDecrease)
	}
	if t.Regret < 0 {
		return invalid("tolerances.regret", "cannot be negative, got %g", t.Regret)
	}
	if t.Dedup < 0 {
		return invalid("tolerances.dedup", "cannot be negative, got %g", t.Dedup)
	}
	if t.Integrality < 0 {
		return invalid("tolerances.integrality", "cannot be negative, got %g", t.Integrality)
	}
	return nil
}

// validateProblem validates the problem definition
func validateProblem(p *Problem) error {
	if len(p.Conditions) == 0 {
		return invalid("conditions", "at least one condition must be defined")
	}
	outcomes := make(map[string]map[string]bool, len(p.Conditions))
	for _, cond := range p.Conditions {
		if cond.Name == "" {
			return invalid("conditions", "condition name cannot be empty")
		}
		if outcomes[cond.Name] != nil {
			return invalid("conditions", "duplicate condition name: %s", cond.Name)
		}
		if len(cond.Outcomes) == 0 {
			return invalid("conditions", "condition %s: at least one outcome must be defined", cond.Name)
		}
		seen := make(map[string]bool, len(cond.Outcomes))
		for _, o := range cond.Outcomes {
			if o == "" {
				return invalid("conditions", "condition %s: outcome name cannot be empty", cond.Name)
			}
			if seen[o] {
				return invalid("conditions", "condition %s: duplicate outcome %s", cond.Name, o)
			}
			seen[o] = true
		}
		outcomes[cond.Name] = seen
	}
	known := func(cond, outcome string) bool {
		return outcomes[cond] != nil && outcomes[cond][outcome]
	}

	if len(p.Sentences) == 0 {
		return invalid("sentences", "at least one sentence must be defined")
	}
	for i, sent := range p.Sentences {
		if len(sent.Structures) == 0 {
			return invalid("sentences", "sentence %d (%s): at least one structure must be defined", i, sent.Name)
		}
		for _, st := range sent.Structures {
			for _, f := range st.Features {
				if !known(f.Condition, f.Outcome) {
					return invalid("sentences", "sentence %d, structure %s: unknown parameter %s/%s", i, st.Name, f.Condition, f.Outcome)
				}
				if f.Count < 0 || math.IsNaN(f.Count) || math.IsInf(f.Count, 0) {
					return invalid("sentences", "sentence %d, structure %s: count must be finite and non-negative", i, st.Name)
				}
			}
		}
	}

	for i, b := range p.Bounds {
		if !known(b.Condition, b.Outcome) {
			return invalid("bounds", "bound %d: unknown parameter %s/%s", i, b.Condition, b.Outcome)
		}
		if b.Min != nil && (*b.Min < 0 || *b.Min > 1) {
			return invalid("bounds", "bound %d: min must be between 0 and 1, got %g", i, *b.Min)
		}
		if b.Max != nil && (*b.Max < 0 || *b.Max > 1) {
			return invalid("bounds", "bound %d: max must be between 0 and 1, got %g", i, *b.Max)
		}
		if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
			return invalid("bounds", "bound %d: min %g exceeds max %g", i, *b.Min, *b.Max)
		}
	}

	if p.Initial != nil {
		if err := validateInitial(p); err != nil {
			return err
		}
	}
	return nil
}

// validateInitial validates the optional seed solution
func validateInitial(p *Problem) error {
	seed := p.Initial
	if len(seed.Structures) != len(p.Sentences) {
		return invalid("initial.structures", "expected %d entries, got %d", len(p.Sentences), len(seed.Structures))
	}
	for s, k := range seed.Structures {
		if k < 0 || k >= len(p.Sentences[s].Structures) {
			return invalid("initial.structures", "sentence %d: structure index %d out of range", s, k)
		}
	}
	sizes := make(map[string]int, len(p.Conditions))
	for _, cond := range p.Conditions {
		sizes[cond.Name] = len(cond.Outcomes)
	}
	for name, probs := range seed.Probabilities {
		n, ok := sizes[name]
		if !ok {
			return invalid("initial.probabilities", "unknown condition %s", name)
		}
		if len(probs) != n {
			return invalid("initial.probabilities", "condition %s: expected %d values, got %d", name, n, len(probs))
		}
		total := 0.0
		for _, v := range probs {
			if v < 0 || v > 1 {
				return invalid("initial.probabilities", "condition %s: value %g out of [0,1]", name, v)
			}
			total += v
		}
		if math.Abs(total-1) > 1e-6 {
			return invalid("initial.probabilities", "condition %s: values sum to %g, not 1", name, total)
		}
	}
	return nil
}
