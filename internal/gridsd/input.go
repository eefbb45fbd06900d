package gridsd

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/GoSim-25-26J-441/gridsearch/internal/subproblem"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

// ErrInvalidInput wraps every problem found in a run payload.
var ErrInvalidInput = errors.New("invalid run input")

// RunInput is the payload a run is created from. ConfigYAML overrides the
// daemon's solver configuration field by field.
type RunInput struct {
	ProblemYAML    string `json:"problem_yaml"`
	ConfigYAML     string `json:"config_yaml,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
	CallbackSecret string `json:"callback_secret,omitempty"`
}

// compiled is everything a search needs, built from one input.
type compiled struct {
	cfg   *config.SolverConfig
	inst  *models.Instance
	table *subproblem.Table
}

func (in *RunInput) compile(base *config.SolverConfig) (*compiled, error) {
	if in == nil || in.ProblemYAML == "" {
		return nil, fmt.Errorf("%w: problem_yaml is required", ErrInvalidInput)
	}
	cfg := *base
	if in.ConfigYAML != "" {
		if err := yaml.Unmarshal([]byte(in.ConfigYAML), &cfg); err != nil {
			return nil, fmt.Errorf("%w: config_yaml: %v", ErrInvalidInput, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	problem, err := config.ParseProblemYAMLString(in.ProblemYAML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	inst, err := problem.Compile(cfg.MinLogProb)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	table, err := subproblem.NewTableFromInstance(inst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &compiled{cfg: &cfg, inst: inst, table: table}, nil
}
