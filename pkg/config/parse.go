package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseSolverConfigYAML parses a SolverConfig from YAML bytes and validates it.
// Fields absent from the payload keep their DefaultSolverConfig values.
func ParseSolverConfigYAML(data []byte) (*SolverConfig, error) {
	cfg := DefaultSolverConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if err := validateSolverConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ParseSolverConfigYAMLString parses a SolverConfig from a YAML string and validates it.
func ParseSolverConfigYAMLString(yamlText string) (*SolverConfig, error) {
	return ParseSolverConfigYAML([]byte(yamlText))
}

// ParseProblemYAML parses a Problem from YAML bytes and validates it.
// This is used for APIs where the problem is provided as payload (not via filesystem).
func ParseProblemYAML(data []byte) (*Problem, error) {
	var problem Problem
	if err := yaml.Unmarshal(data, &problem); err != nil {
		return nil, fmt.Errorf("failed to parse problem yaml: %w", err)
	}

	if err := validateProblem(&problem); err != nil {
		return nil, fmt.Errorf("invalid problem: %w", err)
	}

	return &problem, nil
}

// ParseProblemYAMLString parses a Problem from a YAML string and validates it.
func ParseProblemYAMLString(yamlText string) (*Problem, error) {
	return ParseProblemYAML([]byte(yamlText))
}

// Validate re-runs validation, for configurations built in code.
func (c *SolverConfig) Validate() error {
	return validateSolverConfig(c)
}
