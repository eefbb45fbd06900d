package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/gridsearch/internal/metrics"
	"github.com/GoSim-25-26J-441/gridsearch/internal/search"
	"github.com/GoSim-25-26J-441/gridsearch/internal/subproblem"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/config"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
)

var (
	problemPath    string
	solveConfig    string
	solveTimeout   string
	solveWorkers   int
	outPath        string
	includeHistory bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run one search locally and print the result as JSON",
	RunE:  runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&problemPath, "problem", "", "Problem YAML path (required)")
	solveCmd.Flags().StringVar(&solveConfig, "config", "", "Solver config YAML path (defaults when empty)")
	solveCmd.Flags().StringVar(&solveTimeout, "timeout", "", "Override the configured timeout (e.g. 30s, unlimited)")
	solveCmd.Flags().IntVar(&solveWorkers, "workers", 0, "Override the configured worker count")
	solveCmd.Flags().StringVar(&outPath, "out", "", "Write the result to this file instead of stdout")
	solveCmd.Flags().BoolVar(&includeHistory, "history", false, "Include the bound history in the output")

	_ = solveCmd.MarkFlagRequired("problem")
	rootCmd.AddCommand(solveCmd)
}

// loadSolverConfig reads path, or returns the defaults when path is empty.
func loadSolverConfig(path string) (*config.SolverConfig, error) {
	if path == "" {
		return config.DefaultSolverConfig(), nil
	}
	return config.LoadSolverConfig(path)
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadSolverConfig(solveConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = solveTimeout
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = solveWorkers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	problem, err := config.LoadProblem(problemPath)
	if err != nil {
		return err
	}
	inst, err := problem.Compile(cfg.MinLogProb)
	if err != nil {
		return fmt.Errorf("failed to compile problem: %w", err)
	}
	table, err := subproblem.NewTableFromInstance(inst)
	if err != nil {
		return fmt.Errorf("failed to build subproblems: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting search",
		"problem", inst.Name,
		"sentences", len(inst.Candidates),
		"relaxation", cfg.Relaxation.Kind,
		"workers", cfg.Workers,
		"timeout", cfg.Timeout)
	res, err := search.Search(ctx, cfg, inst, table, metrics.NewCollector())
	if err != nil {
		return err
	}
	logger.Info("search finished",
		"termination", res.Termination,
		"nodes", res.Stats.NodesProcessed,
		"gap", res.Gap,
		"elapsed", res.Stats.Elapsed)

	out := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeResult(out, res, includeHistory)
}

func writeResult(w io.Writer, res *models.Result, history bool) error {
	safe := res.JSONSafe()
	if !history {
		safe.History = nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*models.Result
		Optimal bool `json:"optimal"`
	}{safe, res.Optimal()})
}
