package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "gridsearch",
	Short: "Branch-and-bound search for globally optimal structure assignments",
	Long: `gridsearch maximises the log-likelihood of a log-linear model jointly over
model parameters and one latent structure per sentence. Bounds come from
Dantzig-Wolfe or RLT relaxations over a box of log-probabilities.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout is reserved for results
		logger.SetDefault(logger.NewText(logLevel, os.Stderr))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}
