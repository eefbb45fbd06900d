package main

import (
	"os"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
