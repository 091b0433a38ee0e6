package main

import (
	"fmt"
	"os"

	"github.com/tasoskalogero/blackboxchain/internal/logger"
)

func main() {
	cfg := parseFlags()
	logger.Init(cfg.Verbose)

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run(cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	oracle, err := NewOracle(cfg)
	if err != nil {
		return fmt.Errorf("create oracle:\n%w", err)
	}

	printStartupInfo(cfg)

	return oracle.Run()
}

// printStartupInfo displays oracle configuration at startup.
func printStartupInfo(cfg *Config) {
	logger.Info("starting settlement oracle",
		"http", cfg.HTTPAddress,
		"ledger", cfg.LedgerURL,
		"runtime", cfg.RuntimeBackend,
		"data", cfg.DataPath,
		"poll", cfg.PollInterval,
	)
}
