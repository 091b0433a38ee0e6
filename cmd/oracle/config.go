package main

import (
	"flag"
	"fmt"
	"time"
)

// Runtime backend names accepted by -runtime.
const (
	backendDocker = "docker"
	backendWasm   = "wasm"
)

// Config holds the oracle configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// LedgerURL is the base URL of the ledger gateway.
	LedgerURL string

	// RuntimeBackend selects the execution backend: docker or wasm.
	RuntimeBackend string

	// RuntimeAddress is the container runtime address. A path selects a
	// unix socket.
	RuntimeAddress string

	// WasmDir is the directory of .wasm execution units for the wasm backend.
	WasmDir string

	// PollInterval is the delay between ledger event polls.
	PollInterval time.Duration

	// CallTimeout bounds each ledger and runtime call.
	CallTimeout time.Duration

	// RuntimeRetries bounds transport retries against the runtime.
	RuntimeRetries int

	// LedgerRetries bounds retries of ledger writes.
	LedgerRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// UserPubKey is passed to executions for result encryption.
	UserPubKey string

	// Verbose enables debug logging.
	Verbose bool
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&cfg.LedgerURL, "ledger", "http://127.0.0.1:8545", "Ledger gateway base URL")
	flag.StringVar(&cfg.RuntimeBackend, "runtime", backendDocker, "Execution backend (docker or wasm)")
	flag.StringVar(&cfg.RuntimeAddress, "runtime-addr", "/var/run/docker.sock", "Container runtime address or socket path")
	flag.StringVar(&cfg.WasmDir, "wasm-dir", "./units", "Directory of .wasm execution units")
	flag.DurationVar(&cfg.PollInterval, "poll", 5*time.Second, "Ledger event poll interval")
	flag.DurationVar(&cfg.CallTimeout, "timeout", 30*time.Second, "Per-call timeout for ledger and runtime requests")
	flag.IntVar(&cfg.RuntimeRetries, "runtime-retries", 3, "Transport retries against the runtime")
	flag.IntVar(&cfg.LedgerRetries, "ledger-retries", 3, "Retries of ledger writes")
	flag.DurationVar(&cfg.RetryDelay, "retry-delay", time.Second, "Initial retry delay")
	flag.StringVar(&cfg.UserPubKey, "user-key", "", "Public key handed to executions for result encryption")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable debug logging")
	flag.Parse()

	return cfg
}

// validate rejects configurations that cannot start.
func (cfg *Config) validate() error {
	if cfg.RuntimeBackend != backendDocker && cfg.RuntimeBackend != backendWasm {
		return fmt.Errorf("unknown runtime backend %q", cfg.RuntimeBackend)
	}

	if cfg.LedgerURL == "" {
		return fmt.Errorf("ledger URL is required")
	}

	return nil
}
