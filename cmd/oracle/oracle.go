package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tasoskalogero/blackboxchain/internal/api"
	"github.com/tasoskalogero/blackboxchain/internal/ledger"
	"github.com/tasoskalogero/blackboxchain/internal/logger"
	"github.com/tasoskalogero/blackboxchain/internal/match"
	"github.com/tasoskalogero/blackboxchain/internal/runtime"
	"github.com/tasoskalogero/blackboxchain/internal/settle"
	"github.com/tasoskalogero/blackboxchain/internal/storage"
	"github.com/tasoskalogero/blackboxchain/internal/wasmbox"
	"github.com/tasoskalogero/blackboxchain/internal/watcher"
)

// runtimeBackend bundles the two capabilities a backend must provide.
type runtimeBackend interface {
	settle.Runner
	match.Prober
}

// Oracle is a running settlement oracle.
type Oracle struct {
	cfg        *Config
	store      *storage.Store
	journal    *settle.Journal
	ledger     *ledger.HTTPClient
	backend    runtimeBackend
	box        *wasmbox.Box // box is set only for the wasm backend
	controller *settle.Controller
	watcher    *watcher.Watcher
	api        *api.Server
}

// NewOracle creates and initializes an oracle.
func NewOracle(cfg *Config) (*Oracle, error) {
	o := &Oracle{cfg: cfg}

	if err := o.initStorage(); err != nil {
		o.Close()
		return nil, err
	}

	if err := o.initRuntime(); err != nil {
		o.Close()
		return nil, err
	}

	o.initSettlement()

	return o, nil
}

// initStorage initializes the Pebble store and the settlement journal.
func (o *Oracle) initStorage() error {
	if err := os.MkdirAll(o.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	store, err := storage.Open(o.cfg.DataPath + "/db")
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	o.store = store

	journal, err := settle.NewJournal(store)
	if err != nil {
		return fmt.Errorf("init journal:\n%w", err)
	}

	o.journal = journal

	return nil
}

// initRuntime selects and initializes the execution backend.
func (o *Oracle) initRuntime() error {
	if o.cfg.RuntimeBackend == backendDocker {
		o.backend = runtime.NewClient(o.cfg.RuntimeAddress, o.cfg.CallTimeout)
		return nil
	}

	box := wasmbox.New()
	if err := loadUnits(box, o.cfg.WasmDir); err != nil {
		box.Close()
		return err
	}

	o.box = box
	o.backend = box

	return nil
}

// loadUnits loads every .wasm file in dir as an execution unit named
// after the file.
func loadUnits(box *wasmbox.Box, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read wasm directory:\n%w", err)
	}

	loaded := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".wasm") {
			continue
		}

		wasmBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read unit %s:\n%w", name, err)
		}

		unit := strings.TrimSuffix(name, ".wasm")

		id, err := box.Load(unit, wasmBytes)
		if err != nil {
			return fmt.Errorf("load unit %s:\n%w", name, err)
		}

		logger.Info("execution unit loaded", "unit", unit, "id", fmt.Sprintf("%x", id[:8]))
		loaded++
	}

	if loaded == 0 {
		return fmt.Errorf("no .wasm units found in %s", dir)
	}

	return nil
}

// initSettlement wires the ledger client, matcher, controller and watcher.
func (o *Oracle) initSettlement() {
	o.ledger = ledger.NewHTTPClient(o.cfg.LedgerURL, o.cfg.CallTimeout, o.cfg.LedgerRetries, o.cfg.RetryDelay)

	matcher := match.New(o.ledger, o.backend)

	o.controller = settle.NewController(o.ledger, matcher, o.backend, o.journal, settle.Config{
		RuntimeRetries: o.cfg.RuntimeRetries,
		RetryDelay:     o.cfg.RetryDelay,
		UserPubKey:     o.cfg.UserPubKey,
	})

	o.watcher = watcher.New(o.ledger, o.controller, o.journal, o.cfg.PollInterval)
}

// Run starts the watcher and the HTTP API, then blocks until shutdown.
func (o *Oracle) Run() error {
	o.watcher.Start()

	o.api = api.New(o.cfg.HTTPAddress, o.backend, o.controller, o.ledger, o.journal, o.cfg.RuntimeBackend)
	if err := o.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return o.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM, then closes everything.
func (o *Oracle) waitForShutdown() error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")

	return o.Close()
}

// Close stops the components in dependency order: no new events, no new
// requests, then release the runtime and the store.
func (o *Oracle) Close() error {
	if o.watcher != nil {
		o.watcher.Stop()
	}

	if o.api != nil {
		o.api.Stop()
	}

	if o.box != nil {
		o.box.Close()
	}

	if o.store != nil {
		o.store.Close()
	}

	return nil
}
