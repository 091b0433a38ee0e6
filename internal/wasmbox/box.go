// Package wasmbox is an embedded WASM execution backend with the same
// contract as the container runtime client. It exists for local development
// and tests that need a real execution path without a container daemon.
package wasmbox

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/zeebo/blake3"

	"github.com/tasoskalogero/blackboxchain/internal/result"
	"github.com/tasoskalogero/blackboxchain/internal/runtime"
)

// execInput is the JSON payload handed to the module as its input buffer.
type execInput struct {
	Dataset  string `json:"dataset"`  // Dataset is the dataset artifact address
	Software string `json:"software"` // Software is the software artifact address
	PubKey   string `json:"pubKey"`   // PubKey is the requester's public key
}

// pendingExec holds a created-but-not-started exec.
type pendingExec struct {
	unit  string // unit is the target sandbox name
	input []byte // input is the encoded execInput
}

// Box manages compiled WASM sandboxes keyed by unit name.
// Modules are compiled once and kept hot-loaded for fast instantiation.
type Box struct {
	runtime wazero.Runtime                   // runtime is the wazero runtime instance
	modules map[string]wazero.CompiledModule // modules maps unit name to compiled module
	pending map[string]pendingExec           // pending maps exec handle to its created exec
	seq     uint64                           // seq numbers exec handles
	mu      sync.Mutex
}

// New creates a Box with an initialized wazero runtime.
func New() *Box {
	ctx := context.Background()

	return &Box{
		runtime: wazero.NewRuntime(ctx),
		modules: make(map[string]wazero.CompiledModule),
		pending: make(map[string]pendingExec),
	}
}

// Load compiles wasmBytes and registers it as the sandbox for unit.
// Returns the module's blake3 identity.
func (b *Box) Load(unit string, wasmBytes []byte) ([32]byte, error) {
	id := blake3.Sum256(wasmBytes)

	compiled, err := b.runtime.CompileModule(context.Background(), wasmBytes)
	if err != nil {
		return [32]byte{}, fmt.Errorf("compile module for %s: %w", unit, err)
	}

	b.mu.Lock()
	b.modules[unit] = compiled
	b.mu.Unlock()

	return id, nil
}

// CreateExec registers a one-shot exec against a loaded sandbox and
// returns its handle. An unknown unit is a classified failure, matching
// the container runtime's behavior.
func (b *Box) CreateExec(_ context.Context, unit, dataset, software, pubKey string) (string, error) {
	input, err := json.Marshal(execInput{Dataset: dataset, Software: software, PubKey: pubKey})
	if err != nil {
		return "", fmt.Errorf("encode exec input: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.modules[unit]; !ok {
		return "", &runtime.Failure{
			Code:    result.CodeUnitNotFound,
			Message: result.ErrorMessage(result.CodeUnitNotFound),
		}
	}

	b.seq++
	handle := "wasm-" + hexSeq(b.seq)
	b.pending[handle] = pendingExec{unit: unit, input: input}

	return handle, nil
}

// RunExec starts a previously created exec and returns its output.
// The handle is single-use.
func (b *Box) RunExec(ctx context.Context, handle string) (string, error) {
	b.mu.Lock()
	exec, ok := b.pending[handle]
	if ok {
		delete(b.pending, handle)
	}
	compiled := b.modules[exec.unit]
	b.mu.Unlock()

	if !ok || compiled == nil {
		return "", &runtime.Failure{
			Code:    result.CodeUnitNotFound,
			Message: result.ErrorMessage(result.CodeUnitNotFound),
		}
	}

	output, err := b.execute(ctx, compiled, exec.input)
	if err != nil {
		return "", &runtime.Failure{
			Code:    result.CodeRunExecFailed,
			Message: result.ErrorMessage(result.CodeRunExecFailed),
		}
	}

	return string(output), nil
}

// Alive reports whether a sandbox is loaded for the unit.
func (b *Box) Alive(_ context.Context, unit string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.modules[unit]

	return ok, nil
}

// execute instantiates the module and calls its execute function.
func (b *Box) execute(ctx context.Context, compiled wazero.CompiledModule, input []byte) ([]byte, error) {
	execCtx := &execContext{input: input}

	hostModule, err := b.buildHostModule(ctx, execCtx)
	if err != nil {
		return nil, fmt.Errorf("build host module: %w", err)
	}
	defer hostModule.Close(ctx)

	instance, err := b.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	defer instance.Close(ctx)

	execCtx.memory = instance.Memory()

	executeFn := instance.ExportedFunction("execute")
	if executeFn == nil {
		return nil, fmt.Errorf("execute function not exported")
	}

	if _, err := executeFn.Call(ctx); err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	return execCtx.output, nil
}

// Close releases all resources held by the box.
func (b *Box) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for unit, compiled := range b.modules {
		compiled.Close(context.Background())
		delete(b.modules, unit)
	}

	return b.runtime.Close(context.Background())
}

// hexSeq formats a handle sequence number.
func hexSeq(seq uint64) string {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(seq >> (8 * i))
	}

	return hex.EncodeToString(buf[:])
}
