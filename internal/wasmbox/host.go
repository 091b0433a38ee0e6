package wasmbox

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// execContext holds the execution state for a single WASM invocation.
type execContext struct {
	input  []byte     // input is the encoded execInput
	output []byte     // output is whatever the module wrote back
	memory api.Memory // memory is the WASM linear memory
}

// buildHostModule creates the "env" module with host functions.
func (b *Box) buildHostModule(ctx context.Context, execCtx *execContext) (api.Module, error) {
	return b.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint32 {
			return hostInputLen(execCtx)
		}).
		Export("input_len").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr uint32) {
			hostReadInput(execCtx, ptr)
		}).
		Export("read_input").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr, len uint32) {
			hostWriteOutput(execCtx, ptr, len)
		}).
		Export("write_output").
		Instantiate(ctx)
}

// hostInputLen returns the length of the input buffer.
func hostInputLen(execCtx *execContext) uint32 {
	return uint32(len(execCtx.input))
}

// hostReadInput copies the input buffer into WASM memory at the given pointer.
func hostReadInput(execCtx *execContext, ptr uint32) {
	if execCtx.memory == nil || len(execCtx.input) == 0 {
		return
	}

	execCtx.memory.Write(ptr, execCtx.input)
}

// hostWriteOutput reads the output from WASM memory and stores it.
func hostWriteOutput(execCtx *execContext, ptr, length uint32) {
	if execCtx.memory == nil || length == 0 {
		return
	}

	data, ok := execCtx.memory.Read(ptr, length)
	if !ok {
		return
	}

	execCtx.output = make([]byte, length)
	copy(execCtx.output, data)
}
