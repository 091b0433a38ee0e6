package wasmbox

import (
	"context"
	"errors"
	"testing"

	"github.com/tasoskalogero/blackboxchain/internal/result"
	"github.com/tasoskalogero/blackboxchain/internal/runtime"
)

// emptyModule exports an execute function that does nothing.
//
//	(module (func (export "execute")))
var emptyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0b, 0x01, 0x07, 'e', 'x', 'e', 'c', 'u', 't', 'e', 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

// errorCodeModule writes "3" through env.write_output.
//
//	(module
//	  (import "env" "write_output" (func (param i32 i32)))
//	  (memory 1)
//	  (data (i32.const 0) "3")
//	  (func (export "execute") i32.const 0 i32.const 1 call 0))
var errorCodeModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x09, 0x02, 0x60, 0x02, 0x7f, 0x7f, 0x00, 0x60, 0x00, 0x00,
	0x02, 0x14, 0x01, 0x03, 'e', 'n', 'v',
	0x0c, 'w', 'r', 'i', 't', 'e', '_', 'o', 'u', 't', 'p', 'u', 't',
	0x00, 0x00,
	0x03, 0x02, 0x01, 0x01,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0b, 0x01, 0x07, 'e', 'x', 'e', 'c', 'u', 't', 'e', 0x00, 0x01,
	0x0a, 0x0a, 0x01, 0x08, 0x00, 0x41, 0x00, 0x41, 0x01, 0x10, 0x00, 0x0b,
	0x0b, 0x07, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x01, '3',
}

func TestCreateExecUnknownUnit(t *testing.T) {
	box := New()
	defer box.Close()

	_, err := box.CreateExec(context.Background(), "ghost", "d", "s", "k")

	var failure *runtime.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected Failure, got %v", err)
	}

	if failure.Code != result.CodeUnitNotFound {
		t.Errorf("expected code %d, got %d", result.CodeUnitNotFound, failure.Code)
	}
}

func TestRunExecUnknownHandle(t *testing.T) {
	box := New()
	defer box.Close()

	_, err := box.RunExec(context.Background(), "wasm-deadbeef")

	var failure *runtime.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected Failure, got %v", err)
	}
}

func TestAlive(t *testing.T) {
	box := New()
	defer box.Close()

	alive, err := box.Alive(context.Background(), "unit-1")
	if err != nil {
		t.Fatalf("alive: %v", err)
	}
	if alive {
		t.Error("expected not alive before load")
	}

	if _, err := box.Load("unit-1", emptyModule); err != nil {
		t.Fatalf("load: %v", err)
	}

	alive, err = box.Alive(context.Background(), "unit-1")
	if err != nil {
		t.Fatalf("alive: %v", err)
	}
	if !alive {
		t.Error("expected alive after load")
	}
}

func TestExecuteEmptyModule(t *testing.T) {
	box := New()
	defer box.Close()

	if _, err := box.Load("unit-1", emptyModule); err != nil {
		t.Fatalf("load: %v", err)
	}

	handle, err := box.CreateExec(context.Background(), "unit-1", "QmData", "QmSoft", "key")
	if err != nil {
		t.Fatalf("create exec: %v", err)
	}

	output, err := box.RunExec(context.Background(), handle)
	if err != nil {
		t.Fatalf("run exec: %v", err)
	}

	if output != "" {
		t.Errorf("expected empty output, got %q", output)
	}
}

func TestExecuteErrorCodeModule(t *testing.T) {
	box := New()
	defer box.Close()

	if _, err := box.Load("unit-1", errorCodeModule); err != nil {
		t.Fatalf("load: %v", err)
	}

	handle, err := box.CreateExec(context.Background(), "unit-1", "QmData", "QmSoft", "key")
	if err != nil {
		t.Fatalf("create exec: %v", err)
	}

	output, err := box.RunExec(context.Background(), handle)
	if err != nil {
		t.Fatalf("run exec: %v", err)
	}

	out := result.Interpret(output)
	if out.Success {
		t.Fatal("expected known-error classification")
	}

	if out.Code != result.CodeComputationError {
		t.Errorf("expected code %d, got %d", result.CodeComputationError, out.Code)
	}
}

func TestHandleSingleUse(t *testing.T) {
	box := New()
	defer box.Close()

	if _, err := box.Load("unit-1", emptyModule); err != nil {
		t.Fatalf("load: %v", err)
	}

	handle, err := box.CreateExec(context.Background(), "unit-1", "d", "s", "k")
	if err != nil {
		t.Fatalf("create exec: %v", err)
	}

	if _, err := box.RunExec(context.Background(), handle); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if _, err := box.RunExec(context.Background(), handle); err == nil {
		t.Error("expected failure on reused handle")
	}
}
