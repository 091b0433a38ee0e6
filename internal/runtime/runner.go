// Package runtime drives one-shot executions inside a running sandbox
// through the container runtime's control-plane API.
package runtime

import "fmt"

// wrapperEntrypoint is the fixed command template head for every exec.
// The wrapper fetches the dataset and software, runs the computation and
// prints either a content address or an error code.
const wrapperEntrypoint = "./wrapper.sh"

// Failure is a classified runtime response: the control plane answered,
// but refused or failed the operation. Definitive; never retried.
// Transport errors (unreachable runtime, timeout) are returned as plain
// errors and are eligible for retry.
type Failure struct {
	Code    int    // Code is the classified status code
	Message string // Message is the fixed message for Code
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("runtime failure %d: %s", f.Code, f.Message)
}
