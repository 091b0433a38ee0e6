// Package result classifies raw sandbox output into settlement outcomes.
package result

// Error codes a computation or the runtime control plane can produce.
// New codes only need an entry here; control flow never switches on them.
const (
	CodeCreateExecFailed = 1
	CodeRunExecFailed    = 2
	CodeComputationError = 3
	CodeDatasetDecrypt   = 4
	CodeResultPublish    = 5
	CodeMalformedOutput  = 100
	CodeDatasetNotFound  = 300
	CodeSoftwareNotFound = 301
	CodeUnitNotFound     = 404
	CodeUnitNotRunning   = 409
	CodeRuntimeInternal  = 500
)

// errorMessages maps known error codes to their fixed messages.
var errorMessages = map[int]string{
	CodeCreateExecFailed: "Failed to create exec command.",
	CodeRunExecFailed:    "Failed to run exec command.",
	CodeComputationError: "Computation exited with an error.",
	CodeDatasetDecrypt:   "Dataset could not be decrypted inside the container.",
	CodeResultPublish:    "Result could not be published to the content store.",
	CodeMalformedOutput:  "Computation produced malformed output.",
	CodeDatasetNotFound:  "Dataset not found in the registry.",
	CodeSoftwareNotFound: "Software not found in the registry.",
	CodeUnitNotFound:     "Container or execution unit not found.",
	CodeUnitNotRunning:   "Container is not running.",
	CodeRuntimeInternal:  "Container runtime internal error.",
}

// IsErrorCode reports whether code is a known error code.
func IsErrorCode(code int) bool {
	_, ok := errorMessages[code]
	return ok
}

// ErrorMessage returns the fixed message for a known error code.
// Unknown codes fall back to the malformed-output message.
func ErrorMessage(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return errorMessages[CodeMalformedOutput]
}
