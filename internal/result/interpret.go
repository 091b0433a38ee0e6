package result

import (
	"strconv"
	"strings"
)

// Outcome is the classification of one raw sandbox output.
type Outcome struct {
	Address string // Address is the content address on success
	Code    int    // Code is the known error code on failure
	Message string // Message is the fixed message for Code
	Success bool   // Success is true when Address is valid
}

// strippedBytes are the framing control characters removed before parsing.
// The runtime's attached-output stream interleaves them with the payload.
const strippedBytes = "\x00\x01\x04"

// Sanitize removes stream framing bytes and surrounding whitespace.
func Sanitize(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedBytes, r) {
			return -1
		}
		return r
	}, raw)

	return strings.TrimSpace(cleaned)
}

// Interpret classifies a raw sandbox output.
// A sanitized value that parses to a known error code is a failure; a valid
// content address is a success; anything else is the malformed-output error.
// Interpreting an already-sanitized value yields the same classification.
func Interpret(raw string) Outcome {
	value := Sanitize(raw)

	if code, err := strconv.Atoi(value); err == nil && IsErrorCode(code) {
		return Outcome{Code: code, Message: ErrorMessage(code)}
	}

	// Addresses occasionally arrive with path separators attached; strip
	// them before validating.
	addr := strings.ReplaceAll(value, "/", "")

	if !IsContentAddress(addr) {
		return Outcome{Code: CodeMalformedOutput, Message: ErrorMessage(CodeMalformedOutput)}
	}

	return Outcome{Address: addr, Success: true}
}
