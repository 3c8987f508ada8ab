package trap

import (
	"fmt"
	"strings"
)

// RuntimeError is the structured error surfaced for any guest-fatal fault.
type RuntimeError struct {
	message   string
	TrapCode  Code
	WasmTrace []FrameInfo
	source    error
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.message)
	for _, f := range e.WasmTrace {
		b.WriteString("\n\tat ")
		if f.FunctionName != "" {
			b.WriteString(f.ModuleName + "." + f.FunctionName)
		} else {
			fmt.Fprintf(&b, "%s.$%d", f.ModuleName, f.FunctionIndex)
		}
		fmt.Fprintf(&b, " (offset 0x%x)", f.ModuleOffset)
	}
	return b.String()
}

// Unwrap exposes the original host error for errors.As/errors.Is, letting a
// host function's own error type be recovered from a failed call.
func (e *RuntimeError) Unwrap() error { return e.source }

// New builds a RuntimeError from a plain message with no trap code or
// trace, used for host-detected errors that are not guest traps (e.g. a
// cross-store handle).
func New(msg string) *RuntimeError {
	return &RuntimeError{message: msg}
}

// NewFromSource builds a RuntimeError from a captured trap code and Wasm
// backtrace, optionally wrapping a lower-level source error (e.g. the
// recovered Go runtime error for a genuine out-of-bounds access).
func NewFromSource(source error, trace []FrameInfo, code Code) *RuntimeError {
	msg := code.String()
	if source != nil {
		msg = fmt.Sprintf("%s: %s", code, source)
	}
	return &RuntimeError{message: msg, TrapCode: code, WasmTrace: trace, source: source}
}

// User wraps an arbitrary host error raised from a host function body,
// preserving it for Unwrap/errors.As while giving it a RuntimeError shape.
func User(err error) *RuntimeError {
	return &RuntimeError{message: err.Error(), TrapCode: CodeUser, source: err}
}
