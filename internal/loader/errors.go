package loader

import "fmt"

// WasmError reports a structural problem in a binary module.
type WasmError struct {
	// Offset is the byte position in the input where decoding failed.
	Offset  uint64
	Message string
	// Unsupported names a proposal or construct this runtime does not
	// accept; empty for plain malformed input.
	Unsupported string
	// ImplLimitExceeded is set when the input is well-formed but exceeds an
	// implementation limit (section counts, nesting depth).
	ImplLimitExceeded bool
}

func (e *WasmError) Error() string {
	switch {
	case e.Unsupported != "":
		return "wasm: unsupported: " + e.Unsupported
	case e.ImplLimitExceeded:
		return "wasm: implementation limit exceeded: " + e.Message
	default:
		return fmt.Sprintf("wasm: invalid module at offset 0x%x: %s", e.Offset, e.Message)
	}
}

// CompileErrorKind classifies a CompileError.
type CompileErrorKind byte

const (
	CompileErrWasm CompileErrorKind = iota
	CompileErrCodegen
	CompileErrValidate
	CompileErrUnsupportedFeature
	CompileErrUnsupportedTarget
	CompileErrResource
	CompileErrMiddleware
)

// CompileError is the single error type surfaced by module compilation;
// Kind discriminates the failing stage.
type CompileError struct {
	Kind    CompileErrorKind
	Wasm    *WasmError
	Message string
}

func (e *CompileError) Error() string {
	switch e.Kind {
	case CompileErrWasm:
		return e.Wasm.Error()
	case CompileErrCodegen:
		return "compile: codegen: " + e.Message
	case CompileErrValidate:
		return "compile: validation: " + e.Message
	case CompileErrUnsupportedFeature:
		return "compile: unsupported feature: " + e.Message
	case CompileErrUnsupportedTarget:
		return "compile: unsupported target: " + e.Message
	case CompileErrResource:
		return "compile: resource: " + e.Message
	default:
		return "compile: middleware: " + e.Message
	}
}

func (e *CompileError) Unwrap() error {
	if e.Wasm != nil {
		return e.Wasm
	}
	return nil
}

func wasmErr(offset uint64, format string, args ...any) *CompileError {
	return &CompileError{Kind: CompileErrWasm, Wasm: &WasmError{Offset: offset, Message: fmt.Sprintf(format, args...)}}
}

func unsupportedErr(what string) *CompileError {
	return &CompileError{Kind: CompileErrWasm, Wasm: &WasmError{Unsupported: what}}
}

func validateErr(format string, args ...any) *CompileError {
	return &CompileError{Kind: CompileErrValidate, Message: fmt.Sprintf(format, args...)}
}
