package trap

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync/atomic"
)

// faultObserver, when set, sees every RuntimeError Run produces before it
// returns to the caller. Embedders chain their own crash reporting here;
// the error still propagates normally afterward.
var faultObserver atomic.Pointer[func(*RuntimeError)]

// SetFaultObserver installs fn process-wide, returning the previous
// observer so embedders can chain rather than replace. Pass nil to clear.
func SetFaultObserver(fn func(*RuntimeError)) (prev func(*RuntimeError)) {
	var old *func(*RuntimeError)
	if fn == nil {
		old = faultObserver.Swap(nil)
	} else {
		old = faultObserver.Swap(&fn)
	}
	if old == nil {
		return nil
	}
	return *old
}

func observeFault(err *RuntimeError) {
	if fn := faultObserver.Load(); fn != nil {
		(*fn)(err)
	}
}

// explicitTrap is the panic payload a backend raises for a condition it can
// detect directly (division by zero, unreachable, bad signature, ...)
// rather than relying on the host-fault recovery path below.
type explicitTrap struct {
	code Code
	msg  string
}

// Raise panics with an explicit trap code. Call from within a function
// executed under Run; the panic is caught there and turned into a
// RuntimeError.
func Raise(code Code, format string, args ...any) {
	panic(explicitTrap{code: code, msg: fmt.Sprintf(format, args...)})
}

// CallContext is the per-call state passed to Run. The WasmTrace of a
// RuntimeError is not built from it: Run takes the frames from the frames
// callback supplied by whoever detected the fault (the interpreter, for
// example, supplies its own logical call stack).
type CallContext struct {
	// ActiveCodeRange is the code range of the module currently executing,
	// used so a fault handler can tell a legitimate Wasm fault from a host
	// bug. In this pure-Go implementation the "per-thread slot" is
	// simply this struct, owned by the Store that confines itself to one
	// goroutine at a time.
	ActiveCodeStart, ActiveCodeEnd uintptr
}

// Run executes fn under a trap scope: explicit Raise calls and Go runtime
// faults from invalid unsafe-pointer access (only reachable via the native
// backend's WasmPtr machinery; the interpreter never dereferences raw
// pointers) are both converted to a *RuntimeError. Any other panic
// propagates: a fault outside registered guest code is a host bug and is
// rethrown.
//
// This is the call-time equivalent of installing a setjmp-style jump
// buffer: Go's defer/recover plays that role without needing a real jump
// buffer or signal handler, since debug.SetPanicOnFault already
// arranges for an invalid memory access within this goroutine to arrive
// here as a panic instead of crashing the process.
func Run(cc *CallContext, frames func() []FrameInfo, fn func()) (err *RuntimeError) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	capture := func() []FrameInfo {
		if frames == nil {
			return nil
		}
		return frames()
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case explicitTrap:
			err = NewFromSource(nil, capture(), v.code)
			err.message = v.msg
		case *RuntimeError:
			// A nested call (e.g. the interpreter backend's OpCall) already
			// classified its own trap; propagate it unchanged instead of
			// wrapping it again.
			err = v
			return
		case runtime.Error:
			err = NewFromSource(v, capture(), classifyRuntimeError(v))
		default:
			panic(r) // host bug, not a guest trap: rethrow.
		}
		observeFault(err)
	}()

	fn()
	return nil
}

// classifyRuntimeError maps a recovered Go runtime.Error to the closest
// trap code. Invalid memory access (nil/out-of-range unsafe
// pointer dereference) is the only fault class reachable from pure Go
// without a real SIGSEGV handler, so it always maps to HeapOutOfBounds;
// integer division faults surface as a runtimeError too (Go panics on
// divide-by-zero) and are classified accordingly by message sniffing,
// mirroring how the interpreter backend itself detects the same conditions
// before they ever reach a Go-level panic.
func classifyRuntimeError(err runtime.Error) Code {
	msg := err.Error()
	switch {
	case containsAny(msg, "invalid memory address", "nil pointer dereference", "index out of range"):
		return CodeHeapOutOfBounds
	case containsAny(msg, "integer divide by zero"):
		return CodeIntegerDivisionByZero
	case containsAny(msg, "stack overflow", "goroutine stack exceeds"):
		return CodeStackOverflow
	default:
		return CodeUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
