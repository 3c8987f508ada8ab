package interpreter

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/backend"
	"github.com/wasmforge/wasmforge/internal/trap"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

func init() {
	backend.Register("interpreter", func() wasm.Engine { return &Engine{} })
}

// Engine is the reference backend: portable everywhere Go runs, with no
// code memory or platform-specific unwind support required. It evaluates
// this module's own minimal opcode stream with a stack machine; the other
// backends reuse it wherever instruction semantics are needed.
type Engine struct{}

func (e *Engine) Name() string { return "interpreter" }

func (e *Engine) SupportsRawPointers() bool  { return true }
func (e *Engine) SupportsSharedMemory() bool { return true }

func (e *Engine) NewModuleEngine(s *wasm.Store, a *artifact.Artifact, imports *wasm.ImportBacking) (wasm.ModuleEngine, error) {
	return &moduleEngine{store: s, artifact: a, imports: imports}, nil
}

// moduleEngine evaluates each local function's FunctionBody.Code against an
// operand stack on every call. It is an interpreter in the literal sense:
// there is no compilation step, matching the backend's portability goal at
// the cost of per-call dispatch overhead.
type moduleEngine struct {
	store    *wasm.Store
	artifact *artifact.Artifact
	imports  *wasm.ImportBacking
	inst     *wasm.Instance
	vmctx    *wasm.VMContext
}

func (m *moduleEngine) BindInstance(inst *wasm.Instance) {
	m.inst = inst
	m.vmctx = wasm.NewVMContext(m.store.AsStoreRef(), inst)
}

func (m *moduleEngine) Close() error { return nil }

func (m *moduleEngine) Call(ctx context.Context, idx api.FunctionIndex, args []api.Value) ([]api.Value, *trap.RuntimeError) {
	if int(idx) >= len(m.artifact.FunctionBodies) {
		return nil, trap.New("interpreter: function index out of range")
	}
	body := m.artifact.FunctionBodies[idx]
	sigIdx := m.artifact.Info.FunctionSignatures[idx]
	sig := m.artifact.Info.Signatures[sigIdx]

	var results []api.Value
	rerr := trap.Run(nil, nil, func() {
		results = m.eval(ctx, body, sig, args)
	})
	if rerr != nil {
		// Innermost frame first: nested OpCall traps propagate up through
		// each caller's Call, which appends its own frame here in turn.
		offset := uint32(0)
		if len(body.SourceLocations) > 0 {
			offset = body.SourceLocations[0].WasmOffset
		}
		rerr.WasmTrace = append(rerr.WasmTrace, trap.FrameInfo{
			ModuleName:    m.artifact.Info.Name,
			FunctionIndex: uint32(idx),
			ModuleOffset:  offset,
		})
	}
	return results, rerr
}

func zeroValue(kind api.ValueKind) api.Value {
	switch kind {
	case api.KindI64:
		return api.I64(0)
	case api.KindF32:
		return api.F32(0)
	case api.KindF64:
		return api.F64(0)
	case api.KindFuncRef:
		return api.NullFuncRef()
	case api.KindExternRef:
		return api.NullExternRef()
	default:
		return api.I32(0)
	}
}

// eval runs one function body's instruction stream against a stack machine.
// Malformed code, out-of-range call targets, or OpUnreachable all surface
// as a classified trap via trap.Raise/recover rather than a Go panic
// escaping to the caller; none of those are reachable from well-formed
// input produced by internal/loader.
func (m *moduleEngine) eval(ctx context.Context, body artifact.FunctionBody, sig api.FuncSig, args []api.Value) []api.Value {
	var stack []api.Value
	push := func(v api.Value) { stack = append(stack, v) }
	pop := func() api.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	locals := make([]api.Value, 0, len(args)+len(body.Locals))
	locals = append(locals, args...)
	for _, kind := range body.Locals {
		locals = append(locals, zeroValue(kind))
	}

	code := body.Code
	pos := 0
	for pos < len(code) {
		op := Op(code[pos])
		pos++
		switch op {
		case OpI32Const:
			push(api.I32(int32(binary.LittleEndian.Uint32(code[pos:]))))
			pos += 4
		case OpI64Const:
			push(api.I64(int64(binary.LittleEndian.Uint64(code[pos:]))))
			pos += 8
		case OpF32Const:
			push(api.F32(math.Float32frombits(binary.LittleEndian.Uint32(code[pos:]))))
			pos += 4
		case OpF64Const:
			push(api.F64(math.Float64frombits(binary.LittleEndian.Uint64(code[pos:]))))
			pos += 8
		case OpLocalGet:
			n := binary.LittleEndian.Uint32(code[pos:])
			pos += 4
			push(locals[n])
		case OpLocalSet:
			n := binary.LittleEndian.Uint32(code[pos:])
			pos += 4
			locals[n] = pop()
		case OpCall:
			target := api.FunctionIndex(binary.LittleEndian.Uint32(code[pos:]))
			pos += 4
			callArgs := m.popArgsForCall(target, &stack)
			for _, r := range m.callByIndex(ctx, target, callArgs) {
				push(r)
			}
		case OpI32Add:
			b, a := pop(), pop()
			push(api.I32(a.I32() + b.I32()))
		case OpI32Sub:
			b, a := pop(), pop()
			push(api.I32(a.I32() - b.I32()))
		case OpI32Mul:
			b, a := pop(), pop()
			push(api.I32(a.I32() * b.I32()))
		case OpI64Add:
			b, a := pop(), pop()
			push(api.I64(a.I64() + b.I64()))
		case OpI64Sub:
			b, a := pop(), pop()
			push(api.I64(a.I64() - b.I64()))
		case OpDrop:
			pop()
		case OpUnreachable:
			trap.Raise(trap.CodeUnreachableCodeReached, "unreachable code reached")
		case OpEnd:
			n := len(sig.Results)
			return stack[len(stack)-n:]
		default:
			trap.Raise(trap.CodeBadSignature, "interpreter: unknown opcode %d", op)
		}
	}
	return stack
}

// popArgsForCall pops the callee's declared parameter count off the operand
// stack in call order.
func (m *moduleEngine) popArgsForCall(target api.FunctionIndex, stack *[]api.Value) []api.Value {
	sig := m.sigOf(target)
	n := len(sig.Params)
	s := *stack
	args := make([]api.Value, n)
	copy(args, s[len(s)-n:])
	*stack = s[:len(s)-n]
	return args
}

func (m *moduleEngine) sigOf(target api.FunctionIndex) api.FuncSig {
	nImported := m.artifact.Info.NumImportedFunctions()
	if int(target) < nImported {
		f, err := m.imports.Funcs[target].Sig(m.store.AsStoreRef())
		if err == nil {
			return f
		}
		return api.FuncSig{}
	}
	local := int(target) - nImported
	return m.artifact.Info.Signatures[m.artifact.Info.FunctionSignatures[local]]
}

func (m *moduleEngine) callByIndex(ctx context.Context, target api.FunctionIndex, args []api.Value) []api.Value {
	if m.vmctx == nil || m.vmctx.Instance == nil {
		trap.Raise(trap.CodeUnknown, "interpreter: call before instance binding")
	}
	f, err := m.vmctx.Instance.ExportedFunctionByIndex(target)
	if err != nil {
		trap.Raise(trap.CodeIndirectCallToNull, "interpreter: call target %d not found", target)
	}
	results, rerr := f.Call(ctx, m.store.AsStoreMut(), m.inst, args)
	if rerr != nil {
		panic(rerr)
	}
	return results
}
