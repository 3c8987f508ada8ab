//go:build js && wasm

package hostjs

import (
	"context"
	"syscall/js"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/backend"
	"github.com/wasmforge/wasmforge/internal/trap"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

func init() {
	backend.Register("hostjs", func() wasm.Engine { return &Engine{} })
}

// Engine forwards to globalThis.WebAssembly.
type Engine struct{}

func (e *Engine) Name() string { return "hostjs" }

func (e *Engine) SupportsRawPointers() bool  { return false }
func (e *Engine) SupportsSharedMemory() bool { return false }

func (e *Engine) NewModuleEngine(s *wasm.Store, a *artifact.Artifact, imports *wasm.ImportBacking) (wasm.ModuleEngine, error) {
	wa := js.Global().Get("WebAssembly")
	if wa.IsUndefined() {
		return nil, &wasm.LinkError{Resource: "host has no WebAssembly object"}
	}

	raw := a.RawBinary
	if len(raw) == 0 {
		return nil, &wasm.LinkError{Resource: "artifact carries no original binary for the host engine"}
	}
	buf := js.Global().Get("Uint8Array").New(len(raw))
	js.CopyBytesToJS(buf, raw)

	module := wa.Get("Module").New(buf)
	importObject := buildImportObject(s, a.Info, imports)
	instance := wa.Get("Instance").New(module, importObject)

	return &moduleEngine{
		store:   s,
		info:    a.Info,
		exports: instance.Get("exports"),
	}, nil
}

// buildImportObject wraps each resolved import function as a JS callback
// marshalling through api.Value.
func buildImportObject(s *wasm.Store, info *artifact.ModuleInfo, imports *wasm.ImportBacking) js.Value {
	obj := js.Global().Get("Object").New()
	fnIdx := 0
	for _, imp := range info.Imports {
		if imp.Type != api.ExternTypeFunc {
			continue
		}
		mod := obj.Get(imp.Module)
		if mod.IsUndefined() {
			mod = js.Global().Get("Object").New()
			obj.Set(imp.Module, mod)
		}
		f := imports.Funcs[fnIdx]
		sig := info.Signatures[imp.FuncSigIndex]
		mod.Set(imp.Field, js.FuncOf(func(_ js.Value, jsArgs []js.Value) any {
			args := make([]api.Value, len(sig.Params))
			for i, kind := range sig.Params {
				args[i] = jsToValue(jsArgs[i], kind)
			}
			results, rerr := f.Call(context.Background(), s.AsStoreMut(), nil, args)
			if rerr != nil {
				panic(js.Global().Get("Error").New(rerr.Error()))
			}
			if len(results) == 0 {
				return nil
			}
			return valueToJS(results[0])
		}))
		fnIdx++
	}
	return obj
}

type moduleEngine struct {
	store   *wasm.Store
	info    *artifact.ModuleInfo
	exports js.Value
}

func (m *moduleEngine) Close() error { return nil }

func (m *moduleEngine) Call(ctx context.Context, idx api.FunctionIndex, args []api.Value) ([]api.Value, *trap.RuntimeError) {
	name := ""
	for _, exp := range m.info.Exports {
		if exp.Type == api.ExternTypeFunc && exp.Index == uint32(idx)+uint32(m.info.NumImportedFunctions()) {
			name = exp.Name
			break
		}
	}
	if name == "" {
		return nil, trap.New("hostjs: function is not exported by the host instance")
	}
	fn := m.exports.Get(name)
	if fn.IsUndefined() {
		return nil, trap.New("hostjs: export vanished from the host instance")
	}

	jsArgs := make([]any, len(args))
	for i, a := range args {
		jsArgs[i] = valueToJS(a)
	}

	var results []api.Value
	rerr := trap.Run(nil, func() []trap.FrameInfo { return nil }, func() {
		sig := m.info.Signatures[m.info.FunctionSignatures[idx]]
		ret := fn.Invoke(jsArgs...)
		if len(sig.Results) == 1 {
			results = []api.Value{jsToValue(ret, sig.Results[0])}
		}
	})
	return results, rerr
}

func valueToJS(v api.Value) any {
	switch v.Kind {
	case api.KindI32:
		return v.I32()
	case api.KindI64:
		return js.Global().Get("BigInt").Invoke(v.I64())
	case api.KindF32:
		return float64(v.F32())
	case api.KindF64:
		return v.F64()
	default:
		return nil
	}
}

func jsToValue(v js.Value, kind api.ValueKind) api.Value {
	switch kind {
	case api.KindI32:
		return api.I32(int32(v.Int()))
	case api.KindI64:
		return api.I64(int64(js.Global().Get("Number").Invoke(v).Float()))
	case api.KindF32:
		return api.F32(float32(v.Float()))
	case api.KindF64:
		return api.F64(v.Float())
	default:
		return api.NullExternRef()
	}
}
