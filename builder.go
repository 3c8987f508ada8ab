package wasmforge

import (
	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

// HostModuleBuilder declares a named set of host-defined imports, so a
// guest module can import and use them.
//
// Here's an example of an addition function exported as env.add:
//
//	r.NewHostModuleBuilder("env").
//		NewFunctionBuilder().
//		WithFunc(sig, func(caller wasm.Caller, args []api.Value) []api.Value {
//			return []api.Value{api.I32(args[0].I32() + args[1].I32())}
//		}).
//		Export("add").
//		Instantiate()
type HostModuleBuilder struct {
	r    *Runtime
	name string
}

// NewHostModuleBuilder starts declaring host functions, memories, tables
// and globals under the import module name.
func (r *Runtime) NewHostModuleBuilder(name string) *HostModuleBuilder {
	return &HostModuleBuilder{r: r, name: name}
}

// NewFunctionBuilder starts declaring one host function.
func (b *HostModuleBuilder) NewFunctionBuilder() *HostFunctionBuilder {
	return &HostFunctionBuilder{parent: b}
}

// ExportMemory declares a fresh host-owned memory importable as
// (module, name).
func (b *HostModuleBuilder) ExportMemory(name string, ty api.MemoryType) (*HostModuleBuilder, error) {
	m, err := wasm.NewMemory(b.r.store, ty, wasm.NewByteSliceMemory)
	if err != nil {
		return b, err
	}
	b.r.imports.Define(b.name, name, wasm.MemoryExtern(m))
	return b, nil
}

// ExportGlobal declares a host-owned global importable as (module, name).
func (b *HostModuleBuilder) ExportGlobal(name string, ty api.GlobalType, init api.Value) (*HostModuleBuilder, error) {
	g, err := wasm.NewGlobal(b.r.store, ty, init)
	if err != nil {
		return b, err
	}
	b.r.imports.Define(b.name, name, wasm.GlobalExtern(g))
	return b, nil
}

// ExportTable declares a host-owned table importable as (module, name).
func (b *HostModuleBuilder) ExportTable(name string, ty api.TableType) *HostModuleBuilder {
	t := wasm.NewTable(b.r.store, ty)
	b.r.imports.Define(b.name, name, wasm.TableExtern(t))
	return b
}

// Instantiate finalizes the host module. Present for symmetry with guest
// instantiation; all Export* calls take effect immediately, so this only
// reads naturally at the end of a builder chain.
func (b *HostModuleBuilder) Instantiate() *HostModuleBuilder { return b }

// HostFunctionBuilder declares one host function for a HostModuleBuilder.
type HostFunctionBuilder struct {
	parent *HostModuleBuilder
	sig    api.FuncSig
	fn     wasm.HostFunc
	enved  func(s *wasm.Store) wasm.Function
}

// WithFunc sets the function's signature and Go body. The body receives a
// wasm.Caller scoped to the importing instance, so it can reach that
// instance's memory and exports.
func (f *HostFunctionBuilder) WithFunc(sig api.FuncSig, fn wasm.HostFunc) *HostFunctionBuilder {
	f.sig = sig
	f.fn = fn
	f.enved = nil
	return f
}

// WithFuncAndEnv is WithFunc plus a typed FunctionEnv the body recovers
// through Caller.Env.
func WithFuncAndEnv[T any](f *HostFunctionBuilder, sigv api.FuncSig, env wasm.FunctionEnv[T], fn wasm.HostFunc) *HostFunctionBuilder {
	f.sig = sigv
	f.fn = nil
	f.enved = func(s *wasm.Store) wasm.Function {
		return wasm.NewHostFunctionWithEnv(s, sigv, env, fn)
	}
	return f
}

// Export registers the function under name and returns the module builder
// for chaining.
func (f *HostFunctionBuilder) Export(name string) *HostModuleBuilder {
	var fn wasm.Function
	if f.enved != nil {
		fn = f.enved(f.parent.r.store)
	} else {
		fn = wasm.NewHostFunction(f.parent.r.store, f.sig, f.fn)
	}
	f.parent.r.imports.Define(f.parent.name, name, wasm.FuncExtern(fn))
	return f.parent
}
