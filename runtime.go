// Package wasmforge is an embeddable multi-backend WebAssembly runtime:
// it compiles or loads modules, instantiates them against host-supplied
// imports, executes exported functions, and mediates every host/guest
// interaction (linear memory, tables, globals, traps, host callbacks,
// async suspension).
//
// The typical flow:
//
//	r, _ := wasmforge.NewRuntime(ctx)
//	defer r.Close(ctx)
//	compiled, _ := r.CompileModule(ctx, wasmBytes)
//	instance, _ := r.InstantiateModule(ctx, compiled, wasmforge.NewModuleConfig())
//	results, _ := instance.ExportedFunction("add").Call(ctx, api.I32(1), api.I32(2))
package wasmforge

import (
	"context"
	"fmt"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/backend"
	"github.com/wasmforge/wasmforge/internal/engine/interpreter"
	"github.com/wasmforge/wasmforge/internal/loader"
	"github.com/wasmforge/wasmforge/internal/modcache"
	"github.com/wasmforge/wasmforge/internal/obs"
	"github.com/wasmforge/wasmforge/internal/sig"
	"github.com/wasmforge/wasmforge/internal/trap"
	"github.com/wasmforge/wasmforge/internal/wasm"

	// Linked-in backends register themselves; the hostjs backend joins this
	// list only on js/wasm builds via its own build tags.
	_ "github.com/wasmforge/wasmforge/internal/engine/native"
)

var log = obs.For("runtime")

// Runtime is the top-level handle: one backend engine, one store, one
// accumulated set of host-module imports. A Runtime is confined to one
// goroutine at a time, like the store it owns.
type Runtime struct {
	config   *RuntimeConfig
	engine   wasm.Engine
	store    *wasm.Store
	compiler loader.Compiler
	cache    modcache.Cache
	group    modcache.CompileGroup
	imports  *wasm.Imports
}

// NewRuntime constructs a Runtime with the default configuration.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig constructs a Runtime from config. An unknown or
// not-compiled-in backend name is a configuration error, not a panic.
func NewRuntimeWithConfig(_ context.Context, config *RuntimeConfig) (*Runtime, error) {
	engine, err := backend.New(config.backendName)
	if err != nil {
		return nil, err
	}
	compiler := config.compiler
	if compiler == nil {
		compiler = interpreter.Compiler{}
	}
	if config.faultObserver != nil {
		trap.SetFaultObserver(config.faultObserver)
	}
	r := &Runtime{
		config:   config,
		engine:   engine,
		store:    wasm.NewStore(engine, config.features),
		compiler: compiler,
		cache:    config.cache,
		imports:  wasm.NewImports(),
	}
	log.WithField("backend", engine.Name()).WithField("store_id", r.store.ID()).Debug("runtime created")
	return r, nil
}

// Store exposes the underlying store for advanced embedders building
// externs directly against the object model.
func (r *Runtime) Store() *wasm.Store { return r.store }

// Imports exposes the runtime's accumulated import set; HostModuleBuilder
// is the usual way to populate it.
func (r *Runtime) Imports() *wasm.Imports { return r.imports }

// Close tears down every instance this runtime created, in reverse
// instantiation order, and runs host-env finalizers.
func (r *Runtime) Close(_ context.Context) error {
	return r.store.CloseWithExitCode(0)
}

// CompiledModule is an immutable compiled module, shareable across
// runtimes whose engines have the same deterministic id.
type CompiledModule struct {
	artifact *artifact.Artifact
}

// Name returns the module's declared name, if any.
func (m *CompiledModule) Name() string { return m.artifact.Info.Name }

// Serialize renders the module into the self-describing artifact format
// accepted by LoadSerializedModule.
func (m *CompiledModule) Serialize() ([]byte, error) {
	return artifact.Serialize(m.artifact)
}

// CompileModule validates and compiles bin through the configured compiler,
// consulting the cache first when one is attached. Concurrent compilations
// of identical bytes collapse onto one execution.
func (r *Runtime) CompileModule(ctx context.Context, bin []byte) (*CompiledModule, error) {
	engineID := DeterministicID(r.engine.Name())
	key := modcache.KeyFor(bin, engineID, ArtifactVersion)

	v, err := r.group.Do(key, func() (any, error) {
		if r.cache != nil {
			if data, ok, err := r.cache.Load(ctx, key); err == nil && ok {
				if art, derr := r.reassemble(data); derr == nil {
					log.WithField("key", key.String()).Debug("artifact cache hit")
					return art, nil
				}
				// A structurally valid file that no longer deserializes is
				// stale (or from a buggy writer); drop it and recompile.
				if fc, ok := r.cache.(interface{ Remove(modcache.Key) error }); ok {
					_ = fc.Remove(key)
				}
			}
		}
		art, err := loader.Load(r.engine.Name(), r.compiler, bin, r.config.features)
		if err != nil {
			return nil, err
		}
		r.registerSignatures(art.Info)
		if r.cache != nil {
			if data, serr := artifact.Serialize(art); serr == nil {
				if err := r.cache.Save(ctx, key, data); err != nil {
					log.WithField("error", err).Warn("saving compiled artifact to cache failed")
				}
			}
		}
		return art, nil
	})
	if err != nil {
		return nil, err
	}
	return &CompiledModule{artifact: v.(*artifact.Artifact)}, nil
}

// LoadSerializedModule reassembles a previously serialized module without
// recompiling, rejecting artifacts from another backend, format version or
// host target.
func (r *Runtime) LoadSerializedModule(_ context.Context, data []byte) (*CompiledModule, error) {
	art, err := r.reassemble(data)
	if err != nil {
		return nil, err
	}
	return &CompiledModule{artifact: art}, nil
}

// reassemble rebuilds a full Artifact from its serialized envelope: the
// executable payload comes from the envelope, the structural metadata from
// re-decoding the embedded binary.
func (r *Runtime) reassemble(data []byte) (*artifact.Artifact, error) {
	env, err := artifact.Deserialize(data)
	if err != nil {
		return nil, err
	}
	if env.Backend != r.engine.Name() {
		return nil, &artifact.DeserializeError{
			Reason:       fmt.Sprintf("artifact built by backend %q, engine is %q", env.Backend, r.engine.Name()),
			Incompatible: true,
		}
	}
	info, _, err := loader.DecodeModule(env.RawBinary, r.config.features)
	if err != nil {
		return nil, &artifact.DeserializeError{Reason: "embedded module binary no longer decodes: " + err.Error()}
	}
	callTramps, err := r.compiler.CompileCallTrampolines(info.Signatures)
	if err != nil {
		return nil, err
	}
	dynTramps, err := r.compiler.CompileDynamicTrampolines(info)
	if err != nil {
		return nil, err
	}
	r.registerSignatures(info)
	return &artifact.Artifact{
		Info:               info,
		FunctionBodies:     env.FunctionBodies,
		CallTrampolines:    callTramps,
		DynamicTrampolines: dynTramps,
		CustomSections:     env.CustomSections,
		Backend:            env.Backend,
		RawBinary:          env.RawBinary,
	}, nil
}

// registerSignatures interns every signature of a module, so indirect-call
// type checks compare interned ids rather than structures.
func (r *Runtime) registerSignatures(info *artifact.ModuleInfo) {
	for _, s := range info.Signatures {
		sig.Default.Register(s)
	}
}

// ModuleConfig configures one instantiation. Immutable, like RuntimeConfig.
type ModuleConfig struct {
	name string
}

// NewModuleConfig returns the default instantiation configuration.
func NewModuleConfig() *ModuleConfig { return &ModuleConfig{} }

// WithName overrides the instance name used in logs and traces.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	ret := *c
	ret.name = name
	return &ret
}

// InstantiateModule links compiled against the runtime's accumulated
// imports, allocates its memories, tables and globals, runs its start
// function, and returns the live instance.
func (r *Runtime) InstantiateModule(ctx context.Context, compiled *CompiledModule, config *ModuleConfig) (*Instance, error) {
	art := compiled.artifact
	if config != nil && config.name != "" && art.Info.Name != config.name {
		renamed := *art.Info
		renamed.Name = config.name
		art = &artifact.Artifact{
			Info:               &renamed,
			FunctionBodies:     art.FunctionBodies,
			CallTrampolines:    art.CallTrampolines,
			DynamicTrampolines: art.DynamicTrampolines,
			CustomSections:     art.CustomSections,
			Backend:            art.Backend,
			RawBinary:          art.RawBinary,
		}
	}
	inst, err := wasm.Instantiate(r.store, art, r.imports)
	if err != nil {
		return nil, err
	}
	return &Instance{r: r, inst: inst}, nil
}

// InstantiateBinary is CompileModule followed by InstantiateModule, for
// embedders that have no reason to hold the compiled form.
func (r *Runtime) InstantiateBinary(ctx context.Context, bin []byte) (*Instance, error) {
	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return nil, err
	}
	return r.InstantiateModule(ctx, compiled, NewModuleConfig())
}

// Instance is a live module instance bound to its Runtime's store.
type Instance struct {
	r    *Runtime
	inst *wasm.Instance
}

// Close releases the instance's engine resources.
func (i *Instance) Close(_ context.Context) error { return i.inst.Close() }

// ExportNames lists the instance's exports in declaration order.
func (i *Instance) ExportNames() []string { return i.inst.Exports().Names() }

// ExportedFunction returns the named function export, or nil if absent or
// of another extern kind.
func (i *Instance) ExportedFunction(name string) *Function {
	e, err := i.inst.Exports().Get(name, api.ExternTypeFunc)
	if err != nil {
		return nil
	}
	return &Function{r: i.r, inst: i.inst, fn: e.Func}
}

// ExportedMemory returns the named memory export, or nil.
func (i *Instance) ExportedMemory(name string) *Memory {
	e, err := i.inst.Exports().Get(name, api.ExternTypeMemory)
	if err != nil {
		return nil
	}
	return &Memory{r: i.r, mem: e.Memory}
}

// ExportedGlobal returns the named global export, if present.
func (i *Instance) ExportedGlobal(name string) (wasm.Global, bool) {
	e, err := i.inst.Exports().Get(name, api.ExternTypeGlobal)
	if err != nil {
		return wasm.Global{}, false
	}
	return e.Global, true
}

// ExportedTable returns the named table export, if present.
func (i *Instance) ExportedTable(name string) (wasm.Table, bool) {
	e, err := i.inst.Exports().Get(name, api.ExternTypeTable)
	if err != nil {
		return wasm.Table{}, false
	}
	return e.Table, true
}
