// Package native is the ahead-of-time backend: it consumes a Compiler's
// output, places the compiled bodies into executable code memory with
// relocations applied and unwind info registered, and publishes each
// module's address range in the global frame-info registry so a fault
// inside it symbolicates to a guest-level backtrace.
//
// Instruction semantics are delegated to the execution engine the Compiler
// pairs with; this package owns placement, permissions, unwind and
// symbolication, not instruction selection.
package native

import (
	"context"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/backend"
	"github.com/wasmforge/wasmforge/internal/codemem"
	"github.com/wasmforge/wasmforge/internal/engine/interpreter"
	"github.com/wasmforge/wasmforge/internal/obs"
	"github.com/wasmforge/wasmforge/internal/trap"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

var log = obs.For("native")

func init() {
	backend.Register("native", func() wasm.Engine { return New() })
}

// Engine implements wasm.Engine over code-memory-resident artifacts.
type Engine struct {
	exec wasm.Engine
}

// New constructs the native engine with the default execution core.
func New() *Engine {
	return &Engine{exec: &interpreter.Engine{}}
}

func (e *Engine) Name() string { return "native" }

func (e *Engine) SupportsRawPointers() bool  { return true }
func (e *Engine) SupportsSharedMemory() bool { return true }

func (e *Engine) NewModuleEngine(s *wasm.Store, a *artifact.Artifact, imports *wasm.ImportBacking) (wasm.ModuleEngine, error) {
	region, err := codemem.Load(a)
	if err != nil {
		return nil, err
	}

	var deregister func()
	if base := region.Base(); base != 0 {
		end := base
		for i := range a.FunctionBodies {
			fnEnd := region.FunctionPointer(i) + uintptr(len(a.FunctionBodies[i].Code))
			if fnEnd > end {
				end = fnEnd
			}
		}
		deregister = trap.Register(base, end, a.Info.Name, frameResolver(a, region))
	}

	inner, err := e.exec.NewModuleEngine(s, a, imports)
	if err != nil {
		if deregister != nil {
			deregister()
		}
		_ = region.Close()
		return nil, err
	}

	log.WithField("module", a.Info.Name).WithField("functions", len(a.FunctionBodies)).Debug("loaded module into code memory")
	return &moduleEngine{inner: inner, region: region, deregister: deregister}, nil
}

// frameResolver maps an address inside the region back to the owning
// function and its source offset, consulting each body's recorded source
// locations.
func frameResolver(a *artifact.Artifact, region *codemem.Region) func(pc uintptr) (trap.FrameInfo, bool) {
	return func(pc uintptr) (trap.FrameInfo, bool) {
		for i := range a.FunctionBodies {
			start := region.FunctionPointer(i)
			end := start + uintptr(len(a.FunctionBodies[i].Code))
			if pc < start || pc >= end {
				continue
			}
			codeOff := uint32(pc - start)
			fi := trap.FrameInfo{ModuleName: a.Info.Name, FunctionIndex: uint32(i)}
			for _, loc := range a.FunctionBodies[i].SourceLocations {
				if loc.CodeOffset > codeOff {
					break
				}
				fi.ModuleOffset = loc.WasmOffset
			}
			return fi, true
		}
		return trap.FrameInfo{}, false
	}
}

type moduleEngine struct {
	inner      wasm.ModuleEngine
	region     *codemem.Region
	deregister func()
}

func (m *moduleEngine) BindInstance(inst *wasm.Instance) {
	if binder, ok := m.inner.(wasm.InstanceBinder); ok {
		binder.BindInstance(inst)
	}
}

func (m *moduleEngine) Call(ctx context.Context, idx api.FunctionIndex, args []api.Value) ([]api.Value, *trap.RuntimeError) {
	return m.inner.Call(ctx, idx, args)
}

// Close deregisters frame info before unmapping, so no window exists where
// the registry points at unmapped code.
func (m *moduleEngine) Close() error {
	if m.deregister != nil {
		m.deregister()
		m.deregister = nil
	}
	if err := m.inner.Close(); err != nil {
		return err
	}
	return m.region.Close()
}
