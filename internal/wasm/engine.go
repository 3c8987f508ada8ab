package wasm

import (
	"context"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/trap"
)

// Engine is the per-Store mechanism a backend implements to turn a compiled
// Artifact into something callable.
// internal/backend.Dispatch forwards to whichever of
// internal/engine/{interpreter,native,hostjs} the Engine was configured
// with; application code never sees this interface directly.
type Engine interface {
	// Name identifies the backend, e.g. "interpreter", "native", "hostjs".
	Name() string

	// NewModuleEngine compiles (or adopts, for an already-compiled Artifact)
	// the functions of a module for execution, returning a ModuleEngine
	// scoped to one Instance. s is the owning Store, passed through so the
	// ModuleEngine can make calls (including call_indirect and calls back
	// out to imports) on the same Store without a second lookup path.
	NewModuleEngine(s *Store, a *artifact.Artifact, imports *ImportBacking) (ModuleEngine, error)

	// SupportsRawPointers reports whether raw byte access to linear memory
	// is usable for backends rooted in this Engine.
	SupportsRawPointers() bool

	// SupportsSharedMemory reports whether Memory.TryClone can succeed.
	SupportsSharedMemory() bool
}

// ModuleEngine implements function calls for one instantiated module.
type ModuleEngine interface {
	// Call invokes the local (non-imported) function at module-relative
	// index idx, with args already type-checked against its FuncSig,
	// returning results or a *trap.RuntimeError.
	Call(ctx context.Context, idx api.FunctionIndex, args []api.Value) ([]api.Value, *trap.RuntimeError)

	// Close releases any engine-private resources (code memory, frame-info
	// registrations) for this module instance.
	Close() error
}

// InstanceBinder is implemented by ModuleEngines that need the fully built
// Instance (for resolving imported-function calls and exports) once
// instantiation finishes constructing it. Instantiate calls BindInstance
// after the Instance's export table is built; engines with no need for it
// (e.g. a backend with no cross-function or cross-instance calls) may
// simply not implement this interface.
type InstanceBinder interface {
	BindInstance(inst *Instance)
}
