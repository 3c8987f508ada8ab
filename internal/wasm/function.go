package wasm

import (
	"context"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/trap"
)

// Function is the backend-neutral front object handle for a callable,
// whether defined by a guest module or implemented in Go. Host functions
// carry engine == nil; guest functions carry hostFunc == nil. Exactly one
// is ever set on a functionRepr.
type Function struct {
	StoreID    StoreID
	LocalIndex api.FunctionIndex
	sig        api.FuncSig
}

// Sig returns the function's signature.
func (f Function) Sig(s AnyStoreRef) (api.FuncSig, error) {
	if _, err := f.repr(s); err != nil {
		return api.FuncSig{}, err
	}
	return f.sig, nil
}

func (f Function) repr(s AnyStoreRef) (*functionRepr, error) {
	st := s.Store()
	if err := checkStore(st, f.StoreID); err != nil {
		return nil, err
	}
	return st.Objects().funcs[f.LocalIndex], nil
}

// Call invokes the function with a type-checked argument vector. Host
// functions run inline; guest functions are dispatched through the owning
// ModuleEngine.
func (f Function) Call(ctx context.Context, s StoreMut, inst *Instance, args []api.Value) ([]api.Value, *trap.RuntimeError) {
	repr, err := f.repr(s)
	if err != nil {
		return nil, trap.New(err.Error())
	}
	if len(args) != len(repr.sig.Params) {
		return nil, trap.New("wasm: argument count mismatch")
	}
	for i, a := range args {
		if a.Kind != repr.sig.Params[i] {
			return nil, trap.New("wasm: argument kind mismatch at index " + itoa(i))
		}
	}
	if repr.hostFunc != nil {
		caller := Caller{ctx: ctx, store: s, instance: inst, env: envFor(s, repr)}
		return runHostFunc(repr.hostFunc, caller, args)
	}
	if repr.engine == nil {
		return nil, trap.New("wasm: function has neither a host body nor a guest engine")
	}
	return repr.engine.Call(ctx, repr.localIndex, args)
}

func envFor(s AnyStoreRef, repr *functionRepr) any {
	if repr.envSlot < 0 {
		return nil
	}
	return s.Store().Objects().hostEnvs[repr.envSlot].value
}

// runHostFunc isolates the trap.Run wrapping so an explicit trap.Raise
// inside a host function body converts into a *trap.RuntimeError just like
// a guest-detected fault.
func runHostFunc(fn HostFunc, caller Caller, args []api.Value) (results []api.Value, rerr *trap.RuntimeError) {
	rerr = trap.Run(nil, nil, func() {
		results = fn(caller, args)
	})
	return results, rerr
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Caller is the capability a host function body receives: a scoped handle
// back into the calling Instance and Store, plus the call's Context for
// cancellation propagation through the async bridge.
type Caller struct {
	ctx      context.Context
	store    StoreMut
	instance *Instance
	env      any
}

// Context returns the call's context.
func (c Caller) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Env returns the FunctionEnv value this host function was registered with,
// or nil if it was registered without one.
func (c Caller) Env() any { return c.env }

// Memory0 returns the calling instance's first memory, if any.
func (c Caller) Memory0() (Memory, bool) {
	if c.instance == nil {
		return Memory{}, false
	}
	return c.instance.Memory0()
}

// ExportedFunction looks up a sibling export by name, letting a host
// function call back into the guest module.
func (c Caller) ExportedFunction(name string) (Function, bool) {
	if c.instance == nil {
		return Function{}, false
	}
	e, err := c.instance.Exports().Get(name, api.ExternTypeFunc)
	if err != nil {
		return Function{}, false
	}
	return e.Func, true
}

// Store exposes the underlying StoreMut for callers needing full object
// access (growing memory, reading globals).
func (c Caller) Store() StoreMut { return c.store }

// FunctionEnv is a typed slot of state shared by all calls to one host
// function closure. Go cannot express this as a generic field inside the
// dense, heterogeneous hostEnvs slice, so FunctionEnv[T] is a thin typed
// wrapper around the boxed any stored there.
type FunctionEnv[T any] struct {
	slot int
}

// NewFunctionEnv boxes an initial value of T into s and returns a handle
// usable when building host functions with NewHostFunction.
func NewFunctionEnv[T any](s *Store, initial T) FunctionEnv[T] {
	idx := s.Objects().pushHostEnv(&hostEnvSlot{value: initial})
	return FunctionEnv[T]{slot: idx}
}

// FunctionEnvMut is the mutable accessor for a FunctionEnv[T]'s current
// value, obtained from inside a host function body via Caller.Env combined
// with a type assertion, or directly through Get/Set against a StoreMut.
type FunctionEnvMut[T any] struct {
	env FunctionEnv[T]
}

// Get reads the current value of env from s.
func (e FunctionEnv[T]) Get(s AnyStoreRef) T {
	return s.Store().Objects().hostEnvs[e.slot].value.(T)
}

// Set replaces the current value of env in s.
func (e FunctionEnv[T]) Set(s StoreMut, v T) {
	s.Store().Objects().hostEnvs[e.slot].value = v
}

// SetFinalizer registers fin to run with the env's final value when the
// owning Store closes. At most one finalizer per env; a second call
// replaces the first.
func (e FunctionEnv[T]) SetFinalizer(s StoreMut, fin func(T)) {
	slot := s.Store().Objects().hostEnvs[e.slot]
	slot.finalizer = func(v any) { fin(v.(T)) }
}

// Mut returns a FunctionEnvMut for chained Get/Set use inside a host
// function body.
func (e FunctionEnv[T]) Mut() FunctionEnvMut[T] { return FunctionEnvMut[T]{env: e} }

func (m FunctionEnvMut[T]) Get(s AnyStoreRef) T { return m.env.Get(s) }
func (m FunctionEnvMut[T]) Set(s StoreMut, v T) { m.env.Set(s, v) }

// NewHostFunction registers a Go-implemented function under s with no
// FunctionEnv, returning a Function handle callable like any guest export.
func NewHostFunction(s *Store, sig api.FuncSig, fn HostFunc) Function {
	return newHostFunction(s, sig, -1, fn)
}

// NewHostFunctionWithEnv is NewHostFunction plus a FunctionEnv[T] slot that
// fn can recover via Caller.Env().
func NewHostFunctionWithEnv[T any](s *Store, sig api.FuncSig, env FunctionEnv[T], fn HostFunc) Function {
	return newHostFunction(s, sig, env.slot, fn)
}

func newHostFunction(s *Store, sig api.FuncSig, envSlot int, fn HostFunc) Function {
	repr := &functionRepr{sig: sig, hostFunc: fn, envSlot: envSlot}
	idx := s.Objects().pushFunc(repr)
	return Function{StoreID: s.ID(), LocalIndex: idx, sig: sig}
}
