package wasm

import (
	"fmt"
	"sync"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/obs"
)

var log = obs.For("store")

// StoreObjects owns every Wasm-side object and host function environment
// for one Store. Every backing slice is dense and append-only; handles
// address entries by position.
type StoreObjects struct {
	memories []MemoryRepr
	tables   []TableRepr
	globals  []*GlobalRepr
	funcs    []*functionRepr
	hostEnvs []*hostEnvSlot
}

func (o *StoreObjects) pushMemory(m MemoryRepr) api.LocalMemoryIndex {
	o.memories = append(o.memories, m)
	return api.LocalMemoryIndex(len(o.memories) - 1)
}

func (o *StoreObjects) pushTable(t TableRepr) api.LocalTableIndex {
	o.tables = append(o.tables, t)
	return api.LocalTableIndex(len(o.tables) - 1)
}

func (o *StoreObjects) pushGlobal(g *GlobalRepr) api.LocalGlobalIndex {
	o.globals = append(o.globals, g)
	return api.LocalGlobalIndex(len(o.globals) - 1)
}

func (o *StoreObjects) pushFunc(f *functionRepr) api.FunctionIndex {
	o.funcs = append(o.funcs, f)
	return api.FunctionIndex(len(o.funcs) - 1)
}

func (o *StoreObjects) pushHostEnv(s *hostEnvSlot) int {
	o.hostEnvs = append(o.hostEnvs, s)
	return len(o.hostEnvs) - 1
}

// hostEnvSlot boxes a host function's FunctionEnv[T] state. value is `any`
// because Go cannot store a heterogeneous set of FunctionEnv[T] in one
// dense slice without boxing (the Rust original uses a type-erased Any
// slot for the same reason).
type hostEnvSlot struct {
	value     any
	finalizer func(any)
}

// functionRepr is the backend-neutral description of one function handle's
// backing: either a Wasm-defined function dispatched through a
// ModuleEngine, or a host function implemented in Go.
type functionRepr struct {
	sig api.FuncSig

	// Guest function fields.
	engine     ModuleEngine
	localIndex api.FunctionIndex

	// Host function fields.
	hostFunc   HostFunc
	envSlot    int // index into StoreObjects.hostEnvs, or -1
}

// HostFunc is a host-implemented function body. It receives a Caller (whose
// Env is nil if the function was built without an env) and the argument
// vector, returning results or trapping via trap.Raise.
type HostFunc func(caller Caller, args []api.Value) []api.Value

// Store owns all Wasm objects for one universe of compatibility: handles
// from one Store are meaningless in another. A Store is confined to one
// goroutine at a time;
// concurrent access from multiple goroutines without external
// synchronization is a programming error and is not detected: only
// CloseWithExitCode takes the Store's mutex.
type Store struct {
	id       StoreID
	Features api.Features
	Engine   Engine
	Tunables Tunables

	objects   StoreObjects
	instances []*Instance

	mu     sync.Mutex
	closed bool
}

// NewStore constructs a Store bound to the given backend Engine.
func NewStore(engine Engine, features api.Features) *Store {
	return &Store{id: newStoreID(), Features: features, Engine: engine, Tunables: DefaultTunables{}}
}

// ID returns this Store's process-unique identifier.
func (s *Store) ID() StoreID { return s.id }

// Objects exposes the backing arrays for package-internal callers
// (Instance, the backend dispatch layer) that must mutate them directly.
func (s *Store) Objects() *StoreObjects { return &s.objects }

// AsStoreRef is the read-only capability; see StoreRef.
func (s *Store) AsStoreRef() StoreRef { return StoreRef{s} }

// AsStoreMut is the mutating capability; see StoreMut.
func (s *Store) AsStoreMut() StoreMut { return StoreMut{s} }

// guard locks the Store's mutex and returns the unlock function. Its only
// caller is CloseWithExitCode; other StoreMut operations do not take it.
func (s *Store) guard() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// StoreRef is the read-only capability token threaded through front-object
// methods that only read Store state.
type StoreRef struct{ s *Store }

// Store returns the underlying *Store for internal package use.
func (r StoreRef) Store() *Store { return r.s }

// StoreMut is the mutating capability token.
type StoreMut struct{ s *Store }

// Store returns the underlying *Store for internal package use.
func (m StoreMut) Store() *Store { return m.s }

// AnyStoreRef is implemented by both StoreRef and StoreMut so read-only
// front-object methods can accept either.
type AnyStoreRef interface{ Store() *Store }

// checkStore asserts handleStoreID belongs to s, returning ErrDifferentStores
// wrapped with context otherwise.
func checkStore(s *Store, handleStoreID StoreID) error {
	if s.id != handleStoreID {
		return fmt.Errorf("%w: handle store=%d, operation store=%d", ErrDifferentStores, handleStoreID, s.id)
	}
	return nil
}

// trackInstance records a fully built Instance so store teardown can close
// it. Called by Instantiate only after the instance is complete.
func (s *Store) trackInstance(inst *Instance) {
	s.instances = append(s.instances, inst)
}

// CloseWithExitCode tears down every Instance this Store created, newest
// first, closing each instance's engine (and with it the exports); once
// all instances are closed, every host-env slot runs its finalizer. Local globals,
// tables and memories are plain Go values whose backing arrays become
// unreachable once the instance is dropped.
func (s *Store) CloseWithExitCode(exitCode uint32) error {
	unlock := s.guard()
	defer unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	log.WithField("store_id", s.id).WithField("exit_code", exitCode).Debug("closing store")

	var firstErr error
	for i := len(s.instances) - 1; i >= 0; i-- {
		if err := s.instances[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.instances = nil

	for _, slot := range s.objects.hostEnvs {
		if slot != nil && slot.finalizer != nil {
			slot.finalizer(slot.value)
			slot.finalizer = nil
		}
	}
	return firstErr
}
