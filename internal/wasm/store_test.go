package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/trap"
)

// stubEngine satisfies Engine for object-model tests that never execute
// guest code.
type stubEngine struct{}

func (stubEngine) Name() string                { return "stub" }
func (stubEngine) SupportsRawPointers() bool   { return true }
func (stubEngine) SupportsSharedMemory() bool  { return true }
func (stubEngine) NewModuleEngine(*Store, *artifact.Artifact, *ImportBacking) (ModuleEngine, error) {
	return stubModuleEngine{}, nil
}

type stubModuleEngine struct{}

func (stubModuleEngine) Call(context.Context, api.FunctionIndex, []api.Value) ([]api.Value, *trap.RuntimeError) {
	return nil, nil
}
func (stubModuleEngine) Close() error { return nil }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(stubEngine{}, api.DefaultFeatures)
}

func TestStoreIDsAreUnique(t *testing.T) {
	a := newTestStore(t)
	b := newTestStore(t)
	require.NotEqual(t, a.ID(), b.ID())
}

func TestCrossStoreUseFails(t *testing.T) {
	a := newTestStore(t)
	b := newTestStore(t)

	mem, err := NewMemory(a, api.MemoryType{Min: 1}, NewByteSliceMemory)
	require.NoError(t, err)

	_, err = mem.Size(b.AsStoreRef())
	require.ErrorIs(t, err, ErrDifferentStores)

	// Both stores stay usable afterward.
	_, err = mem.Size(a.AsStoreRef())
	require.NoError(t, err)
	_, err = NewMemory(b, api.MemoryType{Min: 1}, NewByteSliceMemory)
	require.NoError(t, err)
}

func TestFunctionEnvGetSetFinalizer(t *testing.T) {
	s := newTestStore(t)
	env := NewFunctionEnv(s, 41)
	require.Equal(t, 41, env.Get(s.AsStoreRef()))

	env.Set(s.AsStoreMut(), 42)
	require.Equal(t, 42, env.Mut().Get(s.AsStoreRef()))

	var finalized int
	env.SetFinalizer(s.AsStoreMut(), func(v int) { finalized = v })
	require.NoError(t, s.CloseWithExitCode(0))
	require.Equal(t, 42, finalized)
}

func TestHostFunctionCall(t *testing.T) {
	s := newTestStore(t)
	sig := api.FuncSig{Params: []api.ValueKind{api.KindI32}, Results: []api.ValueKind{api.KindI32}}
	fn := NewHostFunction(s, sig, func(caller Caller, args []api.Value) []api.Value {
		return []api.Value{api.I32(args[0].I32() * 2)}
	})

	results, rerr := fn.Call(context.Background(), s.AsStoreMut(), nil, []api.Value{api.I32(21)})
	require.Nil(t, rerr)
	require.Equal(t, int32(42), results[0].I32())
}

func TestHostFunctionArgChecks(t *testing.T) {
	s := newTestStore(t)
	sig := api.FuncSig{Params: []api.ValueKind{api.KindI32}}
	fn := NewHostFunction(s, sig, func(Caller, []api.Value) []api.Value { return nil })

	_, rerr := fn.Call(context.Background(), s.AsStoreMut(), nil, nil)
	require.NotNil(t, rerr)

	_, rerr = fn.Call(context.Background(), s.AsStoreMut(), nil, []api.Value{api.I64(1)})
	require.NotNil(t, rerr)
}

func TestHostFunctionTrapsViaRaise(t *testing.T) {
	s := newTestStore(t)
	fn := NewHostFunction(s, api.FuncSig{}, func(Caller, []api.Value) []api.Value {
		trap.Raise(trap.CodeUser, "host rejected the call")
		return nil
	})

	_, rerr := fn.Call(context.Background(), s.AsStoreMut(), nil, nil)
	require.NotNil(t, rerr)
	require.Equal(t, trap.CodeUser, rerr.TrapCode)
}
