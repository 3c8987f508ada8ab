package wasmforge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/asyncbridge"
	"github.com/wasmforge/wasmforge/internal/trap"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

// binary section helper, mirroring the layout of the binary format.
func section(id byte, payload ...byte) []byte {
	out := []byte{id, byte(len(payload))}
	return append(out, payload...)
}

var preamble = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// addWasm is (module (func (export "add") (param i32 i32) (result i32)
// local.get 0 local.get 1 i32.add)).
func addWasm() []byte {
	bin := append([]byte{}, preamble...)
	bin = append(bin, section(1, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f)...)
	bin = append(bin, section(3, 0x01, 0x00)...)
	bin = append(bin, section(7, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00)...)
	bin = append(bin, section(10, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b)...)
	return bin
}

// callImportWasm is (module (import "env" "mul2" (func (param i32) (result
// i32))) (func (export "run") (param i32) (result i32) local.get 0 call 0)).
func callImportWasm() []byte {
	bin := append([]byte{}, preamble...)
	bin = append(bin, section(1, 0x01, 0x60, 0x01, 0x7f, 0x01, 0x7f)...)
	bin = append(bin, section(2, 0x01, 0x03, 'e', 'n', 'v', 0x04, 'm', 'u', 'l', '2', 0x00, 0x00)...)
	bin = append(bin, section(3, 0x01, 0x00)...)
	bin = append(bin, section(7, 0x01, 0x03, 'r', 'u', 'n', 0x00, 0x01)...)
	bin = append(bin, section(10, 0x01, 0x06, 0x00, 0x20, 0x00, 0x10, 0x00, 0x0b)...)
	return bin
}

// startTrapWasm is (module (func unreachable) (start 0)).
func startTrapWasm() []byte {
	bin := append([]byte{}, preamble...)
	bin = append(bin, section(1, 0x01, 0x60, 0x00, 0x00)...)
	bin = append(bin, section(3, 0x01, 0x00)...)
	bin = append(bin, section(8, 0x00)...)
	bin = append(bin, section(10, 0x01, 0x03, 0x00, 0x00, 0x0b)...)
	return bin
}

// memWasm is (module (memory (export "mem") 1 2)).
func memWasm() []byte {
	bin := append([]byte{}, preamble...)
	bin = append(bin, section(5, 0x01, 0x01, 0x01, 0x02)...)
	bin = append(bin, section(7, 0x01, 0x03, 'm', 'e', 'm', 0x02, 0x00)...)
	return bin
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	r, err := NewRuntime(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestCompileAndCallExport(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	compiled, err := r.CompileModule(ctx, addWasm())
	require.NoError(t, err)

	inst, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("calc"))
	require.NoError(t, err)

	add := inst.ExportedFunction("add")
	require.NotNil(t, add)

	results, err := add.Call(ctx, api.I32(40), api.I32(2))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int32(42), results[0].I32())

	require.Nil(t, inst.ExportedFunction("missing"))
}

func TestHostImportCalledFromGuest(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	sig := api.FuncSig{Params: []api.ValueKind{api.KindI32}, Results: []api.ValueKind{api.KindI32}}
	r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(sig, func(caller wasm.Caller, args []api.Value) []api.Value {
			return []api.Value{api.I32(args[0].I32() * 2)}
		}).
		Export("mul2").
		Instantiate()

	inst, err := r.InstantiateBinary(ctx, callImportWasm())
	require.NoError(t, err)

	results, err := inst.ExportedFunction("run").Call(ctx, api.I32(21))
	require.NoError(t, err)
	require.Equal(t, int32(42), results[0].I32())
}

func TestImportSignatureMismatchFailsLink(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	wrong := api.FuncSig{Params: []api.ValueKind{api.KindI64}, Results: []api.ValueKind{api.KindI64}}
	r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(wrong, func(wasm.Caller, []api.Value) []api.Value { return nil }).
		Export("mul2")

	_, err := r.InstantiateBinary(ctx, callImportWasm())
	require.Error(t, err)
	var ierr *wasm.InstantiationError
	require.ErrorAs(t, err, &ierr)
	require.NotNil(t, ierr.Link)
	require.NotNil(t, ierr.Link.Import)
	require.Equal(t, "env", ierr.Link.Import.Module)
	require.Equal(t, "mul2", ierr.Link.Import.Field)
}

func TestUnknownImportFailsLink(t *testing.T) {
	r := newTestRuntime(t)

	_, err := r.InstantiateBinary(context.Background(), callImportWasm())
	var ierr *wasm.InstantiationError
	require.ErrorAs(t, err, &ierr)
	require.NotNil(t, ierr.Link.Import)
	require.Empty(t, ierr.Link.Import.Got)
}

func TestStartFunctionTrap(t *testing.T) {
	r := newTestRuntime(t)

	_, err := r.InstantiateBinary(context.Background(), startTrapWasm())
	require.Error(t, err)
	var ierr *wasm.InstantiationError
	require.ErrorAs(t, err, &ierr)
	require.NotNil(t, ierr.Start)
	require.Equal(t, trap.CodeUnreachableCodeReached, ierr.Start.TrapCode)
	require.GreaterOrEqual(t, len(ierr.Start.WasmTrace), 1)
}

func TestExportedMemoryBoundary(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	inst, err := r.InstantiateBinary(ctx, memWasm())
	require.NoError(t, err)

	mem := inst.ExportedMemory("mem")
	require.NotNil(t, mem)

	size, err := mem.Size()
	require.NoError(t, err)
	require.Equal(t, uint32(1), size)

	v, err := mem.View()
	require.NoError(t, err)
	require.Equal(t, uint32(api.PageSize), v.DataSize())
	require.NoError(t, v.Write(api.PageSize-1, []byte{7}))
	require.Error(t, v.Write(api.PageSize, []byte{7}))

	prev, err := mem.Grow(1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), prev)
	_, err = mem.Grow(1)
	require.Error(t, err)
}

func TestCallAsyncWithHostFuture(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	sig := api.FuncSig{Params: []api.ValueKind{api.KindI32}, Results: []api.ValueKind{api.KindI32}}
	r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(sig, func(caller wasm.Caller, args []api.Value) []api.Value {
			v, err := BlockOn(caller, asyncbridge.Ready(int32(args[0].I32()*2)))
			if err != nil {
				trap.Raise(trap.CodeUser, "host future failed: %v", err)
			}
			return []api.Value{api.I32(v.(int32))}
		}).
		Export("mul2")

	inst, err := r.InstantiateBinary(ctx, callImportWasm())
	require.NoError(t, err)

	result, err := inst.ExportedFunction("run").CallAsync(ctx, api.I32(21)).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(42), result[0].I32())
}

func TestSerializeRoundTrip(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	compiled, err := r.CompileModule(ctx, addWasm())
	require.NoError(t, err)

	data, err := compiled.Serialize()
	require.NoError(t, err)

	loaded, err := r.LoadSerializedModule(ctx, data)
	require.NoError(t, err)

	inst, err := r.InstantiateModule(ctx, loaded, NewModuleConfig())
	require.NoError(t, err)
	results, err := inst.ExportedFunction("add").Call(ctx, api.I32(1), api.I32(2))
	require.NoError(t, err)
	require.Equal(t, int32(3), results[0].I32())
}

func TestSerializeDeterministic(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	one, err := r.CompileModule(ctx, addWasm())
	require.NoError(t, err)
	two, err := r.CompileModule(ctx, addWasm())
	require.NoError(t, err)

	b1, err := one.Serialize()
	require.NoError(t, err)
	b2, err := two.Serialize()
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestFileCacheReuse(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cache, err := NewFileCache(dir)
	require.NoError(t, err)

	r1, err := NewRuntimeWithConfig(ctx, NewRuntimeConfig().WithCache(cache))
	require.NoError(t, err)
	_, err = r1.CompileModule(ctx, addWasm())
	require.NoError(t, err)
	require.NoError(t, r1.Close(ctx))

	// A second runtime with the same cache and configuration reuses the
	// stored artifact; the module still works end to end.
	r2, err := NewRuntimeWithConfig(ctx, NewRuntimeConfig().WithCache(cache))
	require.NoError(t, err)
	defer r2.Close(ctx)

	compiled, err := r2.CompileModule(ctx, addWasm())
	require.NoError(t, err)
	inst, err := r2.InstantiateModule(ctx, compiled, NewModuleConfig())
	require.NoError(t, err)
	results, err := inst.ExportedFunction("add").Call(ctx, api.I32(2), api.I32(3))
	require.NoError(t, err)
	require.Equal(t, int32(5), results[0].I32())
}

func TestCompileRejectsGarbage(t *testing.T) {
	r := newTestRuntime(t)
	_, err := r.CompileModule(context.Background(), []byte("not wasm"))
	require.Error(t, err)
}

func TestDeterministicID(t *testing.T) {
	id := DeterministicID("interpreter")
	require.Contains(t, id, "interpreter-")
	require.NotEqual(t, id, DeterministicID("native"))
}

func TestRuntimeConfigImmutable(t *testing.T) {
	base := NewRuntimeConfig()
	derived := base.WithBackend("native")
	require.Equal(t, "interpreter", base.backendName)
	require.Equal(t, "native", derived.backendName)
}

func TestHostMemoryAndGlobalExports(t *testing.T) {
	r := newTestRuntime(t)

	b := r.NewHostModuleBuilder("host")
	_, err := b.ExportMemory("mem", api.MemoryType{Min: 1})
	require.NoError(t, err)
	_, err = b.ExportGlobal("g", api.GlobalType{Kind: api.KindI32}, api.I32(7))
	require.NoError(t, err)
	b.ExportTable("t", api.TableType{Element: api.KindFuncRef, Min: 1})
}
