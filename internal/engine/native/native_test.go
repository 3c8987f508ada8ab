//go:build linux || darwin

package native

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/backend"
	"github.com/wasmforge/wasmforge/internal/engine/interpreter"
	"github.com/wasmforge/wasmforge/internal/trap"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

func addBody() artifact.FunctionBody {
	var code []byte
	op := func(o interpreter.Op, operand ...byte) {
		code = append(code, byte(o))
		code = append(code, operand...)
	}
	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	op(interpreter.OpLocalGet, u32(0)...)
	op(interpreter.OpLocalGet, u32(1)...)
	op(interpreter.OpI32Add)
	op(interpreter.OpEnd)
	return artifact.FunctionBody{
		Code:            code,
		SourceLocations: []artifact.SourceLocation{{CodeOffset: 0, WasmOffset: 0x20}},
	}
}

func testArtifact() *artifact.Artifact {
	return &artifact.Artifact{
		Info: &artifact.ModuleInfo{
			Name:               "m",
			Signatures:         []api.FuncSig{{Params: []api.ValueKind{api.KindI32, api.KindI32}, Results: []api.ValueKind{api.KindI32}}},
			FunctionSignatures: []api.SignatureIndex{0},
			Exports:            []artifact.Export{{Name: "add", Type: api.ExternTypeFunc, Index: 0}},
		},
		FunctionBodies: []artifact.FunctionBody{addBody()},
		Backend:        "native",
	}
}

func TestNativeEngineRegistered(t *testing.T) {
	eng, err := backend.New("native")
	require.NoError(t, err)
	require.Equal(t, "native", eng.Name())
	require.True(t, eng.SupportsRawPointers())
}

func TestNativeCallThroughCodeMemory(t *testing.T) {
	eng, err := backend.New("native")
	require.NoError(t, err)

	s := wasm.NewStore(eng, api.DefaultFeatures)
	inst, err := wasm.Instantiate(s, testArtifact(), wasm.NewImports())
	require.NoError(t, err)

	e, err := inst.Exports().Get("add", api.ExternTypeFunc)
	require.NoError(t, err)

	results, rerr := e.Func.Call(context.Background(), s.AsStoreMut(), inst, []api.Value{api.I32(20), api.I32(22)})
	require.Nil(t, rerr)
	require.Equal(t, int32(42), results[0].I32())

	require.NoError(t, inst.Close())
}

func TestNativeRegistersFrameInfo(t *testing.T) {
	e := New()
	s := wasm.NewStore(e, api.DefaultFeatures)
	a := testArtifact()

	me, err := e.NewModuleEngine(s, a, &wasm.ImportBacking{})
	require.NoError(t, err)

	region := me.(*moduleEngine).region
	pc := region.FunctionPointer(0)
	fi, ok := trap.Resolve(pc)
	require.True(t, ok)
	require.Equal(t, "m", fi.ModuleName)
	require.Equal(t, uint32(0), fi.FunctionIndex)
	require.Equal(t, uint32(0x20), fi.ModuleOffset)

	require.NoError(t, me.Close())
	_, ok = trap.Resolve(pc)
	require.False(t, ok)
}

func TestNativeTrapCarriesTrace(t *testing.T) {
	eng := New()
	s := wasm.NewStore(eng, api.DefaultFeatures)
	a := testArtifact()
	a.FunctionBodies = []artifact.FunctionBody{{
		Code:            []byte{byte(interpreter.OpUnreachable)},
		SourceLocations: []artifact.SourceLocation{{CodeOffset: 0, WasmOffset: 0x30}},
	}}
	a.Info.Signatures = []api.FuncSig{{}}
	a.Info.Exports = []artifact.Export{{Name: "boom", Type: api.ExternTypeFunc, Index: 0}}

	inst, err := wasm.Instantiate(s, a, wasm.NewImports())
	require.NoError(t, err)
	defer inst.Close()

	e, err := inst.Exports().Get("boom", api.ExternTypeFunc)
	require.NoError(t, err)

	_, rerr := e.Func.Call(context.Background(), s.AsStoreMut(), inst, nil)
	require.NotNil(t, rerr)
	require.Equal(t, trap.CodeUnreachableCodeReached, rerr.TrapCode)
	require.GreaterOrEqual(t, len(rerr.WasmTrace), 1)
	require.Equal(t, uint32(0), rerr.WasmTrace[0].FunctionIndex)
	require.Equal(t, uint32(0x30), rerr.WasmTrace[0].ModuleOffset)
}
