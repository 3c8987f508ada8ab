package interpreter_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/backend"
	"github.com/wasmforge/wasmforge/internal/engine/interpreter"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// addOneBody returns code computing local0 + local1.
func addOneBody() []byte {
	var code []byte
	code = append(code, byte(interpreter.OpLocalGet))
	code = append(code, u32le(0)...)
	code = append(code, byte(interpreter.OpLocalGet))
	code = append(code, u32le(1)...)
	code = append(code, byte(interpreter.OpI32Add))
	code = append(code, byte(interpreter.OpEnd))
	return code
}

func TestInterpreterAddTwoArgs(t *testing.T) {
	eng, err := backend.New("interpreter")
	require.NoError(t, err)

	info := &artifact.ModuleInfo{
		Name:       "m",
		Signatures: []api.FuncSig{{Params: []api.ValueKind{api.KindI32, api.KindI32}, Results: []api.ValueKind{api.KindI32}}},
		Exports: []artifact.Export{{Name: "add", Type: api.ExternTypeFunc, Index: 0}},
		FunctionSignatures: []api.SignatureIndex{0},
	}
	art := &artifact.Artifact{
		Info:           info,
		FunctionBodies: []artifact.FunctionBody{{Code: addOneBody()}},
		Backend:        "interpreter",
	}

	store := wasm.NewStore(eng, api.DefaultFeatures)
	inst, err := wasm.Instantiate(store, art, wasm.NewImports())
	require.NoError(t, err)

	fn, err := inst.Exports().Get("add", api.ExternTypeFunc)
	require.NoError(t, err)

	results, rerr := fn.Func.Call(context.Background(), store.AsStoreMut(), inst, []api.Value{api.I32(2), api.I32(3)})
	require.Nil(t, rerr)
	require.Len(t, results, 1)
	require.Equal(t, int32(5), results[0].I32())
}

func TestInterpreterUnreachableTraps(t *testing.T) {
	eng, err := backend.New("interpreter")
	require.NoError(t, err)

	info := &artifact.ModuleInfo{
		Name:               "m",
		Signatures:         []api.FuncSig{{}},
		Exports:            []artifact.Export{{Name: "boom", Type: api.ExternTypeFunc, Index: 0}},
		FunctionSignatures: []api.SignatureIndex{0},
	}
	art := &artifact.Artifact{
		Info:           info,
		FunctionBodies: []artifact.FunctionBody{{Code: []byte{byte(interpreter.OpUnreachable)}}},
	}

	store := wasm.NewStore(eng, api.DefaultFeatures)
	inst, err := wasm.Instantiate(store, art, wasm.NewImports())
	require.NoError(t, err)

	fn, err := inst.Exports().Get("boom", api.ExternTypeFunc)
	require.NoError(t, err)

	_, rerr := fn.Func.Call(context.Background(), store.AsStoreMut(), inst, nil)
	require.NotNil(t, rerr)
}
