package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/loader"
)

func TestTranslateAdd(t *testing.T) {
	c := Compiler{}
	raw := loader.RawFunction{
		// local.get 0, local.get 1, i32.add, end
		Body:       []byte{0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b},
		WasmOffset: 0x100,
	}
	fb, err := c.translate(raw, 0)
	require.NoError(t, err)

	require.Equal(t, Op(fb.Code[0]), OpLocalGet)
	require.Len(t, fb.SourceLocations, 4)
	require.Equal(t, uint32(0x100), fb.SourceLocations[0].WasmOffset)
	require.Equal(t, uint32(0x100+4), fb.SourceLocations[2].WasmOffset)
}

func TestTranslateConstsAndLocals(t *testing.T) {
	c := Compiler{}
	raw := loader.RawFunction{
		Locals: []api.ValueKind{api.KindI32},
		// i32.const 5, local.set 0, local.get 0, i32.const -1, i32.mul, drop, end
		Body: []byte{0x41, 0x05, 0x21, 0x00, 0x20, 0x00, 0x41, 0x7f, 0x6c, 0x1a, 0x0b},
	}
	fb, err := c.translate(raw, 0)
	require.NoError(t, err)
	require.Equal(t, []api.ValueKind{api.KindI32}, fb.Locals)
	require.Equal(t, Op(fb.Code[len(fb.Code)-1]), OpEnd)
}

func TestTranslateRejectsUnsupportedOpcode(t *testing.T) {
	c := Compiler{}
	// 0x02 is a block, which this backend does not translate.
	_, err := c.translate(loader.RawFunction{Body: []byte{0x02, 0x40, 0x0b, 0x0b}}, 0)
	require.Error(t, err)
	var cerr *loader.CompileError
	require.ErrorAs(t, err, &cerr)
	require.NotNil(t, cerr.Wasm)
	require.NotEmpty(t, cerr.Wasm.Unsupported)
}

func TestTranslateRejectsUnterminatedBody(t *testing.T) {
	c := Compiler{}
	_, err := c.translate(loader.RawFunction{Body: []byte{0x41, 0x05}}, 0)
	require.Error(t, err)
}

func TestCompileViaLoader(t *testing.T) {
	info := &artifact.ModuleInfo{
		Signatures:         []api.FuncSig{{Results: []api.ValueKind{api.KindI32}}},
		FunctionSignatures: []api.SignatureIndex{0},
	}
	funcs := []loader.RawFunction{{Body: []byte{0x41, 0x2a, 0x0b}}} // i32.const 42, end

	comp, err := Compiler{}.Compile(info, funcs)
	require.NoError(t, err)
	require.Len(t, comp.Functions, 1)

	tramps, err := Compiler{}.CompileCallTrampolines(info.Signatures)
	require.NoError(t, err)
	require.Len(t, tramps, 1)
}
