package loader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
)

// section builds one binary section from its id and payload.
func section(id byte, payload ...byte) []byte {
	out := []byte{id, byte(len(payload))}
	return append(out, payload...)
}

// addModule is (module (func (export "add") (param i32 i32) (result i32)
// local.get 0 local.get 1 i32.add)).
func addModule() []byte {
	bin := append([]byte{}, wasmMagic...)
	bin = append(bin, section(sectionType, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f)...)
	bin = append(bin, section(sectionFunction, 0x01, 0x00)...)
	bin = append(bin, section(sectionExport, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00)...)
	bin = append(bin, section(sectionCode, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b)...)
	return bin
}

func TestDecodeAddModule(t *testing.T) {
	info, funcs, err := DecodeModule(addModule(), api.DefaultFeatures)
	require.NoError(t, err)

	require.Len(t, info.Signatures, 1)
	require.Equal(t, "(i32,i32)->(i32)", info.Signatures[0].String())
	require.Equal(t, []api.SignatureIndex{0}, info.FunctionSignatures)
	require.Len(t, info.Exports, 1)
	require.Equal(t, "add", info.Exports[0].Name)
	require.Equal(t, api.ExternTypeFunc, info.Exports[0].Type)

	require.Len(t, funcs, 1)
	require.Empty(t, funcs[0].Locals)
	require.Equal(t, []byte{0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}, funcs[0].Body)

	require.NoError(t, validateModule(info, funcs))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	bin := addModule()
	bin[0] = 'X'
	_, _, err := DecodeModule(bin, api.DefaultFeatures)
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, CompileErrWasm, cerr.Kind)
}

func TestDecodeRejectsTruncation(t *testing.T) {
	bin := addModule()
	_, _, err := DecodeModule(bin[:len(bin)-3], api.DefaultFeatures)
	require.Error(t, err)
}

func TestDecodeRejectsSectionOutOfOrder(t *testing.T) {
	bin := append([]byte{}, wasmMagic...)
	bin = append(bin, section(sectionFunction, 0x01, 0x00)...)
	bin = append(bin, section(sectionType, 0x01, 0x60, 0x00, 0x00)...)
	_, _, err := DecodeModule(bin, api.DefaultFeatures)
	require.Error(t, err)
}

func TestDecodeImportsAndSegments(t *testing.T) {
	bin := append([]byte{}, wasmMagic...)
	// (type (func)) (type (func (param i32)))
	bin = append(bin, section(sectionType, 0x02, 0x60, 0x00, 0x00, 0x60, 0x01, 0x7f, 0x00)...)
	// (import "env" "log" (func (type 1))) (import "env" "mem" (memory 1))
	bin = append(bin, section(sectionImport,
		0x02,
		0x03, 'e', 'n', 'v', 0x03, 'l', 'o', 'g', 0x00, 0x01,
		0x03, 'e', 'n', 'v', 0x03, 'm', 'e', 'm', 0x02, 0x00, 0x01)...)
	// (global i32 (i32.const 7))
	bin = append(bin, section(sectionGlobal, 0x01, 0x7f, 0x00, 0x41, 0x07, 0x0b)...)
	// (data (i32.const 1) "hi") against imported memory 0
	bin = append(bin, section(sectionData, 0x01, 0x00, 0x41, 0x01, 0x0b, 0x02, 'h', 'i')...)

	info, _, err := DecodeModule(bin, api.DefaultFeatures)
	require.NoError(t, err)

	require.Len(t, info.Imports, 2)
	require.Equal(t, api.ExternTypeFunc, info.Imports[0].Type)
	require.Equal(t, api.SignatureIndex(1), info.Imports[0].FuncSigIndex)
	require.Equal(t, api.ExternTypeMemory, info.Imports[1].Type)
	require.Equal(t, uint32(1), info.Imports[1].Memory.Min)

	require.Len(t, info.Globals, 1)
	require.False(t, info.Globals[0].Mutable)
	require.NotNil(t, info.GlobalInit[0].Literal)
	require.Equal(t, int32(7), info.GlobalInit[0].Literal.I32())

	require.Len(t, info.DataSegments, 1)
	require.Equal(t, []byte("hi"), info.DataSegments[0].Bytes)

	require.NoError(t, validateModule(info, nil))
}

func TestValidateCatchesBadIndices(t *testing.T) {
	info, funcs, err := DecodeModule(addModule(), api.DefaultFeatures)
	require.NoError(t, err)

	info.Exports[0].Index = 5
	require.Error(t, validateModule(info, funcs))
	info.Exports[0].Index = 0

	info.FunctionSignatures[0] = 3
	require.Error(t, validateModule(info, funcs))
}

func TestValidateStartSignature(t *testing.T) {
	info, funcs, err := DecodeModule(addModule(), api.DefaultFeatures)
	require.NoError(t, err)

	start := api.FunctionIndex(0) // has (i32,i32)->(i32), not ()->()
	info.StartFunction = &start
	require.Error(t, validateModule(info, funcs))
}

func TestDecodeCustomSection(t *testing.T) {
	bin := append([]byte{}, wasmMagic...)
	bin = append(bin, section(sectionCustom, 0x04, 'n', 'a', 'm', 'e', 0xde, 0xad)...)

	info, _, err := DecodeModule(bin, api.DefaultFeatures)
	require.NoError(t, err)
	require.Len(t, info.CustomSections, 1)
	require.Equal(t, "name", info.CustomSections[0].Name)
	require.Equal(t, []byte{0xde, 0xad}, info.CustomSections[0].Data)
}
