package interpreter

import (
	"encoding/binary"
	"fmt"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/leb128"
	"github.com/wasmforge/wasmforge/internal/loader"
)

// Compiler translates decoded WebAssembly function bodies into this
// backend's instruction stream. It implements loader.Compiler, so the
// loader can drive it the same way it would drive a machine-code compiler.
type Compiler struct{}

func (Compiler) Name() string { return "interpreter" }

func (Compiler) Features() api.Features { return api.DefaultFeatures }

func (c Compiler) Validate(info *artifact.ModuleInfo, funcs []loader.RawFunction) error {
	for i, f := range funcs {
		if _, err := c.translate(f, uint32(i)); err != nil {
			return err
		}
	}
	return nil
}

func (c Compiler) Compile(info *artifact.ModuleInfo, funcs []loader.RawFunction) (*loader.Compilation, error) {
	out := &loader.Compilation{Functions: make([]artifact.FunctionBody, len(funcs))}
	for i, f := range funcs {
		fb, err := c.translate(f, uint32(i))
		if err != nil {
			return nil, err
		}
		out.Functions[i] = fb
	}
	return out, nil
}

// CompileCallTrampolines is trivial for this backend: calls dispatch
// through moduleEngine.Call directly, so each trampoline is an empty body
// present only to keep artifacts shaped identically across backends.
func (Compiler) CompileCallTrampolines(sigs []api.FuncSig) (map[api.SignatureIndex]artifact.FunctionBody, error) {
	out := make(map[api.SignatureIndex]artifact.FunctionBody, len(sigs))
	for i := range sigs {
		out[api.SignatureIndex(i)] = artifact.FunctionBody{}
	}
	return out, nil
}

func (Compiler) CompileDynamicTrampolines(info *artifact.ModuleInfo) (map[api.FunctionIndex]artifact.FunctionBody, error) {
	out := make(map[api.FunctionIndex]artifact.FunctionBody)
	idx := 0
	for _, imp := range info.Imports {
		if imp.Type != api.ExternTypeFunc {
			continue
		}
		out[api.FunctionIndex(idx)] = artifact.FunctionBody{}
		idx++
	}
	return out, nil
}

// translate rewrites one function body. Every translated instruction
// records a SourceLocation so a trap inside it can be symbolicated back to
// the original binary offset.
func (Compiler) translate(f loader.RawFunction, fnIndex uint32) (artifact.FunctionBody, error) {
	var code []byte
	var locs []artifact.SourceLocation

	emit := func(wasmOff int, op Op, operand []byte) {
		locs = append(locs, artifact.SourceLocation{CodeOffset: uint32(len(code)), WasmOffset: f.WasmOffset + uint32(wasmOff)})
		code = append(code, byte(op))
		code = append(code, operand...)
	}
	u32operand := func(v uint32) []byte {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		return b[:]
	}
	u64operand := func(v uint64) []byte {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		return b[:]
	}

	body := f.Body
	pos := 0
	for pos < len(body) {
		at := pos
		op := body[pos]
		pos++
		switch op {
		case 0x00: // unreachable
			emit(at, OpUnreachable, nil)
		case 0x01: // nop
		case 0x0b: // end
			emit(at, OpEnd, nil)
			if pos != len(body) {
				return artifact.FunctionBody{}, malformed(at, "trailing bytes after function end")
			}
			return artifact.FunctionBody{Code: code, Locals: f.Locals, SourceLocations: locs}, nil
		case 0x10: // call
			v, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return artifact.FunctionBody{}, malformed(at, "call index: %v", err)
			}
			pos += int(n)
			emit(at, OpCall, u32operand(v))
		case 0x1a: // drop
			emit(at, OpDrop, nil)
		case 0x20: // local.get
			v, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return artifact.FunctionBody{}, malformed(at, "local.get index: %v", err)
			}
			pos += int(n)
			emit(at, OpLocalGet, u32operand(v))
		case 0x21: // local.set
			v, n, err := leb128.LoadUint32(body[pos:])
			if err != nil {
				return artifact.FunctionBody{}, malformed(at, "local.set index: %v", err)
			}
			pos += int(n)
			emit(at, OpLocalSet, u32operand(v))
		case 0x41: // i32.const
			v, n, err := leb128.LoadInt32(body[pos:])
			if err != nil {
				return artifact.FunctionBody{}, malformed(at, "i32.const: %v", err)
			}
			pos += int(n)
			emit(at, OpI32Const, u32operand(uint32(v)))
		case 0x42: // i64.const
			v, n, err := leb128.LoadInt64(body[pos:])
			if err != nil {
				return artifact.FunctionBody{}, malformed(at, "i64.const: %v", err)
			}
			pos += int(n)
			emit(at, OpI64Const, u64operand(uint64(v)))
		case 0x43: // f32.const
			if pos+4 > len(body) {
				return artifact.FunctionBody{}, malformed(at, "truncated f32.const")
			}
			emit(at, OpF32Const, body[pos:pos+4])
			pos += 4
		case 0x44: // f64.const
			if pos+8 > len(body) {
				return artifact.FunctionBody{}, malformed(at, "truncated f64.const")
			}
			emit(at, OpF64Const, body[pos:pos+8])
			pos += 8
		case 0x6a: // i32.add
			emit(at, OpI32Add, nil)
		case 0x6b: // i32.sub
			emit(at, OpI32Sub, nil)
		case 0x6c: // i32.mul
			emit(at, OpI32Mul, nil)
		case 0x7c: // i64.add
			emit(at, OpI64Add, nil)
		case 0x7d: // i64.sub
			emit(at, OpI64Sub, nil)
		default:
			return artifact.FunctionBody{}, &loader.CompileError{
				Kind: loader.CompileErrWasm,
				Wasm: &loader.WasmError{Unsupported: opcodeName(op)},
			}
		}
	}
	return artifact.FunctionBody{}, malformed(len(body), "function %d not terminated by end", fnIndex)
}

func malformed(at int, format string, args ...any) *loader.CompileError {
	return &loader.CompileError{
		Kind: loader.CompileErrWasm,
		Wasm: &loader.WasmError{Offset: uint64(at), Message: fmt.Sprintf(format, args...)},
	}
}

func opcodeName(op byte) string {
	return "opcode 0x" + hexByte(op)
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}
