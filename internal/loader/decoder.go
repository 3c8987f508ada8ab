// Package loader parses and validates WebAssembly binary modules, producing
// the immutable artifact.ModuleInfo the rest of the runtime consumes, and
// drives a configured Compiler to turn decoded function bodies into an
// executable Artifact.
package loader

import (
	"encoding/binary"
	"math"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/leb128"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

const (
	sectionCustom   = 0
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionTable    = 4
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionStart    = 8
	sectionElement  = 9
	sectionCode     = 10
	sectionData     = 11
	sectionDataCnt  = 12
)

// reader tracks a cursor into a byte buffer so errors can report the offset
// they occurred at. A reader over one section's payload starts at 0, so its
// offsets are relative to that payload, not to the module binary.
type reader struct {
	buf []byte
	pos uint64
}

func (r *reader) len() uint64 { return uint64(len(r.buf)) }

func (r *reader) eof() bool { return r.pos >= r.len() }

func (r *reader) byte() (byte, error) {
	if r.eof() {
		return 0, wasmErr(r.pos, "unexpected end of input")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n uint64) ([]byte, error) {
	if r.pos+n > r.len() || r.pos+n < r.pos {
		return nil, wasmErr(r.pos, "unexpected end of input (need %d bytes)", n)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) u32() (uint32, error) {
	v, n, err := leb128.LoadUint32(r.buf[r.pos:])
	if err != nil {
		return 0, wasmErr(r.pos, "bad u32: %v", err)
	}
	r.pos += n
	return v, nil
}

func (r *reader) i32() (int32, error) {
	v, n, err := leb128.LoadInt32(r.buf[r.pos:])
	if err != nil {
		return 0, wasmErr(r.pos, "bad i32: %v", err)
	}
	r.pos += n
	return v, nil
}

func (r *reader) i64() (int64, error) {
	v, n, err := leb128.LoadInt64(r.buf[r.pos:])
	if err != nil {
		return 0, wasmErr(r.pos, "bad i64: %v", err)
	}
	r.pos += n
	return v, nil
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(uint64(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func valueKind(b byte, at uint64) (api.ValueKind, error) {
	switch b {
	case 0x7f:
		return api.KindI32, nil
	case 0x7e:
		return api.KindI64, nil
	case 0x7d:
		return api.KindF32, nil
	case 0x7c:
		return api.KindF64, nil
	case 0x7b:
		return api.KindV128, nil
	case 0x70:
		return api.KindFuncRef, nil
	case 0x6f:
		return api.KindExternRef, nil
	default:
		return 0, wasmErr(at, "unknown value type 0x%x", b)
	}
}

func (r *reader) valueKind() (api.ValueKind, error) {
	at := r.pos
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	return valueKind(b, at)
}

func (r *reader) kindVec() ([]api.ValueKind, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]api.ValueKind, n)
	for i := range out {
		if out[i], err = r.valueKind(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *reader) limits() (min uint32, max *uint32, shared bool, err error) {
	at := r.pos
	flag, err := r.byte()
	if err != nil {
		return 0, nil, false, err
	}
	if flag > 0x03 {
		return 0, nil, false, wasmErr(at, "unknown limits flag 0x%x", flag)
	}
	if min, err = r.u32(); err != nil {
		return 0, nil, false, err
	}
	if flag&0x01 != 0 {
		m, err := r.u32()
		if err != nil {
			return 0, nil, false, err
		}
		max = &m
	}
	shared = flag&0x02 != 0
	return min, max, shared, nil
}

// constExpr decodes one of the limited initializer expressions allowed in
// global initializers and active segment offsets.
func (r *reader) constExpr() (artifact.ConstExpr, error) {
	at := r.pos
	op, err := r.byte()
	if err != nil {
		return artifact.ConstExpr{}, err
	}
	var ce artifact.ConstExpr
	switch op {
	case 0x41: // i32.const
		v, err := r.i32()
		if err != nil {
			return ce, err
		}
		lit := api.I32(v)
		ce.Literal = &lit
	case 0x42: // i64.const
		v, err := r.i64()
		if err != nil {
			return ce, err
		}
		lit := api.I64(v)
		ce.Literal = &lit
	case 0x43: // f32.const
		b, err := r.bytes(4)
		if err != nil {
			return ce, err
		}
		lit := api.F32(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		ce.Literal = &lit
	case 0x44: // f64.const
		b, err := r.bytes(8)
		if err != nil {
			return ce, err
		}
		lit := api.F64(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		ce.Literal = &lit
	case 0x23: // global.get
		idx, err := r.u32()
		if err != nil {
			return ce, err
		}
		gi := api.GlobalIndex(idx)
		ce.GlobalGet = &gi
	case 0xd0: // ref.null
		kind, err := r.valueKind()
		if err != nil {
			return ce, err
		}
		var lit api.Value
		if kind == api.KindExternRef {
			lit = api.NullExternRef()
		} else {
			lit = api.NullFuncRef()
		}
		ce.Literal = &lit
	default:
		return ce, wasmErr(at, "unsupported constant expression opcode 0x%x", op)
	}
	at = r.pos
	end, err := r.byte()
	if err != nil {
		return ce, err
	}
	if end != 0x0b {
		return ce, wasmErr(at, "constant expression not terminated (got 0x%x)", end)
	}
	return ce, nil
}

// DecodeModule parses a binary module into its structural description plus
// the raw code-section entries for a Compiler.
func DecodeModule(bin []byte, features api.Features) (*artifact.ModuleInfo, []RawFunction, error) {
	r := &reader{buf: bin}
	magic, err := r.bytes(8)
	if err != nil {
		return nil, nil, wasmErr(0, "truncated preamble")
	}
	for i, b := range wasmMagic {
		if magic[i] != b {
			return nil, nil, wasmErr(uint64(i), "invalid magic or version")
		}
	}

	info := &artifact.ModuleInfo{}
	var funcs []RawFunction
	var funcSigs []api.SignatureIndex
	lastSection := byte(0)

	for !r.eof() {
		secAt := r.pos
		id, err := r.byte()
		if err != nil {
			return nil, nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, nil, err
		}
		payload, err := r.bytes(uint64(size))
		if err != nil {
			return nil, nil, err
		}
		if id != sectionCustom {
			if id <= lastSection {
				return nil, nil, wasmErr(secAt, "section 0x%x out of order", id)
			}
			lastSection = id
		}
		sr := &reader{buf: payload, pos: 0}

		switch id {
		case sectionCustom:
			name, err := sr.name()
			if err != nil {
				return nil, nil, err
			}
			rest := payload[sr.pos:]
			data := make([]byte, len(rest))
			copy(data, rest)
			info.CustomSections = append(info.CustomSections, artifact.CustomSection{Name: name, Data: data})
		case sectionType:
			if err := decodeTypeSection(sr, info); err != nil {
				return nil, nil, err
			}
		case sectionImport:
			if err := decodeImportSection(sr, info); err != nil {
				return nil, nil, err
			}
		case sectionFunction:
			n, err := sr.u32()
			if err != nil {
				return nil, nil, err
			}
			funcSigs = make([]api.SignatureIndex, n)
			for i := range funcSigs {
				idx, err := sr.u32()
				if err != nil {
					return nil, nil, err
				}
				funcSigs[i] = api.SignatureIndex(idx)
			}
			info.FunctionSignatures = funcSigs
		case sectionTable:
			n, err := sr.u32()
			if err != nil {
				return nil, nil, err
			}
			for i := uint32(0); i < n; i++ {
				elem, err := sr.valueKind()
				if err != nil {
					return nil, nil, err
				}
				min, max, _, err := sr.limits()
				if err != nil {
					return nil, nil, err
				}
				info.Tables = append(info.Tables, api.TableType{Element: elem, Min: min, Max: max})
			}
		case sectionMemory:
			n, err := sr.u32()
			if err != nil {
				return nil, nil, err
			}
			for i := uint32(0); i < n; i++ {
				min, max, shared, err := sr.limits()
				if err != nil {
					return nil, nil, err
				}
				info.Memories = append(info.Memories, api.MemoryType{Min: min, Max: max, Shared: shared})
			}
		case sectionGlobal:
			n, err := sr.u32()
			if err != nil {
				return nil, nil, err
			}
			for i := uint32(0); i < n; i++ {
				kind, err := sr.valueKind()
				if err != nil {
					return nil, nil, err
				}
				mut, err := sr.byte()
				if err != nil {
					return nil, nil, err
				}
				init, err := sr.constExpr()
				if err != nil {
					return nil, nil, err
				}
				info.Globals = append(info.Globals, api.GlobalType{Kind: kind, Mutable: mut == 1})
				info.GlobalInit = append(info.GlobalInit, init)
			}
		case sectionExport:
			if err := decodeExportSection(sr, info); err != nil {
				return nil, nil, err
			}
		case sectionStart:
			idx, err := sr.u32()
			if err != nil {
				return nil, nil, err
			}
			fi := api.FunctionIndex(idx)
			info.StartFunction = &fi
		case sectionElement:
			if err := decodeElementSection(sr, info); err != nil {
				return nil, nil, err
			}
		case sectionCode:
			funcs, err = decodeCodeSection(sr, r.pos-uint64(size))
			if err != nil {
				return nil, nil, err
			}
		case sectionData:
			if err := decodeDataSection(sr, info); err != nil {
				return nil, nil, err
			}
		case sectionDataCnt:
			if !features.Has(api.FeatureBulkMemoryOperations) {
				return nil, nil, unsupportedErr("data count section (bulk memory disabled)")
			}
			if _, err := sr.u32(); err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, wasmErr(secAt, "unknown section id 0x%x", id)
		}
	}

	if len(funcs) != len(info.FunctionSignatures) {
		return nil, nil, wasmErr(r.pos, "code section has %d entries but function section declares %d", len(funcs), len(info.FunctionSignatures))
	}
	return info, funcs, nil
}

func decodeTypeSection(r *reader, info *artifact.ModuleInfo) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		at := r.pos
		form, err := r.byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return wasmErr(at, "type %d is not a function type (0x%x)", i, form)
		}
		params, err := r.kindVec()
		if err != nil {
			return err
		}
		results, err := r.kindVec()
		if err != nil {
			return err
		}
		info.Signatures = append(info.Signatures, api.FuncSig{Params: params, Results: results})
	}
	return nil
}

func decodeImportSection(r *reader, info *artifact.ModuleInfo) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		mod, err := r.name()
		if err != nil {
			return err
		}
		field, err := r.name()
		if err != nil {
			return err
		}
		at := r.pos
		kind, err := r.byte()
		if err != nil {
			return err
		}
		imp := artifact.Import{Module: mod, Field: field}
		switch kind {
		case 0x00:
			idx, err := r.u32()
			if err != nil {
				return err
			}
			imp.Type = api.ExternTypeFunc
			imp.FuncSigIndex = api.SignatureIndex(idx)
		case 0x01:
			elem, err := r.valueKind()
			if err != nil {
				return err
			}
			min, max, _, err := r.limits()
			if err != nil {
				return err
			}
			imp.Type = api.ExternTypeTable
			imp.Table = api.TableType{Element: elem, Min: min, Max: max}
		case 0x02:
			min, max, shared, err := r.limits()
			if err != nil {
				return err
			}
			imp.Type = api.ExternTypeMemory
			imp.Memory = api.MemoryType{Min: min, Max: max, Shared: shared}
		case 0x03:
			gk, err := r.valueKind()
			if err != nil {
				return err
			}
			mut, err := r.byte()
			if err != nil {
				return err
			}
			imp.Type = api.ExternTypeGlobal
			imp.Global = api.GlobalType{Kind: gk, Mutable: mut == 1}
		default:
			return wasmErr(at, "unknown import kind 0x%x", kind)
		}
		info.Imports = append(info.Imports, imp)
	}
	return nil
}

func decodeExportSection(r *reader, info *artifact.ModuleInfo) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := r.name()
		if err != nil {
			return err
		}
		at := r.pos
		kind, err := r.byte()
		if err != nil {
			return err
		}
		idx, err := r.u32()
		if err != nil {
			return err
		}
		var t api.ExternType
		switch kind {
		case 0x00:
			t = api.ExternTypeFunc
		case 0x01:
			t = api.ExternTypeTable
		case 0x02:
			t = api.ExternTypeMemory
		case 0x03:
			t = api.ExternTypeGlobal
		default:
			return wasmErr(at, "unknown export kind 0x%x", kind)
		}
		info.Exports = append(info.Exports, artifact.Export{Name: name, Type: t, Index: idx})
	}
	return nil
}

func decodeElementSection(r *reader, info *artifact.ModuleInfo) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		at := r.pos
		flavor, err := r.u32()
		if err != nil {
			return err
		}
		seg := artifact.ElementSegment{}
		switch flavor {
		case 0: // active, table 0, offset expr, vector of function indices
			off, err := r.constExpr()
			if err != nil {
				return err
			}
			seg.Offset = off
		case 1: // passive, elemkind + vector of function indices
			kind, err := r.byte()
			if err != nil {
				return err
			}
			if kind != 0x00 {
				return wasmErr(at, "unsupported element kind 0x%x", kind)
			}
			seg.Passive = true
		default:
			return unsupportedErr("element segment encoding")
		}
		cnt, err := r.u32()
		if err != nil {
			return err
		}
		seg.Entries = make([]*api.FunctionIndex, cnt)
		for j := uint32(0); j < cnt; j++ {
			idx, err := r.u32()
			if err != nil {
				return err
			}
			fi := api.FunctionIndex(idx)
			seg.Entries[j] = &fi
		}
		info.ElementSegments = append(info.ElementSegments, seg)
	}
	return nil
}

func decodeCodeSection(r *reader, sectionStart uint64) ([]RawFunction, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]RawFunction, n)
	for i := uint32(0); i < n; i++ {
		size, err := r.u32()
		if err != nil {
			return nil, err
		}
		entryEnd := r.pos + uint64(size)
		bodyStart := r.pos

		nLocalDecls, err := r.u32()
		if err != nil {
			return nil, err
		}
		var locals []api.ValueKind
		for j := uint32(0); j < nLocalDecls; j++ {
			cnt, err := r.u32()
			if err != nil {
				return nil, err
			}
			kind, err := r.valueKind()
			if err != nil {
				return nil, err
			}
			if uint64(len(locals))+uint64(cnt) > 1<<16 {
				return nil, &CompileError{Kind: CompileErrWasm, Wasm: &WasmError{Message: "too many locals", ImplLimitExceeded: true}}
			}
			for k := uint32(0); k < cnt; k++ {
				locals = append(locals, kind)
			}
		}
		if r.pos > entryEnd {
			return nil, wasmErr(bodyStart, "code entry %d overruns its declared size", i)
		}
		bodyAt := r.pos
		body, err := r.bytes(entryEnd - r.pos)
		if err != nil {
			return nil, err
		}
		out[i] = RawFunction{Locals: locals, Body: body, WasmOffset: uint32(sectionStart + bodyAt)}
	}
	return out, nil
}

func decodeDataSection(r *reader, info *artifact.ModuleInfo) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flavor, err := r.u32()
		if err != nil {
			return err
		}
		seg := artifact.DataSegment{}
		switch flavor {
		case 0: // active, memory 0
			off, err := r.constExpr()
			if err != nil {
				return err
			}
			seg.Offset = off
		case 1: // passive
			seg.Passive = true
		case 2: // active with explicit memory index
			idx, err := r.u32()
			if err != nil {
				return err
			}
			seg.Memory = api.LocalMemoryIndex(idx)
			off, err := r.constExpr()
			if err != nil {
				return err
			}
			seg.Offset = off
		default:
			return unsupportedErr("data segment encoding")
		}
		cnt, err := r.u32()
		if err != nil {
			return err
		}
		b, err := r.bytes(uint64(cnt))
		if err != nil {
			return err
		}
		data := make([]byte, len(b))
		copy(data, b)
		seg.Bytes = data
		info.DataSegments = append(info.DataSegments, seg)
	}
	return nil
}
