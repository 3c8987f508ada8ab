package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"

	"github.com/wasmforge/wasmforge/api"
)

// RelocationKind classifies a relocation applied at load time.
type RelocationKind byte

const (
	RelocationCallPCRel32 RelocationKind = iota
	RelocationAbsolute64
	RelocationLibcall
)

// Relocation is one fixup to apply once function bodies have been copied
// into code memory.
type Relocation struct {
	Kind           RelocationKind
	OffsetInBody   uint32
	TargetSection  int  // index into Artifact.FunctionBodies, or -1 for a libcall target
	LibcallName    string
	Addend         int64
}

// FunctionBody is one local function's executable bytes, as produced by a
// Compiler.
type FunctionBody struct {
	Code        []byte
	// Locals lists the function's declared (non-parameter) locals, which
	// the portable evaluator zero-initializes at call entry.
	Locals      []api.ValueKind
	Relocations []Relocation
	// Win64Unwind, when non-nil, is copied immediately after Code at a
	// 4-byte aligned offset.
	Win64Unwind []byte
	// SourceLocations maps a code offset to a Wasm-binary offset, used by
	// the frame-info registry to symbolicate traps.
	SourceLocations []SourceLocation
}

// SourceLocation correlates a native code offset with a position in the
// original Wasm binary.
type SourceLocation struct {
	CodeOffset uint32
	WasmOffset uint32
}

// Artifact is a ModuleInfo plus everything needed to load it into executable
// memory and call into it.
type Artifact struct {
	Info *ModuleInfo

	// FunctionBodies is index-correlated with local functions.
	FunctionBodies []FunctionBody

	// CallTrampolines is keyed by module-level SignatureIndex; the loader
	// asks the Compiler for one entry per signature the module declares.
	CallTrampolines map[api.SignatureIndex]FunctionBody

	// DynamicTrampolines has one host-callable stub per imported function,
	// used when the host needs to call back into an import's resolved
	// Extern.
	DynamicTrampolines map[api.FunctionIndex]FunctionBody

	CustomSections []CustomSection

	// Backend identifies which engine produced this artifact; checked on
	// deserialization so an artifact never loads into the wrong engine.
	Backend string

	// RawBinary retains the original module bytes for backends that proxy
	// compilation to a host engine instead of consuming FunctionBodies.
	RawBinary []byte
}

// Header is the on-disk framing for a serialized Artifact.
const (
	magic          = "WASMFORGE01" // 11 ASCII bytes
	formatVersion  = byte(1)
)

// DeserializeError reports a failure to load a previously serialized
// Artifact.
type DeserializeError struct {
	Reason        string
	Incompatible  bool
}

func (e *DeserializeError) Error() string { return "artifact: deserialize failed: " + e.Reason }

// TargetTriple is the host OS/arch pair a native artifact was compiled for.
// Non-native backends (interpreter, hostjs) use "any" because their
// artifacts are portable.
func TargetTriple(backend string) string {
	if backend == "native" {
		return fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
	}
	return "any"
}

// Envelope is the deserialized form of a stored artifact: everything a
// compatible engine needs to reassemble an Artifact without recompiling.
// Structural metadata is recovered by re-decoding RawBinary, which is
// cheap compared to compilation and keeps the framing free of a second
// encoding of ModuleInfo.
type Envelope struct {
	Backend        string
	Target         string
	RawBinary      []byte
	FunctionBodies []FunctionBody
	CustomSections []CustomSection
}

// Serialize writes the self-describing framing: magic, format version,
// target triple, backend name, then the length-prefixed payload blobs.
func Serialize(a *Artifact) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(formatVersion)
	writeString(&buf, TargetTriple(a.Backend))
	writeString(&buf, a.Backend)
	writeBytes(&buf, a.RawBinary)

	writeUint32(&buf, uint32(len(a.FunctionBodies)))
	for _, fb := range a.FunctionBodies {
		writeBytes(&buf, fb.Code)
		writeUint32(&buf, uint32(len(fb.Locals)))
		for _, k := range fb.Locals {
			buf.WriteByte(byte(k))
		}
		writeUint32(&buf, uint32(len(fb.SourceLocations)))
		for _, loc := range fb.SourceLocations {
			writeUint32(&buf, loc.CodeOffset)
			writeUint32(&buf, loc.WasmOffset)
		}
	}
	writeUint32(&buf, uint32(len(a.CustomSections)))
	for _, cs := range a.CustomSections {
		writeString(&buf, cs.Name)
		writeBytes(&buf, cs.Data)
		if cs.ReadExec {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes(), nil
}

// Deserialize reconstructs an Envelope from bytes produced by Serialize,
// rejecting wrong magic, wrong format version, and native artifacts built
// for another OS/arch as Incompatible.
func Deserialize(data []byte) (*Envelope, error) {
	if len(data) < len(magic)+1 {
		return nil, &DeserializeError{Reason: "truncated header", Incompatible: true}
	}
	if string(data[:len(magic)]) != magic {
		return nil, &DeserializeError{Reason: "bad magic", Incompatible: true}
	}
	r := bytes.NewReader(data[len(magic):])
	version, err := r.ReadByte()
	if err != nil {
		return nil, &DeserializeError{Reason: "truncated version", Incompatible: true}
	}
	if version != formatVersion {
		return nil, &DeserializeError{Reason: fmt.Sprintf("format version %d != %d", version, formatVersion), Incompatible: true}
	}
	env := &Envelope{}
	if env.Target, err = readString(r); err != nil {
		return nil, &DeserializeError{Reason: "truncated target", Incompatible: true}
	}
	if env.Backend, err = readString(r); err != nil {
		return nil, &DeserializeError{Reason: "truncated backend", Incompatible: true}
	}
	if env.Backend == "native" && env.Target != TargetTriple("native") {
		return nil, &DeserializeError{Reason: fmt.Sprintf("target %s != host %s", env.Target, TargetTriple("native")), Incompatible: true}
	}
	if env.RawBinary, err = readBytes(r); err != nil {
		return nil, &DeserializeError{Reason: "truncated module binary"}
	}

	n, err := readUint32(r)
	if err != nil {
		return nil, &DeserializeError{Reason: "truncated body count"}
	}
	env.FunctionBodies = make([]FunctionBody, n)
	for i := range env.FunctionBodies {
		fb := &env.FunctionBodies[i]
		if fb.Code, err = readBytes(r); err != nil {
			return nil, &DeserializeError{Reason: "truncated body"}
		}
		nl, err := readUint32(r)
		if err != nil {
			return nil, &DeserializeError{Reason: "truncated locals count"}
		}
		fb.Locals = make([]api.ValueKind, nl)
		for j := range fb.Locals {
			b, err := r.ReadByte()
			if err != nil {
				return nil, &DeserializeError{Reason: "truncated locals"}
			}
			fb.Locals[j] = api.ValueKind(b)
		}
		ns, err := readUint32(r)
		if err != nil {
			return nil, &DeserializeError{Reason: "truncated source location count"}
		}
		fb.SourceLocations = make([]SourceLocation, ns)
		for j := range fb.SourceLocations {
			if fb.SourceLocations[j].CodeOffset, err = readUint32(r); err != nil {
				return nil, &DeserializeError{Reason: "truncated source locations"}
			}
			if fb.SourceLocations[j].WasmOffset, err = readUint32(r); err != nil {
				return nil, &DeserializeError{Reason: "truncated source locations"}
			}
		}
	}

	cn, err := readUint32(r)
	if err != nil {
		return nil, &DeserializeError{Reason: "truncated custom section count"}
	}
	env.CustomSections = make([]CustomSection, cn)
	for i := range env.CustomSections {
		name, err := readString(r)
		if err != nil {
			return nil, &DeserializeError{Reason: "truncated custom section name"}
		}
		data, err := readBytes(r)
		if err != nil {
			return nil, &DeserializeError{Reason: "truncated custom section data"}
		}
		flag, err := r.ReadByte()
		if err != nil {
			return nil, &DeserializeError{Reason: "truncated custom section flag"}
		}
		env.CustomSections[i] = CustomSection{Name: name, Data: data, ReadExec: flag == 1}
	}
	return env, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
