// Package artifact defines the compiled-module representation consumed by
// the backend dispatch layer: an immutable ModuleInfo (structural
// description) plus an Artifact (ModuleInfo + executable bodies,
// trampolines, relocations and custom sections).
package artifact

import "github.com/wasmforge/wasmforge/api"

// Import describes one entry of a module's import section.
type Import struct {
	Module, Field string
	Type          api.ExternType
	FuncSigIndex  api.SignatureIndex // valid when Type == ExternTypeFunc
	Memory        api.MemoryType     // valid when Type == ExternTypeMemory
	Table         api.TableType      // valid when Type == ExternTypeTable
	Global        api.GlobalType     // valid when Type == ExternTypeGlobal
}

// Export maps an export name to an index in the combined (import+defined)
// index space of the given type.
type Export struct {
	Name  string
	Type  api.ExternType
	Index uint32
}

// ConstExpr is a constant initializer expression: either a literal value or
// a global.get of an imported global.
type ConstExpr struct {
	Literal    *api.Value
	GlobalGet  *api.GlobalIndex
}

// DataSegment is passive, or active against a memory at a computed offset.
type DataSegment struct {
	Passive bool
	Memory  api.LocalMemoryIndex
	Offset  ConstExpr
	Bytes   []byte
}

// ElementSegment is passive, or active against a table at a computed offset.
type ElementSegment struct {
	Passive bool
	Table   api.LocalTableIndex
	Offset  ConstExpr
	// Entries holds function indices; a nil entry is a null funcref.
	Entries []*api.FunctionIndex
}

// CustomSection is a named, opaque payload from the Wasm binary. Protection
// indicates whether the compiler wants it mapped read-only or
// read-execute.
type CustomSection struct {
	Name       string
	Data       []byte
	ReadExec   bool
}

// ModuleInfo is the immutable structural description of a compiled module.
type ModuleInfo struct {
	Name string

	Signatures []api.FuncSig

	Imports []Import
	Exports []Export

	// FunctionSignatures is index-correlated with local (non-imported)
	// functions, pointing into Signatures.
	FunctionSignatures []api.SignatureIndex

	Memories []api.MemoryType
	Tables   []api.TableType

	Globals     []api.GlobalType
	GlobalInit  []ConstExpr

	StartFunction *api.FunctionIndex

	DataSegments    []DataSegment
	ElementSegments []ElementSegment

	CustomSections []CustomSection
}

// NumImportedFunctions reports how many Imports are functions, which is
// also the offset at which local function indices begin in the combined
// index space.
func (m *ModuleInfo) NumImportedFunctions() int {
	n := 0
	for _, i := range m.Imports {
		if i.Type == api.ExternTypeFunc {
			n++
		}
	}
	return n
}

// FindExport returns the export entry with the given name and type, or
// false if absent or of a different type.
func (m *ModuleInfo) FindExport(name string, t api.ExternType) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name && e.Type == t {
			return e, true
		}
	}
	return Export{}, false
}
