package api

import "strings"

// ExternType classifies an import or export.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#external-types
type ExternType byte

const (
	ExternTypeFunc ExternType = iota
	ExternTypeTable
	ExternTypeMemory
	ExternTypeGlobal
	ExternTypeTag
)

func (e ExternType) String() string {
	switch e {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	case ExternTypeTag:
		return "tag"
	default:
		return "unknown"
	}
}

// Index newtypes. Each Wasm index space gets its own type so a Function
// index can never be silently passed where a Table index is expected.
type (
	FunctionIndex      uint32
	LocalFunctionIndex uint32
	TableIndex         uint32
	LocalTableIndex    uint32
	MemoryIndex        uint32
	LocalMemoryIndex   uint32
	GlobalIndex        uint32
	LocalGlobalIndex   uint32
	SignatureIndex     uint32
	TagIndex           uint32
	DataIndex          uint32
	ElementIndex       uint32
	CustomSectionIndex uint32
)

// FuncSig is an ordered list of parameter kinds and an ordered list of
// result kinds. Equality is structural; see internal/sig for interning into
// a compact SharedSigID.
type FuncSig struct {
	Params  []ValueKind
	Results []ValueKind
}

// Equal reports whether two signatures are structurally identical.
func (s FuncSig) Equal(o FuncSig) bool {
	if len(s.Params) != len(o.Params) || len(s.Results) != len(o.Results) {
		return false
	}
	for i, p := range s.Params {
		if p != o.Params[i] {
			return false
		}
	}
	for i, r := range s.Results {
		if r != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders a FuncSig as "(params) -> (results)", used both for
// debugging and as the registry's interning key.
func (s FuncSig) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteString(")->(")
	for i, r := range s.Results {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

// MemoryType describes a memory's limits. Pages are 64 KiB.
type MemoryType struct {
	Min    uint32
	Max    *uint32 // nil means unbounded (up to the implementation max).
	Shared bool
}

// PageSize is the size in bytes of one Wasm linear-memory page.
const PageSize = 65536

// TableType describes a table's element kind and limits.
type TableType struct {
	Element ValueKind // KindFuncRef or KindExternRef
	Min     uint32
	Max     *uint32
}

// GlobalType describes a global's value kind and mutability.
type GlobalType struct {
	Kind    ValueKind
	Mutable bool
}

// Features is a set of enabled Wasm proposal feature flags.
type Features uint64

const (
	FeatureBulkMemoryOperations Features = 1 << iota
	FeatureReferenceTypes
	FeatureSIMD
	FeatureMultiValue
	FeatureExceptionHandling
	FeatureThreads
	FeatureTailCall
)

// Has reports whether all bits in want are set.
func (f Features) Has(want Features) bool { return f&want == want }

// With returns f with the given features enabled, matching the immutable
// builder style used throughout this module's configuration types.
func (f Features) With(add Features) Features { return f | add }

// DefaultFeatures matches the WebAssembly 1.0 (MVP) plus the proposals that
// have since been folded into the Core spec's "recommended" set.
const DefaultFeatures = FeatureBulkMemoryOperations | FeatureReferenceTypes | FeatureMultiValue
