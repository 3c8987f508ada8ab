package wasm

import (
	"github.com/wasmforge/wasmforge/api"
)

// Extern is the closed sum of everything an Instance can import or export.
// Exactly one of the fields is populated; Kind reports which.
type Extern struct {
	Kind api.ExternType

	Func   Function
	Table  Table
	Memory Memory
	Global Global
}

func FuncExtern(f Function) Extern { return Extern{Kind: api.ExternTypeFunc, Func: f} }
func TableExtern(t Table) Extern   { return Extern{Kind: api.ExternTypeTable, Table: t} }
func MemoryExtern(m Memory) Extern { return Extern{Kind: api.ExternTypeMemory, Memory: m} }
func GlobalExtern(g Global) Extern { return Extern{Kind: api.ExternTypeGlobal, Global: g} }

// Imports is the caller-supplied resolution for one module's import section,
// keyed the same way the binary format names them.
type Imports struct {
	entries map[string]map[string]Extern
}

func NewImports() *Imports {
	return &Imports{entries: make(map[string]map[string]Extern)}
}

// Define registers one import under (module, field), overwriting any prior
// entry under the same key; the last definition wins.
func (im *Imports) Define(module, field string, e Extern) {
	byField, ok := im.entries[module]
	if !ok {
		byField = make(map[string]Extern)
		im.entries[module] = byField
	}
	byField[field] = e
}

func (im *Imports) lookup(module, field string) (Extern, bool) {
	byField, ok := im.entries[module]
	if !ok {
		return Extern{}, false
	}
	e, ok := byField[field]
	return e, ok
}

// Exports is the resolved export surface of an instantiated module,
// addressable by export name.
type Exports struct {
	byName map[string]Extern
	order  []string
}

func newExports() *Exports {
	return &Exports{byName: make(map[string]Extern)}
}

func (ex *Exports) define(name string, e Extern) {
	if _, exists := ex.byName[name]; !exists {
		ex.order = append(ex.order, name)
	}
	ex.byName[name] = e
}

// Get looks up an export by name, returning an *ExportError if absent or of
// the wrong ExternType.
func (ex *Exports) Get(name string, want api.ExternType) (Extern, error) {
	e, ok := ex.byName[name]
	if !ok {
		return Extern{}, &ExportError{Name: name, Missing: true}
	}
	if e.Kind != want {
		return Extern{}, &ExportError{Name: name, IncompatibleType: true}
	}
	return e, nil
}

// Names returns export names in declaration order.
func (ex *Exports) Names() []string {
	out := make([]string, len(ex.order))
	copy(out, ex.order)
	return out
}

// ImportBacking is the flattened, index-space-ordered view of an Instance's
// resolved imports, consumed by Engine.NewModuleEngine to wire call sites
// without re-walking the Imports map on every call.
type ImportBacking struct {
	Funcs   []Function
	Tables  []Table
	Memories []Memory
	Globals []Global
}
