package wasm

import (
	"github.com/wasmforge/wasmforge/api"
)

// TableRepr is the backend-specific backing for a Table front object,
// storing a dense vector of reference-typed elements.
type TableRepr interface {
	Type() api.TableType
	Len() uint32
	Get(idx uint32) (api.Value, bool)
	Set(idx uint32, v api.Value) bool
	Grow(delta uint32, fill api.Value) (prevLen uint32, ok bool)
	CopyWithin(dstOffset, srcOffset, length uint32) bool
}

// Table is the backend-neutral front object handle for a table.
type Table struct {
	StoreID    StoreID
	LocalIndex api.LocalTableIndex
	ty         api.TableType
}

// tableRepr is the concrete TableRepr backing every backend uses: tables
// hold api.Value elements (FuncRef/ExternRef) directly, same as memories are
// backed by a plain byte slice regardless of which Engine owns the Store.
type tableRepr struct {
	ty   api.TableType
	elem []api.Value
}

// NewTableRepr allocates a table's element vector, filled with null
// references of the table's element kind.
func NewTableRepr(ty api.TableType) TableRepr {
	elems := make([]api.Value, ty.Min)
	null := nullOf(ty.Element)
	for i := range elems {
		elems[i] = null
	}
	return &tableRepr{ty: ty, elem: elems}
}

func nullOf(kind api.ValueKind) api.Value {
	if kind == api.KindExternRef {
		return api.NullExternRef()
	}
	return api.NullFuncRef()
}

func (t *tableRepr) Type() api.TableType { return t.ty }

func (t *tableRepr) Len() uint32 { return uint32(len(t.elem)) }

func (t *tableRepr) Get(idx uint32) (api.Value, bool) {
	if idx >= uint32(len(t.elem)) {
		return api.Value{}, false
	}
	return t.elem[idx], true
}

func (t *tableRepr) Set(idx uint32, v api.Value) bool {
	if idx >= uint32(len(t.elem)) {
		return false
	}
	t.elem[idx] = v
	return true
}

func (t *tableRepr) Grow(delta uint32, fill api.Value) (uint32, bool) {
	prev := uint32(len(t.elem))
	if delta == 0 {
		return prev, true
	}
	next := prev + delta
	if next < prev {
		return prev, false
	}
	if t.ty.Max != nil && next > *t.ty.Max {
		return prev, false
	}
	grown := make([]api.Value, next)
	copy(grown, t.elem)
	for i := prev; i < next; i++ {
		grown[i] = fill
	}
	t.elem = grown
	return prev, true
}

func (t *tableRepr) CopyWithin(dstOffset, srcOffset, length uint32) bool {
	n := uint64(len(t.elem))
	if uint64(dstOffset)+uint64(length) > n || uint64(srcOffset)+uint64(length) > n {
		return false
	}
	copy(t.elem[dstOffset:uint64(dstOffset)+uint64(length)], t.elem[srcOffset:uint64(srcOffset)+uint64(length)])
	return true
}

// NewTable allocates a table bound to s.
func NewTable(s *Store, ty api.TableType) Table {
	idx := s.Objects().pushTable(NewTableRepr(ty))
	return Table{StoreID: s.ID(), LocalIndex: idx, ty: ty}
}

func (t Table) repr(s AnyStoreRef) (TableRepr, error) {
	st := s.Store()
	if err := checkStore(st, t.StoreID); err != nil {
		return nil, err
	}
	return st.Objects().tables[t.LocalIndex], nil
}

// Type returns the table's descriptor.
func (t Table) Type(s AnyStoreRef) (api.TableType, error) {
	if _, err := t.repr(s); err != nil {
		return api.TableType{}, err
	}
	return t.ty, nil
}

// Size returns the current number of elements.
func (t Table) Size(s AnyStoreRef) (uint32, error) {
	r, err := t.repr(s)
	if err != nil {
		return 0, err
	}
	return r.Len(), nil
}

// Get reads element idx, returning ok=false on out-of-bounds access.
func (t Table) Get(s AnyStoreRef, idx uint32) (api.Value, bool, error) {
	r, err := t.repr(s)
	if err != nil {
		return api.Value{}, false, err
	}
	v, ok := r.Get(idx)
	return v, ok, nil
}

// Set writes element idx, returning ok=false on out-of-bounds access or a
// kind mismatch against the table's element type.
func (t Table) Set(s StoreMut, idx uint32, v api.Value) (bool, error) {
	r, err := t.repr(s)
	if err != nil {
		return false, err
	}
	if v.Kind != t.ty.Element {
		return false, &ExportError{IncompatibleType: true}
	}
	return r.Set(idx, v), nil
}

// Copy moves length elements from src starting at srcOffset into t starting
// at dstOffset. Both tables must belong to s and share an element kind; any
// out-of-range endpoint returns ErrTableOutOfBounds with neither table
// modified.
func (t Table) Copy(s StoreMut, dstOffset uint32, src Table, srcOffset, length uint32) error {
	dstRepr, err := t.repr(s)
	if err != nil {
		return err
	}
	srcRepr, err := src.repr(s)
	if err != nil {
		return err
	}
	if t.ty.Element != src.ty.Element {
		return &ExportError{IncompatibleType: true}
	}
	if uint64(dstOffset)+uint64(length) > uint64(dstRepr.Len()) ||
		uint64(srcOffset)+uint64(length) > uint64(srcRepr.Len()) {
		return ErrTableOutOfBounds
	}
	if dstRepr == srcRepr {
		return boolErr(dstRepr.CopyWithin(dstOffset, srcOffset, length), ErrTableOutOfBounds)
	}
	// Snapshot first so overlapping semantics cannot arise between distinct
	// tables and a partial copy is never observable on error.
	tmp := make([]api.Value, length)
	for i := uint32(0); i < length; i++ {
		v, ok := srcRepr.Get(srcOffset + i)
		if !ok {
			return ErrTableOutOfBounds
		}
		tmp[i] = v
	}
	for i, v := range tmp {
		if !dstRepr.Set(dstOffset+uint32(i), v) {
			return ErrTableOutOfBounds
		}
	}
	return nil
}

func boolErr(ok bool, err error) error {
	if !ok {
		return err
	}
	return nil
}

// Grow increases the table by delta elements, filling new slots with fill.
func (t Table) Grow(s StoreMut, delta uint32, fill api.Value) (uint32, error) {
	r, err := t.repr(s)
	if err != nil {
		return 0, err
	}
	prev, ok := r.Grow(delta, fill)
	if !ok {
		return 0, &MemoryError{Kind: MemoryErrorCouldNotGrow, Current: prev, Attempted: delta}
	}
	return prev, nil
}
