package wasm

import (
	"github.com/wasmforge/wasmforge/api"
)

// GlobalRepr holds one global's live value and type descriptor. Unlike
// Memory/Table, globals need no backend polymorphism: every backend reads
// and writes the same boxed api.Value.
type GlobalRepr struct {
	ty  api.GlobalType
	val api.Value
}

// Global is the backend-neutral front object handle for a global.
type Global struct {
	StoreID    StoreID
	LocalIndex api.LocalGlobalIndex
	ty         api.GlobalType
}

// NewGlobal allocates a global bound to s with its initial value.
func NewGlobal(s *Store, ty api.GlobalType, init api.Value) (Global, error) {
	if init.Kind != ty.Kind {
		return Global{}, &ExportError{IncompatibleType: true}
	}
	idx := s.Objects().pushGlobal(&GlobalRepr{ty: ty, val: init})
	return Global{StoreID: s.ID(), LocalIndex: idx, ty: ty}, nil
}

func (g Global) repr(s AnyStoreRef) (*GlobalRepr, error) {
	st := s.Store()
	if err := checkStore(st, g.StoreID); err != nil {
		return nil, err
	}
	return st.Objects().globals[g.LocalIndex], nil
}

// Type returns the global's descriptor.
func (g Global) Type(s AnyStoreRef) (api.GlobalType, error) {
	if _, err := g.repr(s); err != nil {
		return api.GlobalType{}, err
	}
	return g.ty, nil
}

// Get reads the global's current value.
func (g Global) Get(s AnyStoreRef) (api.Value, error) {
	r, err := g.repr(s)
	if err != nil {
		return api.Value{}, err
	}
	return r.val, nil
}

// Set writes a new value, failing if the global was declared immutable or
// the value's Kind does not match.
func (g Global) Set(s StoreMut, v api.Value) error {
	r, err := g.repr(s)
	if err != nil {
		return err
	}
	if !g.ty.Mutable {
		return &ExportError{IncompatibleType: true}
	}
	if v.Kind != g.ty.Kind {
		return &ExportError{IncompatibleType: true}
	}
	r.val = v
	return nil
}
