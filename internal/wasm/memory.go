package wasm

import (
	"github.com/wasmforge/wasmforge/api"
)

// MemoryRepr is the backend-specific backing for a Memory front object.
// internal/engine/interpreter backs this with a plain Go []byte;
// internal/engine/hostjs backs it with a proxy to a host
// WebAssembly.Memory and declines RawBytes.
type MemoryRepr interface {
	Type() api.MemoryType
	SizePages() uint32
	DataSize() uint32
	Grow(deltaPages uint32) (prevPages uint32, ok bool)
	ReadAt(dst []byte, offset uint32) bool
	WriteAt(src []byte, offset uint32) bool
	// RawBytes returns the live backing slice and true if this backend
	// supports raw pointer access.
	RawBytes() ([]byte, bool)
	// TryClone succeeds only for shared memories on a backend that
	// supports sharing).
	TryClone() (MemoryRepr, error)
}

// Memory is the backend-neutral front object handle.
type Memory struct {
	StoreID    StoreID
	LocalIndex api.LocalMemoryIndex
	ty         api.MemoryType
}

// NewMemory allocates a MemoryRepr via alloc and returns a handle bound to
// s.
func NewMemory(s *Store, ty api.MemoryType, alloc func(api.MemoryType) (MemoryRepr, error)) (Memory, error) {
	repr, err := alloc(ty)
	if err != nil {
		return Memory{}, err
	}
	idx := s.Objects().pushMemory(repr)
	return Memory{StoreID: s.ID(), LocalIndex: idx, ty: ty}, nil
}

// MemoryReprFor exposes Memory's backing MemoryRepr to internal/memview,
// which needs raw, backend-specific byte access that the rest of this
// package's front-object API deliberately hides.
func MemoryReprFor(m Memory, s AnyStoreRef) (MemoryRepr, error) { return m.repr(s) }

func (m Memory) repr(s AnyStoreRef) (MemoryRepr, error) {
	st := s.Store()
	if err := checkStore(st, m.StoreID); err != nil {
		return nil, err
	}
	return st.Objects().memories[m.LocalIndex], nil
}

// Type returns the memory's descriptor.
func (m Memory) Type(s AnyStoreRef) (api.MemoryType, error) {
	if _, err := m.repr(s); err != nil {
		return api.MemoryType{}, err
	}
	return m.ty, nil
}

// Size returns the current size in pages.
func (m Memory) Size(s AnyStoreRef) (uint32, error) {
	r, err := m.repr(s)
	if err != nil {
		return 0, err
	}
	return r.SizePages(), nil
}

// Grow increases memory by deltaPages, returning the previous page count.
func (m Memory) Grow(s StoreMut, deltaPages uint32) (uint32, error) {
	r, err := m.repr(s)
	if err != nil {
		return 0, err
	}
	prev, ok := r.Grow(deltaPages)
	if !ok {
		return 0, &MemoryError{Kind: MemoryErrorCouldNotGrow, Current: prev, Attempted: deltaPages}
	}
	return prev, nil
}

// TryClone succeeds only for shared memories whose backend declares sharing
// support.
func (m Memory) TryClone(s AnyStoreRef) (MemoryRepr, error) {
	r, err := m.repr(s)
	if err != nil {
		return nil, err
	}
	if !m.ty.Shared {
		return nil, &MemoryError{Kind: MemoryErrorNotShared}
	}
	return r.TryClone()
}

// TryCopy always succeeds for host-capable backends: it makes a fresh byte
// copy regardless of sharing.
func (m Memory) TryCopy(s AnyStoreRef) (MemoryRepr, error) {
	r, err := m.repr(s)
	if err != nil {
		return nil, err
	}
	raw, ok := r.RawBytes()
	if !ok {
		return nil, &MemoryError{Kind: MemoryErrorUnsupportedOperation, Reason: "backend does not expose raw bytes to copy"}
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return newByteSliceMemory(m.ty, cp), nil
}
