package wasm

import (
	"github.com/wasmforge/wasmforge/api"
)

// byteSliceMemory is the plain-Go []byte MemoryRepr shared by the
// interpreter and native backends.
type byteSliceMemory struct {
	ty     api.MemoryType
	buf    []byte
	shared bool
}

// NewByteSliceMemory constructs the default MemoryRepr used by the
// interpreter and native backends, reallocating on each growth.
func NewByteSliceMemory(ty api.MemoryType) (MemoryRepr, error) {
	if ty.Max != nil && ty.Min > *ty.Max {
		return nil, &MemoryError{Kind: MemoryErrorMinimumTooLarge, Reason: "min exceeds max"}
	}
	return newByteSliceMemory(ty, make([]byte, uint64(ty.Min)*api.PageSize)), nil
}

// NewStaticByteSliceMemory reserves the memory's maximum up front so Grow
// extends in place without moving the backing array; the base pointer a
// VMContext caches therefore stays stable for the memory's lifetime. Only
// valid for bounded memories.
func NewStaticByteSliceMemory(ty api.MemoryType) (MemoryRepr, error) {
	if ty.Max == nil {
		return NewByteSliceMemory(ty)
	}
	if ty.Min > *ty.Max {
		return nil, &MemoryError{Kind: MemoryErrorMinimumTooLarge, Reason: "min exceeds max"}
	}
	buf := make([]byte, uint64(ty.Min)*api.PageSize, uint64(*ty.Max)*api.PageSize)
	return newByteSliceMemory(ty, buf), nil
}

func newByteSliceMemory(ty api.MemoryType, buf []byte) *byteSliceMemory {
	return &byteSliceMemory{ty: ty, buf: buf, shared: ty.Shared}
}

func (m *byteSliceMemory) Type() api.MemoryType { return m.ty }

func (m *byteSliceMemory) SizePages() uint32 { return uint32(uint64(len(m.buf)) / api.PageSize) }

func (m *byteSliceMemory) DataSize() uint32 { return uint32(len(m.buf)) }

func (m *byteSliceMemory) Grow(deltaPages uint32) (prevPages uint32, ok bool) {
	prev := m.SizePages()
	if deltaPages == 0 {
		return prev, true
	}
	next := prev + deltaPages
	if next < prev { // overflow
		return prev, false
	}
	if m.ty.Max != nil && next > *m.ty.Max {
		return prev, false
	}
	nextBytes := uint64(next) * api.PageSize
	if nextBytes <= uint64(cap(m.buf)) {
		m.buf = m.buf[:nextBytes]
		return prev, true
	}
	grown := make([]byte, nextBytes)
	copy(grown, m.buf)
	m.buf = grown
	return prev, true
}

func (m *byteSliceMemory) ReadAt(dst []byte, offset uint32) bool {
	end := uint64(offset) + uint64(len(dst))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(dst, m.buf[offset:end])
	return true
}

func (m *byteSliceMemory) WriteAt(src []byte, offset uint32) bool {
	end := uint64(offset) + uint64(len(src))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:end], src)
	return true
}

func (m *byteSliceMemory) RawBytes() ([]byte, bool) { return m.buf, true }

func (m *byteSliceMemory) TryClone() (MemoryRepr, error) {
	if !m.shared {
		return nil, &MemoryError{Kind: MemoryErrorNotShared}
	}
	// A genuinely shared clone aliases the same backing slice header; Go
	// slices already alias their backing array, so handing back a second
	// *byteSliceMemory over the same buf gives both instances a view onto
	// the same underlying buffer. Growth must then be coordinated through
	// the owning Store.
	return &byteSliceMemory{ty: m.ty, buf: m.buf, shared: true}, nil
}
