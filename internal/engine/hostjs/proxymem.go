// Package hostjs proxies execution to the host JavaScript engine's own
// WebAssembly implementation. The engine itself is only compiled into
// js/wasm builds; elsewhere the backend registry never lists "hostjs",
// which is how backend availability is feature-gated throughout this
// module. The proxy memory representation below is portable so its
// contract (no raw pointer access) is exercised by tests on every
// platform.
package hostjs

import (
	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

// ProxyMemory is a wasm.MemoryRepr whose bytes live on the far side of a
// host boundary: all access goes through read/write callbacks, and raw
// pointer access is declined. Growth is delegated to the host object.
type ProxyMemory struct {
	ty api.MemoryType

	// SizeFn reports the current size in pages.
	SizeFn func() uint32
	// GrowFn grows by delta pages, returning the previous page count and
	// whether the host accepted the growth.
	GrowFn func(delta uint32) (uint32, bool)
	// ReadFn copies length bytes at offset into dst, reporting in-bounds.
	ReadFn func(dst []byte, offset uint32) bool
	// WriteFn copies src to offset, reporting in-bounds.
	WriteFn func(src []byte, offset uint32) bool
}

// NewProxyMemory builds a ProxyMemory over host callbacks.
func NewProxyMemory(ty api.MemoryType) *ProxyMemory {
	return &ProxyMemory{ty: ty}
}

func (m *ProxyMemory) Type() api.MemoryType { return m.ty }

func (m *ProxyMemory) SizePages() uint32 {
	if m.SizeFn == nil {
		return 0
	}
	return m.SizeFn()
}

func (m *ProxyMemory) DataSize() uint32 { return m.SizePages() * api.PageSize }

func (m *ProxyMemory) Grow(deltaPages uint32) (uint32, bool) {
	if m.GrowFn == nil {
		return m.SizePages(), false
	}
	return m.GrowFn(deltaPages)
}

func (m *ProxyMemory) ReadAt(dst []byte, offset uint32) bool {
	return m.ReadFn != nil && m.ReadFn(dst, offset)
}

func (m *ProxyMemory) WriteAt(src []byte, offset uint32) bool {
	return m.WriteFn != nil && m.WriteFn(src, offset)
}

// RawBytes declines: the host engine does not expose stable linear-memory
// pointers.
func (m *ProxyMemory) RawBytes() ([]byte, bool) { return nil, false }

func (m *ProxyMemory) TryClone() (wasm.MemoryRepr, error) {
	return nil, &wasm.MemoryError{Kind: wasm.MemoryErrorUnsupportedOperation, Reason: "host-proxied memory cannot be cloned"}
}
