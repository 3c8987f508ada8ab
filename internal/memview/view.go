// Package memview provides bounds- and alignment-checked access to a
// Memory's bytes. It never panics on guest-controlled input: every accessor
// reports a *AccessError on an out-of-range offset, leaving trap
// classification to internal/trap for the handful of paths (WasmPtr
// dereference inside a host function) where a fault is actually fatal to
// the call.
package memview

import (
	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/obs"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

var log = obs.For("memview")

// AccessErrorKind classifies a failed host-side memory access.
type AccessErrorKind byte

const (
	// HeapOutOfBounds means [offset, offset+len) exceeded the view's length.
	HeapOutOfBounds AccessErrorKind = iota
	// Overflow means offset or offset+len did not fit in 32 bits.
	Overflow
	// NonContiguousMemoryAccess means the backend cannot hand out one flat
	// byte range for the requested span.
	NonContiguousMemoryAccess
	// UnalignedPointerRead means a typed borrowed access found base+offset
	// misaligned for the element type.
	UnalignedPointerRead
)

// AccessError is returned by every failed View accessor.
type AccessError struct {
	Kind        AccessErrorKind
	Offset, Len uint64
	Bound       uint64
}

func (e *AccessError) Error() string {
	switch e.Kind {
	case Overflow:
		return "memory access overflows 32-bit address space"
	case NonContiguousMemoryAccess:
		return "non-contiguous memory access"
	case UnalignedPointerRead:
		return "unaligned pointer read"
	default:
		return "heap out of bounds"
	}
}

func errOOB(offset, length uint64, bound uint32) *AccessError {
	log.WithField("offset", offset).
		WithField("len", length).
		WithField("bound", bound).
		Warn("memory access out of bounds")
	return &AccessError{Kind: HeapOutOfBounds, Offset: offset, Len: length, Bound: uint64(bound)}
}

func errOverflow(offset, length uint64) *AccessError {
	return &AccessError{Kind: Overflow, Offset: offset, Len: length}
}

// View is a snapshot-scoped window onto one Memory's current bytes. A View
// is valid only until the next growth of its memory: re-derive a fresh View
// after every Memory.Grow. Byte-level accessors re-check bounds against the
// length captured at construction, so a View is safe under concurrent guest
// writes: it may observe torn values but never reads outside the captured
// range.
type View struct {
	mem   wasm.Memory
	store wasm.AnyStoreRef
	raw   []byte
	ok    bool
}

// New captures a View over mem's current bytes as seen through s.
func New(s wasm.AnyStoreRef, mem wasm.Memory) (View, error) {
	repr, err := wasm.MemoryReprFor(mem, s)
	if err != nil {
		return View{}, err
	}
	raw, ok := repr.RawBytes()
	return View{mem: mem, store: s, raw: raw, ok: ok}, nil
}

// DataSize reports the view's length in bytes.
func (v View) DataSize() uint32 { return uint32(len(v.raw)) }

// Size reports the view's length in 64 KiB pages.
func (v View) Size() uint32 { return uint32(uint64(len(v.raw)) / api.PageSize) }

// SupportsRawAccess reports whether the owning backend exposed raw bytes at
// all; JS-proxy backends decline, and only the copying accessors work there.
func (v View) SupportsRawAccess() bool { return v.ok }

const maxUint32 = 1<<32 - 1

// check validates [offset, offset+length) against the captured view length,
// returning nil when the whole range is addressable.
func (v View) check(offset, length uint64) *AccessError {
	if offset > maxUint32 || length > maxUint32 {
		return errOverflow(offset, length)
	}
	end := offset + length
	if end > maxUint32 {
		return errOverflow(offset, length)
	}
	if end > uint64(len(v.raw)) {
		return errOOB(offset, length, uint32(len(v.raw)))
	}
	return nil
}

// Read copies len(dst) bytes starting at offset into dst.
func (v View) Read(offset uint64, dst []byte) error {
	if err := v.check(offset, uint64(len(dst))); err != nil {
		return err
	}
	copy(dst, v.raw[offset:])
	return nil
}

// ReadU8 reads the single byte at offset.
func (v View) ReadU8(offset uint64) (byte, error) {
	if err := v.check(offset, 1); err != nil {
		return 0, err
	}
	return v.raw[offset], nil
}

// ReadUninit fills dst from the view, zero-filling it first so no prior
// contents of dst survive even when the copy fails partway.
func (v View) ReadUninit(offset uint64, dst []byte) error {
	for i := range dst {
		dst[i] = 0
	}
	return v.Read(offset, dst)
}

// Write copies src into the view starting at offset.
func (v View) Write(offset uint64, src []byte) error {
	if err := v.check(offset, uint64(len(src))); err != nil {
		return err
	}
	copy(v.raw[offset:], src)
	return nil
}

// WriteU8 writes one byte at offset.
func (v View) WriteU8(offset uint64, b byte) error {
	if err := v.check(offset, 1); err != nil {
		return err
	}
	v.raw[offset] = b
	return nil
}

// chunkSize is the stack-buffer granularity the streaming copies use, so a
// multi-megabyte guest memory never forces one equally large intermediate
// host allocation per chunk.
const chunkSize = 40 * 1024

// CopyToVec snapshots the entire view into a fresh slice.
func (v View) CopyToVec() ([]byte, error) {
	return v.CopyRangeToVec(0, uint64(len(v.raw)))
}

// CopyRangeToVec snapshots [offset, offset+length) into a fresh slice,
// streaming through a fixed-size buffer so each chunk gets a fresh bounds
// check against memory the guest may be writing concurrently.
func (v View) CopyRangeToVec(offset, length uint64) ([]byte, error) {
	if err := v.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	var buf [chunkSize]byte
	var done uint64
	for done < length {
		n := length - done
		if n > chunkSize {
			n = chunkSize
		}
		if err := v.Read(offset+done, buf[:n]); err != nil {
			return nil, err
		}
		copy(out[done:], buf[:n])
		done += n
	}
	return out, nil
}

// CopyToMemory streams count bytes from the start of v into dst, one
// bounds-checked chunk at a time.
func (v View) CopyToMemory(count uint64, dst *View) error {
	var buf [chunkSize]byte
	var done uint64
	for done < count {
		n := count - done
		if n > chunkSize {
			n = chunkSize
		}
		if err := v.Read(done, buf[:n]); err != nil {
			return err
		}
		if err := dst.Write(done, buf[:n]); err != nil {
			return err
		}
		done += n
	}
	return nil
}

// Slice returns the live backing slice for [offset, offset+size) without
// copying, only when the backend supports raw access; callers that need a
// stable snapshot should use Read or CopyRangeToVec instead.
func (v View) Slice(offset, size uint32) ([]byte, error) {
	if !v.ok {
		return nil, &AccessError{Kind: NonContiguousMemoryAccess}
	}
	if err := v.check(uint64(offset), uint64(size)); err != nil {
		return nil, err
	}
	return v.raw[offset : uint64(offset)+uint64(size)], nil
}
