// Package codemem implements the code memory allocator and unwind
// registry: it lays out function bodies and executable custom
// sections into one contiguous, correctly-permissioned mapping, applies
// relocations, and registers unwind info so host stack walkers and signal
// handlers can traverse guest frames.
package codemem

import (
	"fmt"

	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/obs"
)

var log = obs.For("codemem")

const (
	functionAlign = 16
	dataAlign     = 64
)

func roundUp(n, align int) int {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// Region is one allocation backing an Artifact's executable code plus its
// trailing read-write data segments.
type Region struct {
	mapping Mapping

	// FunctionOffsets is index-correlated with artifact.FunctionBodies,
	// giving the byte offset of each body within mapping.
	FunctionOffsets []int
	// SectionOffsets maps a custom-section index to its byte offset.
	SectionOffsets []int
	// DataOffset is where the read-write data suffix begins.
	DataOffset int

	registeredUnwind bool
}

// Base returns the mapping's base address, or 0 for an empty region. Valid
// only while the Region is alive; callers must not retain pointers derived
// from it past Close.
func (r *Region) Base() uintptr {
	if r.mapping == nil {
		return 0
	}
	return r.mapping.Base()
}

// FunctionPointer returns the executable entry point for local function i.
func (r *Region) FunctionPointer(i int) uintptr {
	return r.Base() + uintptr(r.FunctionOffsets[i])
}

// layout captures the placement decisions for one artifact: total size,
// 16-byte aligned function/section offsets, a page boundary, then 64-byte
// aligned data offsets.
type layout struct {
	funcOffsets    []int
	sectionOffsets []int
	execSize       int // rounded up to a page
	dataOffset     int
	totalSize      int
}

func computeLayout(a *artifact.Artifact) layout {
	var l layout
	off := 0
	l.funcOffsets = make([]int, len(a.FunctionBodies))
	for i, fb := range a.FunctionBodies {
		l.funcOffsets[i] = off
		size := len(fb.Code)
		if len(fb.Win64Unwind) > 0 {
			size = roundUp(len(fb.Code), 4) + len(fb.Win64Unwind)
		}
		off += roundUp(size, functionAlign)
	}
	l.sectionOffsets = make([]int, 0, len(a.CustomSections))
	for _, cs := range a.CustomSections {
		if !cs.ReadExec {
			continue
		}
		l.sectionOffsets = append(l.sectionOffsets, off)
		off += roundUp(len(cs.Data), functionAlign)
	}
	l.execSize = roundUp(off, PageSize)

	dataOff := l.execSize
	for _, cs := range a.CustomSections {
		if cs.ReadExec {
			continue
		}
		dataOff += roundUp(len(cs.Data), dataAlign)
	}
	l.dataOffset = l.execSize
	l.totalSize = dataOff
	return l
}

// Load allocates code memory for a, copies in bodies and read-execute
// sections, applies relocations, flips the executable prefix to
// read-execute, and registers unwind info. On any failure the partially
// built mapping is unmapped before returning.
func Load(a *artifact.Artifact) (*Region, error) {
	l := computeLayout(a)
	if l.totalSize == 0 {
		return &Region{}, nil
	}

	m, err := Allocate(l.totalSize)
	if err != nil {
		return nil, fmt.Errorf("codemem: allocate %d bytes: %w", l.totalSize, err)
	}

	r := &Region{mapping: m, FunctionOffsets: l.funcOffsets, SectionOffsets: l.sectionOffsets, DataOffset: l.dataOffset}

	buf := m.Bytes()
	for i, fb := range a.FunctionBodies {
		off := l.funcOffsets[i]
		copy(buf[off:], fb.Code)
		if len(fb.Win64Unwind) > 0 {
			copy(buf[off+roundUp(len(fb.Code), 4):], fb.Win64Unwind)
		}
	}
	si := 0
	for _, cs := range a.CustomSections {
		if !cs.ReadExec {
			continue
		}
		copy(buf[l.sectionOffsets[si]:], cs.Data)
		si++
	}

	dataOff := l.dataOffset
	for _, cs := range a.CustomSections {
		if cs.ReadExec {
			continue
		}
		copy(buf[dataOff:], cs.Data)
		dataOff += roundUp(len(cs.Data), dataAlign)
	}

	if err := applyRelocations(r, a); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("codemem: relocate: %w", err)
	}

	if err := m.MakeExecutable(l.execSize); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("codemem: mprotect exec: %w", err)
	}

	if err := RegisterUnwindInfo(&m, l.execSize); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("codemem: register unwind info: %w", err)
	}
	r.registeredUnwind = true

	log.WithField("bytes", l.totalSize).Debug("loaded artifact into code memory")
	return r, nil
}

func applyRelocations(r *Region, a *artifact.Artifact) error {
	buf := r.mapping.Bytes()
	for i, fb := range a.FunctionBodies {
		base := r.FunctionOffsets[i]
		for _, reloc := range fb.Relocations {
			at := base + int(reloc.OffsetInBody)
			if at+8 > len(buf) {
				return fmt.Errorf("relocation out of range in function %d", i)
			}
			var target uintptr
			switch reloc.Kind {
			case artifact.RelocationCallPCRel32, artifact.RelocationAbsolute64:
				if reloc.TargetSection < 0 || reloc.TargetSection >= len(r.FunctionOffsets) {
					return fmt.Errorf("relocation target %d out of range", reloc.TargetSection)
				}
				target = r.Base() + uintptr(r.FunctionOffsets[reloc.TargetSection])
			case artifact.RelocationLibcall:
				fn, ok := libcalls[reloc.LibcallName]
				if !ok {
					return fmt.Errorf("unknown libcall %q", reloc.LibcallName)
				}
				target = fn
			}
			writeReloc(buf[at:], reloc.Kind, target, reloc.Addend)
		}
	}
	return nil
}

// libcalls maps intrinsic names a compiler may relocate against (memory
// grow/copy/fill helpers, trap raising, etc.) to their host function
// pointers. Populated by the backend that owns those intrinsics.
var libcalls = map[string]uintptr{}

// RegisterLibcall exposes an intrinsic's address to the relocation applier.
func RegisterLibcall(name string, addr uintptr) { libcalls[name] = addr }

func writeReloc(at []byte, kind artifact.RelocationKind, target uintptr, addend int64) {
	v := uint64(int64(target) + addend)
	switch kind {
	case artifact.RelocationAbsolute64, artifact.RelocationLibcall:
		for i := 0; i < 8; i++ {
			at[i] = byte(v >> (8 * i))
		}
	case artifact.RelocationCallPCRel32:
		rel := uint32(v)
		for i := 0; i < 4; i++ {
			at[i] = byte(rel >> (8 * i))
		}
	}
}

// Close deregisters unwind info in reverse registration order, then unmaps
// the region.
func (r *Region) Close() error {
	if r.mapping == nil {
		return nil
	}
	if r.registeredUnwind {
		DeregisterUnwindInfo(&r.mapping)
		r.registeredUnwind = false
	}
	m := r.mapping
	r.mapping = nil
	return m.Close()
}
