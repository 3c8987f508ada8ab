//go:build windows

package codemem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PageSize is the host page size on Windows.
var PageSize = 4096

type windowsMapping struct {
	addr uintptr
	size int
}

// Allocate reserves and commits a read-write region via VirtualAlloc.
func Allocate(size int) (Mapping, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc: %w", err)
	}
	return &windowsMapping{addr: addr, size: size}, nil
}

func (m *windowsMapping) Base() uintptr { return m.addr }

func (m *windowsMapping) Bytes() []byte {
	if m.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(m.addr)), m.size)
}

func (m *windowsMapping) MakeExecutable(execSize int) error {
	if execSize == 0 {
		return nil
	}
	var old uint32
	if err := windows.VirtualProtect(m.addr, uintptr(execSize), windows.PAGE_EXECUTE_READ, &old); err != nil {
		return fmt.Errorf("VirtualProtect exec: %w", err)
	}
	return nil
}

func (m *windowsMapping) Close() error {
	if m.addr == 0 {
		return nil
	}
	return windows.VirtualFree(m.addr, 0, windows.MEM_RELEASE)
}
