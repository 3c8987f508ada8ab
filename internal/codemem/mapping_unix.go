//go:build linux || darwin

package codemem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageSize is the host page size, used to round the executable region up to
// a page boundary before the read-write data suffix.
var PageSize = unix.Getpagesize()

type unixMapping struct {
	data []byte
}

// Allocate reserves a read-write anonymous mapping of size bytes.
func Allocate(size int) (Mapping, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &unixMapping{data: data}, nil
}

func (m *unixMapping) Base() uintptr {
	if len(m.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&m.data[0]))
}

func (m *unixMapping) Bytes() []byte { return m.data }

func (m *unixMapping) MakeExecutable(execSize int) error {
	if execSize == 0 {
		return nil
	}
	if err := unix.Mprotect(m.data[:execSize], unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect exec: %w", err)
	}
	return nil
}

func (m *unixMapping) Close() error {
	if len(m.data) == 0 {
		return nil
	}
	return unix.Munmap(m.data)
}
