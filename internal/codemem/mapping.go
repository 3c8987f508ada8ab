package codemem

// Mapping is an OS-specific read-write/read-execute memory mapping.
// Implementations live in mapping_unix.go (via golang.org/x/sys/unix mmap
// and mprotect) and mapping_windows.go (via golang.org/x/sys/windows
// VirtualAlloc/VirtualProtect), mirroring the SystemV/Windows split in the
// unwind registration below.
type Mapping interface {
	// Base is the mapping's start address.
	Base() uintptr
	// Bytes exposes the full mapping as a read-write slice. Callers must
	// stop writing to the executable prefix once MakeExecutable has run.
	Bytes() []byte
	// MakeExecutable flips the first execSize bytes to READ_EXECUTE,
	// leaving the remainder READ_WRITE.
	MakeExecutable(execSize int) error
	// Close unmaps the region.
	Close() error
}
