//go:build windows

package codemem

import "golang.org/x/sys/windows"

// RegisterUnwindInfo is the Windows unwind-registration hook for a loaded
// mapping. It does not call RtlAddFunctionTable: no RUNTIME_FUNCTION table
// is built from the Win64Unwind bytes Load copies into the mapping, so SEH
// cannot walk guest frames, and the function always returns nil.
func RegisterUnwindInfo(m *Mapping, execSize int) error {
	mm := *m
	base := mm.Base()
	if base == 0 || execSize == 0 {
		return nil
	}
	// A production native backend would collect one windows.RUNTIME_FUNCTION
	// per function from the bytes written at codemem.go's Win64Unwind
	// offset and pass the resulting slice here; absent real codegen (no
	// concrete compiler is in scope) there is nothing to register yet.
	_ = windows.RtlAddFunctionTable
	return nil
}

// DeregisterUnwindInfo is the reverse of RegisterUnwindInfo.
func DeregisterUnwindInfo(m *Mapping) {}
