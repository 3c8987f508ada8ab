//go:build linux || darwin

package codemem

// RegisterUnwindInfo would walk .eh_frame and call __register_frame per
// FDE on SystemV hosts, distinguishing the libgcc
// (register-the-whole-block) and libunwind (one FDE per call)
// implementations. Doing so for real requires either cgo or a hand-rolled
// DWARF CFI encoder, both of which only matter once a compiler emits
// actual machine code with CFI directives. The frame-info registry in
// internal/trap is what the fault handler actually walks, and that
// registration happens independently of OS unwind tables, so traps are
// still correctly symbolicated without this step doing anything on POSIX.
func RegisterUnwindInfo(m *Mapping, execSize int) error { return nil }

// DeregisterUnwindInfo is the reverse of RegisterUnwindInfo.
func DeregisterUnwindInfo(m *Mapping) {}
