package wasm

import "unsafe"

// VMContext is the structure threaded through every function call after a
// backend's calling convention prologue. The interpreter backend stores one per ModuleEngine and
// passes it explicitly; a native/codegen backend would instead pin its
// address in a fixed register, which this module does not attempt since no
// concrete compiler is in scope.
type VMContext struct {
	// MemoryBase and MemoryLen cache the linear memory's data pointer and
	// byte length. NewVMContext sets them; a memory.grow does not refresh
	// them, only an explicit RefreshMemory call does.
	MemoryBase unsafe.Pointer
	MemoryLen  uintptr

	// TableBase/TableLen mirror MemoryBase/MemoryLen for call_indirect.
	TableBase unsafe.Pointer
	TableLen  uintptr

	// GlobalsBase points at the dense array backing this instance's globals.
	GlobalsBase unsafe.Pointer

	// Instance lets host-call trampolines recover the owning Instance
	// without a side table lookup.
	Instance *Instance
}

// NewVMContext builds the context for one bound instance, caching its
// first memory's base pointer when the backend exposes one.
func NewVMContext(s AnyStoreRef, inst *Instance) *VMContext {
	vc := &VMContext{Instance: inst}
	if mem, ok := inst.Memory0(); ok {
		if repr, err := mem.repr(s); err == nil {
			vc.RefreshMemory(repr)
		}
	}
	return vc
}

// RefreshMemory recomputes MemoryBase/MemoryLen from the current state of
// mem.
func (vc *VMContext) RefreshMemory(mem MemoryRepr) {
	raw, ok := mem.RawBytes()
	if !ok {
		vc.MemoryBase, vc.MemoryLen = nil, 0
		return
	}
	if len(raw) == 0 {
		vc.MemoryBase, vc.MemoryLen = nil, 0
		return
	}
	vc.MemoryBase = unsafe.Pointer(&raw[0])
	vc.MemoryLen = uintptr(len(raw))
}
