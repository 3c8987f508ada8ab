package wasm

import (
	"github.com/wasmforge/wasmforge/api"
)

// MemoryPlan is a Tunables' decision on how to back one declared memory.
type MemoryPlan struct {
	Type api.MemoryType
	// Static, when true, asks the allocator to reserve the memory's maximum
	// up front so growth never reallocates; a dynamic plan reallocates on
	// each growth instead.
	Static bool
}

// TablePlan is the table counterpart of MemoryPlan.
type TablePlan struct {
	Type api.TableType
}

// Tunables lets an embedder override how instantiation allocates the local
// memories, tables and globals a module declares. All methods are invoked
// with the target Store; implementations must allocate against it and
// nothing else.
type Tunables interface {
	MemoryPlan(ty api.MemoryType) MemoryPlan
	TablePlan(ty api.TableType) TablePlan
	CreateMemory(s *Store, plan MemoryPlan) (Memory, error)
	CreateTable(s *Store, plan TablePlan) (Table, error)
	CreateGlobal(s *Store, ty api.GlobalType, init api.Value) (Global, error)
}

// DefaultTunables backs memories with plain byte slices, pre-reserving
// bounded memories up front and growing unbounded ones dynamically.
type DefaultTunables struct{}

func (DefaultTunables) MemoryPlan(ty api.MemoryType) MemoryPlan {
	return MemoryPlan{Type: ty, Static: ty.Max != nil}
}

func (DefaultTunables) TablePlan(ty api.TableType) TablePlan {
	return TablePlan{Type: ty}
}

func (DefaultTunables) CreateMemory(s *Store, plan MemoryPlan) (Memory, error) {
	if plan.Static {
		return NewMemory(s, plan.Type, NewStaticByteSliceMemory)
	}
	return NewMemory(s, plan.Type, NewByteSliceMemory)
}

func (DefaultTunables) CreateTable(s *Store, plan TablePlan) (Table, error) {
	return NewTable(s, plan.Type), nil
}

func (DefaultTunables) CreateGlobal(s *Store, ty api.GlobalType, init api.Value) (Global, error) {
	return NewGlobal(s, ty, init)
}
