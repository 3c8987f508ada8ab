package wasm

import (
	"fmt"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/trap"
)

// LocalBacking holds the objects an Instance owns outright — as opposed to
// ones resolved from Imports — indexed in local (module-relative) index
// space.
type LocalBacking struct {
	Funcs    []Function
	Tables   []Table
	Memories []Memory
	Globals  []Global
}

// Instance is a live, instantiated module: one artifact.ModuleInfo bound to
// a Store, with every import resolved and every local object allocated.
type Instance struct {
	StoreID StoreID

	info    *artifact.ModuleInfo
	imports ImportBacking
	locals  LocalBacking
	exports *Exports
	engine  ModuleEngine
}

// Exports returns the instance's export table.
func (inst *Instance) Exports() *Exports { return inst.exports }

// ExportedFunctionByIndex resolves idx in the combined import+local function
// index space, for backends (the interpreter's OpCall) that need to invoke
// another function within the same instance by raw index rather than by
// export name.
func (inst *Instance) ExportedFunctionByIndex(idx api.FunctionIndex) (Function, error) {
	return inst.combinedFunc(idx)
}

// combinedFunc resolves function index idx in the combined import+local
// index space used throughout the binary format and the backend dispatch
// layer.
func (inst *Instance) combinedFunc(idx api.FunctionIndex) (Function, error) {
	n := uint32(len(inst.imports.Funcs))
	if uint32(idx) < n {
		return inst.imports.Funcs[idx], nil
	}
	local := uint32(idx) - n
	if local >= uint32(len(inst.locals.Funcs)) {
		return Function{}, fmt.Errorf("wasm: function index %d out of range", idx)
	}
	return inst.locals.Funcs[local], nil
}

// Memory0 returns the instance's first memory, the common case for host
// functions that assume a single linear memory.
func (inst *Instance) Memory0() (Memory, bool) {
	if len(inst.imports.Memories) > 0 {
		return inst.imports.Memories[0], true
	}
	if len(inst.locals.Memories) > 0 {
		return inst.locals.Memories[0], true
	}
	return Memory{}, false
}

// buildExports constructs the export table from info.Exports, resolving
// each entry against the combined local/import index spaces.
func (inst *Instance) buildExports() {
	inst.exports = newExports()
	for _, exp := range inst.info.Exports {
		var e Extern
		switch exp.Type {
		case api.ExternTypeFunc:
			f, err := inst.combinedFunc(api.FunctionIndex(exp.Index))
			if err != nil {
				continue
			}
			e = FuncExtern(f)
		case api.ExternTypeTable:
			e = TableExtern(inst.resolveTable(api.TableIndex(exp.Index)))
		case api.ExternTypeMemory:
			e = MemoryExtern(inst.resolveMemory(api.MemoryIndex(exp.Index)))
		case api.ExternTypeGlobal:
			e = GlobalExtern(inst.resolveGlobal(api.GlobalIndex(exp.Index)))
		}
		inst.exports.define(exp.Name, e)
	}
}

func (inst *Instance) resolveTable(idx api.TableIndex) Table {
	n := uint32(len(inst.imports.Tables))
	if uint32(idx) < n {
		return inst.imports.Tables[idx]
	}
	return inst.locals.Tables[uint32(idx)-n]
}

func (inst *Instance) resolveMemory(idx api.MemoryIndex) Memory {
	n := uint32(len(inst.imports.Memories))
	if uint32(idx) < n {
		return inst.imports.Memories[idx]
	}
	return inst.locals.Memories[uint32(idx)-n]
}

func (inst *Instance) resolveGlobal(idx api.GlobalIndex) Global {
	n := uint32(len(inst.imports.Globals))
	if uint32(idx) < n {
		return inst.imports.Globals[idx]
	}
	return inst.locals.Globals[uint32(idx)-n]
}

// Close releases the instance's ModuleEngine resources.
func (inst *Instance) Close() error {
	if inst.engine == nil {
		return nil
	}
	engine := inst.engine
	inst.engine = nil
	return engine.Close()
}

// runStart invokes the module's start function, if declared.
func (inst *Instance) runStart(call func(f Function, args []api.Value) ([]api.Value, *trap.RuntimeError)) *trap.RuntimeError {
	if inst.info.StartFunction == nil {
		return nil
	}
	f, err := inst.combinedFunc(*inst.info.StartFunction)
	if err != nil {
		return trap.New(err.Error())
	}
	_, rerr := call(f, nil)
	return rerr
}
