package wasm

import (
	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
	"github.com/wasmforge/wasmforge/internal/trap"
)

// Instantiate runs the full instantiation algorithm against a compiled
// Artifact:
// resolve imports, type-check each against the module's declared import
// type, allocate local memories/tables/globals, build the ModuleEngine for
// local functions, evaluate element/data segments, build the export table,
// then run the start function. A failure after partial allocation returns
// an error without tracking the Instance in s; local objects allocated
// before the failure stay in the Store's object arrays, unreachable through
// any Instance, and a ModuleEngine already built is not closed.
func Instantiate(s *Store, a *artifact.Artifact, imports *Imports) (*Instance, error) {
	backing, err := resolveImports(s, a.Info, imports)
	if err != nil {
		return nil, &InstantiationError{Link: err}
	}

	inst := &Instance{StoreID: s.ID(), info: a.Info, imports: *backing}

	if err := instantiateGlobals(s, inst); err != nil {
		return nil, &InstantiationError{Link: linkResourceError("globals: %v", err)}
	}
	if err := instantiateMemories(s, inst, a.Info); err != nil {
		return nil, &InstantiationError{Link: linkResourceError("memories: %v", err)}
	}
	if err := instantiateTables(s, inst, a.Info); err != nil {
		return nil, &InstantiationError{Link: linkResourceError("tables: %v", err)}
	}

	engine, engineErr := s.Engine.NewModuleEngine(s, a, backing)
	if engineErr != nil {
		return nil, &InstantiationError{Link: linkResourceError("engine: %v", engineErr)}
	}
	inst.engine = engine
	instantiateLocalFunctions(s, inst, a.Info, engine)

	if err := instantiateElements(s, inst, a.Info); err != nil {
		return nil, &InstantiationError{Link: linkResourceError("elements: %v", err)}
	}
	if err := instantiateData(s, inst, a.Info); err != nil {
		return nil, &InstantiationError{Link: linkResourceError("data: %v", err)}
	}

	inst.buildExports()

	if binder, ok := engine.(InstanceBinder); ok {
		binder.BindInstance(inst)
	}

	if rerr := inst.runStart(func(f Function, args []api.Value) ([]api.Value, *trap.RuntimeError) {
		return f.Call(nil, s.AsStoreMut(), inst, args)
	}); rerr != nil {
		return nil, &InstantiationError{Start: rerr}
	}

	s.trackInstance(inst)
	return inst, nil
}

// resolveImports type-checks every declared import against what imports
// supplies, in declaration order, failing on the first mismatch.
func resolveImports(s *Store, info *artifact.ModuleInfo, imports *Imports) (*ImportBacking, *LinkError) {
	backing := &ImportBacking{}
	for _, imp := range info.Imports {
		e, ok := imports.lookup(imp.Module, imp.Field)
		if !ok {
			return nil, linkImportError(&ImportError{Module: imp.Module, Field: imp.Field, Expected: imp.Type.String()})
		}
		if e.Kind != imp.Type {
			return nil, linkImportError(&ImportError{Module: imp.Module, Field: imp.Field, Expected: imp.Type.String(), Got: e.Kind.String()})
		}
		switch imp.Type {
		case api.ExternTypeFunc:
			sig, err := e.Func.Sig(s.AsStoreRef())
			if err != nil {
				return nil, &LinkError{Resource: "imported function belongs to a different store"}
			}
			want := info.Signatures[imp.FuncSigIndex]
			if !sig.Equal(want) {
				return nil, linkImportError(&ImportError{Module: imp.Module, Field: imp.Field, Expected: want.String(), Got: sig.String()})
			}
			backing.Funcs = append(backing.Funcs, e.Func)
		case api.ExternTypeMemory:
			ty, err := e.Memory.Type(s.AsStoreRef())
			if err != nil {
				return nil, &LinkError{Resource: "imported memory belongs to a different store"}
			}
			if !memoryTypeCompatible(imp.Memory, ty) {
				return nil, linkImportError(&ImportError{Module: imp.Module, Field: imp.Field, Expected: "memory", Got: "incompatible memory limits"})
			}
			backing.Memories = append(backing.Memories, e.Memory)
		case api.ExternTypeTable:
			ty, err := e.Table.Type(s.AsStoreRef())
			if err != nil {
				return nil, &LinkError{Resource: "imported table belongs to a different store"}
			}
			if ty.Element != imp.Table.Element {
				return nil, linkImportError(&ImportError{Module: imp.Module, Field: imp.Field, Expected: "table", Got: "element type mismatch"})
			}
			backing.Tables = append(backing.Tables, e.Table)
		case api.ExternTypeGlobal:
			ty, err := e.Global.Type(s.AsStoreRef())
			if err != nil {
				return nil, &LinkError{Resource: "imported global belongs to a different store"}
			}
			if ty.Kind != imp.Global.Kind || ty.Mutable != imp.Global.Mutable {
				return nil, linkImportError(&ImportError{Module: imp.Module, Field: imp.Field, Expected: "global", Got: "type/mutability mismatch"})
			}
			backing.Globals = append(backing.Globals, e.Global)
		}
	}
	return backing, nil
}

func memoryTypeCompatible(want, got api.MemoryType) bool {
	if want.Shared != got.Shared {
		return false
	}
	if got.Min < want.Min {
		return false
	}
	if want.Max != nil {
		if got.Max == nil || *got.Max > *want.Max {
			return false
		}
	}
	return true
}

func instantiateGlobals(s *Store, inst *Instance) error {
	for i, ty := range inst.info.Globals {
		init, err := executeConstExpression(s, inst, inst.info.GlobalInit[i])
		if err != nil {
			return err
		}
		g, err := s.Tunables.CreateGlobal(s, ty, init)
		if err != nil {
			return err
		}
		inst.locals.Globals = append(inst.locals.Globals, g)
	}
	return nil
}

func instantiateMemories(s *Store, inst *Instance, info *artifact.ModuleInfo) error {
	for _, ty := range info.Memories {
		m, err := s.Tunables.CreateMemory(s, s.Tunables.MemoryPlan(ty))
		if err != nil {
			return err
		}
		inst.locals.Memories = append(inst.locals.Memories, m)
	}
	return nil
}

func instantiateTables(s *Store, inst *Instance, info *artifact.ModuleInfo) error {
	for _, ty := range info.Tables {
		t, err := s.Tunables.CreateTable(s, s.Tunables.TablePlan(ty))
		if err != nil {
			return err
		}
		inst.locals.Tables = append(inst.locals.Tables, t)
	}
	return nil
}

func instantiateLocalFunctions(s *Store, inst *Instance, info *artifact.ModuleInfo, engine ModuleEngine) {
	for local, sigIdx := range info.FunctionSignatures {
		repr := &functionRepr{
			sig:        info.Signatures[sigIdx],
			engine:     engine,
			localIndex: api.FunctionIndex(local),
			envSlot:    -1,
		}
		idx := s.Objects().pushFunc(repr)
		inst.locals.Funcs = append(inst.locals.Funcs, Function{StoreID: s.ID(), LocalIndex: idx, sig: repr.sig})
	}
}

// executeConstExpression evaluates one of the limited const-expression forms
// allowed in global initializers and segment offsets.
func executeConstExpression(s *Store, inst *Instance, ce artifact.ConstExpr) (api.Value, error) {
	if ce.Literal != nil {
		return *ce.Literal, nil
	}
	if ce.GlobalGet != nil {
		g := inst.resolveGlobal(*ce.GlobalGet)
		return g.Get(s.AsStoreRef())
	}
	return api.Value{}, linkResourceError("empty const expression")
}

func instantiateElements(s *Store, inst *Instance, info *artifact.ModuleInfo) error {
	for _, seg := range info.ElementSegments {
		if seg.Passive {
			continue
		}
		offV, err := executeConstExpression(s, inst, seg.Offset)
		if err != nil {
			return err
		}
		off := offV.U32()
		tbl := inst.resolveTable(api.TableIndex(seg.Table))
		for i, fi := range seg.Entries {
			var v api.Value
			if fi == nil {
				v = api.NullFuncRef()
			} else {
				f, ferr := inst.combinedFunc(*fi)
				if ferr != nil {
					return ferr
				}
				v = api.FuncRef(api.FuncRefValue{StoreID: uint64(f.StoreID), LocalIndex: uint32(f.LocalIndex)})
			}
			if ok, _ := tbl.Set(s.AsStoreMut(), off+uint32(i), v); !ok {
				return &ExportError{IncompatibleType: true}
			}
		}
	}
	return nil
}

func instantiateData(s *Store, inst *Instance, info *artifact.ModuleInfo) error {
	for _, seg := range info.DataSegments {
		if seg.Passive {
			continue
		}
		offV, err := executeConstExpression(s, inst, seg.Offset)
		if err != nil {
			return err
		}
		off := offV.U32()
		mem := inst.resolveMemory(api.MemoryIndex(seg.Memory))
		repr, rerr := mem.repr(s.AsStoreRef())
		if rerr != nil {
			return rerr
		}
		if !repr.WriteAt(seg.Bytes, off) {
			return &MemoryError{Kind: MemoryErrorRegion, Reason: "active data segment out of bounds"}
		}
	}
	return nil
}
