package loader

import (
	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
)

// counts tallies the combined (import + defined) index space sizes for one
// module, the denominators every index check below divides against.
type counts struct {
	funcs, tables, memories, globals uint32
}

func countSpaces(info *artifact.ModuleInfo) counts {
	var c counts
	for _, imp := range info.Imports {
		switch imp.Type {
		case api.ExternTypeFunc:
			c.funcs++
		case api.ExternTypeTable:
			c.tables++
		case api.ExternTypeMemory:
			c.memories++
		case api.ExternTypeGlobal:
			c.globals++
		}
	}
	c.funcs += uint32(len(info.FunctionSignatures))
	c.tables += uint32(len(info.Tables))
	c.memories += uint32(len(info.Memories))
	c.globals += uint32(len(info.Globals))
	return c
}

// validateModule performs the structural checks that do not require
// decoding instruction streams: every index in range, limits coherent,
// start function of the right shape. Body-level validation belongs to the
// Compiler, which is the only component that decodes instructions.
func validateModule(info *artifact.ModuleInfo, funcs []RawFunction) error {
	nSigs := uint32(len(info.Signatures))
	for i, si := range info.FunctionSignatures {
		if uint32(si) >= nSigs {
			return validateErr("function %d references unknown type %d", i, si)
		}
	}
	for _, imp := range info.Imports {
		if imp.Type == api.ExternTypeFunc && uint32(imp.FuncSigIndex) >= nSigs {
			return validateErr("import %s.%s references unknown type %d", imp.Module, imp.Field, imp.FuncSigIndex)
		}
	}

	for i, ty := range info.Memories {
		if ty.Max != nil && ty.Min > *ty.Max {
			return validateErr("memory %d: min %d exceeds max %d", i, ty.Min, *ty.Max)
		}
	}
	for i, ty := range info.Tables {
		if ty.Max != nil && ty.Min > *ty.Max {
			return validateErr("table %d: min %d exceeds max %d", i, ty.Min, *ty.Max)
		}
		if ty.Element != api.KindFuncRef && ty.Element != api.KindExternRef {
			return validateErr("table %d: element kind must be a reference type", i)
		}
	}

	c := countSpaces(info)

	nImportedGlobals := uint32(0)
	for _, imp := range info.Imports {
		if imp.Type == api.ExternTypeGlobal {
			nImportedGlobals++
		}
	}
	for i, init := range info.GlobalInit {
		if init.GlobalGet != nil && uint32(*init.GlobalGet) >= nImportedGlobals {
			return validateErr("global %d initializer references global %d, which is not an imported global", i, *init.GlobalGet)
		}
		if init.Literal != nil && init.Literal.Kind != info.Globals[i].Kind {
			return validateErr("global %d initializer kind mismatch", i)
		}
	}

	for _, exp := range info.Exports {
		var bound uint32
		switch exp.Type {
		case api.ExternTypeFunc:
			bound = c.funcs
		case api.ExternTypeTable:
			bound = c.tables
		case api.ExternTypeMemory:
			bound = c.memories
		case api.ExternTypeGlobal:
			bound = c.globals
		default:
			return validateErr("export %q has unknown kind", exp.Name)
		}
		if exp.Index >= bound {
			return validateErr("export %q references index %d out of range", exp.Name, exp.Index)
		}
	}

	if info.StartFunction != nil {
		idx := uint32(*info.StartFunction)
		if idx >= c.funcs {
			return validateErr("start function index %d out of range", idx)
		}
		if sig, ok := combinedFuncSig(info, idx); ok {
			if len(sig.Params) != 0 || len(sig.Results) != 0 {
				return validateErr("start function must have no parameters and no results")
			}
		}
	}

	for i, seg := range info.ElementSegments {
		if !seg.Passive && uint32(seg.Table) >= c.tables {
			return validateErr("element segment %d targets unknown table %d", i, seg.Table)
		}
		for _, fi := range seg.Entries {
			if fi != nil && uint32(*fi) >= c.funcs {
				return validateErr("element segment %d references function %d out of range", i, *fi)
			}
		}
	}
	for i, seg := range info.DataSegments {
		if !seg.Passive && uint32(seg.Memory) >= c.memories {
			return validateErr("data segment %d targets unknown memory %d", i, seg.Memory)
		}
	}
	return nil
}

// combinedFuncSig resolves the signature of function idx in the combined
// import+defined index space.
func combinedFuncSig(info *artifact.ModuleInfo, idx uint32) (api.FuncSig, bool) {
	n := uint32(0)
	for _, imp := range info.Imports {
		if imp.Type != api.ExternTypeFunc {
			continue
		}
		if n == idx {
			return info.Signatures[imp.FuncSigIndex], true
		}
		n++
	}
	local := idx - n
	if local >= uint32(len(info.FunctionSignatures)) {
		return api.FuncSig{}, false
	}
	return info.Signatures[info.FunctionSignatures[local]], true
}
