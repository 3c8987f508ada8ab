package loader

import (
	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/artifact"
)

// RawFunction is one decoded code-section entry, handed to a Compiler
// untranslated: the declared locals plus the body's original instruction
// bytes and their offset within the module binary (kept so compiled frame
// info can point back into the source).
type RawFunction struct {
	Locals     []api.ValueKind
	Body       []byte
	WasmOffset uint32
}

// Compilation is a Compiler's output for one module: per-function
// executable bodies (plus relocations and frame info inside each
// FunctionBody) and any custom sections the compiler wants mapped.
type Compilation struct {
	Functions      []artifact.FunctionBody
	CustomSections []artifact.CustomSection
}

// Compiler turns decoded module contents into executable bodies. It is a
// consumed interface: the runtime never implements code generation itself,
// it drives whichever Compiler the engine was configured with.
type Compiler interface {
	// Name identifies the compiler for cache keys and diagnostics.
	Name() string

	// Validate performs any compiler-specific validation beyond the
	// structural checks the loader already ran.
	Validate(info *artifact.ModuleInfo, funcs []RawFunction) error

	// Compile produces executable bodies for every local function.
	Compile(info *artifact.ModuleInfo, funcs []RawFunction) (*Compilation, error)

	// CompileCallTrampolines produces one host-to-guest call trampoline per
	// signature appearing as a call target.
	CompileCallTrampolines(sigs []api.FuncSig) (map[api.SignatureIndex]artifact.FunctionBody, error)

	// CompileDynamicTrampolines produces one guest-to-host stub per
	// imported function.
	CompileDynamicTrampolines(info *artifact.ModuleInfo) (map[api.FunctionIndex]artifact.FunctionBody, error)

	// Features reports the proposal set this compiler accepts.
	Features() api.Features
}

// Load decodes, validates and compiles a binary module into an Artifact
// using c, tagging the result with the producing backend's name.
func Load(backendName string, c Compiler, bin []byte, features api.Features) (*artifact.Artifact, error) {
	info, funcs, err := DecodeModule(bin, features)
	if err != nil {
		return nil, err
	}
	if err := validateModule(info, funcs); err != nil {
		return nil, err
	}
	if err := c.Validate(info, funcs); err != nil {
		return nil, err
	}

	comp, err := c.Compile(info, funcs)
	if err != nil {
		return nil, err
	}
	callTramps, err := c.CompileCallTrampolines(info.Signatures)
	if err != nil {
		return nil, err
	}
	dynTramps, err := c.CompileDynamicTrampolines(info)
	if err != nil {
		return nil, err
	}

	return &artifact.Artifact{
		Info:               info,
		FunctionBodies:     comp.Functions,
		CallTrampolines:    callTramps,
		DynamicTrampolines: dynTramps,
		CustomSections:     append(info.CustomSections, comp.CustomSections...),
		Backend:            backendName,
		RawBinary:          bin,
	}, nil
}
