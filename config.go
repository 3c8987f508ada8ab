package wasmforge

import (
	"fmt"
	"runtime"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/loader"
	"github.com/wasmforge/wasmforge/internal/modcache"
	"github.com/wasmforge/wasmforge/internal/trap"
)

// ArtifactVersion is bumped whenever the serialized artifact layout
// changes; cache entries from other versions are never loaded.
const ArtifactVersion = 1

// RuntimeConfig controls engine construction. Configs are immutable: every
// With* method returns a modified copy, so a config can be shared and
// extended freely.
type RuntimeConfig struct {
	backendName   string
	features      api.Features
	compiler      loader.Compiler
	cache         modcache.Cache
	faultObserver func(*trap.RuntimeError)
}

// baseConfig keeps the zero-value defaults in one place so the
// constructors below never disagree on them.
var baseConfig = &RuntimeConfig{
	features: api.DefaultFeatures,
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	cp := *c
	return &cp
}

// NewRuntimeConfig selects the interpreter backend, which works on every
// platform this module compiles for.
func NewRuntimeConfig() *RuntimeConfig {
	return NewRuntimeConfigInterpreter()
}

// NewRuntimeConfigInterpreter selects the portable interpreter backend.
func NewRuntimeConfigInterpreter() *RuntimeConfig {
	ret := baseConfig.clone()
	ret.backendName = "interpreter"
	return ret
}

// NewRuntimeConfigNative selects the ahead-of-time backend, which places
// compiled code in executable memory and registers unwind/frame info for
// symbolicated traps.
func NewRuntimeConfigNative() *RuntimeConfig {
	ret := baseConfig.clone()
	ret.backendName = "native"
	return ret
}

// WithBackend selects a backend by registry name, for backends gated
// behind build tags (e.g. "hostjs" on js/wasm).
func (c *RuntimeConfig) WithBackend(name string) *RuntimeConfig {
	ret := c.clone()
	ret.backendName = name
	return ret
}

// WithFeatures replaces the enabled feature set.
func (c *RuntimeConfig) WithFeatures(f api.Features) *RuntimeConfig {
	ret := c.clone()
	ret.features = f
	return ret
}

// WithCompiler replaces the compiler driven by Runtime.CompileModule. The
// default translates for the portable evaluator.
func (c *RuntimeConfig) WithCompiler(comp loader.Compiler) *RuntimeConfig {
	ret := c.clone()
	ret.compiler = comp
	return ret
}

// WithFaultObserver installs a process-wide hook that sees every guest
// trap before it is returned as an error, for embedders that chain their
// own crash reporting. The observer must not block and must not assume it
// runs on any particular goroutine.
func (c *RuntimeConfig) WithFaultObserver(fn func(*trap.RuntimeError)) *RuntimeConfig {
	ret := c.clone()
	ret.faultObserver = fn
	return ret
}

// WithCache attaches a module cache shared across runtimes; see NewCache
// and NewFileCache.
func (c *RuntimeConfig) WithCache(cache Cache) *RuntimeConfig {
	ret := c.clone()
	if cache != nil {
		ret.cache = cache.backing()
	} else {
		ret.cache = nil
	}
	return ret
}

// DeterministicID identifies a backend+host combination for cache keying:
// artifacts compiled under one id are never loaded under another.
func DeterministicID(backendName string) string {
	return fmt.Sprintf("%s-%s-%s-v%d", backendName, runtime.GOOS, runtime.GOARCH, ArtifactVersion)
}
