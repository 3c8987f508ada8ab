// Package backend is the single point where multi-backend polymorphism is
// resolved: one registry of named wasm.Engine constructors,
// feature-gated by Go build tags per backend package, with callers
// selecting by name rather than importing a backend package directly.
package backend

import (
	"fmt"

	"github.com/wasmforge/wasmforge/internal/wasm"
)

// Factory builds a fresh wasm.Engine instance. Backends register one at
// package init time via Register.
type Factory func() wasm.Engine

var registry = map[string]Factory{}

// Register adds a backend under name. Called from each backend package's
// init(), guarded by that package's own build tags so disabled backends
// never appear in registry.
func Register(name string, f Factory) {
	if _, exists := registry[name]; exists {
		panic("backend: duplicate registration for " + name)
	}
	registry[name] = f
}

// Names lists every backend compiled into this binary.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

// New constructs the named backend's Engine, or an error if it was not
// compiled in.
func New(name string) (wasm.Engine, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("backend: %q is not registered (compiled backends: %v)", name, Names())
	}
	return f(), nil
}
