package wasm

import (
	"errors"
	"fmt"

	"github.com/wasmforge/wasmforge/internal/trap"
)

// ImportError explains why a single import entry failed to resolve.
type ImportError struct {
	Module, Field string
	Expected, Got string // empty Got means UnknownImport
}

func (e *ImportError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("import %s.%s: unknown import (need %s)", e.Module, e.Field, e.Expected)
	}
	return fmt.Sprintf("import %s.%s: incompatible type: expected %s, got %s", e.Module, e.Field, e.Expected, e.Got)
}

// LinkError wraps a failure during instantiation's linking phase.
type LinkError struct {
	Import   *ImportError
	Trap     *trap.RuntimeError
	Resource string
}

func (e *LinkError) Error() string {
	switch {
	case e.Import != nil:
		return "link error: " + e.Import.Error()
	case e.Trap != nil:
		return "link error: trap: " + e.Trap.Error()
	default:
		return "link error: resource: " + e.Resource
	}
}

func (e *LinkError) Unwrap() error {
	if e.Trap != nil {
		return e.Trap
	}
	return nil
}

func linkImportError(ie *ImportError) *LinkError { return &LinkError{Import: ie} }

func linkResourceError(format string, args ...any) *LinkError {
	return &LinkError{Resource: fmt.Sprintf(format, args...)}
}

// InstantiationError is returned from Instantiate.
type InstantiationError struct {
	Link            *LinkError
	Start           *trap.RuntimeError
	DifferentStores bool
	DifferentArchOS bool
}

func (e *InstantiationError) Error() string {
	switch {
	case e.Link != nil:
		return e.Link.Error()
	case e.Start != nil:
		return "start function trapped: " + e.Start.Error()
	case e.DifferentStores:
		return "instantiation error: imports belong to a different store"
	case e.DifferentArchOS:
		return "instantiation error: artifact built for a different OS/arch"
	default:
		return "instantiation error"
	}
}

func (e *InstantiationError) Unwrap() error {
	switch {
	case e.Link != nil:
		return e.Link
	case e.Start != nil:
		return e.Start
	default:
		return nil
	}
}

var (
	// ErrDifferentStores is returned (wrapped) whenever a handle's StoreID
	// does not match the Store it was presented to.
	ErrDifferentStores = errors.New("wasm: handle belongs to a different store")

	// ErrTableOutOfBounds is returned by Table.Copy when either endpoint of
	// the requested range exceeds its table.
	ErrTableOutOfBounds = errors.New("wasm: table access out of bounds")
)

// ExportError is returned from export lookups.
type ExportError struct {
	Name            string
	Missing         bool
	IncompatibleType bool
}

func (e *ExportError) Error() string {
	if e.Missing {
		return fmt.Sprintf("export %q not found", e.Name)
	}
	return fmt.Sprintf("export %q has an incompatible type", e.Name)
}

// MemoryError reports a failure manipulating a Memory's shape (growth,
// cloning, ...), distinct from MemoryAccessError which covers byte-level
// read/write faults (see internal/memview).
type MemoryError struct {
	Kind              MemoryErrorKind
	Current, Attempted uint32
	Reason            string
}

type MemoryErrorKind byte

const (
	MemoryErrorRegion MemoryErrorKind = iota
	MemoryErrorCouldNotGrow
	MemoryErrorInvalidMemory
	MemoryErrorMinimumTooLarge
	MemoryErrorMaximumTooLarge
	MemoryErrorNotShared
	MemoryErrorUnsupportedOperation
	MemoryErrorAtomicsNotSupported
	MemoryErrorGeneric
)

func (e *MemoryError) Error() string {
	switch e.Kind {
	case MemoryErrorCouldNotGrow:
		return fmt.Sprintf("memory: could not grow: current=%d attempted_delta=%d", e.Current, e.Attempted)
	case MemoryErrorNotShared:
		return "memory: not shared"
	case MemoryErrorUnsupportedOperation:
		return "memory: unsupported operation: " + e.Reason
	case MemoryErrorAtomicsNotSupported:
		return "memory: atomics not supported"
	default:
		if e.Reason != "" {
			return "memory: " + e.Reason
		}
		return "memory error"
	}
}
