package trap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunConvertsRaise(t *testing.T) {
	frames := func() []FrameInfo {
		return []FrameInfo{{ModuleName: "m", FunctionIndex: 3, ModuleOffset: 0x40}}
	}
	err := Run(nil, frames, func() {
		Raise(CodeUnreachableCodeReached, "unreachable code reached")
	})
	require.NotNil(t, err)
	require.Equal(t, CodeUnreachableCodeReached, err.TrapCode)
	require.Len(t, err.WasmTrace, 1)
	require.Equal(t, uint32(3), err.WasmTrace[0].FunctionIndex)
	require.Contains(t, err.Error(), "m.$3")
}

func TestRunPassesNormalReturn(t *testing.T) {
	ran := false
	err := Run(nil, nil, func() { ran = true })
	require.Nil(t, err)
	require.True(t, ran)
}

func TestRunClassifiesDivideByZero(t *testing.T) {
	zero := 0
	err := Run(nil, func() []FrameInfo { return nil }, func() {
		_ = 1 / zero
	})
	require.NotNil(t, err)
	require.Equal(t, CodeIntegerDivisionByZero, err.TrapCode)
}

func TestRunPropagatesNestedRuntimeError(t *testing.T) {
	inner := NewFromSource(nil, []FrameInfo{{FunctionIndex: 9}}, CodeHeapOutOfBounds)
	err := Run(nil, func() []FrameInfo { return nil }, func() {
		panic(inner)
	})
	require.Same(t, inner, err)
}

func TestRunRethrowsHostBug(t *testing.T) {
	require.Panics(t, func() {
		_ = Run(nil, nil, func() { panic("host bug") })
	})
}

func TestUserErrorUnwraps(t *testing.T) {
	sentinel := errors.New("boom")
	err := User(sentinel)
	require.Equal(t, CodeUser, err.TrapCode)
	require.ErrorIs(t, err, sentinel)
}

func TestFaultObserverSeesTraps(t *testing.T) {
	var seen *RuntimeError
	prev := SetFaultObserver(func(e *RuntimeError) { seen = e })
	defer SetFaultObserver(prev)

	err := Run(nil, nil, func() {
		Raise(CodeIntegerOverflow, "integer overflow")
	})
	require.NotNil(t, err)
	require.Same(t, err, seen)
}

func TestRegistryResolve(t *testing.T) {
	resolve := func(pc uintptr) (FrameInfo, bool) {
		return FrameInfo{ModuleName: "m", FunctionIndex: 1, ModuleOffset: uint32(pc - 0x1000)}, true
	}
	dereg := Register(0x1000, 0x2000, "m", resolve)

	fi, ok := Resolve(0x1800)
	require.True(t, ok)
	require.Equal(t, uint32(0x800), fi.ModuleOffset)
	require.True(t, InRegisteredRange(0x1000))
	require.False(t, InRegisteredRange(0x2000))

	dereg()
	_, ok = Resolve(0x1800)
	require.False(t, ok)
}

func TestRegistryMultipleRanges(t *testing.T) {
	r1 := Register(0x10000, 0x11000, "a", func(pc uintptr) (FrameInfo, bool) {
		return FrameInfo{ModuleName: "a"}, true
	})
	r2 := Register(0x20000, 0x21000, "b", func(pc uintptr) (FrameInfo, bool) {
		return FrameInfo{ModuleName: "b"}, true
	})
	defer r1()
	defer r2()

	fi, ok := Resolve(0x20010)
	require.True(t, ok)
	require.Equal(t, "b", fi.ModuleName)
}
