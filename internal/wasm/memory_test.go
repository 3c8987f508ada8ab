package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
)

func maxPtr(v uint32) *uint32 { return &v }

func TestMemoryGrowBounds(t *testing.T) {
	s := newTestStore(t)
	mem, err := NewMemory(s, api.MemoryType{Min: 1, Max: maxPtr(2)}, NewByteSliceMemory)
	require.NoError(t, err)

	prev, err := mem.Grow(s.AsStoreMut(), 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), prev)

	size, err := mem.Size(s.AsStoreRef())
	require.NoError(t, err)
	require.Equal(t, uint32(2), size)

	_, err = mem.Grow(s.AsStoreMut(), 1)
	require.Error(t, err)
	var merr *MemoryError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, MemoryErrorCouldNotGrow, merr.Kind)
	require.Equal(t, uint32(2), merr.Current)
	require.Equal(t, uint32(1), merr.Attempted)
}

func TestMemoryMinExceedsMax(t *testing.T) {
	s := newTestStore(t)
	_, err := NewMemory(s, api.MemoryType{Min: 3, Max: maxPtr(2)}, NewByteSliceMemory)
	require.Error(t, err)
	_ = s
}

func TestStaticMemoryGrowsInPlace(t *testing.T) {
	s := newTestStore(t)
	mem, err := NewMemory(s, api.MemoryType{Min: 1, Max: maxPtr(4)}, NewStaticByteSliceMemory)
	require.NoError(t, err)

	repr, err := MemoryReprFor(mem, s.AsStoreRef())
	require.NoError(t, err)
	before, ok := repr.RawBytes()
	require.True(t, ok)

	_, err = mem.Grow(s.AsStoreMut(), 2)
	require.NoError(t, err)

	after, _ := repr.RawBytes()
	require.Equal(t, 3*api.PageSize, len(after))
	require.Equal(t, &before[0], &after[0])
}

func TestMemoryReadWrite(t *testing.T) {
	s := newTestStore(t)
	mem, err := NewMemory(s, api.MemoryType{Min: 1}, NewByteSliceMemory)
	require.NoError(t, err)

	repr, err := MemoryReprFor(mem, s.AsStoreRef())
	require.NoError(t, err)

	require.True(t, repr.WriteAt([]byte{7}, api.PageSize-1))
	require.False(t, repr.WriteAt([]byte{7}, api.PageSize))

	var b [1]byte
	require.True(t, repr.ReadAt(b[:], api.PageSize-1))
	require.Equal(t, byte(7), b[0])
}

func TestTryCloneRequiresShared(t *testing.T) {
	s := newTestStore(t)

	exclusive, err := NewMemory(s, api.MemoryType{Min: 1}, NewByteSliceMemory)
	require.NoError(t, err)
	_, err = exclusive.TryClone(s.AsStoreRef())
	var merr *MemoryError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, MemoryErrorNotShared, merr.Kind)

	shared, err := NewMemory(s, api.MemoryType{Min: 1, Shared: true}, NewByteSliceMemory)
	require.NoError(t, err)
	clone, err := shared.TryClone(s.AsStoreRef())
	require.NoError(t, err)

	// The clone aliases the same buffer.
	require.True(t, clone.WriteAt([]byte{9}, 0))
	orig, err := MemoryReprFor(shared, s.AsStoreRef())
	require.NoError(t, err)
	var b [1]byte
	require.True(t, orig.ReadAt(b[:], 0))
	require.Equal(t, byte(9), b[0])
}

func TestTryCopyIsIndependent(t *testing.T) {
	s := newTestStore(t)
	mem, err := NewMemory(s, api.MemoryType{Min: 1}, NewByteSliceMemory)
	require.NoError(t, err)

	cp, err := mem.TryCopy(s.AsStoreRef())
	require.NoError(t, err)
	require.True(t, cp.WriteAt([]byte{1}, 0))

	orig, err := MemoryReprFor(mem, s.AsStoreRef())
	require.NoError(t, err)
	var b [1]byte
	require.True(t, orig.ReadAt(b[:], 0))
	require.Equal(t, byte(0), b[0])
}
