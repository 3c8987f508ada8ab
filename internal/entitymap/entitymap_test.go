package entitymap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
)

func TestPrimaryMap(t *testing.T) {
	var m PrimaryMap[api.FunctionIndex, string]
	require.Equal(t, 0, m.Len())

	i0 := m.Push("a")
	i1 := m.Push("b")
	require.Equal(t, api.FunctionIndex(0), i0)
	require.Equal(t, api.FunctionIndex(1), i1)

	v, ok := m.Get(i1)
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = m.Get(api.FunctionIndex(2))
	require.False(t, ok)

	m.Set(i0, "z")
	v, _ = m.Get(i0)
	require.Equal(t, "z", v)

	require.Equal(t, []string{"z", "b"}, m.Values())
}

func TestSparseOverlay(t *testing.T) {
	var base PrimaryMap[api.GlobalIndex, int]
	base.Push(10)
	base.Push(20)

	o := NewSparseOverlay(&base)

	v, ok := o.Get(1)
	require.True(t, ok)
	require.Equal(t, 20, v)

	o.Set(1, 99)
	v, _ = o.Get(1)
	require.Equal(t, 99, v)

	// The base map stays untouched.
	v, _ = base.Get(1)
	require.Equal(t, 20, v)

	_, ok = o.Get(5)
	require.False(t, ok)
}
