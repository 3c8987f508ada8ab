package api

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		build func() Value
		check func(t *testing.T, v Value)
	}{
		{"i32", func() Value { return I32(-7) }, func(t *testing.T, v Value) { require.Equal(t, int32(-7), v.I32()) }},
		{"i32 max", func() Value { return U32(math.MaxUint32) }, func(t *testing.T, v Value) { require.Equal(t, uint32(math.MaxUint32), v.U32()) }},
		{"i64", func() Value { return I64(math.MinInt64) }, func(t *testing.T, v Value) { require.Equal(t, int64(math.MinInt64), v.I64()) }},
		{"f32", func() Value { return F32(1.5) }, func(t *testing.T, v Value) { require.Equal(t, float32(1.5), v.F32()) }},
		{"f32 nan", func() Value { return F32(float32(math.NaN())) }, func(t *testing.T, v Value) { require.True(t, math.IsNaN(float64(v.F32()))) }},
		{"f64", func() Value { return F64(math.Copysign(0, -1)) }, func(t *testing.T, v Value) { require.True(t, math.Signbit(v.F64())) }},
		{"v128", func() Value { return V128(1, 2) }, func(t *testing.T, v Value) {
			lo, hi := v.V128()
			require.Equal(t, uint64(1), lo)
			require.Equal(t, uint64(2), hi)
		}},
		{"null funcref", func() Value { return NullFuncRef() }, func(t *testing.T, v Value) { require.Nil(t, v.FuncRef()) }},
		{"funcref", func() Value { return FuncRef(FuncRefValue{StoreID: 3, LocalIndex: 9}) }, func(t *testing.T, v Value) {
			require.Equal(t, FuncRefValue{StoreID: 3, LocalIndex: 9}, *v.FuncRef())
		}},
		{"null externref", func() Value { return NullExternRef() }, func(t *testing.T, v Value) { require.Nil(t, v.ExternRef()) }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := tc.build()
			tc.check(t, v)
			require.True(t, v.Equal(tc.build()))
		})
	}
}

func TestValueEqual(t *testing.T) {
	require.True(t, NullFuncRef().Equal(NullFuncRef()))
	require.False(t, NullFuncRef().Equal(FuncRef(FuncRefValue{StoreID: 1})))
	require.False(t, I32(1).Equal(I64(1)))
	require.True(t, V128(1, 2).Equal(V128(1, 2)))
	require.False(t, V128(1, 2).Equal(V128(1, 3)))
}

func TestValueKindMismatchPanics(t *testing.T) {
	require.Panics(t, func() { I32(1).I64() })
}

func TestFuncSigEqualAndString(t *testing.T) {
	a := FuncSig{Params: []ValueKind{KindI32, KindI64}, Results: []ValueKind{KindF64}}
	b := FuncSig{Params: []ValueKind{KindI32, KindI64}, Results: []ValueKind{KindF64}}
	c := FuncSig{Params: []ValueKind{KindI32}, Results: []ValueKind{KindF64}}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.Equal(t, "(i32,i64)->(f64)", a.String())
	require.Equal(t, "()->()", FuncSig{}.String())
}

func TestFeatures(t *testing.T) {
	f := DefaultFeatures
	require.True(t, f.Has(FeatureMultiValue))
	require.False(t, f.Has(FeatureThreads))
	require.True(t, f.With(FeatureThreads).Has(FeatureThreads))
}
