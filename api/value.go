// Package api includes the types shared between host code and the wasmforge
// runtime core: value kinds, function signatures, and the descriptors used
// to declare memories, tables and globals.
package api

import (
	"fmt"
	"math"
)

// ValueKind enumerates the value kinds a Wasm value can carry. This extends
// the WebAssembly 1.0 numeric types with the reference and exception kinds
// needed by the reference-types, function-references and exception-handling
// proposals that the backend dispatch layer must be able to represent even
// when a given backend declines to support them.
type ValueKind byte

const (
	// KindI32 is a 32-bit integer.
	KindI32 ValueKind = iota
	// KindI64 is a 64-bit integer.
	KindI64
	// KindF32 is a 32-bit IEEE-754 float.
	KindF32
	// KindF64 is a 64-bit IEEE-754 float.
	KindF64
	// KindV128 is a 128-bit SIMD vector.
	KindV128
	// KindFuncRef is a nullable reference to a function.
	KindFuncRef
	// KindExternRef is a nullable opaque host reference.
	KindExternRef
	// KindExceptionRef is a reference to an in-flight exception payload.
	KindExceptionRef
)

// String implements fmt.Stringer, matching the text-format names.
func (k ValueKind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindV128:
		return "v128"
	case KindFuncRef:
		return "funcref"
	case KindExternRef:
		return "externref"
	case KindExceptionRef:
		return "exceptionref"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(k))
	}
}

// Value carries one payload tagged by its ValueKind. For KindV128 Lo/Hi hold
// the low and high 64 bits; for KindFuncRef a nil FuncRef is the null
// function reference, which must round-trip through host conversion like
// any other value.
type Value struct {
	Kind ValueKind

	// bits is the canonical 64-bit payload for I32 (zero/sign extended per
	// caller convention), I64, F32 (bit pattern) and F64 (bit pattern).
	bits uint64
	// hi is only meaningful for KindV128.
	hi uint64

	// funcRef is non-nil only for KindFuncRef; nil means the null funcref.
	funcRef *FuncRefValue
	// externRef is the opaque host payload for KindExternRef.
	externRef any
}

// FuncRefValue identifies a concrete function a KindFuncRef value points at,
// scoped to a store by StoreID and LocalIndex (see internal/wasm.Store).
type FuncRefValue struct {
	StoreID    uint64
	LocalIndex uint32
}

// I32 constructs a KindI32 value.
func I32(v int32) Value { return Value{Kind: KindI32, bits: uint64(uint32(v))} }

// U32 constructs a KindI32 value from an unsigned source.
func U32(v uint32) Value { return Value{Kind: KindI32, bits: uint64(v)} }

// I64 constructs a KindI64 value.
func I64(v int64) Value { return Value{Kind: KindI64, bits: uint64(v)} }

// U64 constructs a KindI64 value from an unsigned source.
func U64(v uint64) Value { return Value{Kind: KindI64, bits: v} }

// F32 constructs a KindF32 value.
func F32(v float32) Value { return Value{Kind: KindF32, bits: uint64(math.Float32bits(v))} }

// F64 constructs a KindF64 value.
func F64(v float64) Value { return Value{Kind: KindF64, bits: math.Float64bits(v)} }

// V128 constructs a KindV128 value from its low and high 64-bit lanes.
func V128(lo, hi uint64) Value { return Value{Kind: KindV128, bits: lo, hi: hi} }

// NullFuncRef is the null function reference.
func NullFuncRef() Value { return Value{Kind: KindFuncRef} }

// FuncRef constructs a non-null KindFuncRef value.
func FuncRef(ref FuncRefValue) Value { return Value{Kind: KindFuncRef, funcRef: &ref} }

// NullExternRef is the null extern reference.
func NullExternRef() Value { return Value{Kind: KindExternRef} }

// ExternRef constructs a KindExternRef value wrapping an opaque host value.
func ExternRef(v any) Value { return Value{Kind: KindExternRef, externRef: v} }

// I32 decodes a KindI32 payload. Panics if Kind != KindI32; callers that
// received the value from trusted internal plumbing may rely on Kind having
// already been checked against a FuncSig.
func (v Value) I32() int32 { v.mustBe(KindI32); return int32(uint32(v.bits)) }

// U32 decodes a KindI32 payload as unsigned.
func (v Value) U32() uint32 { v.mustBe(KindI32); return uint32(v.bits) }

// I64 decodes a KindI64 payload.
func (v Value) I64() int64 { v.mustBe(KindI64); return int64(v.bits) }

// U64 decodes a KindI64 payload as unsigned.
func (v Value) U64() uint64 { v.mustBe(KindI64); return v.bits }

// F32 decodes a KindF32 payload.
func (v Value) F32() float32 { v.mustBe(KindF32); return math.Float32frombits(uint32(v.bits)) }

// F64 decodes a KindF64 payload.
func (v Value) F64() float64 { v.mustBe(KindF64); return math.Float64frombits(v.bits) }

// V128 decodes the low and high lanes of a KindV128 payload.
func (v Value) V128() (lo, hi uint64) { v.mustBe(KindV128); return v.bits, v.hi }

// FuncRef returns the referenced function, or nil for the null funcref.
func (v Value) FuncRef() *FuncRefValue { v.mustBe(KindFuncRef); return v.funcRef }

// ExternRef returns the opaque host payload, or nil for the null externref.
func (v Value) ExternRef() any { v.mustBe(KindExternRef); return v.externRef }

func (v Value) mustBe(k ValueKind) {
	if v.Kind != k {
		panic(fmt.Sprintf("api: value is %s, not %s", v.Kind, k))
	}
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindFuncRef:
		if v.funcRef == nil || o.funcRef == nil {
			return v.funcRef == o.funcRef
		}
		return *v.funcRef == *o.funcRef
	case KindExternRef:
		return v.externRef == o.externRef
	case KindV128:
		return v.bits == o.bits && v.hi == o.hi
	default:
		return v.bits == o.bits
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case KindI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case KindF32:
		return fmt.Sprintf("f32:%v", v.F32())
	case KindF64:
		return fmt.Sprintf("f64:%v", v.F64())
	case KindV128:
		lo, hi := v.V128()
		return fmt.Sprintf("v128:%016x%016x", hi, lo)
	case KindFuncRef:
		if v.funcRef == nil {
			return "funcref:null"
		}
		return fmt.Sprintf("funcref:%d.%d", v.funcRef.StoreID, v.funcRef.LocalIndex)
	case KindExternRef:
		if v.externRef == nil {
			return "externref:null"
		}
		return fmt.Sprintf("externref:%v", v.externRef)
	default:
		return "invalid"
	}
}
