// Package interpreter is the reference backend: a small stack-based
// evaluator over artifact.FunctionBody.Code, dispatching tagged
// instructions in a switch loop over a reduced, self-defined opcode set. This backend's Code stream is this module's own
// minimal instruction encoding, produced by the Compiler in compile.go and
// by tests that build artifact.FunctionBody values directly.
package interpreter

// Op is one instruction in a FunctionBody's Code stream.
type Op byte

const (
	// OpI32Const pushes a constant i32. Operand: 4 bytes little-endian.
	OpI32Const Op = iota
	// OpI64Const pushes a constant i64. Operand: 8 bytes little-endian.
	OpI64Const
	// OpF32Const pushes a constant f32. Operand: 4 bytes little-endian bits.
	OpF32Const
	// OpF64Const pushes a constant f64. Operand: 8 bytes little-endian bits.
	OpF64Const
	// OpLocalGet pushes the value of local index n (params first, then
	// declared locals). Operand: 4 bytes little-endian.
	OpLocalGet
	// OpLocalSet pops the top of stack into local index n. Operand: 4
	// bytes little-endian.
	OpLocalSet
	// OpCall invokes another function in the combined index space and
	// pushes its results. Operand: 4 bytes little-endian function index.
	OpCall
	// OpI32Add pops two i32s, pushes their sum.
	OpI32Add
	// OpI32Sub pops two i32s (b, a in push order a then b), pushes a-b.
	OpI32Sub
	// OpI32Mul pops two i32s, pushes their product.
	OpI32Mul
	// OpI64Add pops two i64s, pushes their sum.
	OpI64Add
	// OpI64Sub pops two i64s, pushes a-b.
	OpI64Sub
	// OpDrop discards the top stack value.
	OpDrop
	// OpUnreachable traps immediately.
	OpUnreachable
	// OpEnd terminates execution; the top len(results) stack values (in
	// push order) are the function's results.
	OpEnd
)
