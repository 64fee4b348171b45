// Package optypes defines OpType, the operation kinds the auto-sharding pass
// knows how to enumerate sharding strategies for.
//
// Kinds outside this list are still accepted by the pass: they get the
// replicate-everything fallback strategy.
package optypes

// OpType is an enum of the operation kinds with specialized strategy
// enumeration.
type OpType int

//go:generate go tool enumer -type=OpType -output=optype_enumer.go optypes.go

const (
	Invalid OpType = iota

	// Sources: no operands, one output tensor.
	Parameter
	Constant

	// Identity forwards its single operand unchanged. It is never
	// enumerated: its sharding is propagated from the operand.
	Identity

	// Elementwise operations. Operand shapes must match the output shape
	// (scalar operands are allowed and stay replicated).
	Add
	Sub
	Mul
	Div
	Max
	Min
	Neg
	Exp
	Log
	Tanh

	// Reductions. Op.Axes holds the reduced axes; the output shape is the
	// input shape with those axes removed.
	ReduceSum
	ReduceMax

	// Dot is a rank-2 contraction: lhs [M,K] x rhs [K,N] -> [M,N].
	Dot

	// Shape-changing operations. For Transpose, Op.Axes is the permutation
	// (output axis i reads input axis Axes[i]). For BroadcastInDim, Op.Axes
	// maps each operand axis to its output axis.
	Reshape
	Transpose
	BroadcastInDim

	// Reshard converts its operand from the operand's sharding layout to the
	// Reshard op's own sharding. Inserted by the pass; values are unchanged.
	Reshard

	// Last should always be kept the last, it is used as a counter/marker.
	Last
)

// IsElementwise reports whether the operation computes elementwise over
// operands of the output shape.
func (op OpType) IsElementwise() bool {
	return op >= Add && op <= Tanh
}

// IsReduction reports whether the operation reduces away the axes in Op.Axes.
func (op OpType) IsReduction() bool {
	return op == ReduceSum || op == ReduceMax
}

// IsPassThrough reports whether the operation forwards its single operand's
// data unchanged (possibly with a different physical layout, for Reshard).
// Pass-through operations are not enumerated by the strategy enumerator;
// their sharding is assigned by propagation.
func (op OpType) IsPassThrough() bool {
	return op == Identity || op == Reshard
}
