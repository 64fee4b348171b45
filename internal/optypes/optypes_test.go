package optypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTypeStrings(t *testing.T) {
	assert.Equal(t, "Dot", Dot.String())
	assert.Equal(t, "BroadcastInDim", BroadcastInDim.String())

	op, err := OpTypeString("ReduceSum")
	require.NoError(t, err)
	assert.Equal(t, ReduceSum, op)
	op, err = OpTypeString("reducesum")
	require.NoError(t, err)
	assert.Equal(t, ReduceSum, op)

	_, err = OpTypeString("NotAnOp")
	require.Error(t, err)
}

func TestOpTypeClassification(t *testing.T) {
	for _, op := range OpTypeValues() {
		switch op {
		case Add, Sub, Mul, Div, Max, Min, Neg, Exp, Log, Tanh:
			assert.True(t, op.IsElementwise(), "%s", op)
		default:
			assert.False(t, op.IsElementwise(), "%s", op)
		}
	}
	assert.True(t, ReduceSum.IsReduction())
	assert.True(t, ReduceMax.IsReduction())
	assert.False(t, Dot.IsReduction())
	assert.True(t, Identity.IsPassThrough())
	assert.True(t, Reshard.IsPassThrough())
	assert.False(t, Exp.IsPassThrough())
}
