package sharding

import (
	"testing"

	"github.com/gomlx/autosharding/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mesh2x2(t *testing.T) *DeviceMesh {
	mesh, err := NewDeviceMesh("mesh", []int{2, 2}, []string{"x", "y"})
	require.NoError(t, err)
	return mesh
}

func TestSpec(t *testing.T) {
	mesh := mesh2x2(t)

	spec := NewSpec(mesh, 3)
	assert.Equal(t, 3, spec.Rank())
	assert.True(t, spec.IsReplicated())
	assert.Equal(t, 1, spec.ShardCount())
	assert.Equal(t, "replicated", spec.String())

	spec.SetDimAxis(0, 0).SetDimAxis(2, 1)
	assert.False(t, spec.IsReplicated())
	assert.Equal(t, 0, spec.AxisFor(0))
	assert.Equal(t, NotSharded, spec.AxisFor(1))
	assert.Equal(t, 1, spec.AxisFor(2))
	assert.Equal(t, 4, spec.ShardCount())
	assert.Equal(t, "{x, -, y}", spec.String())

	var unspecified *Spec
	assert.Equal(t, "unspecified", unspecified.String())
}

func TestSpecSetDimAxisName(t *testing.T) {
	mesh := mesh2x2(t)
	spec, err := NewSpec(mesh, 2).SetDimAxisName(1, "y")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.AxisFor(1))

	_, err = NewSpec(mesh, 2).SetDimAxisName(0, "z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `mesh axis "z" not found`)
}

func TestSpecShardShape(t *testing.T) {
	mesh := mesh2x2(t)
	shape := shapes.Make(dtypes.Float32, 8, 8)

	spec := NewSpec(mesh, 2).SetDimAxis(0, 0)
	assert.Equal(t, []int{4, 8}, spec.ShardShape(shape).Dimensions)
	assert.Equal(t, int64(128), spec.ShardMemory(shape))

	spec.SetDimAxis(1, 1)
	assert.Equal(t, []int{4, 4}, spec.ShardShape(shape).Dimensions)
	assert.Equal(t, int64(64), spec.ShardMemory(shape))

	replicated := Replicated(mesh, 2)
	assert.Equal(t, []int{8, 8}, replicated.ShardShape(shape).Dimensions)
	assert.Equal(t, int64(256), replicated.ShardMemory(shape))
}

func TestSpecCloneAndEqual(t *testing.T) {
	mesh := mesh2x2(t)

	spec := NewSpec(mesh, 2).SetDimAxis(0, 0)
	clone := spec.Clone()
	require.True(t, spec.Equal(clone))
	clone.SetDimAxis(1, 1)
	assert.Equal(t, NotSharded, spec.AxisFor(1), "Clone must not alias the original")
	assert.False(t, spec.Equal(clone))

	var unspecified *Spec
	assert.Nil(t, unspecified.Clone())
	assert.True(t, unspecified.Equal(nil))
	assert.False(t, spec.Equal(nil))
	assert.False(t, unspecified.Equal(spec))

	// Same placement on a different mesh instance is a different spec.
	otherMesh := mesh2x2(t)
	assert.False(t, spec.Equal(NewSpec(otherMesh, 2).SetDimAxis(0, 0)))
}

func TestSpecValidate(t *testing.T) {
	mesh := mesh2x2(t)
	shape := shapes.Make(dtypes.Float32, 8, 6)

	require.NoError(t, NewSpec(mesh, 2).SetDimAxis(0, 0).Validate(shape))
	require.NoError(t, Replicated(mesh, 2).Validate(shape))

	err := NewSpec(mesh, 3).Validate(shape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match tensor rank")

	err = NewSpec(mesh, 2).SetDimAxis(0, 7).Validate(shape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mesh axis 7")

	err = NewSpec(mesh, 2).SetDimAxis(0, 0).SetDimAxis(1, 0).Validate(shape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "used by more than one dimension")

	odd := shapes.Make(dtypes.Float32, 8, 5)
	err = NewSpec(mesh, 2).SetDimAxis(1, 0).Validate(odd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not divide evenly")

	err = (&Spec{DimAxes: []int{NotSharded, NotSharded}}).Validate(shape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mesh")
}
