package autosharding

import (
	"testing"

	"github.com/gomlx/autosharding/types/shapes"
	"github.com/gomlx/autosharding/types/sharding"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
)

func newMesh(t *testing.T, axesSizes []int, axesNames []string) *sharding.DeviceMesh {
	t.Helper()
	return must.M1(sharding.NewDeviceMesh("mesh", axesSizes, axesNames))
}

func TestCollectiveCosts(t *testing.T) {
	mesh := newMesh(t, []int{2, 2}, []string{"x", "y"})
	cm := NewCostModel(mesh)

	// Defaults: LatencyCost=1, ByteCost=1.
	assert.Equal(t, 17.0, cm.AllGather(16, 2))
	assert.Equal(t, 65.0, cm.AllToAll(128, 2))
	assert.Equal(t, 130.0, cm.AllReduce(128, 2))

	// A single-device axis needs no communication at all.
	assert.Equal(t, 0.0, cm.AllGather(16, 1))
	assert.Equal(t, 0.0, cm.AllToAll(128, 1))
	assert.Equal(t, 0.0, cm.AllReduce(128, 1))

	// The coefficients are tunable.
	cm.LatencyCost, cm.ByteCost = 2, 0.5
	assert.Equal(t, 10.0, cm.AllGather(16, 2))
	assert.Equal(t, 34.0, cm.AllReduce(128, 2))
}

func TestReshardCost(t *testing.T) {
	mesh := newMesh(t, []int{2, 2}, []string{"x", "y"})
	cm := NewCostModel(mesh)
	shape := shapes.Make(dtypes.Float32, 8, 8) // 256 bytes, 128 per one-axis shard.

	tile0x := func() *sharding.Spec { return sharding.NewSpec(mesh, 2).SetDimAxis(0, 0) }
	tile0y := func() *sharding.Spec { return sharding.NewSpec(mesh, 2).SetDimAxis(0, 1) }
	tile1x := func() *sharding.Spec { return sharding.NewSpec(mesh, 2).SetDimAxis(1, 0) }
	tile1y := func() *sharding.Spec { return sharding.NewSpec(mesh, 2).SetDimAxis(1, 1) }
	replicated := func() *sharding.Spec { return sharding.Replicated(mesh, 2) }

	testCases := []struct {
		name     string
		from, to *sharding.Spec
		want     float64
	}{
		{"same layout", tile0x(), tile0x(), 0},
		{"replicated to replicated", replicated(), replicated(), 0},
		{"replicated to tiled is a local slice", replicated(), tile0x(), 0},
		{"unspecified source acts as replicated", nil, tile0x(), 0},
		{"unspecified target", tile0x(), nil, 0},
		{"tiled to replicated is an all-gather", tile0x(), replicated(), cm.AllGather(128, 2)},
		{"same dim across axes is an all-to-all", tile0x(), tile0y(), cm.AllToAll(128, 2)},
		{"moving the tiled dim is an all-gather", tile0x(), tile1x(), cm.AllGather(128, 2)},
		{"moving dim and axis is an all-gather", tile0x(), tile1y(), cm.AllGather(128, 2)},
		{"two tiled dims to replicated", tile0x().SetDimAxis(1, 1), replicated(),
			2 * cm.AllGather(64, 2)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cm.ReshardCost(shape, tc.from, tc.to))
		})
	}
}
