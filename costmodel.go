package autosharding

import (
	"github.com/gomlx/autosharding/types/shapes"
	"github.com/gomlx/autosharding/types/sharding"
)

// CostModel estimates the cost of the collective communication needed to
// convert a tensor from one sharding layout to another on a given mesh.
//
// Costs are abstract units, normalized so that processing one tensor element
// of compute costs about one unit. The same CostModel instance is used for
// the edge cost matrices, for the communication part of reduction and
// contraction strategies, and for any recomputation at resharding-insertion
// time, so all stages agree on the formulas.
type CostModel struct {
	mesh *sharding.DeviceMesh

	// LatencyCost is the fixed startup cost of one collective operation.
	LatencyCost float64

	// ByteCost is the cost of moving one byte between two devices of the
	// mesh.
	ByteCost float64
}

// NewCostModel creates a CostModel for the given mesh with default
// coefficients.
func NewCostModel(mesh *sharding.DeviceMesh) *CostModel {
	return &CostModel{
		mesh:        mesh,
		LatencyCost: 1,
		ByteCost:    1,
	}
}

// AllGather returns the cost of gathering the full tensor on each of the
// axisSize devices of one mesh axis, given the per-device shard size in
// bytes. Each device receives the other axisSize-1 shards.
func (cm *CostModel) AllGather(shardBytes int64, axisSize int) float64 {
	if axisSize <= 1 {
		return 0
	}
	return cm.LatencyCost + cm.ByteCost*float64(shardBytes)*float64(axisSize-1)
}

// AllToAll returns the cost of re-tiling a tensor across a mesh axis of
// axisSize devices, given the per-device shard size in bytes. Each device
// keeps 1/axisSize of its shard and exchanges the rest.
func (cm *CostModel) AllToAll(shardBytes int64, axisSize int) float64 {
	if axisSize <= 1 {
		return 0
	}
	return cm.LatencyCost + cm.ByteCost*float64(shardBytes)*float64(axisSize-1)/float64(axisSize)
}

// AllReduce returns the cost of summing partial results of the given size in
// bytes across a mesh axis of axisSize devices (reduce-scatter followed by
// all-gather).
func (cm *CostModel) AllReduce(bytes int64, axisSize int) float64 {
	if axisSize <= 1 {
		return 0
	}
	return 2*cm.LatencyCost + 2*cm.ByteCost*float64(bytes)*float64(axisSize-1)/float64(axisSize)
}

// ReshardCost returns the communication cost of converting a tensor of the
// given shape from layout `from` to layout `to`. Per tensor dimension:
//
//   - same mesh axis on both sides (or unsharded on both): free;
//   - unsharded -> tiled: free, each device keeps its local slice of the
//     copy it already holds;
//   - tiled -> unsharded: all-gather across the mesh axis;
//   - tiled on axis A -> tiled on axis B: all-to-all across axis B.
//
// A nil (unspecified) `from` is treated as replicated.
func (cm *CostModel) ReshardCost(shape shapes.Shape, from, to *sharding.Spec) float64 {
	if from == nil {
		from = sharding.Replicated(cm.mesh, shape.Rank())
	}
	if to == nil || from.Equal(to) {
		return 0
	}
	shardBytes := from.ShardMemory(shape)
	var cost float64
	for dim := range shape.Rank() {
		fromAxis, toAxis := from.AxisFor(dim), to.AxisFor(dim)
		switch {
		case fromAxis == toAxis:
			// Layout already agrees on this dimension.
		case fromAxis == sharding.NotSharded:
			// Replicated to tiled: a local-view reinterpretation, no transfer.
		case toAxis == sharding.NotSharded:
			cost += cm.AllGather(shardBytes, cm.mesh.AxisSize(fromAxis))
		default:
			cost += cm.AllToAll(shardBytes, cm.mesh.AxisSize(toAxis))
		}
	}
	return cost
}
