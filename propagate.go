package autosharding

import (
	"github.com/gomlx/autosharding/graph"
	"github.com/gomlx/autosharding/types/sharding"
	"github.com/pkg/errors"
)

// applySolution annotates every modeled operation with the output sharding of
// its chosen strategy. First mutation of the graph in the pass: everything
// before this point is read-only.
func applySolution(g *graph.Graph, cg *costGraph, sol *solution) {
	for _, op := range g.Ops() {
		if sol.choice[op.ID] < 0 {
			continue
		}
		op.Sharding = cg.strategies[op.ID][sol.choice[op.ID]].Output.Clone()
	}
}

// propagate extends the solved assignment to the operations the enumerator
// does not model: pass-through operations receive the sharding of their
// single operand, in topological order, so chains resolve in one sweep.
//
// Postcondition (checked): every operation carries a concrete sharding whose
// rank matches its tensor rank.
func propagate(g *graph.Graph, mesh *sharding.DeviceMesh) error {
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, id := range order {
		op := g.Op(id)
		if op.Sharding != nil {
			continue
		}
		if op.Type.IsPassThrough() && len(op.Inputs) > 0 {
			op.Sharding = g.Op(op.Inputs[0]).Sharding.Clone()
		}
		if op.Sharding == nil {
			op.Sharding = sharding.Replicated(mesh, op.Shape.Rank())
		}
	}
	for _, op := range g.Ops() {
		if op.Sharding == nil {
			return errors.Errorf("internal: operation %s left without a sharding after propagation", op)
		}
		if err := op.Sharding.Validate(op.Shape); err != nil {
			return errors.WithMessagef(err, "internal: operation %s has an inconsistent sharding", op)
		}
	}
	return nil
}
