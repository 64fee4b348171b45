package autosharding

import (
	"github.com/gomlx/autosharding/graph"
	"github.com/gomlx/autosharding/internal/optypes"
	"k8s.io/klog/v2"
)

// insertReshardings makes the graph internally consistent: wherever a
// consumer's chosen strategy expects an operand in a layout different from
// the one the producer actually delivers, a Reshard operation performing
// exactly that conversion is inserted and the consumer's operand reference is
// rewritten to it. Numerical values are unchanged; only the physical
// distribution is.
//
// Returns the number of operations inserted. Idempotent: once every
// mismatch is resolved, producer and consumer layouts agree by construction
// and a second run inserts nothing.
func insertReshardings(g *graph.Graph, cg *costGraph, sol *solution) int {
	inserted := 0
	numOps := g.NumOps() // Snapshot: insertions append past this point.
	for id := range numOps {
		op := g.Op(graph.OpID(id))
		if sol.choice[op.ID] < 0 {
			continue // Pass-through consumers take whatever arrives.
		}
		strategy := cg.strategies[op.ID][sol.choice[op.ID]]
		for i, inputID := range op.Inputs {
			expected := strategy.Inputs[i]
			producer := g.Op(inputID)
			if expected.Equal(producer.Sharding) {
				continue
			}
			reshard := g.AddOp(optypes.Reshard, producer.Shape.Clone(), inputID)
			reshard.Sharding = expected.Clone()
			op.Inputs[i] = reshard.ID
			inserted++
			if klog.V(2).Enabled() {
				klog.Infof("auto-sharding: reshard %s -> %s inserted between %s and %s (operand #%d), cost=%g",
					producer.Sharding, expected, producer, op, i,
					cg.cm.ReshardCost(producer.Shape, producer.Sharding, expected))
			}
		}
	}
	return inserted
}
