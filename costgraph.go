package autosharding

import (
	"sync"

	"github.com/gomlx/autosharding/graph"
)

// costEdge is the resharding cost matrix of one producer/consumer adjacency:
// cost[i][j] is the communication cost of feeding the producer's output under
// its strategy i into the consumer's operand under the consumer's strategy j.
type costEdge struct {
	producer, consumer graph.OpID
	operand            int

	cost [][]float64
}

// costGraph holds the per-operation strategy domains and the pairwise edge
// cost matrices the solver optimizes over. It never owns graph operations,
// only their ids.
type costGraph struct {
	g  *graph.Graph
	cm *CostModel

	// strategies per OpID; nil for pass-through (unmodeled) operations.
	strategies [][]Strategy

	edges []costEdge
}

// resolveProducer follows pass-through chains (Identity, Reshard) to the
// modeled operation that actually decides the tensor's sharding.
func resolveProducer(g *graph.Graph, id graph.OpID) graph.OpID {
	for g.Op(id).Type.IsPassThrough() && len(g.Op(id).Inputs) > 0 {
		id = g.Op(id).Inputs[0]
	}
	return id
}

// buildCostGraph creates one cost edge per (modeled producer, modeled
// consumer, operand position) adjacency and fills the cost matrices. The
// matrices are independent, so they are computed in parallel, each edge
// writing into its own pre-allocated slot.
func buildCostGraph(g *graph.Graph, strategies [][]Strategy, cm *CostModel) *costGraph {
	cg := &costGraph{g: g, cm: cm, strategies: strategies}
	for _, op := range g.Ops() {
		if strategies[op.ID] == nil {
			continue // Pass-through consumer: no strategy, no expectation.
		}
		for i, inputID := range op.Inputs {
			producer := resolveProducer(g, inputID)
			if strategies[producer] == nil {
				continue
			}
			cg.edges = append(cg.edges, costEdge{
				producer: producer,
				consumer: op.ID,
				operand:  i,
			})
		}
	}

	var wg sync.WaitGroup
	for idx := range cg.edges {
		wg.Add(1)
		go func(e *costEdge) {
			defer wg.Done()
			e.cost = cg.edgeCostMatrix(e)
		}(&cg.edges[idx])
	}
	wg.Wait()
	return cg
}

func (cg *costGraph) edgeCostMatrix(e *costEdge) [][]float64 {
	producerShape := cg.g.Op(e.producer).Shape
	prodStrategies := cg.strategies[e.producer]
	consStrategies := cg.strategies[e.consumer]
	cost := make([][]float64, len(prodStrategies))
	for i, ps := range prodStrategies {
		row := make([]float64, len(consStrategies))
		for j, cs := range consStrategies {
			row[j] = cg.cm.ReshardCost(producerShape, ps.Output, cs.Inputs[e.operand])
		}
		cost[i] = row
	}
	return cost
}
