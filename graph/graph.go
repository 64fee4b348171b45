// Package graph holds the dataflow IR the auto-sharding pass operates on.
//
// A Graph is an arena of operations indexed by stable integer OpIDs:
// operands are referenced by identity, not by pointer, so the cost
// structures built by the pass can refer to operations as plain indices
// without creating pointer cycles. Operation identity is immutable; the
// operand list is rewritten when the pass inserts resharding operations.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/autosharding/internal/optypes"
	"github.com/gomlx/autosharding/types/shapes"
	"github.com/gomlx/autosharding/types/sharding"
	"github.com/pkg/errors"
)

// OpID is the stable identity of an operation within its Graph: its index in
// the arena.
type OpID int

// Op is one operation of the graph. It is owned by the Graph that created it.
type Op struct {
	// ID is the operation's index in the graph arena. Immutable.
	ID OpID

	// Type of the operation.
	Type optypes.OpType

	// Inputs are the operand references, by identity. Rewritten by the
	// auto-sharding pass when resharding operations are inserted.
	Inputs []OpID

	// Shape of the operation's output tensor.
	Shape shapes.Shape

	// Axes is interpreted per operation kind: the reduced axes for
	// reductions, the permutation for Transpose, and the operand-to-output
	// dimension mapping for BroadcastInDim. Nil for other kinds.
	Axes []int

	// Sharding of the output tensor. Assigned by the auto-sharding pass;
	// nil means unspecified.
	Sharding *sharding.Spec
}

// String implements fmt.Stringer, for debugging and logs.
func (op *Op) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "#%d=%s%s", op.ID, op.Type, op.Shape)
	if len(op.Inputs) > 0 {
		sb.WriteString("(")
		for i, input := range op.Inputs {
			if i > 0 {
				sb.WriteString(", ")
			}
			_, _ = fmt.Fprintf(&sb, "#%d", input)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// Edge is one producer/consumer adjacency: the consumer's operand at position
// Operand is produced by Producer.
type Edge struct {
	Producer, Consumer OpID
	Operand            int
}

// Graph is an arena of operations forming a dataflow DAG.
type Graph struct {
	name string
	ops  []*Op
}

// New creates a new empty Graph.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumOps returns the number of operations in the graph.
func (g *Graph) NumOps() int { return len(g.ops) }

// Op returns the operation with the given id. It panics for an out-of-range
// id, like a slice indexing.
func (g *Graph) Op(id OpID) *Op { return g.ops[id] }

// Ops returns the graph's operations, indexed by OpID. The slice is owned by
// the graph; callers must not modify it.
func (g *Graph) Ops() []*Op { return g.ops }

// AddOp appends a new operation to the graph and returns it. The operands
// must already be part of the graph.
func (g *Graph) AddOp(opType optypes.OpType, shape shapes.Shape, inputs ...OpID) *Op {
	op := &Op{
		ID:     OpID(len(g.ops)),
		Type:   opType,
		Inputs: slices.Clone(inputs),
		Shape:  shape,
	}
	g.ops = append(g.ops, op)
	return op
}

// AddOpWithAxes is AddOp for operation kinds carrying an axes attribute
// (reductions, Transpose, BroadcastInDim).
func (g *Graph) AddOpWithAxes(opType optypes.OpType, shape shapes.Shape, axes []int, inputs ...OpID) *Op {
	op := g.AddOp(opType, shape, inputs...)
	op.Axes = slices.Clone(axes)
	return op
}

// Parameter appends a new graph input with the given shape.
func (g *Graph) Parameter(shape shapes.Shape) *Op {
	return g.AddOp(optypes.Parameter, shape)
}

// Edges returns every producer/consumer adjacency of the graph, in consumer
// order. An operation consuming the same producer twice yields two edges.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, op := range g.ops {
		for i, input := range op.Inputs {
			edges = append(edges, Edge{Producer: input, Consumer: op.ID, Operand: i})
		}
	}
	return edges
}

// TopologicalOrder returns the OpIDs in dependency order: every operation
// appears after all of its operands. It returns an error if the graph has a
// cycle.
//
// Operations are appended in construction order, but resharding insertion
// rewires operands to operations appended later, so arena order is not
// dependency order in general.
func (g *Graph) TopologicalOrder() ([]OpID, error) {
	numOps := len(g.ops)
	inDegree := make([]int, numOps)
	dependents := make([][]OpID, numOps)
	for _, op := range g.ops {
		for _, input := range op.Inputs {
			dependents[input] = append(dependents[input], op.ID)
			inDegree[op.ID]++
		}
	}

	// Kahn's algorithm.
	queue := make([]OpID, 0, numOps)
	for id := range numOps {
		if inDegree[id] == 0 {
			queue = append(queue, OpID(id))
		}
	}
	order := make([]OpID, 0, numOps)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if len(order) != numOps {
		return nil, errors.Errorf("graph %q has a cycle: only %d of %d operations could be ordered",
			g.name, len(order), numOps)
	}
	return order, nil
}

// Validate checks the structural invariants of the graph: operand ids in
// range, no self-reference, valid shapes, and acyclicity.
func (g *Graph) Validate() error {
	for _, op := range g.ops {
		if err := op.Shape.Validate(); err != nil {
			return errors.WithMessagef(err, "operation %s", op)
		}
		for i, input := range op.Inputs {
			if input < 0 || int(input) >= len(g.ops) {
				return errors.Errorf("operation %s operand #%d refers to unknown operation #%d",
					op, i, input)
			}
			if input == op.ID {
				return errors.Errorf("operation %s consumes itself", op)
			}
		}
	}
	_, err := g.TopologicalOrder()
	return err
}

// ClearShardings resets every operation's sharding to unspecified.
func (g *Graph) ClearShardings() {
	for _, op := range g.ops {
		op.Sharding = nil
	}
}
