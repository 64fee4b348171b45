package autosharding

import (
	"fmt"
	"sync"

	"github.com/gomlx/autosharding/graph"
	"github.com/gomlx/autosharding/internal/optypes"
	"github.com/gomlx/autosharding/types/shapes"
	"github.com/gomlx/autosharding/types/sharding"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Strategy is one candidate for how a single operation could execute under
// partitioning: the sharding each operand is required to arrive in, the
// sharding of the output, and the estimated local compute and memory cost.
//
// The strategies of one operation form a finite ordered set, generated
// deterministically: for identical inputs the enumerator always produces the
// same strategies in the same order, so tie-breaking by index is stable.
type Strategy struct {
	// Name describes the strategy, for logs and debugging. E.g.:
	// "tile[0]@x" or "replicate".
	Name string

	// Inputs are the sharding layouts the operands must arrive in, one per
	// operand.
	Inputs []*sharding.Spec

	// Output is the sharding layout of the operation's output tensor.
	Output *sharding.Spec

	// ComputeCost is the estimated cost of executing the operation locally
	// under this strategy, including any collective the strategy itself
	// implies (e.g. the all-reduce after partial products when the
	// contracted dimension is tiled).
	ComputeCost float64

	// MemoryCost is the number of bytes each device holds for this
	// operation's operands and output under this strategy.
	MemoryCost int64
}

// enumContext carries the read-only state shared by all strategy generators
// during one pass invocation.
type enumContext struct {
	g    *graph.Graph
	mesh *sharding.DeviceMesh
	cm   *CostModel
	cfg  *Config
}

// enumeratorFn generates the candidate strategies for one operation kind.
type enumeratorFn func(ctx *enumContext, op *graph.Op) ([]Strategy, error)

// enumerators dispatches strategy generation per operation kind. Kinds not
// registered here get the replicate-everything fallback.
var enumerators = map[optypes.OpType]enumeratorFn{}

func registerEnumerator(fn enumeratorFn, ops ...optypes.OpType) {
	for _, op := range ops {
		enumerators[op] = fn
	}
}

func init() {
	registerEnumerator(sourceStrategies, optypes.Parameter, optypes.Constant)
	for _, op := range optypes.OpTypeValues() {
		if op.IsElementwise() {
			registerEnumerator(elementwiseStrategies, op)
		} else if op.IsReduction() {
			registerEnumerator(reduceStrategies, op)
		}
	}
	registerEnumerator(dotStrategies, optypes.Dot)
	registerEnumerator(reshapeStrategies, optypes.Reshape)
	registerEnumerator(transposeStrategies, optypes.Transpose)
	registerEnumerator(broadcastStrategies, optypes.BroadcastInDim)
}

// tiling is one (tensor dimension, mesh axis) assignment.
type tiling struct {
	dim, axis int
}

// tilingsOf enumerates the single-dimension tilings of a shape on the mesh in
// canonical order: tensor dimension outer, mesh axis inner. Mesh axes of
// size 1 and dimensions that do not divide evenly are skipped.
func tilingsOf(mesh *sharding.DeviceMesh, shape shapes.Shape) []tiling {
	var ts []tiling
	for dim := range shape.Rank() {
		for axis := range mesh.Rank() {
			size := mesh.AxisSize(axis)
			if size <= 1 || shape.Dimensions[dim]%size != 0 {
				continue
			}
			ts = append(ts, tiling{dim: dim, axis: axis})
		}
	}
	return ts
}

func tileName(mesh *sharding.DeviceMesh, ts ...tiling) string {
	name := ""
	for i, t := range ts {
		if i > 0 {
			name += "+"
		}
		name += fmt.Sprintf("tile[%d]@%s", t.dim, mesh.AxesNames()[t.axis])
	}
	return name
}

// sourceStrategies covers operations with no operands (Parameter, Constant):
// any even tiling of the output, or full replication. No compute cost; the
// solver picks based on memory and on what the consumers prefer.
func sourceStrategies(ctx *enumContext, op *graph.Op) ([]Strategy, error) {
	if len(op.Inputs) != 0 {
		return nil, errors.Errorf("%s must not have operands, got %d", op.Type, len(op.Inputs))
	}
	var sts []Strategy
	for _, t := range tilingsOf(ctx.mesh, op.Shape) {
		sts = append(sts, Strategy{
			Name:   tileName(ctx.mesh, t),
			Output: sharding.NewSpec(ctx.mesh, op.Shape.Rank()).SetDimAxis(t.dim, t.axis),
		})
	}
	sts = append(sts, Strategy{
		Name:   "replicate",
		Output: sharding.Replicated(ctx.mesh, op.Shape.Rank()),
	})
	return sts, nil
}

// elementwiseStrategies: the operands and the output share one tiling, so
// every compatible tiling of the output shape is a strategy. Scalar operands
// stay replicated. Local compute shrinks with the shard count, replication
// pays the full size.
func elementwiseStrategies(ctx *enumContext, op *graph.Op) ([]Strategy, error) {
	makeInputs := func(outSpec *sharding.Spec) ([]*sharding.Spec, error) {
		inputs := make([]*sharding.Spec, len(op.Inputs))
		for i, inputID := range op.Inputs {
			operand := ctx.g.Op(inputID)
			if operand.Shape.IsScalar() {
				inputs[i] = sharding.Replicated(ctx.mesh, 0)
				continue
			}
			if !operand.Shape.Equal(op.Shape) {
				return nil, errors.Errorf("elementwise %s operand #%d has shape %s, expected %s",
					op, i, operand.Shape, op.Shape)
			}
			inputs[i] = outSpec.Clone()
		}
		return inputs, nil
	}

	var sts []Strategy
	size := float64(op.Shape.Size())
	for _, t := range tilingsOf(ctx.mesh, op.Shape) {
		outSpec := sharding.NewSpec(ctx.mesh, op.Shape.Rank()).SetDimAxis(t.dim, t.axis)
		inputs, err := makeInputs(outSpec)
		if err != nil {
			return nil, err
		}
		sts = append(sts, Strategy{
			Name:        tileName(ctx.mesh, t),
			Inputs:      inputs,
			Output:      outSpec,
			ComputeCost: size / float64(outSpec.ShardCount()),
		})
	}
	outSpec := sharding.Replicated(ctx.mesh, op.Shape.Rank())
	inputs, err := makeInputs(outSpec)
	if err != nil {
		return nil, err
	}
	sts = append(sts, Strategy{
		Name:        "replicate",
		Inputs:      inputs,
		Output:      outSpec,
		ComputeCost: size,
	})
	return sts, nil
}

// reduceStrategies: tiling a non-reduced dimension needs no communication;
// tiling a reduced dimension computes partial results locally and pays an
// all-reduce of the full output across the mesh axis.
func reduceStrategies(ctx *enumContext, op *graph.Op) ([]Strategy, error) {
	if len(op.Inputs) != 1 {
		return nil, errors.Errorf("%s must have exactly one operand, got %d", op.Type, len(op.Inputs))
	}
	operand := ctx.g.Op(op.Inputs[0])
	reduced := make(map[int]bool, len(op.Axes))
	for _, axis := range op.Axes {
		if axis < 0 || axis >= operand.Shape.Rank() {
			return nil, errors.Errorf("%s reduces invalid axis %d of operand shape %s",
				op, axis, operand.Shape)
		}
		reduced[axis] = true
	}
	if operand.Shape.Rank()-len(reduced) != op.Shape.Rank() {
		return nil, errors.Errorf("%s output rank %d inconsistent with operand %s reduced over %v",
			op, op.Shape.Rank(), operand.Shape, op.Axes)
	}
	// Position of each surviving operand dimension in the output.
	outDim := make(map[int]int, op.Shape.Rank())
	next := 0
	for dim := range operand.Shape.Rank() {
		if !reduced[dim] {
			outDim[dim] = next
			next++
		}
	}

	var sts []Strategy
	inSize := float64(operand.Shape.Size())
	for _, t := range tilingsOf(ctx.mesh, operand.Shape) {
		axisSize := ctx.mesh.AxisSize(t.axis)
		inSpec := sharding.NewSpec(ctx.mesh, operand.Shape.Rank()).SetDimAxis(t.dim, t.axis)
		st := Strategy{
			Name:        tileName(ctx.mesh, t),
			Inputs:      []*sharding.Spec{inSpec},
			ComputeCost: inSize / float64(axisSize),
		}
		if reduced[t.dim] {
			// Partial results per device, combined with an all-reduce.
			st.Output = sharding.Replicated(ctx.mesh, op.Shape.Rank())
			st.ComputeCost += ctx.cm.AllReduce(op.Shape.Memory(), axisSize)
		} else {
			st.Output = sharding.NewSpec(ctx.mesh, op.Shape.Rank()).SetDimAxis(outDim[t.dim], t.axis)
		}
		sts = append(sts, st)
	}
	sts = append(sts, Strategy{
		Name:        "replicate",
		Inputs:      []*sharding.Spec{sharding.Replicated(ctx.mesh, operand.Shape.Rank())},
		Output:      sharding.Replicated(ctx.mesh, op.Shape.Rank()),
		ComputeCost: inSize,
	})
	return sts, nil
}

// dotStrategies covers the rank-2 contraction lhs [M,K] x rhs [K,N] -> [M,N]:
// tile M, tile N, tile M and N on distinct axes, or tile the contracted K
// (partial products plus an all-reduce of the output).
func dotStrategies(ctx *enumContext, op *graph.Op) ([]Strategy, error) {
	if len(op.Inputs) != 2 {
		return nil, errors.Errorf("%s must have exactly two operands, got %d", op.Type, len(op.Inputs))
	}
	lhs, rhs := ctx.g.Op(op.Inputs[0]), ctx.g.Op(op.Inputs[1])
	if lhs.Shape.Rank() != 2 || rhs.Shape.Rank() != 2 || op.Shape.Rank() != 2 {
		return nil, errors.Errorf("%s operands and output must be rank-2, got %s x %s -> %s",
			op.Type, lhs.Shape, rhs.Shape, op.Shape)
	}
	m, k, n := lhs.Shape.Dimensions[0], lhs.Shape.Dimensions[1], rhs.Shape.Dimensions[1]
	if rhs.Shape.Dimensions[0] != k || op.Shape.Dimensions[0] != m || op.Shape.Dimensions[1] != n {
		return nil, errors.Errorf("%s shapes are inconsistent: %s x %s -> %s",
			op.Type, lhs.Shape, rhs.Shape, op.Shape)
	}
	base := 2 * float64(m) * float64(n) * float64(k)
	mesh := ctx.mesh
	names := mesh.AxesNames()
	divides := func(dim, axis int) bool {
		return mesh.AxisSize(axis) > 1 && dim%mesh.AxisSize(axis) == 0
	}

	var sts []Strategy
	for axis := range mesh.Rank() { // Tile M.
		if !divides(m, axis) {
			continue
		}
		sts = append(sts, Strategy{
			Name: fmt.Sprintf("tile-m@%s", names[axis]),
			Inputs: []*sharding.Spec{
				sharding.NewSpec(mesh, 2).SetDimAxis(0, axis),
				sharding.Replicated(mesh, 2),
			},
			Output:      sharding.NewSpec(mesh, 2).SetDimAxis(0, axis),
			ComputeCost: base / float64(mesh.AxisSize(axis)),
		})
	}
	for axis := range mesh.Rank() { // Tile N.
		if !divides(n, axis) {
			continue
		}
		sts = append(sts, Strategy{
			Name: fmt.Sprintf("tile-n@%s", names[axis]),
			Inputs: []*sharding.Spec{
				sharding.Replicated(mesh, 2),
				sharding.NewSpec(mesh, 2).SetDimAxis(1, axis),
			},
			Output:      sharding.NewSpec(mesh, 2).SetDimAxis(1, axis),
			ComputeCost: base / float64(mesh.AxisSize(axis)),
		})
	}
	for aAxis := range mesh.Rank() { // Tile M and N on distinct axes.
		if !divides(m, aAxis) {
			continue
		}
		for bAxis := range mesh.Rank() {
			if bAxis == aAxis || !divides(n, bAxis) {
				continue
			}
			sts = append(sts, Strategy{
				Name: fmt.Sprintf("tile-mn@%s,%s", names[aAxis], names[bAxis]),
				Inputs: []*sharding.Spec{
					sharding.NewSpec(mesh, 2).SetDimAxis(0, aAxis),
					sharding.NewSpec(mesh, 2).SetDimAxis(1, bAxis),
				},
				Output:      sharding.NewSpec(mesh, 2).SetDimAxis(0, aAxis).SetDimAxis(1, bAxis),
				ComputeCost: base / float64(mesh.AxisSize(aAxis)*mesh.AxisSize(bAxis)),
			})
		}
	}
	for axis := range mesh.Rank() { // Tile the contracted K.
		if !divides(k, axis) {
			continue
		}
		axisSize := mesh.AxisSize(axis)
		sts = append(sts, Strategy{
			Name: fmt.Sprintf("tile-k@%s", names[axis]),
			Inputs: []*sharding.Spec{
				sharding.NewSpec(mesh, 2).SetDimAxis(1, axis),
				sharding.NewSpec(mesh, 2).SetDimAxis(0, axis),
			},
			Output:      sharding.Replicated(mesh, 2),
			ComputeCost: base/float64(axisSize) + ctx.cm.AllReduce(op.Shape.Memory(), axisSize),
		})
	}
	sts = append(sts, Strategy{
		Name: "replicate",
		Inputs: []*sharding.Spec{
			sharding.Replicated(mesh, 2),
			sharding.Replicated(mesh, 2),
		},
		Output:      sharding.Replicated(mesh, 2),
		ComputeCost: base,
	})
	return sts, nil
}

// transposeStrategies maps each output tiling through the permutation back
// to the operand: output axis d reads operand axis op.Axes[d].
func transposeStrategies(ctx *enumContext, op *graph.Op) ([]Strategy, error) {
	if len(op.Inputs) != 1 {
		return nil, errors.Errorf("%s must have exactly one operand, got %d", op.Type, len(op.Inputs))
	}
	operand := ctx.g.Op(op.Inputs[0])
	if len(op.Axes) != op.Shape.Rank() || operand.Shape.Rank() != op.Shape.Rank() {
		return nil, errors.Errorf("%s permutation %v inconsistent with %s -> %s",
			op.Type, op.Axes, operand.Shape, op.Shape)
	}
	var sts []Strategy
	size := float64(op.Shape.Size())
	for _, t := range tilingsOf(ctx.mesh, op.Shape) {
		inDim := op.Axes[t.dim]
		sts = append(sts, Strategy{
			Name:        tileName(ctx.mesh, t),
			Inputs:      []*sharding.Spec{sharding.NewSpec(ctx.mesh, operand.Shape.Rank()).SetDimAxis(inDim, t.axis)},
			Output:      sharding.NewSpec(ctx.mesh, op.Shape.Rank()).SetDimAxis(t.dim, t.axis),
			ComputeCost: size / float64(ctx.mesh.AxisSize(t.axis)),
		})
	}
	sts = append(sts, Strategy{
		Name:        "replicate",
		Inputs:      []*sharding.Spec{sharding.Replicated(ctx.mesh, operand.Shape.Rank())},
		Output:      sharding.Replicated(ctx.mesh, op.Shape.Rank()),
		ComputeCost: size,
	})
	return sts, nil
}

// broadcastStrategies: op.Axes maps each operand dimension to its output
// dimension. Tiling an output dimension that originates from the operand
// tiles the operand the same way; tiling a broadcast (new) dimension leaves
// the operand replicated.
func broadcastStrategies(ctx *enumContext, op *graph.Op) ([]Strategy, error) {
	if len(op.Inputs) != 1 {
		return nil, errors.Errorf("%s must have exactly one operand, got %d", op.Type, len(op.Inputs))
	}
	operand := ctx.g.Op(op.Inputs[0])
	if len(op.Axes) != operand.Shape.Rank() {
		return nil, errors.Errorf("%s dimension mapping %v inconsistent with operand %s",
			op.Type, op.Axes, operand.Shape)
	}
	operandDim := make(map[int]int, len(op.Axes)) // output dim -> operand dim
	for inDim, outDim := range op.Axes {
		if outDim < 0 || outDim >= op.Shape.Rank() {
			return nil, errors.Errorf("%s maps operand axis %d to invalid output axis %d",
				op.Type, inDim, outDim)
		}
		operandDim[outDim] = inDim
	}

	var sts []Strategy
	size := float64(op.Shape.Size())
	for _, t := range tilingsOf(ctx.mesh, op.Shape) {
		inSpec := sharding.Replicated(ctx.mesh, operand.Shape.Rank())
		if inDim, ok := operandDim[t.dim]; ok &&
			operand.Shape.Dimensions[inDim] == op.Shape.Dimensions[t.dim] {
			inSpec.SetDimAxis(inDim, t.axis)
		}
		sts = append(sts, Strategy{
			Name:        tileName(ctx.mesh, t),
			Inputs:      []*sharding.Spec{inSpec},
			Output:      sharding.NewSpec(ctx.mesh, op.Shape.Rank()).SetDimAxis(t.dim, t.axis),
			ComputeCost: size / float64(ctx.mesh.AxisSize(t.axis)),
		})
	}
	sts = append(sts, Strategy{
		Name:        "replicate",
		Inputs:      []*sharding.Spec{sharding.Replicated(ctx.mesh, operand.Shape.Rank())},
		Output:      sharding.Replicated(ctx.mesh, op.Shape.Rank()),
		ComputeCost: size,
	})
	return sts, nil
}

// reshapeStrategies keeps a tiling across a reshape when the tiled operand
// dimension survives it: same size and same prefix product (everything
// before it reshapes among itself). Otherwise only replication remains.
func reshapeStrategies(ctx *enumContext, op *graph.Op) ([]Strategy, error) {
	if len(op.Inputs) != 1 {
		return nil, errors.Errorf("%s must have exactly one operand, got %d", op.Type, len(op.Inputs))
	}
	operand := ctx.g.Op(op.Inputs[0])
	if operand.Shape.Size() != op.Shape.Size() {
		return nil, errors.Errorf("%s changes the number of elements: %s -> %s",
			op.Type, operand.Shape, op.Shape)
	}
	dimMap := reshapeDimMap(operand.Shape.Dimensions, op.Shape.Dimensions)

	var sts []Strategy
	size := float64(op.Shape.Size())
	for _, t := range tilingsOf(ctx.mesh, operand.Shape) {
		outDim, ok := dimMap[t.dim]
		if !ok {
			continue
		}
		sts = append(sts, Strategy{
			Name:        tileName(ctx.mesh, t),
			Inputs:      []*sharding.Spec{sharding.NewSpec(ctx.mesh, operand.Shape.Rank()).SetDimAxis(t.dim, t.axis)},
			Output:      sharding.NewSpec(ctx.mesh, op.Shape.Rank()).SetDimAxis(outDim, t.axis),
			ComputeCost: size / float64(ctx.mesh.AxisSize(t.axis)),
		})
	}
	sts = append(sts, Strategy{
		Name:        "replicate",
		Inputs:      []*sharding.Spec{sharding.Replicated(ctx.mesh, operand.Shape.Rank())},
		Output:      sharding.Replicated(ctx.mesh, op.Shape.Rank()),
		ComputeCost: size,
	})
	return sts, nil
}

// reshapeDimMap maps input dimensions to the output dimensions that preserve
// them across a reshape: same size, and the same product of preceding
// dimensions.
func reshapeDimMap(in, out []int) map[int]int {
	prefix := func(dims []int) []int {
		p := make([]int, len(dims))
		product := 1
		for i, dim := range dims {
			p[i] = product
			product *= dim
		}
		return p
	}
	inPrefix, outPrefix := prefix(in), prefix(out)
	dimMap := make(map[int]int)
	for d := range in {
		for e := range out {
			if in[d] == out[e] && inPrefix[d] == outPrefix[e] {
				dimMap[d] = e
				break
			}
		}
	}
	return dimMap
}

// fallbackStrategies is the replicate-everything strategy used for unknown
// operation kinds and for operations whose specialized enumerator failed.
// The compute cost is the full data size: it penalizes the operation but
// never blocks solving.
func fallbackStrategies(ctx *enumContext, op *graph.Op) []Strategy {
	inputs := make([]*sharding.Spec, len(op.Inputs))
	for i, inputID := range op.Inputs {
		inputs[i] = sharding.Replicated(ctx.mesh, ctx.g.Op(inputID).Shape.Rank())
	}
	return []Strategy{{
		Name:        "fallback-replicate",
		Inputs:      inputs,
		Output:      sharding.Replicated(ctx.mesh, op.Shape.Rank()),
		ComputeCost: float64(op.Shape.Size()),
	}}
}

// enumerateOp generates, caps and finalizes the strategy set of one
// operation. Enumeration failures are contained: the operation falls back to
// the replicate-everything strategy instead of failing the pass.
func enumerateOp(ctx *enumContext, op *graph.Op) []Strategy {
	var sts []Strategy
	var err error
	if fn, ok := enumerators[op.Type]; ok {
		sts, err = fn(ctx, op)
		if err != nil {
			klog.Warningf("auto-sharding: strategy enumeration for %s failed, using replicated fallback: %v", op, err)
			sts = nil
		}
	}
	if len(sts) == 0 {
		sts = fallbackStrategies(ctx, op)
	}
	if ctx.cfg.MaxStrategiesPerOp > 0 && len(sts) > ctx.cfg.MaxStrategiesPerOp {
		sts = sts[:ctx.cfg.MaxStrategiesPerOp]
	}
	for i := range sts {
		st := &sts[i]
		mem := st.Output.ShardMemory(op.Shape)
		for j, inSpec := range st.Inputs {
			mem += inSpec.ShardMemory(ctx.g.Op(op.Inputs[j]).Shape)
		}
		st.MemoryCost = mem
	}
	return sts
}

// enumerateAll generates the strategy sets for every modeled operation of the
// graph. Enumeration is read-only over the graph, so operations are processed
// in parallel, each writing its own pre-allocated slot.
//
// Pass-through operations (Identity, Reshard) are not modeled; their slot
// stays nil and their sharding is assigned by propagation after solving.
func enumerateAll(ctx *enumContext) ([][]Strategy, error) {
	strategies := make([][]Strategy, ctx.g.NumOps())
	var wg sync.WaitGroup
	for _, op := range ctx.g.Ops() {
		if op.Type.IsPassThrough() {
			continue
		}
		wg.Add(1)
		go func(op *graph.Op) {
			defer wg.Done()
			strategies[op.ID] = enumerateOp(ctx, op)
		}(op)
	}
	wg.Wait()

	// The fallback rule makes an empty set impossible, but it is guarded
	// explicitly: a solver fed an empty domain would misbehave silently.
	for _, op := range ctx.g.Ops() {
		if op.Type.IsPassThrough() {
			continue
		}
		if len(strategies[op.ID]) == 0 {
			return nil, errors.Wrapf(ErrNoStrategies, "operation %s", op)
		}
	}
	return strategies, nil
}
