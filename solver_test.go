package autosharding

import (
	"testing"
	"time"

	"github.com/gomlx/autosharding/graph"
	"github.com/gomlx/autosharding/internal/optypes"
	"github.com/gomlx/autosharding/types/shapes"
	"github.com/gomlx/autosharding/types/sharding"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainGraph is Parameter[8] -> Exp -> Tanh -> Neg on float32.
func chainGraph(name string) *graph.Graph {
	g := graph.New(name)
	shape := shapes.Make(dtypes.Float32, 8)
	p := g.Parameter(shape)
	e := g.AddOp(optypes.Exp, shape, p.ID)
	tanh := g.AddOp(optypes.Tanh, shape, e.ID)
	g.AddOp(optypes.Neg, shape, tanh.ID)
	return g
}

func TestBuildCostGraph(t *testing.T) {
	mesh := newMesh(t, []int{2}, []string{"x"})
	g := graph.New(t.Name())
	shape := shapes.Make(dtypes.Float32, 8)
	p := g.Parameter(shape)
	id := g.AddOp(optypes.Identity, shape, p.ID)
	e := g.AddOp(optypes.Exp, shape, id.ID)

	ctx := newEnumContext(g, mesh, nil)
	strategies, err := enumerateAll(ctx)
	require.NoError(t, err)
	cg := buildCostGraph(g, strategies, ctx.cm)

	// The Identity is transparent: the single cost edge connects the
	// parameter directly to the Exp.
	require.Len(t, cg.edges, 1)
	edge := cg.edges[0]
	assert.Equal(t, p.ID, edge.producer)
	assert.Equal(t, e.ID, edge.consumer)
	assert.Equal(t, 0, edge.operand)

	require.Len(t, edge.cost, len(strategies[p.ID]))
	for _, row := range edge.cost {
		require.Len(t, row, len(strategies[e.ID]))
	}
	// Producer tiled, consumer replicated: an all-gather of the 16-byte
	// shard. Agreeing layouts are free.
	assert.Equal(t, 0.0, edge.cost[0][0])
	assert.Equal(t, ctx.cm.AllGather(16, 2), edge.cost[0][1])
	assert.Equal(t, 0.0, edge.cost[1][1])
}

func TestSolveChain(t *testing.T) {
	mesh := newMesh(t, []int{2}, []string{"x"})
	g := chainGraph(t.Name())
	ctx := newEnumContext(g, mesh, nil)
	strategies, err := enumerateAll(ctx)
	require.NoError(t, err)
	cg := buildCostGraph(g, strategies, ctx.cm)

	sol, err := solve(g, cg, ctx.cfg)
	require.NoError(t, err)
	assert.False(t, sol.timedOut)
	// Everything tiled: compute 4 per elementwise operation, no
	// communication.
	assert.Equal(t, 12.0, sol.cost)
	assert.Equal(t, []int{0, 0, 0, 0}, sol.choice)
}

func TestSolveImprovesOnGreedy(t *testing.T) {
	// lhs[4,6] x rhs[6,8]: the greedy sweep tiles both parameters on "x"
	// before seeing the Dot and pays a resharding; the exact search finds
	// the aligned assignment lhs={x,-}, rhs={-,y} with no communication.
	mesh := newMesh(t, []int{2, 2}, []string{"x", "y"})
	g := graph.New(t.Name())
	lhs := g.Parameter(shapes.Make(dtypes.Float32, 4, 6))
	rhs := g.Parameter(shapes.Make(dtypes.Float32, 6, 8))
	dot := g.AddOp(optypes.Dot, shapes.Make(dtypes.Float32, 4, 8), lhs.ID, rhs.ID)

	ctx := newEnumContext(g, mesh, nil)
	strategies, err := enumerateAll(ctx)
	require.NoError(t, err)
	cg := buildCostGraph(g, strategies, ctx.cm)

	sol, err := solve(g, cg, ctx.cfg)
	require.NoError(t, err)
	assert.Equal(t, 96.0, sol.cost)
	assert.Equal(t, "tile-mn@x,y", strategies[dot.ID][sol.choice[dot.ID]].Name)
	assert.Equal(t, "tile[0]@x", strategies[lhs.ID][sol.choice[lhs.ID]].Name)
	assert.Equal(t, "tile[1]@y", strategies[rhs.ID][sol.choice[rhs.ID]].Name)
}

func TestSolveTieBreaksByCanonicalOrder(t *testing.T) {
	// Two equal-cost optima: the parameter's first strategy pays 1 in
	// compute and 0 on the edge, the second 0 in compute and 1 on the
	// edge. The greedy sweep, blind to the edge, seeds the second; the
	// exact search must still return the lowest canonical index.
	mesh := newMesh(t, []int{2, 2}, []string{"x", "y"})
	g := graph.New(t.Name())
	shape := shapes.Make(dtypes.Float32, 8)
	p := g.Parameter(shape)
	e := g.AddOp(optypes.Exp, shape, p.ID)

	tile0x := sharding.NewSpec(mesh, 1).SetDimAxis(0, 0)
	tile0y := sharding.NewSpec(mesh, 1).SetDimAxis(0, 1)
	cg := &costGraph{
		g:  g,
		cm: NewCostModel(mesh),
		strategies: [][]Strategy{
			{
				{Name: "tile[0]@x", Output: tile0x, ComputeCost: 1},
				{Name: "tile[0]@y", Output: tile0y, ComputeCost: 0},
			},
			{{Name: "tile[0]@x", Inputs: []*sharding.Spec{tile0x}, Output: tile0x, ComputeCost: 0}},
		},
		edges: []costEdge{{
			producer: p.ID,
			consumer: e.ID,
			operand:  0,
			cost:     [][]float64{{0}, {1}},
		}},
	}

	sol, err := solve(g, cg, (*Config)(nil).withDefaults())
	require.NoError(t, err)
	assert.Equal(t, 1.0, sol.cost)
	assert.Equal(t, 0, sol.choice[p.ID], "equal-cost ties must keep the lowest canonical index")
	assert.Equal(t, 0, sol.choice[e.ID])
}

func TestSolveMemoryBudget(t *testing.T) {
	mesh := newMesh(t, []int{2}, []string{"x"})

	newCase := func(cfg *Config) (*graph.Graph, *costGraph, *Config) {
		g := graph.New(t.Name())
		g.Parameter(shapes.Make(dtypes.Float32, 4)) // 16 bytes, 8 per shard.
		ctx := newEnumContext(g, mesh, cfg)
		strategies, err := enumerateAll(ctx)
		require.NoError(t, err)
		return g, buildCostGraph(g, strategies, ctx.cm), ctx.cfg
	}

	t.Run("enforced and infeasible", func(t *testing.T) {
		g, cg, cfg := newCase(&Config{MemoryBudgetPerDevice: 4, EnforceMemoryBudget: true})
		_, err := solve(g, cg, cfg)
		require.ErrorIs(t, err, ErrSolverInfeasible)
	})

	t.Run("enforced and feasible", func(t *testing.T) {
		g, cg, cfg := newCase(&Config{MemoryBudgetPerDevice: 8, EnforceMemoryBudget: true})
		sol, err := solve(g, cg, cfg)
		require.NoError(t, err)
		// Only the tiled strategy (8 bytes per device) fits.
		assert.Equal(t, 0, sol.choice[0])
		assert.Equal(t, int64(8), sol.memory)
	})

	t.Run("relaxed charges a penalty", func(t *testing.T) {
		g, cg, cfg := newCase(&Config{MemoryBudgetPerDevice: 4})
		sol, err := solve(g, cg, cfg)
		require.NoError(t, err)
		// Tiled footprint is 8 bytes, 4 over budget.
		assert.Equal(t, 4.0, sol.cost)
		assert.Equal(t, int64(8), sol.memory)
	})
}

func TestSolveTimeBudget(t *testing.T) {
	mesh := newMesh(t, []int{2}, []string{"x"})
	g := chainGraph(t.Name())
	ctx := newEnumContext(g, mesh, &Config{SolverTimeBudget: time.Nanosecond})
	strategies, err := enumerateAll(ctx)
	require.NoError(t, err)
	cg := buildCostGraph(g, strategies, ctx.cm)

	// The greedy seed is always available, even when the deadline expires
	// before the exact search starts.
	sol, err := solve(g, cg, ctx.cfg)
	require.NoError(t, err)
	assert.True(t, sol.timedOut)
	assert.Equal(t, 12.0, sol.cost)
}
