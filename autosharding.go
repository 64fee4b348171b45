// Package autosharding implements an automatic partitioning pass for tensor
// computation graphs: given a dataflow graph and a logical device mesh, it
// assigns every tensor a sharding layout and inserts the resharding
// operations that make neighboring operations agree, minimizing the total
// compute and communication cost.
//
// The pass runs in five stages:
//
//  1. Strategy enumeration: per operation, the candidate shardings and their
//     compute/memory cost (strategy.go).
//  2. Cost modeling: per producer/consumer edge, the resharding cost of
//     every strategy pair (costmodel.go, costgraph.go).
//  3. Solving: one strategy per operation minimizing total cost, under an
//     optional per-device memory budget and a wall clock budget (solver.go).
//  4. Propagation: shardings for the operations the enumerator does not
//     model (propagate.go).
//  5. Resharding insertion: explicit layout conversions wherever producer
//     and consumer disagree (reshard.go).
//
// Usage:
//
//	mesh, _ := sharding.NewDeviceMesh("mesh", []int{2, 4}, []string{"x", "y"})
//	result, err := autosharding.Run(g, mesh, nil)
//
// The pass is a pure transformation of (graph, mesh, config): it keeps no
// state between invocations. It must run to completion before anything else
// reads or mutates the graph, and it is not re-entrant on the same graph.
package autosharding

import (
	"time"

	"github.com/gomlx/autosharding/graph"
	"github.com/gomlx/autosharding/types/sharding"
	"github.com/pkg/errors"
)

// Error kinds returned by Run. Match with errors.Is.
var (
	// ErrInvalidMesh indicates a missing mesh or a mesh axis of size < 1.
	ErrInvalidMesh = errors.New("invalid device mesh")

	// ErrNoStrategies indicates the enumerator produced an empty strategy
	// set for an operation. The replicate-everything fallback makes this
	// unreachable, but it is guarded explicitly.
	ErrNoStrategies = errors.New("no sharding strategies for operation")

	// ErrSolverInfeasible indicates that no strategy assignment satisfies
	// the enforced per-device memory budget.
	ErrSolverInfeasible = errors.New("sharding solver found no feasible assignment")
)

// Config holds the recognized options of the pass. The zero value (and a nil
// *Config) selects the defaults.
type Config struct {
	// SolverTimeBudget is the wall clock budget of the solver. On expiry
	// the solver stops and the best solution found so far is used -- this
	// is reported in Result.SolverTimedOut, never as an error.
	// Default: 30s.
	SolverTimeBudget time.Duration

	// MemoryBudgetPerDevice is the number of bytes each device may hold
	// across all operation operands and outputs. 0 means unlimited.
	MemoryBudgetPerDevice int64

	// EnforceMemoryBudget selects what happens when MemoryBudgetPerDevice
	// cannot be met: if true the pass fails with ErrSolverInfeasible; if
	// false the violation is tolerated and charged as a cost penalty,
	// reported in Result.MemoryExceededBy.
	EnforceMemoryBudget bool

	// MaxStrategiesPerOp bounds the strategy set of each operation to keep
	// the solver tractable; the canonical-order prefix is kept.
	// Default: 32.
	MaxStrategiesPerOp int
}

const (
	defaultSolverTimeBudget   = 30 * time.Second
	defaultMaxStrategiesPerOp = 32
)

// withDefaults returns a copy of the config with unset options filled in.
// A nil receiver yields the default config.
func (c *Config) withDefaults() *Config {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}
	if cfg.SolverTimeBudget <= 0 {
		cfg.SolverTimeBudget = defaultSolverTimeBudget
	}
	if cfg.MaxStrategiesPerOp <= 0 {
		cfg.MaxStrategiesPerOp = defaultMaxStrategiesPerOp
	}
	return &cfg
}

// Result reports what the pass did to the graph.
type Result struct {
	// Changed is true if the graph was mutated: shardings assigned or
	// resharding operations inserted.
	Changed bool

	// InsertedReshards is the number of resharding operations added.
	InsertedReshards int

	// SolverCost is the objective value of the chosen assignment: total
	// compute plus resharding cost (plus memory penalty, if any).
	SolverCost float64

	// SolverTimedOut is true if the solver stopped on its time budget and
	// the assignment is best-effort rather than proven optimal.
	SolverTimedOut bool

	// MemoryExceededBy is the number of bytes the per-device footprint
	// exceeds MemoryBudgetPerDevice by, when the budget is not enforced.
	// 0 when the budget is met or not configured.
	MemoryExceededBy int64
}

// Run executes the auto-sharding pass on the graph.
//
// On success every operation's output carries a concrete sharding, and every
// producer/consumer pair that disagrees on layout is connected through an
// inserted Reshard operation. On error the graph is left unmutated: all
// graph mutation happens after the solve succeeds.
func Run(g *graph.Graph, mesh *sharding.DeviceMesh, config *Config) (*Result, error) {
	cfg := config.withDefaults()
	if err := validateMesh(mesh); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	cm := NewCostModel(mesh)
	ctx := &enumContext{g: g, mesh: mesh, cm: cm, cfg: cfg}
	strategies, err := enumerateAll(ctx)
	if err != nil {
		return nil, err
	}
	cg := buildCostGraph(g, strategies, cm)
	sol, err := solve(g, cg, cfg)
	if err != nil {
		return nil, err
	}

	applySolution(g, cg, sol)
	if err := propagate(g, mesh); err != nil {
		return nil, err
	}
	inserted := insertReshardings(g, cg, sol)

	result := &Result{
		Changed:          g.NumOps() > 0,
		InsertedReshards: inserted,
		SolverCost:       sol.cost,
		SolverTimedOut:   sol.timedOut,
	}
	if cfg.MemoryBudgetPerDevice > 0 && !cfg.EnforceMemoryBudget &&
		sol.memory > cfg.MemoryBudgetPerDevice {
		result.MemoryExceededBy = sol.memory - cfg.MemoryBudgetPerDevice
	}
	return result, nil
}

func validateMesh(mesh *sharding.DeviceMesh) error {
	if mesh == nil {
		return errors.Wrap(ErrInvalidMesh, "mesh is nil")
	}
	for axis, size := range mesh.AxesSizes() {
		if size <= 0 {
			return errors.Wrapf(ErrInvalidMesh, "mesh axis %q has size %d",
				mesh.AxesNames()[axis], size)
		}
	}
	return nil
}
