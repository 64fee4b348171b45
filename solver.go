package autosharding

import (
	"math"
	"time"

	"github.com/gomlx/autosharding/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// memoryPenaltyPerByte converts per-device memory overflow into solver cost
// units when the memory budget is not enforced.
const memoryPenaltyPerByte = 1.0

// deadlineCheckInterval is how many search nodes are expanded between wall
// clock checks.
const deadlineCheckInterval = 1024

// solution maps every operation to the chosen strategy index. It exists only
// transiently: it is consumed to annotate the graph and then discarded.
type solution struct {
	// choice per OpID; -1 for unmodeled (pass-through) operations.
	choice []int

	// cost is the objective value: compute + resharding (+ memory penalty
	// when the budget is not enforced).
	cost float64

	// memory is the per-device footprint in bytes.
	memory int64

	timedOut bool
}

// solverState is the pre-processed view of the cost graph the search runs
// on: modeled operations in topological order, their incoming edges, and the
// admissible per-suffix lower bounds.
type solverState struct {
	cg  *costGraph
	cfg *Config

	// order lists the modeled operations in topological order; pos is the
	// inverse mapping.
	order []graph.OpID
	pos   map[graph.OpID]int

	// incoming[k] indexes cg.edges whose consumer is order[k]. Producers
	// always precede their consumers in order, so when the search reaches
	// position k every incoming producer choice is already fixed.
	incoming [][]int

	// futureCompute[k] = sum over positions >= k of the cheapest compute
	// cost; futureMemory[k] likewise for the smallest memory cost. Edge
	// costs are non-negative, so these are admissible bounds.
	futureCompute []float64
	futureMemory  []int64

	deadline time.Time
}

func newSolverState(g *graph.Graph, cg *costGraph, cfg *Config) (*solverState, error) {
	fullOrder, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	s := &solverState{cg: cg, cfg: cfg, pos: make(map[graph.OpID]int)}
	for _, id := range fullOrder {
		if cg.strategies[id] == nil {
			continue
		}
		s.pos[id] = len(s.order)
		s.order = append(s.order, id)
	}
	n := len(s.order)
	s.incoming = make([][]int, n)
	for idx, e := range cg.edges {
		k := s.pos[e.consumer]
		s.incoming[k] = append(s.incoming[k], idx)
	}
	s.futureCompute = make([]float64, n+1)
	s.futureMemory = make([]int64, n+1)
	for k := n - 1; k >= 0; k-- {
		minCompute := cg.strategies[s.order[k]][0].ComputeCost
		minMemory := cg.strategies[s.order[k]][0].MemoryCost
		for _, st := range cg.strategies[s.order[k]][1:] {
			minCompute = min(minCompute, st.ComputeCost)
			minMemory = min(minMemory, st.MemoryCost)
		}
		s.futureCompute[k] = s.futureCompute[k+1] + minCompute
		s.futureMemory[k] = s.futureMemory[k+1] + minMemory
	}
	return s, nil
}

func (s *solverState) strategiesAt(k int) []Strategy {
	return s.cg.strategies[s.order[k]]
}

// deltaCost is the cost added by choosing strategy j at position k: the
// strategy's compute cost plus the resharding cost on every edge from an
// already-placed producer.
func (s *solverState) deltaCost(k, j int, cur []int) float64 {
	delta := s.strategiesAt(k)[j].ComputeCost
	for _, idx := range s.incoming[k] {
		e := &s.cg.edges[idx]
		delta += e.cost[cur[s.pos[e.producer]]][j]
	}
	return delta
}

// memoryPenalty is the cost charged for exceeding the per-device budget when
// the budget is not enforced. Zero when enforcing (violations are pruned
// instead) or when no budget is configured.
func (s *solverState) memoryPenalty(memory int64) float64 {
	budget := s.cfg.MemoryBudgetPerDevice
	if budget <= 0 || s.cfg.EnforceMemoryBudget || memory <= budget {
		return 0
	}
	return float64(memory-budget) * memoryPenaltyPerByte
}

// exceedsBudget prunes partial assignments that cannot fit the enforced
// memory budget even with the cheapest possible suffix.
func (s *solverState) exceedsBudget(memorySoFar int64, k int) bool {
	budget := s.cfg.MemoryBudgetPerDevice
	return s.cfg.EnforceMemoryBudget && budget > 0 && memorySoFar+s.futureMemory[k] > budget
}

// greedy builds the seed solution in one topological sweep, always choosing
// the strategy with the lowest added cost given the already-fixed producers.
// It is deterministic (ties keep the lowest strategy index) and always
// terminates, so it is the answer available even under a near-zero time
// budget. Returns nil when the enforced memory budget admits no greedy
// completion.
func (s *solverState) greedy() *solution {
	n := len(s.order)
	cur := make([]int, n)
	var cost float64
	var memory int64
	for k := range n {
		sts := s.strategiesAt(k)
		bestJ := -1
		var bestDelta float64
		for j := range sts {
			if s.exceedsBudget(memory+sts[j].MemoryCost, k+1) {
				continue
			}
			delta := s.deltaCost(k, j, cur)
			if bestJ < 0 || delta < bestDelta {
				bestJ, bestDelta = j, delta
			}
		}
		if bestJ < 0 {
			return nil
		}
		cur[k] = bestJ
		cost += bestDelta
		memory += sts[bestJ].MemoryCost
	}
	return s.newSolution(cur, cost+s.memoryPenalty(memory), memory)
}

func (s *solverState) newSolution(cur []int, cost float64, memory int64) *solution {
	choice := make([]int, len(s.cg.strategies))
	for i := range choice {
		choice[i] = -1
	}
	for k, id := range s.order {
		choice[id] = cur[k]
	}
	return &solution{choice: choice, cost: cost, memory: memory}
}

// branchAndBound explores the full assignment space depth-first in
// topological order, strategies in canonical index order, pruning with the
// admissible futureCompute/futureMemory bounds.
//
// The seed's cost is used only as an upper bound: the first search solution
// at or below it replaces it, and further solutions are accepted on strict
// improvement. Among equal-cost optima the first one found in canonical
// order -- the one with the lexicographically lowest strategy indices --
// therefore wins, never the seed, keeping results deterministic. The seed
// assignment itself survives only when the deadline expires before the
// search completes any solution.
//
// The search is an explicit work-list (no recursion) and checks the wall
// clock every deadlineCheckInterval nodes.
func (s *solverState) branchAndBound(seed *solution) (*solution, bool) {
	n := len(s.order)
	cur := make([]int, n)
	prefixCost := make([]float64, n+1)
	prefixMem := make([]int64, n+1)
	nextTry := make([]int, n)

	if time.Now().After(s.deadline) {
		return seed, true
	}

	limit := math.Inf(1)
	if seed != nil {
		limit = seed.cost
	}
	var best *solution
	depth := 0
	nodes := 0
	timedOut := false
	for depth >= 0 {
		if depth == n {
			total := prefixCost[n] + s.memoryPenalty(prefixMem[n])
			if (best == nil && total <= limit) || (best != nil && total < best.cost) {
				best = s.newSolution(cur, total, prefixMem[n])
			}
			depth--
			continue
		}
		sts := s.strategiesAt(depth)
		j := nextTry[depth]
		if j >= len(sts) {
			nextTry[depth] = 0
			depth--
			continue
		}
		nextTry[depth] = j + 1

		nodes++
		if nodes%deadlineCheckInterval == 0 && time.Now().After(s.deadline) {
			timedOut = true
			break
		}

		memory := prefixMem[depth] + sts[j].MemoryCost
		if s.exceedsBudget(memory, depth+1) {
			continue
		}
		cost := prefixCost[depth] + s.deltaCost(depth, j, cur)
		bound := cost + s.futureCompute[depth+1] + s.memoryPenalty(memory+s.futureMemory[depth+1])
		if (best == nil && bound > limit) || (best != nil && bound >= best.cost) {
			continue
		}
		cur[depth] = j
		prefixCost[depth+1] = cost
		prefixMem[depth+1] = memory
		depth++
	}
	if best == nil {
		return seed, timedOut
	}
	return best, timedOut
}

// solve picks one strategy per modeled operation minimizing total compute
// plus resharding cost, under the configured memory budget and wall clock
// budget.
func solve(g *graph.Graph, cg *costGraph, cfg *Config) (*solution, error) {
	s, err := newSolverState(g, cg, cfg)
	if err != nil {
		return nil, err
	}
	s.deadline = time.Now().Add(cfg.SolverTimeBudget)

	budget := cfg.MemoryBudgetPerDevice
	if cfg.EnforceMemoryBudget && budget > 0 && s.futureMemory[0] > budget {
		return nil, errors.Wrapf(ErrSolverInfeasible,
			"minimum achievable per-device footprint is %d bytes, budget is %d bytes",
			s.futureMemory[0], budget)
	}

	seed := s.greedy()
	best, timedOut := s.branchAndBound(seed)
	if best == nil {
		// Only reachable with an enforced budget: no feasible assignment
		// was found before the search ended.
		return nil, errors.Wrapf(ErrSolverInfeasible,
			"no strategy assignment fits the per-device budget of %d bytes", budget)
	}
	best.timedOut = timedOut
	if timedOut {
		klog.Warningf("auto-sharding solver: time budget of %s exhausted for graph %q, using best solution found so far (cost=%g)",
			cfg.SolverTimeBudget, g.Name(), best.cost)
	}
	klog.V(1).Infof("auto-sharding solver: graph %q, %d operations, %d edges, cost=%g, per-device memory=%d bytes",
		g.Name(), len(s.order), len(cg.edges), best.cost, best.memory)
	return best, nil
}
