package sieve

import (
	"fmt"
	"io"
	"math"
	"math/rand"
)

// WeightType determines the heuristic of a WeightedRandomSearcher.
type WeightType string

const (
	WeightDepth              = WeightType("Depth")
	WeightRandomPath         = WeightType("RandomPath")
	WeightQueryCost          = WeightType("QueryCost")
	WeightInstCount          = WeightType("InstCount")
	WeightCPInstCount        = WeightType("CPInstCount")
	WeightMinDistToUncovered = WeightType("MinDistToUncovered")
	WeightCoveringNew        = WeightType("CoveringNew")
)

// queryCostEpsilon keeps the query-cost weight finite for states that have
// not paid any solver time yet.
const queryCostEpsilon = 0.1

// unreachableWeight stands in for 1/(1+d²) when no uncovered code is
// reachable from a state.
const unreachableWeight = 1e-9

var _ Searcher = (*WeightedRandomSearcher)(nil)

// WeightedRandomSearcher selects states proportionally to a per-state
// weight. Entries live in a DiscretePDF keyed by state ID.
type WeightedRandomSearcher struct {
	states *DiscretePDF
	rand   *rand.Rand
	typ    WeightType

	// Recompute the weight of current on every update. Set for heuristics
	// whose inputs drift between selections.
	updateWeights bool
}

// NewWeightedRandomSearcher returns a searcher for the given weight
// heuristic. The RNG is borrowed, not owned.
func NewWeightedRandomSearcher(typ WeightType, rng *rand.Rand) *WeightedRandomSearcher {
	s := &WeightedRandomSearcher{
		states: NewDiscretePDF(),
		rand:   rng,
		typ:    typ,
	}
	switch typ {
	case WeightDepth, WeightRandomPath, WeightMinDistToUncovered:
		s.updateWeights = false
	case WeightQueryCost, WeightInstCount, WeightCPInstCount, WeightCoveringNew:
		s.updateWeights = true
	default:
		panic(fmt.Sprintf("sieve: unknown weight type: %q", typ))
	}
	return s
}

// SelectState returns a weighted random execution state to explore.
func (s *WeightedRandomSearcher) SelectState() *ExecutionState {
	assert(!s.states.Empty(), "weighted random searcher: select on empty searcher")
	return s.states.Choose(s.rand.Float64())
}

// Update inserts added states, removes terminated ones, and reweights
// current for drifting heuristics.
func (s *WeightedRandomSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	if current != nil && s.updateWeights && indexOfState(removed, current) < 0 {
		s.states.Update(current, s.getWeight(current))
	}
	for _, state := range added {
		s.states.Insert(state, s.getWeight(state))
	}
	for _, state := range removed {
		s.states.Remove(state)
	}
}

// Empty returns true if no state is left for exploration.
func (s *WeightedRandomSearcher) Empty() bool { return s.states.Empty() }

// PrintName writes the searcher identification to w.
func (s *WeightedRandomSearcher) PrintName(w io.Writer) {
	fmt.Fprintf(w, "WeightedRandomSearcher::%s\n", s.typ)
}

func (s *WeightedRandomSearcher) getWeight(state *ExecutionState) float64 {
	switch s.typ {
	case WeightDepth:
		return math.Pow(0.5, float64(state.depth))
	case WeightRandomPath:
		return 1
	case WeightQueryCost:
		return 1 / (state.queryCost.Seconds() + queryCostEpsilon)
	case WeightInstCount:
		return 1 / math.Sqrt(float64(state.instructionCount)+1)
	case WeightCPInstCount:
		return 1 / math.Sqrt(float64(state.callPathInstructionCount)+1)
	case WeightMinDistToUncovered:
		return invSquaredDist(state.minDistToUncovered)
	case WeightCoveringNew:
		if state.coverNew {
			return 1
		}
		return invSquaredDist(state.minDistToUncovered) / math.Sqrt(float64(state.instructionCount)+1)
	default:
		panic(fmt.Sprintf("sieve: unknown weight type: %q", s.typ))
	}
}

// invSquaredDist maps a distance-to-uncovered estimate to a weight in (0,1].
func invSquaredDist(d float64) float64 {
	if math.IsInf(d, 1) {
		return unreachableWeight
	}
	return 1 / (1 + d*d)
}
