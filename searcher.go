package sieve

import (
	"fmt"
	"io"
	"math/rand"
	"time"
)

// Searcher represents a strategy for finding the next execution state to
// execute. The executor selects a state, advances it one unit of work, and
// reports the resulting births and deaths through Update. The population of
// a searcher after Update(current, added, removed) is (P ∪ added) \ removed;
// current is never removed implicitly.
type Searcher interface {
	// SelectState returns the next state to explore. The state is live and
	// currently scheduled by this searcher. Fatal if the searcher is empty.
	SelectState() *ExecutionState

	// Update notifies the searcher about new and terminated states. current
	// is the state returned by the most recent SelectState, or nil.
	Update(current *ExecutionState, added, removed []*ExecutionState)

	// Empty returns true if no state is left for exploration.
	Empty() bool

	// PrintName writes a human-readable identification of the searcher,
	// including its composition for wrappers and combinators.
	PrintName(w io.Writer)
}

// CoreSearchType names a base exploration strategy.
type CoreSearchType string

const (
	CoreSearchDFS         = CoreSearchType("dfs")
	CoreSearchBFS         = CoreSearchType("bfs")
	CoreSearchRandomState = CoreSearchType("random-state")
	CoreSearchRandomPath  = CoreSearchType("random-path")
	CoreSearchNURSCovNew  = CoreSearchType("nurs:covnew")
	CoreSearchNURSMD2U    = CoreSearchType("nurs:md2u")
	CoreSearchNURSDepth   = CoreSearchType("nurs:depth")
	CoreSearchNURSRP      = CoreSearchType("nurs:rp")
	CoreSearchNURSICnt    = CoreSearchType("nurs:icnt")
	CoreSearchNURSCPICnt  = CoreSearchType("nurs:cpicnt")
	CoreSearchNURSQC      = CoreSearchType("nurs:qc")
)

// SearcherConfig enumerates the strategies and wrappers assembled into the
// executor's root searcher.
type SearcherConfig struct {
	// Base strategies. The first entry is the primary strategy; additional
	// entries are interleaved round-robin.
	CoreSearch []CoreSearchType

	// Batching budgets. A zero budget leaves that dimension unbounded.
	UseBatching       bool
	BatchTime         time.Duration
	BatchInstructions uint64

	// Pause states exceeding a per-state time budget, doubling the budget
	// when the active pool drains.
	UseIterativeDeepeningTime bool

	// Coordinate speculative state merging; incomplete merge additionally
	// prioritizes states that could still complete an ongoing merge.
	UseMerge           bool
	UseIncompleteMerge bool
}

// NewSearcher assembles the root searcher for an executor from config.
// Wrappers nest in a fixed order: interleaving innermost, then batching,
// iterative deepening, and merging outermost.
func NewSearcher(config SearcherConfig, executor *Executor, rng *rand.Rand) Searcher {
	assert(len(config.CoreSearch) > 0, "searcher config: no core strategy")

	searcher := newCoreSearcher(config.CoreSearch[0], executor, rng)
	if len(config.CoreSearch) > 1 {
		searchers := []Searcher{searcher}
		for _, typ := range config.CoreSearch[1:] {
			searchers = append(searchers, newCoreSearcher(typ, executor, rng))
		}
		searcher = NewInterleavedSearcher(searchers)
	}

	if config.UseBatching {
		b := NewBatchingSearcher(searcher, config.BatchTime, config.BatchInstructions)
		b.Now = executor.Now
		b.Instructions = executor.Instructions
		searcher = b
	}
	if config.UseIterativeDeepeningTime {
		i := NewIterativeDeepeningTimeSearcher(searcher)
		i.Now = executor.Now
		searcher = i
	}
	if config.UseMerge {
		m := NewMergingSearcher(searcher)
		m.IncompleteMerge = config.UseIncompleteMerge
		searcher = m
	}
	return searcher
}

func newCoreSearcher(typ CoreSearchType, executor *Executor, rng *rand.Rand) Searcher {
	switch typ {
	case CoreSearchDFS:
		return NewDFSSearcher()
	case CoreSearchBFS:
		return NewBFSSearcher()
	case CoreSearchRandomState:
		return NewRandomSearcher(rng)
	case CoreSearchRandomPath:
		return NewRandomPathSearcher(executor.PTree(), rng)
	case CoreSearchNURSCovNew:
		return NewWeightedRandomSearcher(WeightCoveringNew, rng)
	case CoreSearchNURSMD2U:
		return NewWeightedRandomSearcher(WeightMinDistToUncovered, rng)
	case CoreSearchNURSDepth:
		return NewWeightedRandomSearcher(WeightDepth, rng)
	case CoreSearchNURSRP:
		return NewWeightedRandomSearcher(WeightRandomPath, rng)
	case CoreSearchNURSICnt:
		return NewWeightedRandomSearcher(WeightInstCount, rng)
	case CoreSearchNURSCPICnt:
		return NewWeightedRandomSearcher(WeightCPInstCount, rng)
	case CoreSearchNURSQC:
		return NewWeightedRandomSearcher(WeightQueryCost, rng)
	default:
		panic(fmt.Sprintf("sieve: unknown core search type: %q", typ))
	}
}

var _ Searcher = (*DFSSearcher)(nil)

// DFSSearcher represents a searcher with a depth-first search strategy.
// States are kept in insertion order; the last state is selected.
type DFSSearcher struct {
	states []*ExecutionState
}

// NewDFSSearcher returns a new instance of DFSSearcher.
func NewDFSSearcher() *DFSSearcher {
	return &DFSSearcher{}
}

// SelectState returns the next execution state to explore.
func (s *DFSSearcher) SelectState() *ExecutionState {
	assert(len(s.states) > 0, "dfs searcher: select on empty searcher")
	return s.states[len(s.states)-1]
}

// Update appends added states in order and removes terminated ones.
// Surviving states keep their original positions.
func (s *DFSSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	s.states = append(s.states, added...)
	for _, state := range removed {
		if n := len(s.states); n > 0 && s.states[n-1] == state {
			s.states[n-1] = nil
			s.states = s.states[:n-1]
			continue
		}
		i := indexOfState(s.states, state)
		assert(i >= 0, "dfs searcher: remove of unknown state: state=%d", state.id)
		s.states = append(s.states[:i], s.states[i+1:]...)
	}
}

// Empty returns true if no state is left for exploration.
func (s *DFSSearcher) Empty() bool { return len(s.states) == 0 }

// PrintName writes the searcher identification to w.
func (s *DFSSearcher) PrintName(w io.Writer) {
	fmt.Fprintln(w, "DFSSearcher")
}

var _ Searcher = (*BFSSearcher)(nil)

// BFSSearcher represents a searcher with a breadth-first search strategy.
// The fork tree is binary, so a state that just forked is moved back to the
// front: its remaining siblings at the same branch depth are explored before
// the search descends.
type BFSSearcher struct {
	states []*ExecutionState
}

// NewBFSSearcher returns a new instance of BFSSearcher.
func NewBFSSearcher() *BFSSearcher {
	return &BFSSearcher{}
}

// SelectState returns the next execution state to explore.
func (s *BFSSearcher) SelectState() *ExecutionState {
	assert(len(s.states) > 0, "bfs searcher: select on empty searcher")
	return s.states[0]
}

// Update enqueues added states at the tail. If current forked it is promoted
// to the head so that sibling forks keep the same branch depth.
func (s *BFSSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	if current != nil && len(added) > 0 && indexOfState(removed, current) < 0 {
		if i := indexOfState(s.states, current); i >= 0 {
			copy(s.states[1:i+1], s.states[:i])
			s.states[0] = current
		}
	}

	s.states = append(s.states, added...)
	for _, state := range removed {
		if len(s.states) > 0 && s.states[0] == state {
			s.states = s.states[1:]
			continue
		}
		i := indexOfState(s.states, state)
		assert(i >= 0, "bfs searcher: remove of unknown state: state=%d", state.id)
		s.states = append(s.states[:i], s.states[i+1:]...)
	}
}

// Empty returns true if no state is left for exploration.
func (s *BFSSearcher) Empty() bool { return len(s.states) == 0 }

// PrintName writes the searcher identification to w.
func (s *BFSSearcher) PrintName(w io.Writer) {
	fmt.Fprintln(w, "BFSSearcher")
}

var _ Searcher = (*RandomSearcher)(nil)

// RandomSearcher picks a state uniformly at random.
type RandomSearcher struct {
	states []*ExecutionState
	rand   *rand.Rand
}

// NewRandomSearcher returns a new instance of RandomSearcher.
// The RNG is borrowed, not owned.
func NewRandomSearcher(rng *rand.Rand) *RandomSearcher {
	return &RandomSearcher{rand: rng}
}

// SelectState returns a random execution state to explore.
func (s *RandomSearcher) SelectState() *ExecutionState {
	assert(len(s.states) > 0, "random searcher: select on empty searcher")
	return s.states[s.rand.Intn(len(s.states))]
}

// Update appends added states and removes terminated ones by linear scan.
func (s *RandomSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	s.states = append(s.states, added...)
	for _, state := range removed {
		i := indexOfState(s.states, state)
		assert(i >= 0, "random searcher: remove of unknown state: state=%d", state.id)
		s.states = append(s.states[:i], s.states[i+1:]...)
	}
}

// Empty returns true if no state is left for exploration.
func (s *RandomSearcher) Empty() bool { return len(s.states) == 0 }

// PrintName writes the searcher identification to w.
func (s *RandomSearcher) PrintName(w io.Writer) {
	fmt.Fprintln(w, "RandomSearcher")
}

var _ Searcher = (*InterleavedSearcher)(nil)

// InterleavedSearcher selects states from a set of searchers round-robin.
// All children observe the same state population.
type InterleavedSearcher struct {
	searchers []Searcher
	index     int
}

// NewInterleavedSearcher returns a new instance of InterleavedSearcher.
// Takes ownership of the child searchers.
func NewInterleavedSearcher(searchers []Searcher) *InterleavedSearcher {
	assert(len(searchers) > 0, "interleaved searcher: no children")
	return &InterleavedSearcher{searchers: searchers}
}

// SelectState returns the next state to explore from the next searcher.
func (s *InterleavedSearcher) SelectState() *ExecutionState {
	searcher := s.searchers[s.index]
	if s.index++; s.index >= len(s.searchers) {
		s.index = 0
	}
	return searcher.SelectState()
}

// Update broadcasts the update to all child searchers.
func (s *InterleavedSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	for _, searcher := range s.searchers {
		searcher.Update(current, added, removed)
	}
}

// Empty returns true if no state is left for exploration. Children share one
// population so the first child stands for all of them.
func (s *InterleavedSearcher) Empty() bool { return s.searchers[0].Empty() }

// PrintName writes the searcher identification and its children to w.
func (s *InterleavedSearcher) PrintName(w io.Writer) {
	fmt.Fprintf(w, "<InterleavedSearcher> containing %d searchers:\n", len(s.searchers))
	for _, searcher := range s.searchers {
		searcher.PrintName(w)
	}
	fmt.Fprintln(w, "</InterleavedSearcher>")
}

// indexOfState returns the position of state in a, or -1.
func indexOfState(a []*ExecutionState, state *ExecutionState) int {
	for i := range a {
		if a[i] == state {
			return i
		}
	}
	return -1
}
