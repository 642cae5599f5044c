package sieve

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// Clock returns the current time. Wrappers sample it between calls; the core
// has no timers of its own. Tests substitute a fake.
type Clock func() time.Time

var _ Searcher = (*BatchingSearcher)(nil)

// BatchingSearcher selects a state from an underlying searcher and keeps
// returning that state until a time or instruction budget expires. Batching
// amortizes the cost of heuristics that are expensive per selection.
type BatchingSearcher struct {
	base              Searcher
	timeBudget        time.Duration
	instructionBudget uint64

	lastState             *ExecutionState
	lastStartTime         time.Time
	lastStartInstructions uint64

	// Now yields wall-clock time for the time budget.
	Now Clock

	// Instructions yields the cumulative retired-instruction count for the
	// instruction budget. A nil counter leaves the dimension unbounded.
	Instructions func() uint64
}

// NewBatchingSearcher returns a new instance of BatchingSearcher wrapping
// base. A zero budget leaves that dimension unbounded; if both budgets are
// zero the wrapper is transparent. Takes ownership of base.
func NewBatchingSearcher(base Searcher, timeBudget time.Duration, instructionBudget uint64) *BatchingSearcher {
	return &BatchingSearcher{
		base:              base,
		timeBudget:        timeBudget,
		instructionBudget: instructionBudget,
		Now:               time.Now,
	}
}

// SelectState returns the batched state while its budgets hold, otherwise a
// fresh selection from the base searcher. The expired state is withheld from
// the base during that selection so a stack-ordered base moves on to a
// different state, then re-inserted.
func (s *BatchingSearcher) SelectState() *ExecutionState {
	if s.timeBudget == 0 && s.instructionBudget == 0 {
		return s.base.SelectState()
	}
	if s.lastState != nil && s.withinBudget() {
		return s.lastState
	}

	if last := s.lastState; last != nil {
		s.base.Update(nil, nil, []*ExecutionState{last})
		if s.base.Empty() {
			s.base.Update(nil, []*ExecutionState{last}, nil)
			s.anchor(last)
			return last
		}
		state := s.base.SelectState()
		s.base.Update(nil, []*ExecutionState{last}, nil)
		s.anchor(state)
		return state
	}

	state := s.base.SelectState()
	s.anchor(state)
	return state
}

func (s *BatchingSearcher) withinBudget() bool {
	if s.timeBudget > 0 && s.Now().Sub(s.lastStartTime) >= s.timeBudget {
		return false
	}
	if s.instructionBudget > 0 && s.instructions()-s.lastStartInstructions >= s.instructionBudget {
		return false
	}
	return true
}

func (s *BatchingSearcher) anchor(state *ExecutionState) {
	s.lastState = state
	s.lastStartTime = s.Now()
	s.lastStartInstructions = s.instructions()
}

func (s *BatchingSearcher) instructions() uint64 {
	if s.Instructions == nil {
		return 0
	}
	return s.Instructions()
}

// Update forwards unchanged. A terminated batched state clears the batch.
func (s *BatchingSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	s.base.Update(current, added, removed)
	if s.lastState != nil && indexOfState(removed, s.lastState) >= 0 {
		s.lastState = nil
	}
}

// Empty returns true if no state is left for exploration.
func (s *BatchingSearcher) Empty() bool { return s.base.Empty() }

// PrintName writes the searcher identification and its base to w.
func (s *BatchingSearcher) PrintName(w io.Writer) {
	fmt.Fprintf(w, "<BatchingSearcher> timeBudget: %s, instructionBudget: %d, baseSearcher:\n", s.timeBudget, s.instructionBudget)
	s.base.PrintName(w)
	fmt.Fprintln(w, "</BatchingSearcher>")
}

// MergeHandler tracks one group of states that branched from a common
// open-merge point and have not all reached the matching close-merge yet.
// The handler owns the merge protocol; the searcher only exposes the
// pause/continue primitives the handler drives.
type MergeHandler interface {
	// HasMergedStates returns true if the group holds states that already
	// arrived at the close-merge point.
	HasMergedStates() bool

	// PrioritizedState returns a state worth advancing toward the
	// close-merge point, or nil if the group waited long enough.
	PrioritizedState() *ExecutionState

	// ReleaseStates resumes the states that already arrived at the
	// close-merge point without waiting for the rest of the group.
	ReleaseStates()
}

var _ Searcher = (*MergingSearcher)(nil)

// MergingSearcher coordinates speculative state merging. States waiting for
// the rest of their merge group are paused: removed from the base searcher
// while staying live in the executor.
type MergingSearcher struct {
	base         Searcher
	pausedStates []*ExecutionState

	// Keeps track of all currently ongoing merges.
	mergeGroups []MergeHandler

	// States currently held at a close-merge point.
	InCloseMerge map[*ExecutionState]struct{}

	// Prioritize states that could complete a merge group over the base
	// searcher's own choice.
	IncompleteMerge bool
}

// NewMergingSearcher returns a new instance of MergingSearcher wrapping
// base. Takes ownership of base.
func NewMergingSearcher(base Searcher) *MergingSearcher {
	return &MergingSearcher{
		base:         base,
		InCloseMerge: make(map[*ExecutionState]struct{}),
	}
}

// PauseState removes state from the searcher chain while keeping it in the
// executor. Fatal if the state is already paused.
func (s *MergingSearcher) PauseState(state *ExecutionState) {
	assert(indexOfState(s.pausedStates, state) < 0, "merging searcher: pause of paused state: state=%d", state.id)
	s.pausedStates = append(s.pausedStates, state)
	s.base.Update(nil, nil, []*ExecutionState{state})
}

// ContinueState reverses PauseState. Fatal if the state is not paused.
func (s *MergingSearcher) ContinueState(state *ExecutionState) {
	i := indexOfState(s.pausedStates, state)
	assert(i >= 0, "merging searcher: continue of unpaused state: state=%d", state.id)
	s.pausedStates = append(s.pausedStates[:i], s.pausedStates[i+1:]...)
	s.base.Update(nil, []*ExecutionState{state}, nil)
}

// AddMergeGroup registers an ongoing merge.
func (s *MergingSearcher) AddMergeGroup(h MergeHandler) {
	s.mergeGroups = append(s.mergeGroups, h)
}

// RemoveMergeGroup unregisters a completed merge.
func (s *MergingSearcher) RemoveMergeGroup(h MergeHandler) {
	for i, group := range s.mergeGroups {
		if group == h {
			s.mergeGroups = append(s.mergeGroups[:i], s.mergeGroups[i+1:]...)
			return
		}
	}
	assert(false, "merging searcher: remove of unknown merge group")
}

// SelectState delegates to the base searcher. In incomplete-merge mode,
// states that could complete an ongoing merge take priority; groups that
// waited too long release the states already at their close-merge point.
func (s *MergingSearcher) SelectState() *ExecutionState {
	if !s.IncompleteMerge {
		return s.base.SelectState()
	}

	for _, group := range s.mergeGroups {
		if !group.HasMergedStates() {
			continue
		}
		if state := group.PrioritizedState(); state != nil {
			return state
		}
		group.ReleaseStates()
	}
	return s.base.SelectState()
}

// Update forwards to the base searcher. A paused current is rewritten to nil
// so the base does not treat a state it cannot see as freshly selected, and
// paused states terminating externally are filtered out of removed.
func (s *MergingSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	if current != nil && indexOfState(s.pausedStates, current) >= 0 {
		current = nil
	}
	removed = s.dropPaused(removed)
	s.base.Update(current, added, removed)
}

// dropPaused unpauses and filters out removed states the base never saw.
func (s *MergingSearcher) dropPaused(removed []*ExecutionState) []*ExecutionState {
	filtered := removed
	for i := 0; i < len(filtered); {
		state := filtered[i]
		j := indexOfState(s.pausedStates, state)
		if j < 0 {
			i++
			continue
		}
		s.pausedStates = append(s.pausedStates[:j], s.pausedStates[j+1:]...)
		if len(filtered) == len(removed) {
			filtered = append([]*ExecutionState(nil), removed...)
		}
		filtered = append(filtered[:i], filtered[i+1:]...)
	}
	return filtered
}

// Empty returns true if the base searcher has no state left.
func (s *MergingSearcher) Empty() bool { return s.base.Empty() }

// PrintName writes the searcher identification and its base to w.
func (s *MergingSearcher) PrintName(w io.Writer) {
	fmt.Fprintln(w, "<MergingSearcher> baseSearcher:")
	s.base.PrintName(w)
	fmt.Fprintln(w, "</MergingSearcher>")
}

var _ Searcher = (*IterativeDeepeningTimeSearcher)(nil)

// IterativeDeepeningTimeSearcher pauses states that exceed a per-state time
// budget. When the base searcher drains, the budget doubles and all paused
// states revive.
type IterativeDeepeningTimeSearcher struct {
	base         Searcher
	budget       time.Duration
	startTime    time.Time
	pausedStates map[*ExecutionState]struct{}

	// Now yields wall-clock time for the per-state budget.
	Now Clock
}

// NewIterativeDeepeningTimeSearcher returns a new instance wrapping base
// with an initial budget of one second. Takes ownership of base.
func NewIterativeDeepeningTimeSearcher(base Searcher) *IterativeDeepeningTimeSearcher {
	return &IterativeDeepeningTimeSearcher{
		base:         base,
		budget:       time.Second,
		pausedStates: make(map[*ExecutionState]struct{}),
		Now:          time.Now,
	}
}

// SelectState delegates to the base searcher, reviving the paused states
// under a doubled budget first if the base has drained.
func (s *IterativeDeepeningTimeSearcher) SelectState() *ExecutionState {
	if s.base.Empty() && len(s.pausedStates) > 0 {
		s.budget *= 2
		s.base.Update(nil, s.sortedPausedStates(), nil)
		s.pausedStates = make(map[*ExecutionState]struct{})
	}
	state := s.base.SelectState()
	s.startTime = s.Now()
	return state
}

// sortedPausedStates returns the paused states ordered by ID so revival
// order does not depend on map iteration.
func (s *IterativeDeepeningTimeSearcher) sortedPausedStates() []*ExecutionState {
	a := make([]*ExecutionState, 0, len(s.pausedStates))
	for state := range s.pausedStates {
		a = append(a, state)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].id < a[j].id })
	return a
}

// Update forwards to the base searcher, then pauses current if it spent more
// than the budget since its selection. Paused states terminating externally
// are filtered out of removed.
func (s *IterativeDeepeningTimeSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	elapsed := s.Now().Sub(s.startTime)

	forwarded := removed
	for i := 0; i < len(forwarded); {
		state := forwarded[i]
		if _, ok := s.pausedStates[state]; !ok {
			i++
			continue
		}
		delete(s.pausedStates, state)
		if len(forwarded) == len(removed) {
			forwarded = append([]*ExecutionState(nil), removed...)
		}
		forwarded = append(forwarded[:i], forwarded[i+1:]...)
	}
	s.base.Update(current, added, forwarded)

	if current != nil && indexOfState(removed, current) < 0 && elapsed > s.budget {
		s.pausedStates[current] = struct{}{}
		s.base.Update(nil, nil, []*ExecutionState{current})
	}
}

// Empty returns true if the base searcher has drained and nothing is paused.
func (s *IterativeDeepeningTimeSearcher) Empty() bool {
	return s.base.Empty() && len(s.pausedStates) == 0
}

// PrintName writes the searcher identification and its base to w.
func (s *IterativeDeepeningTimeSearcher) PrintName(w io.Writer) {
	fmt.Fprintln(w, "<IterativeDeepeningTimeSearcher> baseSearcher:")
	s.base.PrintName(w)
	fmt.Fprintln(w, "</IterativeDeepeningTimeSearcher>")
}

var _ Searcher = (*SelectNSearcher)(nil)

// SelectNSearcher hands out pairwise-distinct states within each window of
// up to n selections, so n states can be advanced side by side. Selected
// states are withheld from the base searcher until the window fills or the
// base drains, then handed back. A window closes early when the base drains,
// so with fewer than n live states the same state repeats within n
// selections.
type SelectNSearcher struct {
	base   Searcher
	n      int
	window []*ExecutionState
}

// NewSelectNSearcher returns a new instance of SelectNSearcher wrapping
// base. Takes ownership of base.
func NewSelectNSearcher(base Searcher, n int) *SelectNSearcher {
	assert(n > 0, "select-n searcher: invalid window size: n=%d", n)
	return &SelectNSearcher{base: base, n: n}
}

// SelectState returns the base searcher's choice among the states not yet
// handed out in the current window.
func (s *SelectNSearcher) SelectState() *ExecutionState {
	if len(s.window) >= s.n || s.base.Empty() {
		s.flushWindow()
	}
	state := s.base.SelectState()
	s.window = append(s.window, state)
	s.base.Update(nil, nil, []*ExecutionState{state})
	return state
}

// flushWindow returns the withheld states to the base searcher.
func (s *SelectNSearcher) flushWindow() {
	if len(s.window) == 0 {
		return
	}
	s.base.Update(nil, s.window, nil)
	s.window = nil
}

// Update forwards to the base searcher. Withheld states are invisible to the
// base: a windowed current is rewritten to nil and windowed removals are
// dropped from the window instead of forwarded.
func (s *SelectNSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	if current != nil && indexOfState(s.window, current) >= 0 {
		current = nil
	}
	forwarded := removed
	for i := 0; i < len(forwarded); {
		state := forwarded[i]
		j := indexOfState(s.window, state)
		if j < 0 {
			i++
			continue
		}
		s.window = append(s.window[:j], s.window[j+1:]...)
		if len(forwarded) == len(removed) {
			forwarded = append([]*ExecutionState(nil), removed...)
		}
		forwarded = append(forwarded[:i], forwarded[i+1:]...)
	}
	s.base.Update(current, added, forwarded)
}

// Empty returns true if the base searcher has drained and no state is
// withheld.
func (s *SelectNSearcher) Empty() bool {
	return s.base.Empty() && len(s.window) == 0
}

// PrintName writes the searcher identification and its base to w.
func (s *SelectNSearcher) PrintName(w io.Writer) {
	fmt.Fprintf(w, "<SelectNSearcher> n: %d, baseSearcher:\n", s.n)
	s.base.PrintName(w)
	fmt.Fprintln(w, "</SelectNSearcher>")
}
