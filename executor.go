package sieve

import (
	"log"
	"time"

	"github.com/benbjohnson/immutable"
)

// StepFunc advances a state by one unit of work: one instruction, or up to
// the next fork or termination. Implementations call Fork, Terminate, and
// CountInstruction on the executor while running.
type StepFunc func(state *ExecutionState) error

// Executor owns the live execution states and drives the select-step-update
// loop. Instruction interpretation is delegated to a StepFunc; the executor
// keeps the searcher and the fork-history tree consistent with the births
// and deaths each step produces.
type Executor struct {
	root       *ExecutionState
	states     *immutable.SortedMap // id → *ExecutionState
	stateIDSeq int                  // autoincrementing state ID
	ptree      *PTree

	// States born and dead during the current step, reported to the
	// searcher when the step finishes.
	addedStates   []*ExecutionState
	removedStates []*ExecutionState

	instructions uint64 // retired across all states

	// Advances a single state by one unit of work.
	// Must set before execution.
	Step StepFunc

	// Search strategy for the executor. Defaults to depth-first.
	// Replace via SetSearcher so the population carries over.
	Searcher Searcher

	// Wall-clock source for time-budgeted searchers.
	Now Clock
}

// NewExecutor returns a new instance of Executor holding a single root state.
func NewExecutor() *Executor {
	e := &Executor{
		states:   immutable.NewSortedMap(&intComparer{}),
		Searcher: NewDFSSearcher(),
		Now:      time.Now,
	}

	// Initialize entry state.
	e.root = &ExecutionState{
		executor: e,
		status:   ExecutionStatusRunning,
	}
	e.root.id = e.nextStateID()
	e.ptree = NewPTree(e.root)

	// Add state to searcher.
	e.states = e.states.Set(e.root.id, e.root)
	e.Searcher.Update(nil, []*ExecutionState{e.root}, nil)

	return e
}

// RootState returns the initial state.
func (e *Executor) RootState() *ExecutionState { return e.root }

// PTree returns the fork-history tree.
func (e *Executor) PTree() *PTree { return e.ptree }

// Instructions returns the instructions retired across all states.
func (e *Executor) Instructions() uint64 { return e.instructions }

// States returns all live states in ID order.
func (e *Executor) States() []*ExecutionState {
	a := make([]*ExecutionState, 0, e.states.Len())
	itr := e.states.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		a = append(a, v.(*ExecutionState))
	}
	return a
}

// State returns the live state with the given ID, or nil.
func (e *Executor) State(id int) *ExecutionState {
	if v, _ := e.states.Get(id); v != nil {
		return v.(*ExecutionState)
	}
	return nil
}

// nextStateID returns the next autoincrementing state ID.
func (e *Executor) nextStateID() int {
	e.stateIDSeq++
	return e.stateIDSeq
}

// SetSearcher replaces the search strategy, carrying the live population
// over to the new searcher.
func (e *Executor) SetSearcher(s Searcher) {
	if live := e.States(); len(live) > 0 {
		s.Update(nil, live, nil)
	}
	e.Searcher = s
}

// Fork creates a child of parent at a symbolic branch. Both sides of the
// fork descend one level; the child inherits the parent's scheduling
// attributes. The searcher learns of the child when the step finishes.
func (e *Executor) Fork(parent *ExecutionState) *ExecutionState {
	assert(!parent.Terminated(), "fork of terminated state: state=%d", parent.id)

	child := &ExecutionState{
		executor:                 e,
		status:                   ExecutionStatusRunning,
		depth:                    parent.depth + 1,
		instructionCount:         parent.instructionCount,
		callPathInstructionCount: parent.callPathInstructionCount,
		queryCost:                parent.queryCost,
		minDistToUncovered:       parent.minDistToUncovered,
		coverNew:                 parent.coverNew,
	}
	child.id = e.nextStateID()
	parent.depth++

	e.ptree.Attach(parent.ptreeNode, child, parent)
	e.states = e.states.Set(child.id, child)
	e.addedStates = append(e.addedStates, child)
	return child
}

// Terminate marks a state dead. Its leaf collapses and the searchers drop it
// when the step finishes.
func (e *Executor) Terminate(state *ExecutionState, status ExecutionStatus, reason string) {
	assert(status != ExecutionStatusRunning, "terminate with running status: state=%d", state.id)
	assert(!state.Terminated(), "terminate of terminated state: state=%d", state.id)
	state.status = status
	state.reason = reason
	e.removedStates = append(e.removedStates, state)
}

// CountInstruction records one retired instruction against state.
func (e *Executor) CountInstruction(state *ExecutionState) {
	state.instructionCount++
	state.callPathInstructionCount++
	e.instructions++
}

// ExecuteNextState selects and advances the next available state. This can
// be called continually until ErrNoStateAvailable is returned.
func (e *Executor) ExecuteNextState() (*ExecutionState, error) {
	assert(e.Step != nil, "executor: no step function")
	if e.Searcher.Empty() {
		return nil, ErrNoStateAvailable
	}

	state := e.Searcher.SelectState()
	log.Printf("[state] begin: id=%d depth=%d", state.id, state.depth)

	err := e.Step(state)
	e.updateStates(state)
	return state, err
}

// updateStates flushes the births and deaths of the current step. The
// searcher hears about removals before their tree leaves collapse so that
// random-path searchers can release the edges.
func (e *Executor) updateStates(current *ExecutionState) {
	added, removed := e.addedStates, e.removedStates
	e.addedStates, e.removedStates = nil, nil

	e.Searcher.Update(current, added, removed)
	for _, state := range removed {
		e.ptree.Remove(state.ptreeNode)
		e.states = e.states.Delete(state.id)
		log.Printf("[state] end: id=%d status=%s", state.id, state.status)
	}
}
