package sieve_test

import (
	"sort"
	"testing"

	"github.com/benbjohnson/sieve"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

func TestExecutor(t *testing.T) {
	t.Run("ExploreAllPaths", func(t *testing.T) {
		// Fork at every step until depth 2, then terminate. Four paths total.
		e := sieve.NewExecutor()
		e.Step = func(state *sieve.ExecutionState) error {
			e.CountInstruction(state)
			if state.Depth() < 2 {
				e.Fork(state)
				return nil
			}
			e.Terminate(state, sieve.ExecutionStatusFinished, "")
			return nil
		}

		var finished int
		for {
			state, err := e.ExecuteNextState()
			if err == sieve.ErrNoStateAvailable {
				break
			} else if err != nil {
				t.Fatal(err)
			}
			if state.Terminated() {
				finished++
			}
		}

		if finished != 4 {
			t.Fatalf("unexpected finished path count: %d", finished)
		} else if a := e.States(); len(a) != 0 {
			t.Fatalf("unexpected live states: %s", spew.Sdump(a))
		} else if got := e.Instructions(); got == 0 {
			t.Fatalf("unexpected instruction count: %d", got)
		}
	})

	t.Run("StatesOrderedByID", func(t *testing.T) {
		e, states := newForkedStates(t, 5)
		var ids []int
		for _, state := range e.States() {
			ids = append(ids, state.ID())
		}
		if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, ids); diff != "" {
			t.Fatal(diff)
		} else if !sort.IntsAreSorted(ids) {
			t.Fatalf("ids not sorted: %v", ids)
		} else if e.State(3) != states[2] {
			t.Fatal("unexpected state lookup")
		} else if e.State(99) != nil {
			t.Fatal("expected nil for unknown id")
		}
	})

	t.Run("ForkInheritsAttributes", func(t *testing.T) {
		e := sieve.NewExecutor()
		root := e.RootState()
		e.CountInstruction(root)
		e.CountInstruction(root)
		root.SetCoverNew(true)
		root.SetMinDistToUncovered(7)

		child := e.Fork(root)
		if child.InstructionCount() != 2 {
			t.Fatalf("unexpected instruction count: %d", child.InstructionCount())
		} else if !child.CoverNew() {
			t.Fatal("expected inherited cover-new bit")
		} else if child.MinDistToUncovered() != 7 {
			t.Fatalf("unexpected distance: %v", child.MinDistToUncovered())
		} else if child.Depth() != 1 || root.Depth() != 1 {
			t.Fatalf("unexpected depths: child=%d root=%d", child.Depth(), root.Depth())
		}
	})

	t.Run("SetSearcherCarriesPopulation", func(t *testing.T) {
		e, states := newForkedStates(t, 3)
		bfs := sieve.NewBFSSearcher()
		e.SetSearcher(bfs)
		if bfs.Empty() {
			t.Fatal("expected populated searcher")
		} else if got := bfs.SelectState(); got != states[0] {
			t.Fatalf("unexpected selection: id=%d", got.ID())
		}
	})

	t.Run("NoStateAvailable", func(t *testing.T) {
		e := sieve.NewExecutor()
		e.Step = func(state *sieve.ExecutionState) error {
			e.Terminate(state, sieve.ExecutionStatusExited, "exit")
			return nil
		}
		if _, err := e.ExecuteNextState(); err != nil {
			t.Fatal(err)
		}
		if _, err := e.ExecuteNextState(); err != sieve.ErrNoStateAvailable {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("TerminateReason", func(t *testing.T) {
		e := sieve.NewExecutor()
		root := e.RootState()
		e.Terminate(root, sieve.ExecutionStatusPanicked, "nil dereference")
		if root.Status() != sieve.ExecutionStatusPanicked {
			t.Fatalf("unexpected status: %s", root.Status())
		} else if root.Reason() != "nil dereference" {
			t.Fatalf("unexpected reason: %s", root.Reason())
		} else if !root.Terminated() {
			t.Fatal("expected terminated state")
		}
	})
}

// newForkedStates returns an executor with n live states produced by forking
// the root n-1 times. IDs run 1..n in creation order. The forks bypass the
// step loop so callers drive searchers directly.
func newForkedStates(tb testing.TB, n int) (*sieve.Executor, []*sieve.ExecutionState) {
	tb.Helper()
	e := sieve.NewExecutor()
	states := []*sieve.ExecutionState{e.RootState()}
	for i := 1; i < n; i++ {
		states = append(states, e.Fork(e.RootState()))
	}
	return e, states
}

// newForkChain returns an executor whose root has forked into a chain:
// each new state forks from the previous one. With n=4 the live depths are
// 1, 2, 3, 3 for IDs 1, 2, 3, 4.
func newForkChain(tb testing.TB, n int) (*sieve.Executor, []*sieve.ExecutionState) {
	tb.Helper()
	e := sieve.NewExecutor()
	states := []*sieve.ExecutionState{e.RootState()}
	for i := 1; i < n; i++ {
		states = append(states, e.Fork(states[i-1]))
	}
	return e, states
}

// ids maps states to their IDs.
func ids(states []*sieve.ExecutionState) []int {
	a := make([]int, len(states))
	for i, state := range states {
		a[i] = state.ID()
	}
	return a
}
