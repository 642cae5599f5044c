package sieve_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/benbjohnson/sieve"
)

func TestDiscretePDF(t *testing.T) {
	t.Run("ChooseByCumulativeWeight", func(t *testing.T) {
		// Entries are ordered by ID, so the cumulative intervals are
		// id1=[0,1), id2=[1,3), id3=[3,6) over a total weight of 6.
		_, states := newForkedStates(t, 3)
		pdf := sieve.NewDiscretePDF()
		pdf.Insert(states[0], 1)
		pdf.Insert(states[1], 2)
		pdf.Insert(states[2], 3)

		if got := pdf.TotalWeight(); got != 6 {
			t.Fatalf("unexpected total weight: %v", got)
		}
		for _, tt := range []struct {
			p  float64
			id int
		}{
			{0, 1},
			{0.16, 1},
			{0.17, 2},
			{0.49, 2},
			{0.5, 3},
			{0.99, 3},
		} {
			if got := pdf.Choose(tt.p); got.ID() != tt.id {
				t.Fatalf("unexpected choice: p=%v id=%d", tt.p, got.ID())
			}
		}
	})

	t.Run("UpdateShiftsIntervals", func(t *testing.T) {
		_, states := newForkedStates(t, 2)
		pdf := sieve.NewDiscretePDF()
		pdf.Insert(states[0], 1)
		pdf.Insert(states[1], 1)

		pdf.Update(states[0], 3)
		if got := pdf.TotalWeight(); got != 4 {
			t.Fatalf("unexpected total weight: %v", got)
		} else if got := pdf.Choose(0.74); got != states[0] {
			t.Fatalf("unexpected choice: id=%d", got.ID())
		} else if got := pdf.Choose(0.75); got != states[1] {
			t.Fatalf("unexpected choice: id=%d", got.ID())
		}
	})

	t.Run("RemoveClosesInterval", func(t *testing.T) {
		_, states := newForkedStates(t, 3)
		pdf := sieve.NewDiscretePDF()
		for _, state := range states {
			pdf.Insert(state, 1)
		}
		pdf.Remove(states[1])
		if got := pdf.TotalWeight(); got != 2 {
			t.Fatalf("unexpected total weight: %v", got)
		} else if got := pdf.Choose(0.5); got != states[2] {
			t.Fatalf("unexpected choice: id=%d", got.ID())
		}
		pdf.Remove(states[0])
		pdf.Remove(states[2])
		if !pdf.Empty() {
			t.Fatal("expected empty pdf")
		}
	})

	t.Run("ManyEntries", func(t *testing.T) {
		// Insertions, removals, and reweights over a large population keep
		// the total weight and the sampling range consistent.
		const n = 1000
		_, states := newForkedStates(t, n)
		pdf := sieve.NewDiscretePDF()

		total := 0.0
		for i, state := range states {
			w := float64(i%7 + 1)
			pdf.Insert(state, w)
			total += w
		}
		if got := pdf.TotalWeight(); math.Abs(got-total) > 1e-9 {
			t.Fatalf("unexpected total weight: %v", got)
		}

		for i := 0; i < n; i += 3 {
			pdf.Update(states[i], 2)
			total += 2 - float64(i%7+1)
		}
		for i := 0; i < n; i += 5 {
			// Entries at multiples of 15 were reweighted to 2 above.
			if i%3 == 0 {
				total -= 2
			} else {
				total -= float64(i%7 + 1)
			}
			pdf.Remove(states[i])
		}
		if got := pdf.TotalWeight(); math.Abs(got-total) > 1e-9 {
			t.Fatalf("unexpected total weight: %v", got)
		}

		rng := rand.New(rand.NewSource(0))
		for i := 0; i < 1000; i++ {
			state := pdf.Choose(rng.Float64())
			if state.ID()%5 == 1 {
				// IDs run 1..n, so states[i] has ID i+1.
				t.Fatalf("chose removed state: id=%d", state.ID())
			}
		}
	})

	t.Run("ContractViolations", func(t *testing.T) {
		_, states := newForkedStates(t, 2)
		pdf := sieve.NewDiscretePDF()
		pdf.Insert(states[0], 1)

		mustPanic(t, func() { pdf.Insert(states[0], 1) })
		mustPanic(t, func() { pdf.Insert(states[1], 0) })
		mustPanic(t, func() { pdf.Remove(states[1]) })
		mustPanic(t, func() { pdf.Update(states[1], 1) })
		mustPanic(t, func() { pdf.Choose(1) })

		pdf.Remove(states[0])
		mustPanic(t, func() { pdf.Choose(0) })
	})
}

// mustPanic fails the test if fn returns without panicking.
func mustPanic(tb testing.TB, fn func()) {
	tb.Helper()
	defer func() {
		if recover() == nil {
			tb.Fatal("expected panic")
		}
	}()
	fn()
}
