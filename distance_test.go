package sieve_test

import (
	"math"
	"testing"

	"github.com/benbjohnson/sieve"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

func TestMinDistToUncoveredMap(t *testing.T) {
	prog := MustBuildProgram(t, "./testdata/distance")
	fn := MustFindFunction(t, prog, "classify")

	t.Run("NothingCovered", func(t *testing.T) {
		dist := sieve.MinDistToUncoveredMap(fn, func(ssa.Instruction) bool { return false })
		for _, b := range fn.Blocks {
			if dist[b] != 0 {
				t.Fatalf("unexpected distance: block=%d dist=%v", b.Index, dist[b])
			}
		}
	})

	t.Run("AllCovered", func(t *testing.T) {
		dist := sieve.MinDistToUncoveredMap(fn, func(ssa.Instruction) bool { return true })
		for _, b := range fn.Blocks {
			if !math.IsInf(dist[b], 1) {
				t.Fatalf("unexpected distance: block=%d dist=%v", b.Index, dist[b])
			}
		}
	})

	t.Run("PropagatesThroughSuccessors", func(t *testing.T) {
		// Cover only the entry block: its distance is the instructions it
		// must retire before reaching an uncovered successor.
		entry := fn.Blocks[0]
		covered := func(instr ssa.Instruction) bool { return instr.Block() == entry }

		dist := sieve.MinDistToUncoveredMap(fn, covered)
		if got := dist[entry]; got != float64(len(entry.Instrs)) {
			t.Fatalf("unexpected entry distance: %v", got)
		}
		for _, b := range fn.Blocks[1:] {
			if dist[b] != 0 {
				t.Fatalf("unexpected distance: block=%d dist=%v", b.Index, dist[b])
			}
		}
	})

	t.Run("PartialBlockCoverage", func(t *testing.T) {
		// Covering a prefix of a block leaves the distance at the offset of
		// its first uncovered instruction.
		entry := fn.Blocks[0]
		covered := func(instr ssa.Instruction) bool {
			return instr.Block() == entry && instr == entry.Instrs[0]
		}

		dist := sieve.MinDistToUncoveredMap(fn, covered)
		if got := dist[entry]; got != 1 {
			t.Fatalf("unexpected entry distance: %v", got)
		}
	})
}

// MustBuildProgram builds an SSA program at the given path. Fatal on error.
func MustBuildProgram(tb testing.TB, path string) *ssa.Program {
	tb.Helper()

	initial, err := packages.Load(&packages.Config{
		Mode: packages.LoadAllSyntax,
	}, path)
	if err != nil {
		tb.Fatal(err)
	} else if packages.PrintErrors(initial) > 0 {
		tb.Fatal("packages contain errors")
	}

	prog, pkgs := ssautil.AllPackages(initial, ssa.BuilderMode(0))
	for i, pkg := range pkgs {
		if pkg == nil {
			tb.Fatalf("cannot build SSA for package %s", initial[i])
		}
	}
	prog.Build()
	return prog
}

// MustFindFunction returns a function from any package in the program with
// the given name.
func MustFindFunction(tb testing.TB, prog *ssa.Program, name string) *ssa.Function {
	tb.Helper()

	for _, pkg := range prog.AllPackages() {
		if m := pkg.Members[name]; m == nil {
			continue
		} else if fn, ok := m.(*ssa.Function); ok {
			return fn
		}
	}
	tb.Fatalf("function %q not found", name)
	return nil
}
