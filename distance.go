package sieve

import (
	"math"

	"golang.org/x/tools/go/ssa"
)

// MinDistToUncoveredMap computes, for every basic block of fn, the minimum
// number of instructions executed before reaching an instruction for which
// covered returns false. A block on uncovered code maps to the offset of its
// first uncovered instruction; blocks that cannot reach uncovered code map
// to +Inf. The engine feeds the result into SetMinDistToUncovered as
// coverage advances.
func MinDistToUncoveredMap(fn *ssa.Function, covered func(ssa.Instruction) bool) map[*ssa.BasicBlock]float64 {
	dist := make(map[*ssa.BasicBlock]float64, len(fn.Blocks))
	for _, b := range fn.Blocks {
		dist[b] = math.Inf(1)
	}

	// Relax until fixpoint. Loops converge because distances only shrink.
	for changed := true; changed; {
		changed = false
		for _, b := range fn.Blocks {
			d := math.Inf(1)
			for i, instr := range b.Instrs {
				if !covered(instr) {
					d = float64(i)
					break
				}
			}
			for _, succ := range b.Succs {
				if through := float64(len(b.Instrs)) + dist[succ]; through < d {
					d = through
				}
			}
			if d < dist[b] {
				dist[b] = d
				changed = true
			}
		}
	}
	return dist
}
