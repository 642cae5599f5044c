package sieve

import (
	"fmt"
	"io"
	"math/rand"
)

var _ Searcher = (*RandomPathSearcher)(nil)

// RandomPathSearcher selects a state by a fair random walk of the fork tree:
// at every branch both sides are taken with probability ½, so a leaf at
// branch depth d is chosen with probability 2⁻ᵈ.
//
// The tree is shared and a searcher may schedule only a subset of the live
// states, so each RandomPathSearcher walks only the child edges tagged with
// its bitmask. The tags are maintained in Update: set upward from new leaves
// until an owned ancestor edge is reached, cleared upward from dead leaves
// until an ancestor still owns another child.
type RandomPathSearcher struct {
	tree *PTree
	rand *rand.Rand

	// Unique bitmask of this searcher.
	idBitMask uint8
}

// NewRandomPathSearcher returns a new instance of RandomPathSearcher.
// The RNG is borrowed, not owned. Fatal if the tree has no searcher slots
// left.
func NewRandomPathSearcher(tree *PTree, rng *rand.Rand) *RandomPathSearcher {
	return &RandomPathSearcher{
		tree:      tree,
		rand:      rng,
		idBitMask: tree.NextID(),
	}
}

// SelectState walks the owned subtree from the root to a leaf, flipping a
// fair coin wherever both child edges carry this searcher's bit.
func (s *RandomPathSearcher) SelectState() *ExecutionState {
	assert(s.tree.root.hasTag(s.idBitMask), "random path searcher: root not owned by searcher")

	var flips uint32
	var bits uint
	node := s.tree.root.node
	for node.state == nil {
		if !node.left.hasTag(s.idBitMask) {
			assert(node.right.hasTag(s.idBitMask), "random path searcher: interior node without owned child")
			node = node.right.node
		} else if !node.right.hasTag(s.idBitMask) {
			node = node.left.node
		} else {
			if bits == 0 {
				flips = s.rand.Uint32()
				bits = 32
			}
			bits--
			if flips&(1<<bits) != 0 {
				node = node.left.node
			} else {
				node = node.right.node
			}
		}
	}
	return node.state
}

// Update claims the edges down to added leaves and releases the edges down
// to removed ones.
func (s *RandomPathSearcher) Update(current *ExecutionState, added, removed []*ExecutionState) {
	for _, state := range added {
		node := state.ptreeNode
		for node != nil {
			edge := s.tree.edgeTo(node)
			if edge.tags&s.idBitMask != 0 {
				break
			}
			edge.setTag(s.idBitMask)
			node = node.parent
		}
	}

	for _, state := range removed {
		node := state.ptreeNode
		for node != nil && !node.left.hasTag(s.idBitMask) && !node.right.hasTag(s.idBitMask) {
			edge := s.tree.edgeTo(node)
			assert(edge.tags&s.idBitMask != 0, "random path searcher: release of unowned node: state=%d", state.id)
			edge.clearTag(s.idBitMask)
			node = node.parent
		}
	}
}

// Empty returns true if the owned subtree has no leaves.
func (s *RandomPathSearcher) Empty() bool {
	return !s.tree.root.hasTag(s.idBitMask)
}

// PrintName writes the searcher identification to w.
func (s *RandomPathSearcher) PrintName(w io.Writer) {
	fmt.Fprintln(w, "RandomPathSearcher")
}
