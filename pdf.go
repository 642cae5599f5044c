package sieve

// DiscretePDF maintains a discrete probability distribution over execution
// states. Entries are ordered by state ID so that equal draw sequences select
// equal states across runs. Insert, remove, reweight, and weighted sampling
// all run in O(log n).
//
// The structure is a treap: a search tree on state ID with a heap order on
// per-node priorities. Priorities are hashed from the ID, so the tree shape
// depends only on the key set.
type DiscretePDF struct {
	root *pdfNode
}

// NewDiscretePDF returns an empty distribution.
func NewDiscretePDF() *DiscretePDF {
	return &DiscretePDF{}
}

// Empty returns true if the distribution holds no entries.
func (t *DiscretePDF) Empty() bool { return t.root == nil }

// TotalWeight returns the sum of all entry weights.
func (t *DiscretePDF) TotalWeight() float64 {
	if t.root == nil {
		return 0
	}
	return t.root.sumWeights
}

// Insert adds an entry for state with the given weight.
// Fatal if the state is already present or the weight is not positive.
func (t *DiscretePDF) Insert(state *ExecutionState, weight float64) {
	assert(weight > 0, "discrete pdf: non-positive weight: state=%d weight=%v", state.id, weight)
	assert(t.find(state) == nil, "discrete pdf: duplicate insert: state=%d", state.id)
	t.root = t.insert(t.root, &pdfNode{
		state:    state,
		priority: hash64(uint64(state.id)),
		weight:   weight,
	})
}

// Remove deletes the entry for state. Fatal if the state is not present.
func (t *DiscretePDF) Remove(state *ExecutionState) {
	assert(t.find(state) != nil, "discrete pdf: remove of unknown state: state=%d", state.id)
	t.root = t.remove(t.root, state)
}

// Update replaces the weight of an existing entry.
// Fatal if the state is not present or the weight is not positive.
func (t *DiscretePDF) Update(state *ExecutionState, weight float64) {
	assert(weight > 0, "discrete pdf: non-positive weight: state=%d weight=%v", state.id, weight)
	n := t.find(state)
	assert(n != nil, "discrete pdf: update of unknown state: state=%d", state.id)
	n.weight = weight
	for ; n != nil; n = n.parent {
		n.pull()
	}
}

// Choose returns the state whose cumulative weight interval, in ID order,
// contains p·TotalWeight. Requires p in [0,1) and a non-empty distribution.
func (t *DiscretePDF) Choose(p float64) *ExecutionState {
	assert(p >= 0 && p < 1, "discrete pdf: choose out of range: p=%v", p)
	assert(t.root != nil, "discrete pdf: choose on empty distribution")

	n := t.root
	w := p * n.sumWeights
	for {
		if left := n.left; left != nil {
			if w < left.sumWeights {
				n = left
				continue
			}
			w -= left.sumWeights
		}
		if w < n.weight || n.right == nil {
			return n.state
		}
		w -= n.weight
		n = n.right
	}
}

func (t *DiscretePDF) find(state *ExecutionState) *pdfNode {
	n := t.root
	for n != nil {
		switch cmp := compareStateID(state, n.state); {
		case cmp < 0:
			n = n.left
		case cmp > 0:
			n = n.right
		default:
			return n
		}
	}
	return nil
}

func (t *DiscretePDF) insert(n, node *pdfNode) *pdfNode {
	if n == nil {
		node.pull()
		return node
	}
	if compareStateID(node.state, n.state) < 0 {
		n.setLeft(t.insert(n.left, node))
		if n.left.priority > n.priority {
			n = n.rotateRight()
		}
	} else {
		n.setRight(t.insert(n.right, node))
		if n.right.priority > n.priority {
			n = n.rotateLeft()
		}
	}
	n.pull()
	return n
}

func (t *DiscretePDF) remove(n *pdfNode, state *ExecutionState) *pdfNode {
	switch cmp := compareStateID(state, n.state); {
	case cmp < 0:
		n.setLeft(t.remove(n.left, state))
	case cmp > 0:
		n.setRight(t.remove(n.right, state))
	default:
		if n.left == nil {
			if n.right != nil {
				n.right.parent = nil
			}
			return n.right
		} else if n.right == nil {
			n.left.parent = nil
			return n.left
		}
		// Rotate the higher-priority child up and recurse.
		if n.left.priority > n.right.priority {
			n = n.rotateRight()
			n.setRight(t.remove(n.right, state))
		} else {
			n = n.rotateLeft()
			n.setLeft(t.remove(n.left, state))
		}
	}
	n.pull()
	return n
}

// pdfNode is one treap node: a state entry plus its subtree weight sum.
type pdfNode struct {
	parent, left, right *pdfNode
	state               *ExecutionState
	priority            uint64
	weight              float64
	sumWeights          float64
}

// pull recomputes the subtree weight sum from the children.
func (n *pdfNode) pull() {
	n.sumWeights = n.weight
	if n.left != nil {
		n.sumWeights += n.left.sumWeights
	}
	if n.right != nil {
		n.sumWeights += n.right.sumWeights
	}
}

func (n *pdfNode) setLeft(child *pdfNode) {
	n.left = child
	if child != nil {
		child.parent = n
	}
}

func (n *pdfNode) setRight(child *pdfNode) {
	n.right = child
	if child != nil {
		child.parent = n
	}
}

func (n *pdfNode) rotateLeft() *pdfNode {
	r := n.right
	r.parent = n.parent
	n.setRight(r.left)
	r.setLeft(n)
	n.pull()
	r.pull()
	return r
}

func (n *pdfNode) rotateRight() *pdfNode {
	l := n.left
	l.parent = n.parent
	n.setLeft(l.right)
	l.setRight(n)
	n.pull()
	l.pull()
	return l
}

// hash64 mixes v into a 64-bit value (splitmix64 finalizer).
func hash64(v uint64) uint64 {
	v += 0x9e3779b97f4a7c15
	v = (v ^ (v >> 30)) * 0xbf58476d1ce4e5b9
	v = (v ^ (v >> 27)) * 0x94d049bb133111eb
	return v ^ (v >> 31)
}
