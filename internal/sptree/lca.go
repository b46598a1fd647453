package sptree

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

var (
	// ErrEmptyLabelSet is returned when LCA is called with no labels.
	ErrEmptyLabelSet = errors.New("lca: empty label set")
	// ErrLabelNotFound is returned when a requested label has no matching tip.
	ErrLabelNotFound = errors.New("lca: label not found")
)

// LCA returns the lowest common ancestor of the tips named by labels, using
// the mark-propagate-then-descend algorithm: marks are set on the named tips
// then pushed rootward one parent at a time, and the answer is found by
// walking down from the root through the single marked child until a node
// with both children marked is reached. marks is caller-supplied scratch,
// indexed by Node.Index, sized at least len(t.nodes); callers reuse it across
// calls to avoid reallocating on every query, and LCA clears the bits it set
// before returning.
func (t *Tree) LCA(labels []string, marks *bitset.BitSet) (*Node, error) {
	if len(labels) == 0 {
		return nil, ErrEmptyLabelSet
	}

	var tips []*Node
	for _, label := range labels {
		n, ok := t.TipByLabel(label)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrLabelNotFound, label)
		}
		tips = append(tips, n)
	}

	if len(tips) == 1 {
		return tips[0], nil
	}

	set := make([]int, 0, len(tips))
	for _, tip := range tips {
		if !marks.Test(uint(tip.Index)) {
			marks.Set(uint(tip.Index))
			set = append(set, tip.Index)
		}
	}
	defer func() {
		for _, i := range set {
			marks.Clear(uint(i))
		}
	}()

	// Propagate marks rootward: a node is marked once any child of it is
	// marked. Processing the flat array in index order visits every node
	// after its children (tips first, inner nodes in post-order), so a
	// single forward pass suffices.
	for _, n := range t.nodes {
		if n.Parent == nil {
			continue
		}
		if marks.Test(uint(n.Index)) && !marks.Test(uint(n.Parent.Index)) {
			marks.Set(uint(n.Parent.Index))
			set = append(set, n.Parent.Index)
		}
	}

	cur := t.Root()
	for {
		leftMarked := cur.Left != nil && marks.Test(uint(cur.Left.Index))
		rightMarked := cur.Right != nil && marks.Test(uint(cur.Right.Index))
		if leftMarked && rightMarked {
			return cur, nil
		}
		if leftMarked {
			cur = cur.Left
		} else if rightMarked {
			cur = cur.Right
		} else {
			// Only possible if cur itself is one of the queried tips and was
			// the sole marked node reachable on this path.
			return cur, nil
		}
	}
}
