package constraint

import (
	"fmt"

	"github.com/evolbioinfo/gotree/tree"
)

// childrenOf returns n's non-parent neighbors. Unlike internal/sptree and
// internal/gtree, n-ary constraint-expression nodes may have any number of
// children; this is the one routine in the package that has to know it.
func childrenOf(n *tree.Node) []*tree.Node {
	parent, err := n.Parent()
	if err != nil {
		parent = nil
	}
	children := make([]*tree.Node, 0, n.Nneigh())
	for _, u := range n.Neigh() {
		if u != parent {
			children = append(children, u)
		}
	}
	return children
}

// leafSet collects the tip labels under n into dst.
func leafSet(n *tree.Node, dst map[string]bool) {
	children := childrenOf(n)
	if len(children) == 0 {
		dst[n.Name()] = true
		return
	}
	for _, c := range children {
		leafSet(c, dst)
	}
}

// Leaves returns the tip labels under n, in no particular order.
func Leaves(n *tree.Node) []string {
	set := make(map[string]bool)
	leafSet(n, set)
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	return out
}

// leafCounts computes, for every node in the subtree rooted at root, the
// number of target labels found beneath it.
func leafCounts(root *tree.Node, targets map[string]bool, out map[*tree.Node]int) int {
	children := childrenOf(root)
	if len(children) == 0 {
		n := 0
		if targets[root.Name()] {
			n = 1
		}
		out[root] = n
		return n
	}
	total := 0
	for _, c := range children {
		total += leafCounts(c, targets, out)
	}
	out[root] = total
	return total
}

// LCA returns the lowest common ancestor, within the tree rooted at root, of
// the tips named by labels. Unlike internal/sptree.Tree.LCA this works
// directly on raw, arbitrary-arity gotree nodes: constraint expressions are
// parsed with no binary-tree guarantee, per the n-ary tree model constraint
// syntax uses.
func LCA(root *tree.Node, labels []string) (*tree.Node, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w", ErrEmptyLabelSet)
	}
	targets := make(map[string]bool, len(labels))
	for _, l := range labels {
		targets[l] = true
	}
	counts := make(map[*tree.Node]int)
	total := leafCounts(root, targets, counts)
	if total != len(targets) {
		return nil, fmt.Errorf("%w: not all of %v found under given root", ErrLabelNotFound, labels)
	}

	cur := root
	for {
		children := childrenOf(cur)
		var full *tree.Node
		for _, c := range children {
			if counts[c] == total {
				full = c
				break
			}
		}
		if full == nil {
			return cur, nil
		}
		cur = full
	}
}

// IsFullSubtree reports whether sub is a full subtree of super: every inner
// node of sub, mapped by its leaf set to its LCA in super, has exactly the
// same leaf count in super as in sub. This is used to prune redundant
// constraint trees against each other; validation of a constraint tree
// against the species tree is done separately, through the species tree's
// own LCA, in applyConstraintTree.
func IsFullSubtree(sub, super *tree.Node) (bool, error) {
	var walk func(n *tree.Node) (bool, error)
	walk = func(n *tree.Node) (bool, error) {
		children := childrenOf(n)
		if len(children) == 0 {
			return true, nil
		}
		for _, c := range children {
			ok, err := walk(c)
			if err != nil || !ok {
				return ok, err
			}
		}
		labels := Leaves(n)
		lca, err := LCA(super, labels)
		if err != nil {
			return false, nil //nolint:nilerr // label absent in super just means "not a subtree"
		}
		if len(Leaves(lca)) != len(labels) {
			return false, nil
		}
		return true, nil
	}
	return walk(sub)
}
