// Package sptree implements the rooted binary species-tree data model:
// per-branch population-size (theta) and divergence-time (tau) parameters,
// a flat tips|inner node index, traversal with a caller-supplied buffer, and
// the label-set LCA routine the constraint engine is built on.
//
// A Tree wraps a *tree.Tree from github.com/evolbioinfo/gotree the way
// camus/internal/graphs.TreeData wraps one: the gotree value owns topology
// and Newick I/O, parallel slices (here, fields on Node indexed by stable
// position) carry the domain-specific annotations gotree has no concept of.
package sptree

import "github.com/evolbioinfo/gotree/tree"

// OutgroupFlag classifies a node's relationship to a designated outgroup,
// per spec.md's Full/Partial/None taxonomy.
type OutgroupFlag uint8

const (
	OutgroupNone OutgroupFlag = iota
	OutgroupFull
	OutgroupPartial
)

func (f OutgroupFlag) String() string {
	switch f {
	case OutgroupFull:
		return "full"
	case OutgroupPartial:
		return "partial"
	default:
		return "none"
	}
}

// Kind distinguishes tips, ordinary binary-inner nodes, and (optional)
// hybridization nodes from the msci extension.
type Kind uint8

const (
	KindTip Kind = iota
	KindInner
	KindHybrid
)

// Node is a species-tree node: a gotree node plus the branch parameters and
// constraint bookkeeping the multispecies coalescent model needs.
type Node struct {
	Raw    *tree.Node
	Label  string
	Length float64 // branch length leading to this node, 0 at the root
	Theta  float64 // population-size parameter, theta >= 0
	Tau    float64 // divergence-time parameter, tau >= 0

	Left, Right *Node
	Parent      *Node
	// HybridParent2 is set only for Kind == KindHybrid, the second parent
	// of an introgression/hybridization node. nil for all other nodes.
	HybridParent2 *Node

	Leaves int // number of descendant tips
	Index  int // position in Tree.nodes; stable identity for this Tree value
	Kind   Kind

	ConstraintID     int // 0 = unconstrained
	ConstraintLineno int // provenance: constraints-file line number
	Outgroup         OutgroupFlag
}

// Tip reports whether n is a leaf.
func (n *Node) Tip() bool { return n.Kind == KindTip }

// Hybrid reports whether n has two parents (msci extension).
func (n *Node) Hybrid() bool { return n.Kind == KindHybrid }
