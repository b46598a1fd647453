// Package gtree implements the per-locus gene-tree data model: a rooted
// binary genealogy whose tips are sampled sequences and whose internal nodes
// are coalescent events, each carrying the partial-likelihood (CLV),
// scaler, and transition-probability-matrix (pmatrix) buffer indices the
// substitution kernel addresses into.
//
// Structurally this mirrors internal/sptree closely: a *tree.Tree from
// github.com/evolbioinfo/gotree owns topology, a flat Node array carries the
// domain fields gotree has no concept of. The duplication against sptree is
// deliberate rather than factored into a shared generic: a gene tree's nodes
// carry buffer indices a species tree never needs, and a species tree's
// nodes carry theta/tau a gene tree never needs.
package gtree

import "github.com/evolbioinfo/gotree/tree"

// Node is a gene-tree node: a coalescent event (inner) or a sampled sequence
// (tip), addressed into the locus partition's CLV/pmatrix/scaler buffers by
// index.
type Node struct {
	Raw    *tree.Node
	Label  string // sequence label for tips, empty for inner nodes
	Length float64

	Left, Right *Node
	Parent      *Node

	// Time is the coalescent time (in substitution-rate units) of this
	// node; 0 for tips by convention.
	Time float64

	// Species is the species-tree tip this gene-tree tip was sampled from;
	// nil for inner nodes. Set during initialization from the individual to
	// species mapping.
	Species string

	Leaves int
	Index  int

	ClvIndex     int
	ScalerIndex  int // -1 means "no scaling buffer assigned"
	PMatrixIndex int
}

// Tip reports whether n is a sampled sequence rather than a coalescent
// event.
func (n *Node) Tip() bool { return n.Left == nil && n.Right == nil }
