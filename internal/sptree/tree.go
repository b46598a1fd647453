package sptree

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/evolbioinfo/gotree/tree"

	"mscoal/internal/hashidx"
)

var (
	// ErrUnrooted is returned when New is given an unrooted tree; species
	// trees with tau/theta parameters require a fixed root.
	ErrUnrooted = errors.New("species tree must be rooted")
	// ErrNonBinary is returned when a non-tip node has a child count other
	// than two (hybrid nodes are the sole, explicitly-tagged exception).
	ErrNonBinary = errors.New("species tree node is not binary")
	// ErrDuplicateLabel is returned when two tips share a label.
	ErrDuplicateLabel = errors.New("duplicate tip label in species tree")
)

// Tree owns the flat, order-stable node array partitioned [tips | inner],
// paralleling stree_t from the original model. Hybrid nodes, when present,
// are appended after inner nodes.
type Tree struct {
	Raw *tree.Tree

	nodes      []*Node
	tipCount   int
	innerCount int
	hybridCount int

	byRawID  []*Node
	tipIndex *hashidx.Index[*Node]
}

// New builds a Tree from a parsed, rooted, binary gotree tree. Tip labels
// must be unique.
func New(raw *tree.Tree) (*Tree, error) {
	if !raw.Rooted() {
		return nil, ErrUnrooted
	}

	var tips, inner []*tree.Node
	lengths := make(map[*tree.Node]float64)
	raw.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) bool {
		if e != nil && e.Length() > 0 {
			lengths[cur] = e.Length()
		}
		if cur.Tip() {
			tips = append(tips, cur)
		} else {
			inner = append(inner, cur)
		}
		return true
	})

	maxID := 0
	for _, n := range raw.Nodes() {
		if n.Id() > maxID {
			maxID = n.Id()
		}
	}

	nodes := make([]*Node, 0, len(tips)+len(inner))
	byRawID := make([]*Node, maxID+1)

	appendNodes := func(raws []*tree.Node, kind Kind) {
		for _, r := range raws {
			nd := &Node{Raw: r, Label: r.Name(), Length: lengths[r], Kind: kind, Index: len(nodes)}
			nodes = append(nodes, nd)
			byRawID[r.Id()] = nd
		}
	}
	appendNodes(tips, KindTip)
	appendNodes(inner, KindInner)

	t := &Tree{
		Raw:        raw,
		nodes:      nodes,
		tipCount:   len(tips),
		innerCount: len(inner),
		byRawID:    byRawID,
	}

	for _, nd := range nodes {
		children := childrenOf(nd.Raw)
		switch len(children) {
		case 0:
			// tip, nothing to wire
		case 2:
			nd.Left = byRawID[children[0].Id()]
			nd.Right = byRawID[children[1].Id()]
			nd.Left.Parent = nd
			nd.Right.Parent = nd
		default:
			return nil, fmt.Errorf("%w: %s has %d children", ErrNonBinary, nd.Label, len(children))
		}
	}

	for _, nd := range nodes {
		if nd.Tip() {
			nd.Leaves = 1
		} else {
			nd.Leaves = nd.Left.Leaves + nd.Right.Leaves
		}
	}

	idx := hashidx.New[*Node](maxInt(t.tipCount, 1), hashidx.FNV1a, hashidx.ByteEqual)
	for _, nd := range nodes[:t.tipCount] {
		if err := idx.Insert(nd.Label, nd); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLabel, nd.Label)
		}
	}
	t.tipIndex = idx

	return t, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// childrenOf returns the non-parent neighbors of a gotree node, the same
// technique camus/internal/graphs.GetChildren uses.
func childrenOf(n *tree.Node) []*tree.Node {
	parent, err := n.Parent()
	if err != nil {
		parent = nil // root: "has no parent" error, all neighbors are children
	}
	children := make([]*tree.Node, 0, n.Nneigh())
	for _, u := range n.Neigh() {
		if u != parent {
			children = append(children, u)
		}
	}
	return children
}

// Root returns the species-tree root: by construction, the last inner node.
func (t *Tree) Root() *Node { return t.nodes[t.tipCount+t.innerCount-1] }

// Nodes returns the full flat node array, [tips | inner].
func (t *Tree) Nodes() []*Node { return t.nodes }

// TipCount returns the number of tips (leaves).
func (t *Tree) TipCount() int { return t.tipCount }

// InnerCount returns the number of non-tip nodes.
func (t *Tree) InnerCount() int { return t.innerCount }

// Node returns the node at flat index i.
func (t *Tree) Node(i int) *Node { return t.nodes[i] }

// TipByLabel looks up a tip by its label.
func (t *Tree) TipByLabel(label string) (*Node, bool) { return t.tipIndex.Find(label) }

// TraversePostOrder visits nodes bottom-up, appending each node for which
// visit returns true (or all nodes if visit is nil) to out. This is the
// deterministic update schedule the substitution kernel relies on: a node's
// children are always appended before the node itself.
func (t *Tree) TraversePostOrder(visit func(*Node) bool, out *[]*Node) {
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Left != nil {
			walk(n.Left)
		}
		if n.Right != nil {
			walk(n.Right)
		}
		if visit == nil || visit(n) {
			*out = append(*out, n)
		}
	}
	walk(t.Root())
}

// TraversePreOrder visits nodes top-down, appending each node for which
// visit returns true (or all nodes if visit is nil) to out.
func (t *Tree) TraversePreOrder(visit func(*Node) bool, out *[]*Node) {
	var walk func(n *Node)
	walk = func(n *Node) {
		if visit == nil || visit(n) {
			*out = append(*out, n)
		}
		if n.Left != nil {
			walk(n.Left)
		}
		if n.Right != nil {
			walk(n.Right)
		}
	}
	walk(t.Root())
}

// DefaultSerializer formats a node as label:length, theta/tau carried as a
// bpp-style bracket comment on inner nodes (tips never carry theta/tau in
// this model).
func DefaultSerializer(n *Node) string {
	s := n.Label
	if !n.Tip() {
		s += fmt.Sprintf("[&theta=%s,tau=%s]",
			strconv.FormatFloat(n.Theta, 'g', -1, 64),
			strconv.FormatFloat(n.Tau, 'g', -1, 64))
	}
	if n.Parent != nil {
		s += ":" + strconv.FormatFloat(n.Length, 'g', -1, 64)
	}
	return s
}

// ExportNewick serializes the tree using a per-node serializer callback, per
// spec.md's "Export Newick with a per-node serializer callback."
func (t *Tree) ExportNewick(serialize func(*Node) string) string {
	if serialize == nil {
		serialize = DefaultSerializer
	}
	var build func(n *Node) string
	build = func(n *Node) string {
		if n.Tip() {
			return serialize(n)
		}
		return "(" + build(n.Left) + "," + build(n.Right) + ")" + serialize(n)
	}
	return build(t.Root()) + ";"
}
