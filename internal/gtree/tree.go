package gtree

import (
	"errors"
	"fmt"

	"github.com/evolbioinfo/gotree/tree"

	"mscoal/internal/hashidx"
)

var (
	// ErrUnrooted is returned when New is given an unrooted gene tree.
	ErrUnrooted = errors.New("gene tree must be rooted")
	// ErrNonBinary is returned when an inner node has a child count other
	// than two.
	ErrNonBinary = errors.New("gene tree node is not binary")
	// ErrDuplicateLabel is returned when two tips share a sequence label.
	ErrDuplicateLabel = errors.New("duplicate tip label in gene tree")
)

// Tree owns a gene tree's flat node array, partitioned [tips | inner], plus
// the buffer-index bookkeeping the locus partition reads.
type Tree struct {
	Raw *tree.Tree

	nodes      []*Node
	tipCount   int
	innerCount int

	tipIndex *hashidx.Index[*Node]
}

// New builds a Tree from a parsed, rooted, binary gotree tree and assigns
// CLV/pmatrix/scaler buffer indices in the standard locus-partition layout:
// tips first (indices 0..tipCount-1), then inner nodes
// (tipCount..tipCount+innerCount-1). Tips get no scaler buffer (ScalerIndex
// -1); their characters are read directly rather than computed.
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
	byRawID := make([]*Node, maxID+1)
	nodes := make([]*Node, 0, len(tips)+len(inner))

	for _, r := range tips {
		nd := &Node{Raw: r, Label: r.Name(), Length: lengths[r], Index: len(nodes), ClvIndex: len(nodes), ScalerIndex: -1, PMatrixIndex: len(nodes)}
		nodes = append(nodes, nd)
		byRawID[r.Id()] = nd
	}
	for _, r := range inner {
		nd := &Node{Raw: r, Length: lengths[r], Index: len(nodes), ClvIndex: len(nodes), ScalerIndex: len(nodes) - len(tips), PMatrixIndex: len(nodes)}
		nodes = append(nodes, nd)
		byRawID[r.Id()] = nd
	}

	t := &Tree{Raw: raw, nodes: nodes, tipCount: len(tips), innerCount: len(inner)}

	for _, nd := range nodes {
		children := childrenOf(nd.Raw)
		switch len(children) {
		case 0:
		case 2:
			nd.Left = byRawID[children[0].Id()]
			nd.Right = byRawID[children[1].Id()]
			nd.Left.Parent = nd
			nd.Right.Parent = nd
		default:
			return nil, fmt.Errorf("%w: node %d has %d children", ErrNonBinary, nd.Raw.Id(), len(children))
		}
	}

	for _, nd := range nodes {
		if nd.Tip() {
			nd.Leaves = 1
		} else {
			nd.Leaves = nd.Left.Leaves + nd.Right.Leaves
			nd.Time = nd.Left.Time + nd.Left.Length
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

// Root returns the gene-tree root: by construction, the last inner node.
func (t *Tree) Root() *Node { return t.nodes[t.tipCount+t.innerCount-1] }

// Nodes returns the full flat node array, [tips | inner].
func (t *Tree) Nodes() []*Node { return t.nodes }

// TipCount returns the number of sampled sequences.
func (t *Tree) TipCount() int { return t.tipCount }

// InnerCount returns the number of coalescent events.
func (t *Tree) InnerCount() int { return t.innerCount }

// Node returns the node at flat index i.
func (t *Tree) Node(i int) *Node { return t.nodes[i] }

// TipByLabel looks up a tip by its sequence label.
func (t *Tree) TipByLabel(label string) (*Node, bool) { return t.tipIndex.Find(label) }

// TraversePostOrder visits nodes bottom-up, appending each visited node to
// out. The substitution kernel relies on this ordering: a node's CLV is
// always computed after both of its children's.
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
