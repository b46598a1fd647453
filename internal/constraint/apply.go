package constraint

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/evolbioinfo/gotree/io/newick"
	gotree "github.com/evolbioinfo/gotree/tree"

	"mscoal/internal/sptree"
)

// Engine owns the running state of constraint application against one
// species tree: the fresh-id counter and the mark scratch shared by every
// LCA query it issues.
type Engine struct {
	Species *sptree.Tree

	marks  *bitset.BitSet
	nextID int
}

// NewEngine creates a constraint engine bound to a species tree.
func NewEngine(species *sptree.Tree) *Engine {
	return &Engine{
		Species: species,
		marks:   bitset.New(uint(len(species.Nodes()))),
		nextID:  1,
	}
}

// Apply runs the full constraint pipeline against r: parse, validate,
// expand aliases, prune redundant constraints, apply constraints, then
// apply the outgroup (processed last regardless of file position).
func (e *Engine) Apply(r io.Reader) error {
	records, err := Parse(r)
	if err != nil {
		return err
	}

	if err := e.validateAliases(records); err != nil {
		return err
	}

	constraints, outgroup, err := ExpandAliases(records)
	if err != nil {
		return err
	}

	trees, err := e.parseConstraintTrees(constraints)
	if err != nil {
		return err
	}

	trees = e.pruneRedundant(trees)

	for _, ct := range trees {
		if err := e.applyConstraintTree(ct); err != nil {
			return err
		}
	}

	if outgroup != nil {
		if err := e.applyOutgroup(*outgroup); err != nil {
			return err
		}
	}

	return nil
}

// validateAliases checks that no define record's alias collides with a
// species-tree tip label.
func (e *Engine) validateAliases(records []Record) error {
	for _, rec := range records {
		if rec.Kind != KindDefine {
			continue
		}
		if _, ok := e.Species.TipByLabel(rec.Alias); ok {
			return fmt.Errorf("%w: line %d: %q", ErrAliasCollision, rec.Lineno, rec.Alias)
		}
	}
	return nil
}

type constraintTree struct {
	root   *gotree.Node
	lineno int
}

func (e *Engine) parseConstraintTrees(records []Record) ([]constraintTree, error) {
	trees := make([]constraintTree, 0, len(records))
	for _, rec := range records {
		nwk := rec.Newick
		if !strings.HasSuffix(strings.TrimSpace(nwk), ";") {
			nwk += ";"
		}
		raw, err := newick.NewParser(strings.NewReader(nwk)).Parse()
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s", ErrSyntax, rec.Lineno, err)
		}
		root := raw.Root()
		if len(Leaves(root)) < 2 {
			return nil, fmt.Errorf("%w: line %d", ErrTooFewSpecies, rec.Lineno)
		}
		trees = append(trees, constraintTree{root: root, lineno: rec.Lineno})
	}
	return trees, nil
}

// pruneRedundant removes constraint trees that are full subtrees of another
// constraint tree earlier or later in the list, per the redundancy-pruning
// step: a smaller constraint implied by a larger one carries no extra
// information.
func (e *Engine) pruneRedundant(trees []constraintTree) []constraintTree {
	removed := make([]bool, len(trees))
	for i := range trees {
		if removed[i] {
			continue
		}
		for j := range trees {
			if i == j || removed[j] {
				continue
			}
			ok, err := IsFullSubtree(trees[j].root, trees[i].root)
			if err != nil || !ok {
				continue
			}
			removed[j] = true
			log.Printf("constraint: redundant constraint at line %d removed, implied by constraint at line %d",
				trees[j].lineno, trees[i].lineno)
		}
	}
	kept := make([]constraintTree, 0, len(trees))
	for i, ct := range trees {
		if !removed[i] {
			kept = append(kept, ct)
		}
	}
	return kept
}

// applyConstraintTree first checks, once, that ct's full leaf set forms an
// exact clade of the species tree (constraint.c's is_subtree, run before any
// recursive processing), then walks ct in post-order. At every inner node it
// looks up the species-tree LCA of that node's leaf set and requires the
// LCA's own two immediate children to already agree on constraint id before
// minting a fresh id and stamping it onto each of those two children
// separately — mirroring constraint_process_recursive, which marks
// lca->left and lca->right, never lca itself.
func (e *Engine) applyConstraintTree(ct constraintTree) error {
	allLabels := Leaves(ct.root)
	top, err := e.Species.LCA(allLabels, e.marks)
	if err != nil {
		return fmt.Errorf("%w: line %d: %s", ErrNotSubtree, ct.lineno, err)
	}
	if top.Leaves != len(allLabels) {
		return fmt.Errorf("%w: line %d", ErrNotSubtree, ct.lineno)
	}

	var walk func(n *gotree.Node) error
	walk = func(n *gotree.Node) error {
		children := childrenOf(n)
		if len(children) == 0 {
			return nil
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}

		labels := Leaves(n)
		lca, err := e.Species.LCA(labels, e.marks)
		if err != nil {
			return fmt.Errorf("%w: line %d: %s", ErrNotSubtree, ct.lineno, err)
		}

		if lca.Left != nil && lca.Right != nil && lca.Left.ConstraintID != lca.Right.ConstraintID {
			return fmt.Errorf("%w: line %d: species-tree clades disagree on constraint id", ErrConflicting, ct.lineno)
		}

		id := e.nextID
		e.nextID++
		if lca.Left != nil {
			markConstraint(lca.Left, id, ct.lineno)
		}
		if lca.Right != nil {
			markConstraint(lca.Right, id, ct.lineno)
		}
		return nil
	}
	return walk(ct.root)
}

// markConstraint stamps id on n if it is not already constrained, then
// recurses into n's children only in that case. A node that already carries
// a constraint id was reached and fully stamped by some earlier, more
// specific constraint, so its subtree is left alone.
func markConstraint(n *sptree.Node, id, lineno int) {
	if n.ConstraintID != 0 {
		return
	}
	n.ConstraintID = id
	n.ConstraintLineno = lineno
	if !n.Tip() {
		markConstraint(n.Left, id, lineno)
		markConstraint(n.Right, id, lineno)
	}
}
