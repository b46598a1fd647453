package constraint

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"mscoal/internal/sptree"
)

// applyOutgroup marks the species tree's outgroup clade, classifies every
// marked node full or partial depending on whether it lies on the ancestor
// path down to the split, and assigns a shared fresh constraint id to every
// still-unconstrained outgroup node plus (if unconstrained) the ingroup
// root; outgroup nodes that already carry an id keep it. This lets the
// ingroup root still be regrafted within the outgroup-classed region
// while the outgroup boundary itself stays fixed.
func (e *Engine) applyOutgroup(rec Record) error {
	nodes := e.Species.Nodes()
	tipCount := e.Species.TipCount()

	if len(rec.Labels) >= tipCount {
		return fmt.Errorf("%w: line %d", ErrOutgroupTooLarge, rec.Lineno)
	}

	marked := bitset.New(uint(len(nodes)))
	for _, label := range rec.Labels {
		tip, ok := e.Species.TipByLabel(label)
		if !ok {
			return fmt.Errorf("%w: line %d: %q", ErrLabelNotFound, rec.Lineno, label)
		}
		for n := tip; n != nil && !marked.Test(uint(n.Index)); n = n.Parent {
			marked.Set(uint(n.Index))
		}
	}

	fullyUnmarked := make([]bool, len(nodes))
	for _, n := range nodes { // nodes is tips-then-inner, so children always precede parents
		if n.Tip() {
			fullyUnmarked[n.Index] = !marked.Test(uint(n.Index))
			continue
		}
		fullyUnmarked[n.Index] = !marked.Test(uint(n.Index)) &&
			fullyUnmarked[n.Left.Index] && fullyUnmarked[n.Right.Index]
	}

	var splits []*sptree.Node
	for _, n := range nodes {
		if n.Parent == nil {
			continue
		}
		if fullyUnmarked[n.Index] && marked.Test(uint(n.Parent.Index)) {
			splits = append(splits, n)
		}
	}
	if len(splits) != 1 {
		return fmt.Errorf("%w: line %d", ErrOutgroupInvalid, rec.Lineno)
	}
	ingroupRoot := splits[0]

	ancestorPath := make(map[*sptree.Node]bool)
	for n := ingroupRoot.Parent; n != nil; n = n.Parent {
		ancestorPath[n] = true
	}

	for _, n := range nodes {
		if !marked.Test(uint(n.Index)) {
			n.Outgroup = sptree.OutgroupNone
			continue
		}
		if ancestorPath[n] {
			n.Outgroup = sptree.OutgroupPartial
		} else {
			n.Outgroup = sptree.OutgroupFull
		}
	}

	var id int
	assigned := false
	ensureID := func() int {
		if !assigned {
			id = e.nextID
			e.nextID++
			assigned = true
		}
		return id
	}

	for _, n := range nodes {
		if n.Outgroup != sptree.OutgroupNone && n.ConstraintID == 0 {
			n.ConstraintID = ensureID()
			n.ConstraintLineno = rec.Lineno
		}
	}
	if ingroupRoot.ConstraintID == 0 && assigned {
		ingroupRoot.ConstraintID = id
		ingroupRoot.ConstraintLineno = rec.Lineno
	} else if ingroupRoot.ConstraintID == 0 {
		ingroupRoot.ConstraintID = ensureID()
		ingroupRoot.ConstraintLineno = rec.Lineno
	}

	return e.checkOutgroupConsistency(ingroupRoot)
}

// checkOutgroupConsistency rejects the case where an ingroup node (outside
// the outgroup-classed ingroup root itself) shares a constraint id with an
// outgroup node, which would let a proposal move regraft across the
// boundary the outgroup split is meant to fix.
func (e *Engine) checkOutgroupConsistency(ingroupRoot *sptree.Node) error {
	outgroupIDs := make(map[int]bool)
	for _, n := range e.Species.Nodes() {
		if n.Outgroup != sptree.OutgroupNone && n.ConstraintID != 0 {
			outgroupIDs[n.ConstraintID] = true
		}
	}
	var walk func(n *sptree.Node) error
	walk = func(n *sptree.Node) error {
		if n != ingroupRoot && n.ConstraintID != 0 && outgroupIDs[n.ConstraintID] {
			return fmt.Errorf("%w: ingroup node %q shares constraint id with outgroup", ErrOutgroupConflict, n.Label)
		}
		if !n.Tip() {
			if err := walk(n.Left); err != nil {
				return err
			}
			if err := walk(n.Right); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(ingroupRoot)
}
