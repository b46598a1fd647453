package initializer

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"mscoal/internal/sptree"
)

// lineage is one surviving genealogy fragment during the coalescent walk up
// the species tree: a Newick subtree expression (without a trailing branch
// length, appended once its parent event is known) and the time at which it
// was created (0 for a sampled tip).
type lineage struct {
	newick string
	time   float64
}

// coalesceWithinBranch runs the multispecies-coalescent process for the
// lineages entering a species-tree branch that starts at tStart (the
// branch's own species node's tau) and ends at tEnd (the parent's tau, or
// +Inf for the species-tree root branch): spec.md §4.5's "coalescence times
// respect species-tree constraints (strict inequality: coalescence time >=
// species-node tau on the path)". theta is the branch's population-size
// parameter; a non-positive theta falls back to 1 to keep the waiting-time
// distribution well-defined for an initializer (proposal moves, out of
// scope here, are expected to update theta away from that default).
//
// Waiting times between coalescent events follow the standard
// multispecies-coalescent rate for k lineages, k*(k-1)/theta, the same
// parameterization bpp.h's theta documents. Lineages still uncoalesced when
// tEnd is reached are returned unchanged, keeping their creation time, so
// the branch length attached once they coalesce in an ancestral branch
// spans their whole path from creation.
func coalesceWithinBranch(lineages []lineage, tStart, tEnd, theta float64, rng *rand.Rand) []lineage {
	if theta <= 0 {
		theta = 1
	}
	cur := append([]lineage(nil), lineages...)
	t := tStart
	for len(cur) > 1 {
		k := len(cur)
		rate := float64(k*(k-1)) / theta
		wait := rng.ExpFloat64() / rate
		next := t + wait
		if next >= tEnd {
			break
		}
		t = next

		i := rng.Intn(k)
		j := rng.Intn(k - 1)
		if j >= i {
			j++
		}
		a, b := cur[i], cur[j]
		merged := lineage{
			newick: fmt.Sprintf("(%s:%s,%s:%s)", a.newick, formatBranch(t-a.time), b.newick, formatBranch(t-b.time)),
			time:   t,
		}

		kept := make([]lineage, 0, k-1)
		for idx, l := range cur {
			if idx != i && idx != j {
				kept = append(kept, l)
			}
		}
		cur = append(kept, merged)
	}

	return cur // on the root branch the loop only exits via len(cur)==1
}

func formatBranch(length float64) string {
	if length < 0 {
		length = 0 // guards against floating-point underflow at a branch's own start
	}
	return strconv.FormatFloat(length, 'g', -1, 64)
}

// buildLineages recursively simulates the coalescent process from the tips
// of the species tree up through node v, returning the lineages that
// survive to exit v's own branch (i.e. that enter v.Parent's branch, or, if
// v is the root, the fully-coalesced single root lineage).
func buildLineages(v *sptree.Node, samples map[string][]string, rng *rand.Rand) []lineage {
	var entering []lineage
	if v.Tip() {
		for _, label := range samples[v.Label] {
			entering = append(entering, lineage{newick: label, time: v.Tau})
		}
	} else {
		entering = append(buildLineages(v.Left, samples, rng), buildLineages(v.Right, samples, rng)...)
	}

	tEnd := math.Inf(1)
	if v.Parent != nil {
		tEnd = v.Parent.Tau
	}
	if len(entering) == 0 {
		return entering
	}
	return coalesceWithinBranch(entering, v.Tau, tEnd, v.Theta, rng)
}
