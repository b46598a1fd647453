package locus

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mscoal/internal/gtree"
)

// UpdateBranches refreshes every branch's transition-probability matrix for
// gene tree tr against partition p, rate matrix paramIdx, using the JC69
// closed form when jc69 is set (4-state only). Per spec.md §5, this must
// run before UpdateCLVs, which consumes the refreshed matrices.
func UpdateBranches(tr *gtree.Tree, p *Partition, paramIdx int, jc69 bool) {
	for _, n := range tr.Nodes() {
		if n.Parent == nil {
			continue // root has no incident branch
		}
		p.UpdatePMatrix(n.PMatrixIndex, paramIdx, n.Length, jc69)
	}
}

// UpdateCLVs recomputes every inner node's CLV in post-order, the
// deterministic schedule spec.md §4.2 describes: a node is visited only
// after both its children, so its children's CLVs already reflect the
// current branch lengths and rate-matrix parameters by the time it runs.
func UpdateCLVs(tr *gtree.Tree, p *Partition) {
	var order []*gtree.Node
	tr.TraversePostOrder(nil, &order)
	for _, n := range order {
		p.UpdateCLV(n)
	}
}

// LocusUpdate bundles one locus's gene tree and partition, the unit of work
// UpdateAll distributes across goroutines.
type LocusUpdate struct {
	Tree     *gtree.Tree
	Part     *Partition
	ParamIdx int
	JC69     bool
}

// UpdateAll refreshes branch matrices and CLVs for every locus concurrently,
// one goroutine per locus capped at nprocs, matching
// internal/score.CalcuateEdgePenalties and internal/prep.Preprocess's own
// per-locus/per-gene-tree errgroup convention: the computational core is
// single-threaded per chain, but independent loci do not share state and
// parallelize trivially, per spec.md §5.
func UpdateAll(ctx context.Context, loci []LocusUpdate, nprocs int) error {
	g, ctx := errgroup.WithContext(ctx)
	if nprocs > 0 {
		g.SetLimit(nprocs)
	}
	for i := range loci {
		lu := loci[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			UpdateBranches(lu.Tree, lu.Part, lu.ParamIdx, lu.JC69)
			UpdateCLVs(lu.Tree, lu.Part)
			return nil
		})
	}
	return g.Wait()
}
