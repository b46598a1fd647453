package initializer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	"golang.org/x/sync/errgroup"

	"mscoal/internal/gtree"
	"mscoal/internal/sptree"
)

var (
	// ErrUnmappedIndividual is returned when a locus sequence's label has no
	// entry in the individual-species mapping.
	ErrUnmappedIndividual = errors.New("initializer: individual has no species mapping")
	// ErrUnknownSpecies is returned when a mapped species label is absent
	// from the species tree.
	ErrUnknownSpecies = errors.New("initializer: mapped species not found in species tree")
	// ErrEmptyLocus is returned when a locus has no sequences at all.
	ErrEmptyLocus = errors.New("initializer: locus has no sequences")
	// ErrIncompleteCoalescence is returned when the simulated genealogy
	// failed to reduce to a single lineage at the species-tree root, which
	// should not happen given an unbounded root branch; surfaced rather
	// than silently accepted, per spec.md §7's fatal-on-invariant-violation
	// posture.
	ErrIncompleteCoalescence = errors.New("initializer: gene tree did not coalesce to a single root lineage")
)

// Sequence is one aligned sequence at a locus, the {label, sequence} half
// of spec.md §6's external MSA shape; site content itself is not needed by
// the initializer (only which individual was sampled), but is carried here
// so callers can hand the same value to both locus.Partition construction
// and gene-tree initialization.
type Sequence struct {
	Label string
	Sites []byte
}

// Locus is one parsed multilocus alignment.
type Locus struct {
	Sequences []Sequence
}

// InitGeneTree builds a single coalescent-consistent starting gene tree for
// one locus: each sampled sequence is placed as a tip in its mapped
// species, lineages coalesce up the species tree post-order, and
// coalescence times are bounded below by the species-node tau on their
// path, per spec.md §4.5. Node indices into the locus partition's
// CLV/pmatrix arrays are assigned by gtree.New, densely and contiguously,
// per spec.md §4.5's closing requirement.
func InitGeneTree(species *sptree.Tree, mapping *Mapping, locus Locus, rng *rand.Rand) (*gtree.Tree, error) {
	if len(locus.Sequences) == 0 {
		return nil, ErrEmptyLocus
	}

	samples := make(map[string][]string)
	for _, seq := range locus.Sequences {
		sp, ok := mapping.Species(seq.Label)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnmappedIndividual, seq.Label)
		}
		if _, ok := species.TipByLabel(sp); !ok {
			return nil, fmt.Errorf("%w: %q (individual %q)", ErrUnknownSpecies, sp, seq.Label)
		}
		samples[sp] = append(samples[sp], seq.Label)
	}

	root := buildLineages(species.Root(), samples, rng)
	if len(root) != 1 {
		return nil, fmt.Errorf("%w: %d lineages remain", ErrIncompleteCoalescence, len(root))
	}

	nwk := root[0].newick + ";"
	raw, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		return nil, fmt.Errorf("initializer: parsing simulated gene tree: %w", err)
	}
	gtr, err := gtree.New(raw)
	if err != nil {
		return nil, fmt.Errorf("initializer: building gene tree: %w", err)
	}
	for _, n := range gtr.Nodes()[:gtr.TipCount()] {
		n.Species, _ = mapping.Species(n.Label)
	}
	return gtr, nil
}

// LocusInput bundles one locus's parsed alignment with the seeded RNG its
// initialization should use; InitAll distributes these across goroutines.
type LocusInput struct {
	Locus Locus
	Rng   *rand.Rand
}

// InitAll initializes every locus's starting gene tree concurrently, one
// goroutine per locus capped at nprocs, mirroring
// internal/prep.Preprocess's per-gene-tree errgroup convention and spec.md
// §5's "opportunistic data parallelism exists only across loci."
func InitAll(ctx context.Context, species *sptree.Tree, mapping *Mapping, loci []LocusInput, nprocs int) ([]*gtree.Tree, error) {
	trees := make([]*gtree.Tree, len(loci))
	g, ctx := errgroup.WithContext(ctx)
	if nprocs > 0 {
		g.SetLimit(nprocs)
	}
	for i := range loci {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gtr, err := InitGeneTree(species, mapping, loci[i].Locus, loci[i].Rng)
			if err != nil {
				return fmt.Errorf("locus %d: %w", i, err)
			}
			trees[i] = gtr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trees, nil
}
