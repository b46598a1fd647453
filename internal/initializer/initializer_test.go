package initializer

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"

	"mscoal/internal/sptree"
)

func parseSpeciesTree(t *testing.T, nwk string) *sptree.Tree {
	t.Helper()
	raw, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("parsing newick: %v", err)
	}
	tr, err := sptree.New(raw)
	if err != nil {
		t.Fatalf("sptree.New: %v", err)
	}
	return tr
}

func seqs(labels ...string) Locus {
	var seqs []Sequence
	for _, l := range labels {
		seqs = append(seqs, Sequence{Label: l, Sites: []byte("ACGT")})
	}
	return Locus{Sequences: seqs}
}

func TestInitGeneTreeProducesSingleRoot(t *testing.T) {
	species := parseSpeciesTree(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	for _, n := range species.Nodes() {
		n.Theta = 0.01
	}
	mapping, err := NewMapping([][2]string{
		{"a1", "A"}, {"a2", "A"}, {"b1", "B"}, {"c1", "C"}, {"d1", "D"},
	})
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	gtr, err := InitGeneTree(species, mapping, seqs("a1", "a2", "b1", "c1", "d1"), rng)
	if err != nil {
		t.Fatalf("InitGeneTree: %v", err)
	}
	if gtr.TipCount() != 5 {
		t.Fatalf("TipCount = %d, want 5", gtr.TipCount())
	}
	if gtr.Root().Leaves != 5 {
		t.Fatalf("root Leaves = %d, want 5", gtr.Root().Leaves)
	}
	for _, label := range []string{"a1", "a2", "b1", "c1", "d1"} {
		if _, ok := gtr.TipByLabel(label); !ok {
			t.Errorf("missing tip %q in initialized gene tree", label)
		}
	}
}

func TestInitGeneTreeUnmappedIndividual(t *testing.T) {
	species := parseSpeciesTree(t, "(A:1,B:1):0;")
	mapping, err := NewMapping([][2]string{{"a1", "A"}})
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if _, err := InitGeneTree(species, mapping, seqs("a1", "x1"), rng); err == nil {
		t.Fatal("expected error for unmapped individual x1")
	}
}

func TestInitGeneTreeUnknownSpecies(t *testing.T) {
	species := parseSpeciesTree(t, "(A:1,B:1):0;")
	mapping, err := NewMapping([][2]string{{"a1", "Z"}})
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if _, err := InitGeneTree(species, mapping, seqs("a1"), rng); err == nil {
		t.Fatal("expected error for species Z absent from species tree")
	}
}

func TestNewMappingRejectsDuplicateIndividual(t *testing.T) {
	_, err := NewMapping([][2]string{{"a1", "A"}, {"a1", "B"}})
	if err == nil {
		t.Fatal("expected duplicate-individual error")
	}
}

func TestInitAllParallel(t *testing.T) {
	species := parseSpeciesTree(t, "(A:1,B:1):0;")
	mapping, err := NewMapping([][2]string{{"a1", "A"}, {"b1", "B"}})
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	loci := make([]LocusInput, 4)
	for i := range loci {
		loci[i] = LocusInput{Locus: seqs("a1", "b1"), Rng: rand.New(rand.NewSource(int64(i)))}
	}
	trees, err := InitAll(context.Background(), species, mapping, loci, 2)
	if err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if len(trees) != 4 {
		t.Fatalf("len(trees) = %d, want 4", len(trees))
	}
	for i, tr := range trees {
		if tr.TipCount() != 2 {
			t.Errorf("locus %d: TipCount = %d, want 2", i, tr.TipCount())
		}
	}
}
