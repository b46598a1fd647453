package locus

import (
	"context"
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"

	"mscoal/internal/gtree"
	"mscoal/internal/kernel"
)

func parseGeneTree(t *testing.T, nwk string) *gtree.Tree {
	t.Helper()
	raw, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("parsing newick: %v", err)
	}
	tr, err := gtree.New(raw)
	if err != nil {
		t.Fatalf("gtree.New: %v", err)
	}
	return tr
}

func jc69RateMatrix(t *testing.T) *kernel.RateMatrix {
	t.Helper()
	rm, err := kernel.NewRateMatrix([]float64{1, 1, 1, 1, 1, 1}, []float64{0.25, 0.25, 0.25, 0.25})
	if err != nil {
		t.Fatalf("NewRateMatrix: %v", err)
	}
	return rm
}

func TestPartitionExpandedCLVRoundtrip(t *testing.T) {
	tr := parseGeneTree(t, "((a1:0.1,a2:0.1):0.1,(b1:0.1,b2:0.1):0.1):0;")

	p, err := New(tr.TipCount(), tr.InnerCount(), 4, 3, 1, tr.TipCount()+tr.InnerCount(), 1, tr.TipCount()+tr.InnerCount(),
		Attributes{Capability: kernel.CapabilityGeneric}, NucleotideMap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.SetRateMatrix(0, jc69RateMatrix(t)); err != nil {
		t.Fatalf("SetRateMatrix: %v", err)
	}

	seqs := map[string][]byte{
		"a1": []byte("ACG"),
		"a2": []byte("ACG"),
		"b1": []byte("ACG"),
		"b2": []byte("ACG"),
	}
	for i := 0; i < tr.TipCount(); i++ {
		n := tr.Node(i)
		if err := p.SetTipSequence(n.ClvIndex, n.Label, seqs[n.Label]); err != nil {
			t.Fatalf("SetTipSequence(%s): %v", n.Label, err)
		}
	}

	loci := []LocusUpdate{{Tree: tr, Part: p, ParamIdx: 0, JC69: true}}
	if err := UpdateAll(context.Background(), loci, 1); err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}

	root := tr.Root()
	clv := p.CLV(root.ClvIndex)
	sum := 0.0
	for s := 0; s < 4; s++ {
		sum += clv[s]
	}
	if sum <= 0 {
		t.Fatalf("root CLV at site 0 sums to %v, want > 0", sum)
	}
}

func TestPartitionIllegalResidue(t *testing.T) {
	tr := parseGeneTree(t, "(a1:0.1,a2:0.1):0;")
	p, err := New(tr.TipCount(), tr.InnerCount(), 4, 1, 1, tr.TipCount()+tr.InnerCount(), 1, tr.TipCount()+tr.InnerCount(),
		Attributes{Capability: kernel.CapabilityGeneric}, NucleotideMap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.SetTipSequence(0, "a1", []byte("Z")); err == nil {
		t.Fatal("expected illegal residue error for 'Z'")
	}
}

func TestPatternTipCharmapTipmapRoundtrip(t *testing.T) {
	tr := parseGeneTree(t, "((a1:0.1,a2:0.1):0.1,(b1:0.1,b2:0.1):0.1):0;")
	p, err := New(tr.TipCount(), tr.InnerCount(), 4, 4, 1, tr.TipCount()+tr.InnerCount(), 1, tr.TipCount()+tr.InnerCount(),
		Attributes{Capability: kernel.CapabilityGeneric, PatternTip: true}, NucleotideMap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seq := []byte("ACGN")
	if err := p.SetTipSequencePattern(0, "a1", seq); err != nil {
		t.Fatalf("SetTipSequencePattern: %v", err)
	}

	for _, c := range seq {
		code, ok := p.CharMap(c)
		if !ok {
			t.Fatalf("no charmap entry for %q", string(c))
		}
		bits, ok := p.TipMap(code)
		if !ok {
			t.Fatalf("no tipmap entry for code %d", code)
		}
		if bits != NucleotideMap[c] {
			t.Errorf("tipmap(charmap(%q)) = %b, want %b", string(c), bits, NucleotideMap[c])
		}
	}
}

func TestPatternTipTooManyDistinctStatesRejected(t *testing.T) {
	sites := 300
	// Every permitted ASCII nucleotide residue (16 IUPAC codes) is far
	// fewer than 256, so drive charMap directly with a stub stateMap that
	// makes all 256 byte values distinct and legal.
	var full StateMap
	for i := 0; i < 256; i++ {
		full[i] = 1 // every byte legal, all distinct under the real map
	}
	p2, err := New(1, 0, 1, sites, 1, 1, 1, 1, Attributes{PatternTip: true}, full)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seq := make([]byte, sites)
	for i := range seq {
		seq[i] = byte(i % 256)
	}
	if err := p2.SetTipSequencePattern(0, "a1", seq); err == nil {
		t.Fatal("expected too-many-distinct-states error")
	}
}

func TestStatesPaddedPartitionLayout(t *testing.T) {
	p, err := New(2, 1, 5, 1, 1, 3, 1, 3, Attributes{Capability: kernel.CapabilityAVX}, NucleotideMap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.StatesPadded != 8 {
		t.Fatalf("StatesPadded = %d, want 8 for 5 states under AVX", p.StatesPadded)
	}
}
