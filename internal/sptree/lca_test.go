package sptree

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
)

func TestLCAOfTwoTipsInSameClade(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	n, err := tr.LCA([]string{"A", "B"}, marks)
	if err != nil {
		t.Fatalf("LCA: %v", err)
	}
	if n != tr.Root().Left {
		t.Fatalf("LCA(A,B) = %s, want root's left child", n.Label)
	}
	if marks.Count() != 0 {
		t.Fatalf("marks not cleared after LCA, count = %d", marks.Count())
	}
}

func TestLCAOfTipsAcrossClades(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	n, err := tr.LCA([]string{"A", "C"}, marks)
	if err != nil {
		t.Fatalf("LCA: %v", err)
	}
	if n != tr.Root() {
		t.Fatalf("LCA(A,C) = %s, want root", n.Label)
	}
}

func TestLCAOfAllTipsIsRoot(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	n, err := tr.LCA([]string{"A", "B", "C", "D"}, marks)
	if err != nil {
		t.Fatalf("LCA: %v", err)
	}
	if n != tr.Root() {
		t.Fatalf("LCA(all tips) = %s, want root", n.Label)
	}
}

func TestLCAOfSingleTipIsItself(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	n, err := tr.LCA([]string{"B"}, marks)
	if err != nil {
		t.Fatalf("LCA: %v", err)
	}
	if tip, _ := tr.TipByLabel("B"); n != tip {
		t.Fatalf("LCA(B) = %s, want B itself", n.Label)
	}
}

func TestLCANestedClades(t *testing.T) {
	tr := parseRooted(t, "(((A:1,B:1):1,C:1):1,D:1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	n, err := tr.LCA([]string{"A", "C"}, marks)
	if err != nil {
		t.Fatalf("LCA: %v", err)
	}
	if n.Leaves != 3 {
		t.Fatalf("LCA(A,C).Leaves = %d, want 3", n.Leaves)
	}
	want, _ := tr.TipByLabel("A")
	if n != want.Parent.Parent {
		t.Fatalf("LCA(A,C) did not match expected ancestor")
	}
}

func TestLCAUnknownLabel(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	if _, err := tr.LCA([]string{"A", "Z"}, marks); err == nil {
		t.Fatalf("expected error for unknown label")
	}
}

func TestLCAEmptyLabelSet(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	if _, err := tr.LCA(nil, marks); err == nil {
		t.Fatalf("expected error for empty label set")
	}
}

func TestLCAReusesScratchAcrossCalls(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	marks := bitset.New(uint(len(tr.Nodes())))

	for i := 0; i < 3; i++ {
		if _, err := tr.LCA([]string{"A", "B"}, marks); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
	if marks.Count() != 0 {
		t.Fatalf("marks leaked across calls, count = %d", marks.Count())
	}
}
