package sptree

import (
	"strings"
	"testing"

	"github.com/evolbioinfo/gotree/io/newick"
)

func parseRooted(t *testing.T, nwk string) *Tree {
	t.Helper()
	raw, err := newick.NewParser(strings.NewReader(nwk)).Parse()
	if err != nil {
		t.Fatalf("parsing newick: %v", err)
	}
	tr, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNewPartitionsTipsBeforeInner(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")

	if tr.TipCount() != 4 {
		t.Fatalf("TipCount() = %d, want 4", tr.TipCount())
	}
	if tr.InnerCount() != 3 {
		t.Fatalf("InnerCount() = %d, want 3", tr.InnerCount())
	}
	for i := 0; i < tr.TipCount(); i++ {
		if !tr.Node(i).Tip() {
			t.Fatalf("node %d expected to be a tip", i)
		}
	}
	for i := tr.TipCount(); i < tr.TipCount()+tr.InnerCount(); i++ {
		if tr.Node(i).Tip() {
			t.Fatalf("node %d expected to be inner", i)
		}
	}
}

func TestRootIsLastInnerNode(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	root := tr.Root()
	if root.Tip() {
		t.Fatalf("root must not be a tip")
	}
	if root.Leaves != 4 {
		t.Fatalf("root.Leaves = %d, want 4", root.Leaves)
	}
	if root.Parent != nil {
		t.Fatalf("root must have no parent")
	}
}

func TestLeavesCountPropagates(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	for _, n := range tr.Nodes() {
		if n.Tip() && n.Leaves != 1 {
			t.Fatalf("tip %s Leaves = %d, want 1", n.Label, n.Leaves)
		}
	}
	left := tr.Root().Left
	if left.Leaves != 2 {
		t.Fatalf("left child Leaves = %d, want 2", left.Leaves)
	}
}

func TestTipByLabel(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	for _, label := range []string{"A", "B", "C", "D"} {
		n, ok := tr.TipByLabel(label)
		if !ok {
			t.Fatalf("TipByLabel(%q) not found", label)
		}
		if n.Label != label {
			t.Fatalf("TipByLabel(%q).Label = %q", label, n.Label)
		}
	}
	if _, ok := tr.TipByLabel("Z"); ok {
		t.Fatalf("TipByLabel(%q) unexpectedly found", "Z")
	}
}

func TestTraversePostOrderVisitsChildrenFirst(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	var order []*Node
	tr.TraversePostOrder(nil, &order)

	seen := make(map[*Node]bool, len(order))
	for _, n := range order {
		if n.Left != nil && !seen[n.Left] {
			t.Fatalf("node %s visited before its left child", n.Label)
		}
		if n.Right != nil && !seen[n.Right] {
			t.Fatalf("node %s visited before its right child", n.Label)
		}
		seen[n] = true
	}
	if order[len(order)-1] != tr.Root() {
		t.Fatalf("post-order must end at the root")
	}
}

func TestExportNewickRoundTrips(t *testing.T) {
	tr := parseRooted(t, "((A:1,B:1):1,(C:1,D:1):1):0;")
	out := tr.ExportNewick(nil)

	reparsed := parseRooted(t, out)
	if reparsed.TipCount() != tr.TipCount() {
		t.Fatalf("reparsed TipCount() = %d, want %d", reparsed.TipCount(), tr.TipCount())
	}
	for _, label := range []string{"A", "B", "C", "D"} {
		if _, ok := reparsed.TipByLabel(label); !ok {
			t.Fatalf("reparsed tree missing tip %q", label)
		}
	}
}
