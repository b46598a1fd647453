package constraint

import (
	"fmt"
	"regexp"
	"strings"
)

// alias pairs an alias name with its fully-expanded canonical Newick
// expression (any aliases referenced inside it already substituted).
type alias struct {
	name   string
	newick string
}

// expandOne substitutes every previously defined alias referenced as a tip
// label in newick with that alias's canonical expression, repeating until a
// pass makes no further change (an alias's expansion can itself reference an
// earlier alias). This mirrors ntree_replace_aliases's effect at the text
// level instead of via node-pointer surgery: camus's own alias handling
// (TreeData.Clone plus re-wiring) and the original's own fallback of
// exporting to Newick text and re-parsing both show this is an accepted way
// to avoid bespoke tree-surgery code for something it only needs to do once
// per record.
func expandOne(newick string, known []alias) string {
	for {
		changed := false
		for _, a := range known {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(a.name) + `\b`)
			if re.MatchString(newick) {
				exp := strings.TrimSuffix(strings.TrimSpace(a.newick), ";")
				newick = re.ReplaceAllString(newick, exp)
				changed = true
			}
		}
		if !changed {
			return newick
		}
	}
}

// ExpandAliases partitions records into the resolved alias table and the
// constraint/outgroup records with every alias reference substituted away.
// Definitions are processed in file order, so a definition may only
// reference an alias that appears earlier in the file.
func ExpandAliases(records []Record) (constraints []Record, outgroup *Record, err error) {
	var defs []alias
	seen := make(map[string]int) // alias name -> defining line, for duplicate detection

	for _, rec := range records {
		switch rec.Kind {
		case KindDefine:
			if line, dup := seen[rec.Alias]; dup {
				return nil, nil, fmt.Errorf("%w: %q redefined at line %d, first defined at line %d",
					ErrDuplicateAlias, rec.Alias, rec.Lineno, line)
			}
			seen[rec.Alias] = rec.Lineno
			defs = append(defs, alias{name: rec.Alias, newick: expandOne(rec.Newick, defs)})

		case KindConstraint:
			expanded := rec.Newick
			expanded = expandOne(expanded, defs)
			constraints = append(constraints, Record{Kind: KindConstraint, Lineno: rec.Lineno, Newick: expanded})

		case KindOutgroup:
			if outgroup != nil {
				return nil, nil, fmt.Errorf("%w: line %d, first seen at line %d",
					ErrMultipleOutgroup, rec.Lineno, outgroup.Lineno)
			}
			o := rec
			outgroup = &o
		}
	}
	return constraints, outgroup, nil
}
