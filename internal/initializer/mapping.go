// Package initializer builds coalescent-consistent starting gene trees at
// each locus from parsed sequence alignments, a species tree, and an
// individual-to-species mapping, per spec.md §4.5.
package initializer

import (
	"errors"
	"fmt"

	"mscoal/internal/hashidx"
)

// ErrDuplicateIndividual is returned when the same individual label appears
// twice in a mapping file, per spec.md §6's map-format description.
var ErrDuplicateIndividual = errors.New("initializer: duplicate individual in mapping")

// Mapping is the individual-to-species lookup spec.md §4.5 describes as "a
// two-level hash (species-label -> species-node index, mapping record ->
// species)": here, individual label -> species label via hashidx, with the
// species-label -> species-tree-node half handled by sptree.Tree's own
// tip index.
type Mapping struct {
	individualToSpecies *hashidx.Index[string]
}

// NewMapping builds a Mapping from "individual species" pairs, e.g. parsed
// from lines of that form with blank/commented lines already filtered by
// the caller, per spec.md §6.
func NewMapping(pairs [][2]string) (*Mapping, error) {
	capacity := len(pairs)
	if capacity < 1 {
		capacity = 1
	}
	idx := hashidx.New[string](capacity, hashidx.FNV1a, hashidx.ByteEqual)
	for _, pair := range pairs {
		individual, species := pair[0], pair[1]
		if err := idx.Insert(individual, species); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateIndividual, individual)
		}
	}
	return &Mapping{individualToSpecies: idx}, nil
}

// Species returns the species label individual was mapped to.
func (m *Mapping) Species(individual string) (string, bool) {
	return m.individualToSpecies.Find(individual)
}
