// Package locus implements the per-locus numeric container spec.md §3
// describes: tip encodings, conditional-likelihood vectors (CLVs),
// transition-probability matrices, eigen-decomposition caches, site pattern
// weights, and rate-heterogeneity parameters, plus the pattern-tip
// tip-tip-lookup fast path of spec.md §4.4.
//
// Structurally this plays the role of bpp.h's locus_t: a single struct
// owning every numeric buffer a likelihood evaluation touches, indexed by
// dense integer "k" slots the way gtree.Node.ClvIndex/PMatrixIndex/
// ScalerIndex address into it.
package locus

import (
	"errors"
	"fmt"

	"mscoal/internal/kernel"
)

var (
	// ErrStateCountMismatch is returned when a rate matrix's state count
	// does not match the partition's.
	ErrStateCountMismatch = errors.New("locus: rate matrix state count does not match partition")
	// ErrIllegalResidue is returned when a tip sequence contains a byte
	// whose mapped state bitset is zero, per spec.md §4.4.
	ErrIllegalResidue = errors.New("locus: illegal residue")
	// ErrTooManyDistinctStates is returned when pattern-tip mode would need
	// a 256th distinct compact code.
	ErrTooManyDistinctStates = errors.New("locus: too many distinct tip states for pattern-tip mode")
	// ErrSiteCountMismatch is returned when a tip sequence's length does
	// not match the partition's site count.
	ErrSiteCountMismatch = errors.New("locus: sequence length does not match partition site count")
)

// Attributes bundles the fixed-at-construction traits of a partition: the
// SIMD capability (drives states_padded and the JC69/AVX fast path), and
// whether tips are stored as compact bytes (PatternTip) or as expanded CLVs.
type Attributes struct {
	Capability  kernel.Capability
	PatternTip  bool
	RateScalers bool // scale buffer is per-pattern*rate rather than per-pattern
}

// Partition is the numeric container for one locus, parameterized exactly
// as spec.md §3 lists: (tips, clv_buffers, states, sites, rate_matrices,
// prob_matrices, rate_cats, scale_buffers, attributes).
type Partition struct {
	Tips         int
	ClvBuffers   int
	States       int
	StatesPadded int
	Sites        int
	RateCats     int
	ScaleBuffers int
	Attrs        Attributes

	stateMap StateMap

	// TipChars holds per-tip, per-site compact codes (pattern-tip mode
	// only); nil otherwise.
	TipChars [][]byte

	// clv[k] is a flattened sites*rate_cats*states_padded vector; k ranges
	// over [0, Tips+ClvBuffers). In pattern-tip mode slots [0,Tips) are
	// unused (tip characters live in TipChars instead).
	clv [][]float64

	// pmatrix[k] is a rate_cats*states*states_padded contiguous block.
	pmatrix [][]float64

	rateMatrices []*kernel.RateMatrix

	Rates       []float64 // per rate category multiplier
	RateWeights []float64

	PatternWeights []float64

	// ScaleBuffer[k] holds non-negative scaling exponents, per-pattern, or
	// per-pattern*rate when Attrs.RateScalers.
	ScaleBuffer [][]uint32

	charMap  [256]byte // ascii -> compact code, 0 = unassigned
	tipMap   []uint32  // compact code -> raw state bitset, 1-indexed
	nextCode byte

	// ttlookup is the precomputed pair-tip CLV table. Dense, fixed 1024*RateCats
	// layout only for the 4-state AVX fast path (the asymmetry spec.md §9's
	// open question leaves unresolved for AVX2 is not extended here); a
	// lazily-populated cache otherwise.
	ttlookup    []float64
	ttlookupGen map[[3]int][]float64 // keyed by (codeA, codeB, rateCat)
}

// New allocates a Partition. statesPadded is derived from states and
// attrs.Capability per kernel.StatesPadded.
func New(tips, clvBuffers, states, sites, rateMatrices, probMatrices, rateCats, scaleBuffers int, attrs Attributes, stateMap StateMap) (*Partition, error) {
	statesPadded := kernel.StatesPadded(states, attrs.Capability)

	p := &Partition{
		Tips:         tips,
		ClvBuffers:   clvBuffers,
		States:       states,
		StatesPadded: statesPadded,
		Sites:        sites,
		RateCats:     rateCats,
		ScaleBuffers: scaleBuffers,
		Attrs:        attrs,
		stateMap:     stateMap,
		rateMatrices: make([]*kernel.RateMatrix, rateMatrices),
		Rates:        make([]float64, rateCats),
		RateWeights:  make([]float64, rateCats),
	}

	for i := range p.Rates {
		p.Rates[i] = 1
		p.RateWeights[i] = 1 / float64(rateCats)
	}

	p.PatternWeights = make([]float64, sites)
	for i := range p.PatternWeights {
		p.PatternWeights[i] = 1
	}

	nClvSlots := tips + clvBuffers
	p.clv = make([][]float64, nClvSlots)
	clvLen := sites * rateCats * statesPadded
	for k := range p.clv {
		if attrs.PatternTip && k < tips {
			continue // tip characters live in TipChars instead
		}
		p.clv[k] = make([]float64, clvLen)
	}

	nPmatSlots := tips + probMatrices
	p.pmatrix = make([][]float64, nPmatSlots)
	pmatLen := rateCats * states * statesPadded
	for k := range p.pmatrix {
		p.pmatrix[k] = make([]float64, pmatLen)
	}

	p.ScaleBuffer = make([][]uint32, nClvSlots)
	scaleLen := sites
	if attrs.RateScalers {
		scaleLen = sites * rateCats
	}
	for k := range p.ScaleBuffer {
		p.ScaleBuffer[k] = make([]uint32, scaleLen)
	}

	if attrs.PatternTip {
		p.TipChars = make([][]byte, tips)
		for t := range p.TipChars {
			p.TipChars[t] = make([]byte, sites)
		}
		if states == 4 && attrs.Capability == kernel.CapabilityAVX {
			p.ttlookup = make([]float64, 1024*rateCats)
		} else {
			p.ttlookupGen = make(map[[3]int][]float64)
		}
	}

	return p, nil
}

// SetRateMatrix installs the already-decomposed rate matrix rm at index r.
func (p *Partition) SetRateMatrix(r int, rm *kernel.RateMatrix) error {
	if rm.States != p.States {
		return fmt.Errorf("%w: matrix %d has %d states, partition has %d", ErrStateCountMismatch, r, rm.States, p.States)
	}
	p.rateMatrices[r] = rm
	return nil
}

// RateMatrix returns the rate matrix at index r.
func (p *Partition) RateMatrix(r int) *kernel.RateMatrix { return p.rateMatrices[r] }

// CLV returns the CLV slot for buffer k (mutable view).
func (p *Partition) CLV(k int) []float64 { return p.clv[k] }

// PMatrix returns the transition-matrix slot for buffer k (mutable view).
func (p *Partition) PMatrix(k int) []float64 { return p.pmatrix[k] }

// clvOffset returns the flat offset of (site, rateCat) within a CLV buffer.
func (p *Partition) clvOffset(site, rateCat int) int {
	return (site*p.RateCats + rateCat) * p.StatesPadded
}

// pmatOffset returns the flat offset of rateCat within a pmatrix buffer.
func (p *Partition) pmatOffset(rateCat int) int {
	return rateCat * p.States * p.StatesPadded
}
