package locus

import "fmt"

// SetTipSequence encodes sequence (one byte per site, length == p.Sites)
// into tip slot tip's CLV, expanded-CLV mode: "(c >> k) & 1 over states,
// replicated across rate_cats. Ambiguity codes produce multi-bit CLVs",
// per spec.md §4.4. Used when Attrs.PatternTip is false.
func (p *Partition) SetTipSequence(tip int, label string, sequence []byte) error {
	if p.Attrs.PatternTip {
		return fmt.Errorf("locus: SetTipSequence called on a pattern-tip partition (tip %q)", label)
	}
	if len(sequence) != p.Sites {
		return fmt.Errorf("%w: tip %q has %d sites, partition expects %d", ErrSiteCountMismatch, label, len(sequence), p.Sites)
	}
	clv := p.clv[tip]
	for site, c := range sequence {
		bits := p.stateMap[c]
		if PopCount(bits, p.States) == 0 {
			return fmt.Errorf("%w: byte %q in tip %q at site %d", ErrIllegalResidue, string(c), label, site)
		}
		for rc := 0; rc < p.RateCats; rc++ {
			off := p.clvOffset(site, rc)
			BitsetToCLV(bits, p.States, clv[off:off+p.States])
		}
	}
	return nil
}

// SetTipSequencePattern encodes sequence into tip slot tip's TipChars row as
// compact byte codes via p.charMap, extending the charmap/tipmap with any
// newly-seen residue as it goes, per spec.md §4.4's pattern-tip mode. Used
// when Attrs.PatternTip is true.
func (p *Partition) SetTipSequencePattern(tip int, label string, sequence []byte) error {
	if !p.Attrs.PatternTip {
		return fmt.Errorf("locus: SetTipSequencePattern called on a non-pattern-tip partition (tip %q)", label)
	}
	if len(sequence) != p.Sites {
		return fmt.Errorf("%w: tip %q has %d sites, partition expects %d", ErrSiteCountMismatch, label, len(sequence), p.Sites)
	}
	row := p.TipChars[tip]
	for site, c := range sequence {
		bits := p.stateMap[c]
		if PopCount(bits, p.States) == 0 {
			return fmt.Errorf("%w: byte %q in tip %q at site %d", ErrIllegalResidue, string(c), label, site)
		}
		code := p.charMap[c]
		if code == 0 {
			if p.nextCode == 255 {
				return fmt.Errorf("%w: tip %q at site %d", ErrTooManyDistinctStates, label, site)
			}
			p.nextCode++
			code = p.nextCode
			p.charMap[c] = code
			if int(code) >= len(p.tipMap) {
				grown := make([]uint32, int(code)+1)
				copy(grown, p.tipMap)
				p.tipMap = grown
			}
			p.tipMap[code] = bits
		}
		row[site] = code
	}
	return nil
}

// CharMap returns the compact code assigned to ascii byte c, and whether one
// has been assigned yet. Pattern-tip mode only.
func (p *Partition) CharMap(c byte) (byte, bool) {
	code := p.charMap[c]
	return code, code != 0
}

// TipMap returns the raw state bitset for a previously-assigned compact
// code. Pattern-tip mode only; round-trips with CharMap per spec.md §8's
// "encoding a sequence with charmap and decoding via tipmap reproduces the
// original state bitsets" property.
func (p *Partition) TipMap(code byte) (uint32, bool) {
	if code == 0 || int(code) >= len(p.tipMap) {
		return 0, false
	}
	return p.tipMap[code], true
}

// pairSum returns sum_i pmat[state*statesPadded+i] over every bit i set in
// bits, i.e. the tip likelihood of an (possibly ambiguous) observed residue
// propagated back across one branch's transition matrix.
func (p *Partition) pairSum(pmat []float64, state int, bits uint32) float64 {
	sum := 0.0
	for i := 0; i < p.States; i++ {
		if bits&(1<<uint(i)) != 0 {
			sum += pmat[state*p.StatesPadded+i]
		}
	}
	return sum
}

// BuildTipPairTable precomputes, for every pair of compact tip codes seen so
// far, the combined per-state CLV contribution across the two branches
// whose transition matrices live at pmatrix slots pmatIdxA/pmatIdxB: the
// "pair-precomputed tip-tip lookup table" of spec.md §4.4 and the GLOSSARY's
// "Pattern-tip mode" entry. Call once per cherry (tip,tip) node before
// looking up per-site values with TipPairCLV; the table amortizes the
// per-branch matrix multiply across every site sharing the same two
// residues, instead of repeating it per site.
func (p *Partition) BuildTipPairTable(pmatIdxA, pmatIdxB, rateCat int) {
	pmatA := p.pmatrix[pmatIdxA][p.pmatOffset(rateCat):]
	pmatB := p.pmatrix[pmatIdxB][p.pmatOffset(rateCat):]

	if p.ttlookup != nil {
		// Fixed 1024*RateCats layout: both branches' tip residues are
		// 4-bit ambiguity bitsets (16 combinations each), giving a dense
		// 16x16xstates table per rate category.
		for bitsA := 0; bitsA < 16; bitsA++ {
			for bitsB := 0; bitsB < 16; bitsB++ {
				idx := (bitsA*16+bitsB)*p.States*p.RateCats + rateCat*p.States
				for s := 0; s < p.States; s++ {
					p.ttlookup[idx+s] = p.pairSum(pmatA, s, uint32(bitsA)) * p.pairSum(pmatB, s, uint32(bitsB))
				}
			}
		}
		return
	}

	for codeA := byte(1); int(codeA) < len(p.tipMap); codeA++ {
		bitsA := p.tipMap[codeA]
		for codeB := byte(1); int(codeB) < len(p.tipMap); codeB++ {
			bitsB := p.tipMap[codeB]
			out := make([]float64, p.States)
			for s := 0; s < p.States; s++ {
				out[s] = p.pairSum(pmatA, s, bitsA) * p.pairSum(pmatB, s, bitsB)
			}
			p.ttlookupGen[[3]int{int(codeA), int(codeB), rateCat}] = out
		}
	}
}

// TipPairCLV returns the table entry BuildTipPairTable precomputed for
// (codeA, codeB) at the given rate category.
func (p *Partition) TipPairCLV(codeA, codeB byte, rateCat int) []float64 {
	bitsA, _ := p.TipMap(codeA)
	bitsB, _ := p.TipMap(codeB)
	if p.ttlookup != nil {
		idx := (int(bitsA)*16+int(bitsB))*p.States*p.RateCats + rateCat*p.States
		return p.ttlookup[idx : idx+p.States]
	}
	return p.ttlookupGen[[3]int{int(codeA), int(codeB), rateCat}]
}
