package locus

import (
	"mscoal/internal/gtree"
	"mscoal/internal/kernel"
)

// UpdatePMatrix fills pmatrix slot k with the branch-length transition
// matrix for rate matrix index paramIdx, assembling one block per rate
// category. For the 4-state JC69 case it dispatches to the closed-form
// fast path; otherwise it uses the general eigendecomposition-based
// assembly, per spec.md §4.4 and §5's "Transition matrices are updated
// before the CLV pass that consumes them."
func (p *Partition) UpdatePMatrix(k, paramIdx int, branchLength float64, jc69 bool) {
	pmat := p.pmatrix[k]
	for rc := 0; rc < p.RateCats; rc++ {
		off := p.pmatOffset(rc)
		var block []float64
		if jc69 && p.States == 4 {
			block = kernel.JC69Pmatrix(branchLength)
		} else {
			block = kernel.Pmatrix(p.rateMatrices[paramIdx], branchLength, p.Rates[rc])
		}
		writePadded(pmat[off:], block, p.States, p.StatesPadded)
	}
}

// writePadded copies an unpadded states x states row-major block into a
// states x statesPadded destination, leaving padding columns as zero.
func writePadded(dst, src []float64, states, statesPadded int) {
	for i := 0; i < states; i++ {
		copy(dst[i*statesPadded:i*statesPadded+states], src[i*states:i*states+states])
	}
}

// UpdateCLV computes the conditional likelihood vector at gene-tree node n
// from its two children's CLVs (or tip encodings) and the transition
// matrices on the two incident branches, in the canonical post-order
// update schedule of spec.md §4.2/§5: a node's CLV is computed only after
// both children's.
func (p *Partition) UpdateCLV(n *gtree.Node) {
	if n.Tip() {
		return // tip CLVs/characters are set directly by SetTipSequence(Pattern)
	}
	left, right := n.Left, n.Right
	clv := p.clv[n.ClvIndex]

	if p.Attrs.PatternTip && left.Tip() && right.Tip() {
		for rc := 0; rc < p.RateCats; rc++ {
			p.BuildTipPairTable(left.PMatrixIndex, right.PMatrixIndex, rc)
		}
		for site := 0; site < p.Sites; site++ {
			codeA := p.TipChars[left.ClvIndex][site]
			codeB := p.TipChars[right.ClvIndex][site]
			for rc := 0; rc < p.RateCats; rc++ {
				out := p.TipPairCLV(codeA, codeB, rc)
				off := p.clvOffset(site, rc)
				copy(clv[off:off+p.States], out)
			}
		}
		return
	}

	for site := 0; site < p.Sites; site++ {
		for rc := 0; rc < p.RateCats; rc++ {
			off := p.clvOffset(site, rc)
			leftVals := p.childStateVector(left, site, rc)
			rightVals := p.childStateVector(right, site, rc)
			leftP := p.pmatrix[left.PMatrixIndex][p.pmatOffset(rc):]
			rightP := p.pmatrix[right.PMatrixIndex][p.pmatOffset(rc):]
			for s := 0; s < p.States; s++ {
				clv[off+s] = p.branchSum(leftP, s, leftVals) * p.branchSum(rightP, s, rightVals)
			}
		}
	}
}

// childStateVector returns the per-state likelihood vector a child node
// contributes at (site, rateCat): its CLV if inner, or its expanded tip
// CLV/pattern-tip bitset if a tip.
func (p *Partition) childStateVector(child *gtree.Node, site, rateCat int) []float64 {
	if child.Tip() {
		if p.Attrs.PatternTip {
			code := p.TipChars[child.ClvIndex][site]
			bits, _ := p.TipMap(code)
			out := make([]float64, p.States)
			BitsetToCLV(bits, p.States, out)
			return out
		}
		off := p.clvOffset(site, rateCat)
		return p.clv[child.ClvIndex][off : off+p.States]
	}
	off := p.clvOffset(site, rateCat)
	return p.clv[child.ClvIndex][off : off+p.States]
}

// branchSum computes sum_i pmat[state][i] * stateVals[i], i.e. one branch's
// contribution to the parent CLV at a single state.
func (p *Partition) branchSum(pmat []float64, state int, stateVals []float64) float64 {
	sum := 0.0
	for i := 0; i < p.States; i++ {
		sum += pmat[state*p.StatesPadded+i] * stateVals[i]
	}
	return sum
}
