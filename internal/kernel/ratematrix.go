// Package kernel implements the numerical substitution core: construction
// of a normalized nucleotide (or general n-state) rate matrix, its
// eigendecomposition, and assembly of branch-length transition-probability
// matrices P(t), per spec.md §4.4.
//
// The original (core_pmatrix.c) hand-rolls a Householder tridiagonalization
// (tred2) plus implicit-QL (tqli) symmetric eigensolver. That pair is a
// direct, well-known port of the Numerical Recipes routines of the same
// name; gonum's mat.EigenSym performs the equivalent tridiagonalize+QL
// reduction (LAPACK's dsyev path) over the same symmetric similarity
// transform, so it replaces tred2/tqli here rather than reimplementing
// them by hand, per the retrieval pack's own reach for gonum/mat
// (js-arias-phygeo, js-arias-timetree) wherever numerical linear algebra is
// needed.
package kernel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrEigenFailed is returned when gonum's symmetric eigensolver fails to
// converge, the Go-idiomatic replacement for core_pmatrix.c's
// assert(iter < 30) non-convergence abort.
var ErrEigenFailed = errors.New("kernel: eigendecomposition failed to converge")

// Capability selects the SIMD-alignment attribute a locus partition is built
// with, per spec.md §3's states_padded invariant and §9's "dispatch on
// SIMD" design note. Modeled as an enum+switch rather than a runtime
// function-pointer table, per spec.md §9's own recommendation.
type Capability uint8

const (
	CapabilityGeneric Capability = iota
	CapabilitySSE
	CapabilityAVX
)

func (c Capability) String() string {
	switch c {
	case CapabilitySSE:
		return "sse"
	case CapabilityAVX:
		return "avx"
	default:
		return "generic"
	}
}

// StatesPadded returns the row-padded state count for the given capability:
// states itself for the generic path, rounded up to a multiple of 2 for
// SSE, or 4 for AVX, matching spec.md §3's
// "states_padded in {states, ceil(states/2)*2, ceil(states/4)*4}".
func StatesPadded(states int, cap Capability) int {
	switch cap {
	case CapabilitySSE:
		return ceilToMultiple(states, 2)
	case CapabilityAVX:
		return ceilToMultiple(states, 4)
	default:
		return states
	}
}

func ceilToMultiple(n, mult int) int {
	return (n + mult - 1) / mult * mult
}

// RateMatrix is the eigendecomposition of one instantaneous substitution
// rate matrix Q, normalized to one expected substitution per unit time.
// Eigenvecs/InvEigenvecs/Eigenvals are dense, unpadded (states x states and
// states respectively); the locus partition handles any row padding needed
// for its chosen Capability when it reads these into its own buffers.
type RateMatrix struct {
	States int

	Eigenvecs    []float64 // row-major states x states: Q = V diag(lambda) V^-1
	InvEigenvecs []float64
	Eigenvals    []float64

	Frequencies []float64
	SubstParams []float64 // as supplied, pre-normalization

	valid bool // eigen_decomp_valid: clean/dirty flag
}

// Valid reports whether the cached decomposition still reflects Frequencies
// and SubstParams, per spec.md §3's eigen_decomp_valid[r] flag.
func (rm *RateMatrix) Valid() bool { return rm.valid }

// Invalidate marks the decomposition stale, e.g. after a frequency-vector
// mutation; the next P-matrix request must call Recompute first.
func (rm *RateMatrix) Invalidate() { rm.valid = false }

// NewRateMatrix builds and immediately decomposes a rate matrix for the
// given exchangeability parameters (upper-triangular order, states*(states-1)/2
// of them) and equilibrium frequencies.
func NewRateMatrix(params, freqs []float64) (*RateMatrix, error) {
	states := len(freqs)
	want := states * (states - 1) / 2
	if len(params) != want {
		return nil, fmt.Errorf("kernel: expected %d substitution parameters for %d states, got %d", want, states, len(params))
	}
	rm := &RateMatrix{
		States:      states,
		Frequencies: append([]float64(nil), freqs...),
		SubstParams: append([]float64(nil), params...),
	}
	if err := rm.Recompute(); err != nil {
		return nil, err
	}
	return rm, nil
}

// Recompute rebuilds the symmetric similarity transform S = sqrt(pi) Q
// sqrt(pi)^-1 from the current Frequencies/SubstParams, diagonalizes it, and
// recovers Q's (generally non-symmetric) eigenvectors/eigenvalues, per
// spec.md §4.4's "Rate-matrix construction" and "Eigendecomposition".
func (rm *RateMatrix) Recompute() error {
	states := rm.States
	freqs := rm.Frequencies

	// Normalize substitution parameters so the last one is 1, matching
	// core_pmatrix.c's create_ratematrix: "params_normalized[i] /=
	// params_normalized[count-1]" before the symmetric matrix is formed.
	params := append([]float64(nil), rm.SubstParams...)
	if last := params[len(params)-1]; last > 0 {
		for i := range params {
			params[i] /= last
		}
	}

	q := make([]float64, states*states)
	s := make([]float64, states*states)
	k := 0
	for i := 0; i < states; i++ {
		for j := i + 1; j < states; j++ {
			factor := params[k]
			k++
			q[i*states+j] = factor * freqs[j]
			q[j*states+i] = factor * freqs[i]
			q[i*states+i] -= factor * freqs[j]
			q[j*states+j] -= factor * freqs[i]

			sij := factor * math.Sqrt(freqs[i]*freqs[j])
			s[i*states+j] = sij
			s[j*states+i] = sij
		}
	}
	for i := 0; i < states; i++ {
		s[i*states+i] = q[i*states+i]
	}

	// Rescale so expected_substitutions = -sum_i pi_i Q_ii = 1.
	mean := 0.0
	for i := 0; i < states; i++ {
		mean += freqs[i] * (-s[i*states+i])
	}
	if mean != 0 {
		for i := range s {
			s[i] /= mean
		}
	}

	sym := mat.NewSymDense(states, s)
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return ErrEigenFailed
	}
	lambda := eig.Values(nil)
	var u mat.Dense
	eig.VectorsTo(&u)

	for _, l := range lambda {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return fmt.Errorf("%w: non-finite eigenvalue", ErrEigenFailed)
		}
	}

	// Recover Q's eigendecomposition from S = U diag(lambda) U^T:
	// V = Pi^-1/2 U (row i scaled by 1/sqrt(pi_i)), V^-1 = U^T Pi^1/2
	// (row k, col j of V^-1 is U[j][k]*sqrt(pi_j)), so that
	// Q = V diag(lambda) V^-1 exactly, per spec.md §3's
	// "eigenvecs . diag(eigenvals) . inv_eigenvecs = Q" invariant.
	eigenvecs := make([]float64, states*states)
	invEigenvecs := make([]float64, states*states)
	sqrtFreq := make([]float64, states)
	for i := range sqrtFreq {
		sqrtFreq[i] = math.Sqrt(freqs[i])
	}
	for i := 0; i < states; i++ {
		for kk := 0; kk < states; kk++ {
			eigenvecs[i*states+kk] = u.At(i, kk) / sqrtFreq[i]
			invEigenvecs[kk*states+i] = u.At(i, kk) * sqrtFreq[i]
		}
	}

	rm.Eigenvals = lambda
	rm.Eigenvecs = eigenvecs
	rm.InvEigenvecs = invEigenvecs
	rm.valid = true
	return nil
}
