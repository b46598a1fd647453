package kernel

import "math"

// BranchTolerance is the floor below which JC69Pmatrix returns the identity
// directly, matching core_pmatrix.c's "if (t < 1e-100)" fast-out.
const BranchTolerance = 1e-100

// Pmatrix computes P(t, mu) = V . diag(expm1(lambda*mu*t)) . V^-1 + I for a
// general rate matrix, row-major states x states (unpadded; the caller pads
// when writing into a locus partition's buffer). Using expm1 rather than
// exp(x)-1 keeps accuracy as lambda*t -> 0, per spec.md §4.4 and §9's
// "Numerical kernel" design note. branchLength must be >= 0.
func Pmatrix(rm *RateMatrix, branchLength, rateMultiplier float64) []float64 {
	states := rm.States
	p := make([]float64, states*states)
	if branchLength == 0 {
		for i := 0; i < states; i++ {
			p[i*states+i] = 1
		}
		return p
	}

	expd := make([]float64, states)
	for j, lambda := range rm.Eigenvals {
		expd[j] = math.Expm1(lambda * rateMultiplier * branchLength)
	}

	// P(t) = V . diag(expm1(lambda*t)) . V^-1 + I: temp = eigenvecs .*
	// expd (column-wise scale), then P = I + temp . inv_eigenvecs.
	temp := make([]float64, states*states)
	for j := 0; j < states; j++ {
		for k := 0; k < states; k++ {
			temp[j*states+k] = rm.Eigenvecs[j*states+k] * expd[k]
		}
	}
	for j := 0; j < states; j++ {
		for k := 0; k < states; k++ {
			acc := 0.0
			if j == k {
				acc = 1.0
			}
			for m := 0; m < states; m++ {
				acc += temp[j*states+m] * rm.InvEigenvecs[m*states+k]
			}
			p[j*states+k] = acc
		}
	}
	return p
}

// JC69Pmatrix computes the 4-state Jukes-Cantor transition matrix in closed
// form, the dedicated fast path spec.md §2 and §4.4 call out: diagonal
// a = 1 + 3/4*expm1(-4t/3), off-diagonal b = -1/4*expm1(-4t/3). Below
// BranchTolerance it returns the identity directly (bit-exact, per spec.md
// §8's testable property), matching pll_core_update_pmatrix_4x4_jc69.
func JC69Pmatrix(t float64) []float64 {
	p := make([]float64, 16)
	if t < BranchTolerance {
		for i := 0; i < 4; i++ {
			p[i*4+i] = 1
		}
		return p
	}
	exptm1 := math.Expm1(-4 * t / 3)
	a := 1 + 0.75*exptm1
	b := -exptm1 / 4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if i == j {
				p[i*4+j] = a
			} else {
				p[i*4+j] = b
			}
		}
	}
	return p
}

// RowStochasticError returns the maximum absolute deviation of any row sum
// of p (states x states, row-major) from 1, used by tests to check
// spec.md §8's "|1 - sum_j P_ij(t)| < 1e-10" invariant.
func RowStochasticError(p []float64, states int) float64 {
	maxErr := 0.0
	for i := 0; i < states; i++ {
		sum := 0.0
		for j := 0; j < states; j++ {
			sum += p[i*states+j]
		}
		if err := math.Abs(1 - sum); err > maxErr {
			maxErr = err
		}
	}
	return maxErr
}
