package locus

// StateMap is a caller-provided 256-entry residue-to-state-bitset table, per
// spec.md §6's "characters are mapped through a caller-provided 256-entry
// table (nucleotide or fasta mapping)". Bit k set in StateMap[c] means
// residue byte c is consistent with state k; ambiguity codes set multiple
// bits. A zero entry marks an illegal residue.
type StateMap [256]uint32

// NucleotideMap is the standard 4-state nucleotide residue map (A, C, G, T),
// including IUPAC ambiguity codes and gap/missing-data characters mapped to
// the fully-ambiguous state, the input the dedicated JC69 fast path expects.
var NucleotideMap = buildNucleotideMap()

func buildNucleotideMap() StateMap {
	var m StateMap
	set := func(residues string, bits uint32) {
		for _, c := range []byte(residues) {
			m[c] = bits
			m[lowerByte(c)] = bits
		}
	}
	const (
		A = 1 << 0
		C = 1 << 1
		G = 1 << 2
		T = 1 << 3
	)
	set("A", A)
	set("C", C)
	set("G", G)
	set("TU", T)
	set("R", A|G)
	set("Y", C|T)
	set("S", C|G)
	set("W", A|T)
	set("K", G|T)
	set("M", A|C)
	set("B", C|G|T)
	set("D", A|G|T)
	set("H", A|C|T)
	set("V", A|C|G)
	set("N?-X", A|C|G|T)
	return m
}

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c - 'A' + 'a'
	}
	return c
}

// BitsetToCLV expands a state bitset into a dense per-state CLV component,
// "(c >> k) & 1 over states" per spec.md §4.4's tip-encoding rule.
func BitsetToCLV(bits uint32, states int, out []float64) {
	for k := 0; k < states; k++ {
		if bits&(1<<uint(k)) != 0 {
			out[k] = 1
		} else {
			out[k] = 0
		}
	}
}

// PopCount counts the set bits among the low `states` bits of bits, used to
// detect illegal (zero) residues.
func PopCount(bits uint32, states int) int {
	n := 0
	mask := uint32(1)<<uint(states) - 1
	bits &= mask
	for bits != 0 {
		n += int(bits & 1)
		bits >>= 1
	}
	return n
}
