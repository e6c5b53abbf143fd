// Package submodel implements the trinucleotide-context substitution model:
// the 192 strand-oriented substitution types, their pooled 12-rate and
// 2-rate (transition/transversion) groupings, and maximum-likelihood fitting
// of the per-type rates together with global selection coefficients.
package submodel

// NumSubtypes is the number of strand-oriented trinucleotide substitution
// types: 64 trinucleotides times 3 alternative middle bases.
const NumSubtypes = 192

// NumCollapsed is the number of pyrimidine-strand (unordered) classes.
const NumCollapsed = 96

var baseIndex = [256]int8{}
var bases = [4]byte{'A', 'C', 'G', 'T'}
var complement = [4]int{3, 2, 1, 0}

func init() {
	for i := range baseIndex {
		baseIndex[i] = -1
	}
	for i, b := range bases {
		baseIndex[b] = int8(i)
		baseIndex[b+'a'-'A'] = int8(i)
	}
}

// BaseIndex maps A/C/G/T (either case) to 0..3, anything else to -1.
func BaseIndex(b byte) int {
	return int(baseIndex[b])
}

// SubtypeIndex returns the substitution-type index for a point substitution
// ref>alt inside the trinucleotide up-ref-down, or -1 if any base is not
// A/C/G/T or ref equals alt.
func SubtypeIndex(up, ref, down, alt byte) int {
	u, r, d, a := BaseIndex(up), BaseIndex(ref), BaseIndex(down), BaseIndex(alt)
	if u < 0 || r < 0 || d < 0 || a < 0 || r == a {
		return -1
	}
	return subtypeFromIndices(u, r, d, a)
}

func subtypeFromIndices(u, r, d, a int) int {
	rank := a
	if a > r {
		rank--
	}
	return (u*16+r*4+d)*3 + rank
}

// SubtypeBases decomposes a substitution-type index into its four bases.
func SubtypeBases(subtype int) (up, ref, down, alt byte) {
	tri := subtype / 3
	rank := subtype % 3
	u, r, d := tri/16, (tri/4)%4, tri%4
	a := rank
	if a >= r {
		a++
	}
	return bases[u], bases[r], bases[d], bases[a]
}

// SubtypeString formats a substitution type as e.g. "A[C>T]G".
func SubtypeString(subtype int) string {
	up, ref, down, alt := SubtypeBases(subtype)
	return string([]byte{up, '[', ref, '>', alt, ']', down})
}

// ParseSubtype parses the "A[C>T]G" notation back to a substitution-type
// index, returning -1 on malformed input.
func ParseSubtype(s string) int {
	if len(s) != 7 || s[1] != '[' || s[3] != '>' || s[5] != ']' {
		return -1
	}
	return SubtypeIndex(s[0], s[2], s[6], s[4])
}

// IsTransition reports whether ref>alt is a transition (A<>G or C<>T).
func IsTransition(ref, alt byte) bool {
	r, a := BaseIndex(ref), BaseIndex(alt)
	if r < 0 || a < 0 {
		return false
	}
	return r != a && r%2 == a%2
}

// Collapse maps a substitution type onto its pyrimidine-strand class
// (0..95): types with a purine reference are reverse complemented first.
func Collapse(subtype int) int {
	return collapseTable[subtype]
}

var collapseTable [NumSubtypes]int

func init() {
	// Pyrimidine-middle subtypes keep their relative order; purine-middle
	// subtypes map to the class of their reverse complement.
	rank := 0
	pyr := map[int]int{}
	for j := 0; j < NumSubtypes; j++ {
		tri := j / 3
		r := (tri / 4) % 4
		if bases[r] == 'C' || bases[r] == 'T' {
			pyr[j] = rank
			rank++
		}
	}
	for j := 0; j < NumSubtypes; j++ {
		if c, ok := pyr[j]; ok {
			collapseTable[j] = c
			continue
		}
		tri := j / 3
		u, r, d := tri/16, (tri/4)%4, tri%4
		_, _, _, alt := SubtypeBases(j)
		rc := subtypeFromIndices(complement[d], complement[r], complement[u], complement[BaseIndex(alt)])
		collapseTable[j] = pyr[rc]
	}
}
