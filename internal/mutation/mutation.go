// Package mutation defines the mutation records flowing through the pipeline.
package mutation

import "fmt"

// Class is the coding consequence of a mutation.
type Class int

const (
	ClassSynonymous Class = iota
	ClassMissense
	ClassNonsense
	ClassSplice
	ClassIndel

	// NumClasses counts all consequence classes including indels.
	NumClasses = 5
	// NumSubClasses counts the single-base substitution classes
	// (synonymous, missense, nonsense, essential splice).
	NumSubClasses = 4
)

var classNames = [NumClasses]string{"synonymous", "missense", "nonsense", "essential_splice", "indel"}

func (c Class) String() string {
	if c < 0 || int(c) >= NumClasses {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

// ParseClass maps a consequence-class name to its Class value.
func ParseClass(s string) (Class, error) {
	for i, n := range classNames {
		if s == n {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown consequence class %q", s)
}

// Mutation is a single observed genomic event. Immutable once ingested.
type Mutation struct {
	SampleID string
	Chrom    string // chromosome name (e.g. "12", "chr12")
	Pos      int64  // 1-based genomic position
	Ref      string // reference allele
	Alt      string // mutant allele
}

// IsSNV returns true if the mutation is a single nucleotide variant.
func (m *Mutation) IsSNV() bool {
	return len(m.Ref) == 1 && len(m.Alt) == 1
}

// IsIndel returns true if the mutation is an insertion or deletion.
func (m *Mutation) IsIndel() bool {
	return len(m.Ref) != len(m.Alt)
}

// NormalizeChrom returns the chromosome name without "chr" prefix.
func (m *Mutation) NormalizeChrom() string {
	if len(m.Chrom) > 3 && m.Chrom[:3] == "chr" {
		return m.Chrom[3:]
	}
	return m.Chrom
}

// EventKey identifies the genomic event independent of sample, used to
// detect the same mutation reported in multiple samples.
func (m *Mutation) EventKey() string {
	return fmt.Sprintf("%s:%d:%s>%s", m.NormalizeChrom(), m.Pos, m.Ref, m.Alt)
}

// Key identifies the mutation including its sample of origin.
func (m *Mutation) Key() string {
	return m.SampleID + ":" + m.EventKey()
}

// Annotated is a mutation with its gene, substitution-type and consequence
// assignment attached.
type Annotated struct {
	Mutation
	GeneID  string
	Subtype int // strand-oriented trinucleotide substitution type (0..191), -1 for indels
	Class   Class
}

// ExclusionReason says why a mutation was dropped from the analysis.
type ExclusionReason int

const (
	ReasonDuplicate ExclusionReason = iota
	ReasonHypermutator
	ReasonOvercap
	ReasonUnannotated
)

var reasonNames = [...]string{"duplicate", "hypermutator", "overcap", "unannotated"}

func (r ExclusionReason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return reasonNames[r]
}

// Excluded records a dropped mutation together with its exclusion reason.
type Excluded struct {
	Mutation
	Reason ExclusionReason
}
