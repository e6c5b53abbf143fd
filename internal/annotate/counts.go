package annotate

import (
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// GeneCounts is one gene's observed mutation counts per consequence class
// together with its opportunity matrix. Opportunities are a pure function of
// sequence composition and never depend on the observed counts.
type GeneCounts struct {
	GeneID string
	Obs    [mutation.NumClasses]int
	Opp    *submodel.Opportunities
}

// ObsSubstitutions returns the observed single-base substitution counts
// (synonymous, missense, nonsense, essential splice).
func (g *GeneCounts) ObsSubstitutions() [mutation.NumSubClasses]float64 {
	var o [mutation.NumSubClasses]float64
	for c := 0; c < mutation.NumSubClasses; c++ {
		o[c] = float64(g.Obs[c])
	}
	return o
}

// CodingLength returns the gene's covered coding length in bases.
func (g *GeneCounts) CodingLength() float64 {
	if g.Opp == nil {
		return 0
	}
	return g.Opp.CodingLength()
}

// Tables is the annotator's output: the per-gene count tables for the full
// analysis universe plus the retained and excluded mutation ledgers.
// Consumers treat Tables as read-only.
type Tables struct {
	Genes    []*GeneCounts // sorted by gene ID; exactly the analysis universe
	Spectrum *submodel.Spectrum

	Retained        []mutation.Annotated
	Excluded        []mutation.Excluded
	ExcludedSamples []string
	DuplicateEvents int
}

// Gene returns the count table for a gene, or nil.
func (t *Tables) Gene(id string) *GeneCounts {
	for _, g := range t.Genes {
		if g.GeneID == id {
			return g
		}
	}
	return nil
}
