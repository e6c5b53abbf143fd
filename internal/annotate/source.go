package annotate

import (
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// Site is the annotation of a single point substitution: the gene it hits,
// its strand-oriented trinucleotide substitution type and its coding
// consequence.
type Site struct {
	GeneID  string
	Subtype int
	Class   mutation.Class
}

// SiteSource resolves genomic positions to coding annotations. It is the
// external annotation collaborator: position-to-transcript resolution,
// trinucleotide lookup and consequence typing happen behind this interface.
type SiteSource interface {
	// Lookup annotates the substitution ref>alt at chrom:pos.
	// ok is false when the position maps to no known coding site.
	Lookup(chrom string, pos int64, ref, alt byte) (Site, bool)

	// GeneAt returns the gene covering chrom:pos, used for indels.
	GeneAt(chrom string, pos int64) (string, bool)
}

// OpportunitySource provides each gene's substitution opportunity matrix,
// derived from reference sequence composition alone.
type OpportunitySource interface {
	Opportunities(geneID string) (*submodel.Opportunities, bool)

	// Genes lists every gene the reference covers, defining the default
	// analysis universe.
	Genes() []string
}
