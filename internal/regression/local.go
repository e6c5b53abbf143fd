package regression

import (
	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// Local is the per-gene (dNdSloc) estimator: each gene's background rate is
// its own synonymous count over its expected synonymous opportunity, with no
// information shared across genes.
type Local struct{}

// Estimate implements RateEstimator.
func (l *Local) Estimate(genes []*annotate.GeneCounts, model *submodel.Model) (*Fit, error) {
	fit := &Fit{Mode: "loc", Genes: make([]GeneRate, 0, len(genes))}
	for _, g := range genes {
		e := model.ExpectedByClass(g.Opp)[mutation.ClassSynonymous]
		gr := GeneRate{GeneID: g.GeneID, Mu: 1, Theta: 0}
		if e > 0 {
			gr.Mu = float64(g.Obs[mutation.ClassSynonymous]) / e
		}
		fit.Genes = append(fit.Genes, gr)
	}
	return fit, nil
}
