// Package regression estimates per-gene background mutation rates. Two
// interchangeable strategies implement RateEstimator: Regression borrows
// strength across genes through a negative-binomial GLM (the cv mode), Local
// uses only each gene's own synonymous count (the loc mode).
package regression

import (
	"fmt"

	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/submodel"
)

// GeneRate is the background-rate information for one gene: the predicted
// rate multiplier relative to the global expectation, and the prior weight
// theta controlling how strongly the prediction shrinks the gene's own
// synonymous count. Theta zero means no borrowing at all.
type GeneRate struct {
	GeneID string
	Mu     float64 // predicted rate multiplier (1 = exactly the global rate)
	Theta  float64
}

// Fit is an estimator's output across the gene universe. Immutable.
type Fit struct {
	Mode  string // "cv" or "loc"
	Theta float64
	Coef  []float64 // intercept + covariate coefficients (cv mode)
	Genes []GeneRate

	// DegenerateTheta is set when theta fell below the sanity threshold:
	// genes vary more than the Gamma-rate assumption allows and q-values
	// should be interpreted with care. Surfaced, never clamped.
	DegenerateTheta bool
}

// ThetaWarnThreshold is the overdispersion level below which a fit is
// flagged as degenerate.
const ThetaWarnThreshold = 1.0

// Rate returns the background rate for a gene, defaulting to the global rate
// with no prior weight for genes the estimator never saw.
func (f *Fit) Rate(geneID string) GeneRate {
	for i := range f.Genes {
		if f.Genes[i].GeneID == geneID {
			return f.Genes[i]
		}
	}
	return GeneRate{GeneID: geneID, Mu: 1, Theta: 0}
}

// Options bound the iterative fits.
type Options struct {
	MaxIter int
	Tol     float64
}

// RateEstimator estimates per-gene background synonymous rates under a
// fitted substitution model.
type RateEstimator interface {
	Estimate(genes []*annotate.GeneCounts, model *submodel.Model) (*Fit, error)
}

// New returns the estimator for a configuration mode.
func New(mode string, covariates map[string][]float64, opts Options) (RateEstimator, error) {
	switch mode {
	case "cv", "":
		return &Regression{Covariates: covariates, Opts: opts}, nil
	case "loc":
		return &Local{}, nil
	}
	return nil, fmt.Errorf("unknown estimator mode %q (want cv or loc)", mode)
}
