package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/glm"
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/submodel"
)

// Regression is the cross-gene (dNdScv) estimator: a negative-binomial GLM
// of per-gene synonymous counts against the log expected synonymous
// opportunity offset and optional covariates, with a shared
// maximum-likelihood overdispersion theta.
type Regression struct {
	Covariates map[string][]float64
	Opts       Options
}

// Estimate implements RateEstimator.
func (r *Regression) Estimate(genes []*annotate.GeneCounts, model *submodel.Model) (*Fit, error) {
	ncov := 0
	for _, v := range r.Covariates {
		ncov = len(v)
		break
	}

	// Genes without synonymous opportunity cannot inform the regression;
	// they keep the global rate and are flagged downstream.
	var rows []*annotate.GeneCounts
	var expSyn []float64
	for _, g := range genes {
		e := model.ExpectedByClass(g.Opp)[mutation.ClassSynonymous]
		if e <= 0 {
			continue
		}
		rows = append(rows, g)
		expSyn = append(expSyn, e)
	}
	if len(rows) < ncov+2 {
		return nil, fmt.Errorf("background regression: %d usable genes for %d parameters", len(rows), ncov+1)
	}

	y := make([]float64, len(rows))
	offset := make([]float64, len(rows))
	x := mat.NewDense(len(rows), 1+ncov, nil)
	for i, g := range rows {
		y[i] = float64(g.Obs[mutation.ClassSynonymous])
		offset[i] = math.Log(expSyn[i])
		x.Set(i, 0, 1)
		if ncov > 0 {
			cov := r.Covariates[g.GeneID]
			for j := 0; j < ncov; j++ {
				if cov != nil {
					x.Set(i, 1+j, cov[j])
				}
			}
		}
	}

	res, err := glm.FitNegBin(y, x, offset, glm.Options(r.Opts))
	if err != nil {
		return nil, err
	}

	fit := &Fit{
		Mode:            "cv",
		Theta:           res.Theta,
		Coef:            res.Coef,
		DegenerateTheta: res.Theta < ThetaWarnThreshold,
		Genes:           make([]GeneRate, 0, len(genes)),
	}

	mu := make(map[string]float64, len(rows))
	for i, g := range rows {
		mu[g.GeneID] = res.Fitted[i] / expSyn[i]
	}
	for _, g := range genes {
		m, ok := mu[g.GeneID]
		if !ok {
			fit.Genes = append(fit.Genes, GeneRate{GeneID: g.GeneID, Mu: 1, Theta: 0})
			continue
		}
		fit.Genes = append(fit.Genes, GeneRate{GeneID: g.GeneID, Mu: m, Theta: res.Theta})
	}
	return fit, nil
}
