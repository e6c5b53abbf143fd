// Package pipeline wires the analysis stages together: annotation, global
// rate fitting, background regression, and the selection tests. Each stage
// takes the fitted parameters it needs as explicit inputs and returns a new
// immutable result; nothing mutates an earlier stage's output.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/regression"
	"github.com/driverdx/dnds/internal/selection"
	"github.com/driverdx/dnds/internal/submodel"
)

// Config is the full analysis configuration.
type Config struct {
	SubstitutionModel string // rate parameterization: "192", "12" or "2"
	Estimator         string // background estimator: "cv" or "loc"

	GeneList      []string
	TargetedPanel bool

	MaxMutsPerGenePerSample int     // ≤0 disables
	MaxCodingMutsPerSample  int     // ≤0 disables
	OutlierThreshold        float64 // multiple of cohort median burden; ≤0 disables

	Workers int
	MaxIter int
	Tol     float64
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		SubstitutionModel:       "192",
		Estimator:               "cv",
		MaxMutsPerGenePerSample: 3,
		MaxCodingMutsPerSample:  3000,
		OutlierThreshold:        5,
		MaxIter:                 50,
		Tol:                     1e-8,
	}
}

// Result is the complete, immutable output of a run.
type Result struct {
	Tables    *annotate.Tables
	Model     *submodel.Model
	NullModel *submodel.Model
	RateFit   *regression.Fit
	Genes     []selection.GeneResult
	Global    *selection.GlobalResult
	IndelRate float64
	Warnings  []string
}

// Run executes the full pipeline. It either returns complete result tables
// or fails with a named error before any selection output exists; fitting
// failures are fatal because every downstream estimate depends on them.
func Run(muts []mutation.Mutation, sites annotate.SiteSource, opps annotate.OpportunitySource,
	cov *mutation.Covariates, cfg Config, logger *zap.Logger) (*Result, error) {

	if logger == nil {
		logger = zap.NewNop()
	}

	param, err := submodel.ParseParameterization(cfg.SubstitutionModel)
	if err != nil {
		return nil, &annotate.ConfigurationError{Msg: err.Error()}
	}

	ann := annotate.NewAnnotator(sites, opps)
	ann.SetLogger(logger)
	tables, err := ann.Annotate(muts, annotate.Options{
		GeneList:                cfg.GeneList,
		TargetedPanel:           cfg.TargetedPanel,
		MaxMutsPerGenePerSample: cfg.MaxMutsPerGenePerSample,
		MaxCodingMutsPerSample:  cfg.MaxCodingMutsPerSample,
		OutlierThreshold:        cfg.OutlierThreshold,
		Workers:                 cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Tables: tables}
	if tables.DuplicateEvents > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d duplicate genomic events excluded; check for repeated samples", tables.DuplicateEvents))
	}

	fitOpts := submodel.FitOptions{MaxIter: cfg.MaxIter, Tol: cfg.Tol}
	model, err := submodel.Fit(tables.Spectrum, param, submodel.GroupPerClass, fitOpts)
	if err != nil {
		return nil, fmt.Errorf("substitution model fit: %w", err)
	}
	nullModel, err := submodel.Fit(tables.Spectrum, submodel.Single1, submodel.GroupPerClass, fitOpts)
	if err != nil {
		return nil, fmt.Errorf("single-rate model fit: %w", err)
	}
	res.Model, res.NullModel = model, nullModel
	if n := len(model.Fallback); n > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d rate classes had no observations and use the pooled rate", n))
	}
	logger.Info("substitution model fitted",
		zap.String("model", param.String()),
		zap.Float64("aic", model.AIC()),
		zap.Float64("aic_single_rate", nullModel.AIC()))

	var covMap map[string][]float64
	if cov != nil {
		covMap = cov.Values
	}
	est, err := regression.New(cfg.Estimator, covMap, regression.Options{MaxIter: cfg.MaxIter, Tol: cfg.Tol})
	if err != nil {
		return nil, &annotate.ConfigurationError{Msg: err.Error()}
	}
	rateFit, err := est.Estimate(tables.Genes, model)
	if err != nil {
		return nil, fmt.Errorf("background rate estimation: %w", err)
	}
	res.RateFit = rateFit
	if rateFit.DegenerateTheta {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("overdispersion theta=%.3g below %v: genes vary more than the model assumes; q-values may be unreliable",
				rateFit.Theta, regression.ThetaWarnThreshold))
	}
	if rateFit.Mode == "cv" {
		logger.Info("background regression fitted", zap.Float64("theta", rateFit.Theta))
	}

	res.IndelRate = indelRate(tables)

	engine := &selection.Engine{Model: model, Rates: rateFit, IndelRate: res.IndelRate, Workers: cfg.Workers}
	res.Genes = engine.Run(tables.Genes)

	global, err := selection.GlobalDnds(tables.Spectrum, param, fitOpts)
	if err != nil {
		return nil, fmt.Errorf("global dN/dS: %w", err)
	}
	res.Global = global

	for _, w := range res.Warnings {
		logger.Warn(w)
	}
	return res, nil
}

// indelRate pools retained indels over the universe coding length.
func indelRate(t *annotate.Tables) float64 {
	length := 0.0
	indels := 0
	for _, g := range t.Genes {
		length += g.CodingLength()
		indels += g.Obs[mutation.ClassIndel]
	}
	if length <= 0 {
		return 0
	}
	return float64(indels) / length
}
