package submodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/driverdx/dnds/internal/glm"
	"github.com/driverdx/dnds/internal/mutation"
)

// Single1 is the trivial single-rate model fitted alongside the configured
// parameterization for AIC comparison. It is not a user-selectable choice.
const Single1 Parameterization = -1

// FitOptions bound the maximum-likelihood optimization.
type FitOptions struct {
	MaxIter int
	Tol     float64
}

// Fit estimates the substitution model by maximum likelihood: a Poisson GLM
// over the spectrum's type-by-class cells with log-opportunity offsets, rate
// class indicators and one selection coefficient per omega group.
//
// Cells with zero opportunity are excluded. Rate classes with opportunities
// but no observations anywhere are excluded from the optimization and fall
// back to the pooled synonymous rate. Non-convergence within the iteration
// budget returns *glm.ConvergenceError.
func Fit(s *Spectrum, param Parameterization, groups OmegaGrouping, opts FitOptions) (*Model, error) {
	nRate := 1
	if param != Single1 {
		nRate = param.NumRateClasses()
	}
	rateOf := func(subtype int) int {
		if param == Single1 {
			return 0
		}
		return param.RateClass(subtype)
	}

	// Per-rate-class observation and opportunity totals.
	classCount := make([]float64, nRate)
	classOpp := make([]float64, nRate)
	for j := 0; j < NumSubtypes; j++ {
		r := rateOf(j)
		for c := 0; c < mutation.NumSubClasses; c++ {
			classCount[r] += s.Count[j][c]
			classOpp[r] += s.Opp.Sites[j][c]
		}
	}

	// Pooled neutral rate, the fallback for unobserved classes.
	synCount, synOpp := 0.0, 0.0
	for j := 0; j < NumSubtypes; j++ {
		synCount += s.Count[j][mutation.ClassSynonymous]
		synOpp += s.Opp.Sites[j][mutation.ClassSynonymous]
	}
	if synOpp <= 0 {
		return nil, fmt.Errorf("substitution model fit: no synonymous opportunity in input")
	}
	pooled := synCount / synOpp

	var fallback []int
	fitted := make([]bool, nRate)
	baseline := -1
	for r := 0; r < nRate; r++ {
		switch {
		case classOpp[r] <= 0:
			// No such sites exist in the reference; rate is irrelevant
			// but keep it defined.
			fallback = append(fallback, r)
		case classCount[r] == 0:
			fallback = append(fallback, r)
		default:
			fitted[r] = true
			if baseline < 0 {
				baseline = r
			}
		}
	}
	if baseline < 0 {
		return nil, fmt.Errorf("substitution model fit: no observed substitutions")
	}

	// Column layout: intercept, rate class dummies (baseline omitted),
	// one omega dummy per group.
	col := make([]int, nRate)
	p := 1
	for r := 0; r < nRate; r++ {
		col[r] = -1
		if fitted[r] && r != baseline {
			col[r] = p
			p++
		}
	}
	omegaCol := make([]int, len(groups))
	groupOf := make([]int, mutation.NumSubClasses)
	for c := range groupOf {
		groupOf[c] = -1
	}
	for gi, g := range groups {
		omegaCol[gi] = p
		p++
		for _, c := range g {
			groupOf[c] = gi
		}
	}

	var y, offset []float64
	var rows [][2]int
	for j := 0; j < NumSubtypes; j++ {
		r := rateOf(j)
		if !fitted[r] {
			continue
		}
		for c := 0; c < mutation.NumSubClasses; c++ {
			if s.Opp.Sites[j][c] <= 0 {
				continue
			}
			y = append(y, s.Count[j][c])
			offset = append(offset, math.Log(s.Opp.Sites[j][c]))
			rows = append(rows, [2]int{j, c})
		}
	}

	x := mat.NewDense(len(y), p, nil)
	for i, rc := range rows {
		j, c := rc[0], rc[1]
		x.Set(i, 0, 1)
		if cc := col[rateOf(j)]; cc >= 0 {
			x.Set(i, cc, 1)
		}
		if gi := groupOf[c]; gi >= 0 {
			x.Set(i, omegaCol[gi], 1)
		}
	}

	res, err := glm.FitPoisson(y, x, offset, glm.Options{MaxIter: opts.MaxIter, Tol: opts.Tol})
	if err != nil {
		return nil, err
	}

	m := &Model{
		Param:     param,
		Groups:    groups,
		Omega:     make([]float64, len(groups)),
		OmegaSE:   make([]float64, len(groups)),
		Fallback:  fallback,
		LogLik:    res.LogLik,
		NumParams: p,
		Iters:     res.Iters,
	}
	for j := 0; j < NumSubtypes; j++ {
		r := rateOf(j)
		if !fitted[r] {
			m.Rates[j] = pooled
			continue
		}
		eta := res.Coef[0]
		if cc := col[r]; cc >= 0 {
			eta += res.Coef[cc]
		}
		m.Rates[j] = math.Exp(eta)
	}
	for gi := range groups {
		m.Omega[gi] = math.Exp(res.Coef[omegaCol[gi]])
		m.OmegaSE[gi] = res.StdErr(omegaCol[gi])
	}
	return m, nil
}
