package glm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitPoisson fits a log-link Poisson GLM by IRLS.
// y holds the observed counts, x the n×p design matrix and offset the
// per-observation log-exposure.
func FitPoisson(y []float64, x *mat.Dense, offset []float64, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	n, p := x.Dims()
	if len(y) != n || len(offset) != n {
		return nil, fmt.Errorf("poisson glm: dimension mismatch (n=%d, y=%d, offset=%d)", n, len(y), len(offset))
	}

	// Start from the saturated-ish means mu = y + 0.5, which tolerates
	// zero counts in rare contexts.
	eta := make([]float64, n)
	mu := make([]float64, n)
	for i := range y {
		mu[i] = y[i] + 0.5
		eta[i] = math.Log(mu[i])
	}

	w := make([]float64, n)
	z := make([]float64, n)
	var beta []float64
	var cov *mat.SymDense
	ll := math.Inf(-1)

	for iter := 1; iter <= opts.MaxIter; iter++ {
		for i := range y {
			w[i] = mu[i]
			z[i] = eta[i] - offset[i] + (y[i]-mu[i])/mu[i]
		}

		var err error
		beta, cov, err = wlsSolve(x, w, z)
		if err != nil {
			return nil, fmt.Errorf("poisson glm: %w", err)
		}

		for i := range y {
			s := offset[i]
			for j := 0; j < p; j++ {
				s += x.At(i, j) * beta[j]
			}
			eta[i] = s
			mu[i] = linkInv(s)
		}

		prev := ll
		ll = poissonLogLik(y, mu)
		if iter > 1 && math.Abs(ll-prev) < opts.Tol*(math.Abs(ll)+0.1) {
			return &Result{Coef: beta, Cov: cov, Fitted: mu, LogLik: ll, Iters: iter}, nil
		}
	}

	return nil, &ConvergenceError{Stage: "poisson glm", Iters: opts.MaxIter}
}

func poissonLogLik(y, mu []float64) float64 {
	ll := 0.0
	for i := range y {
		lg, _ := math.Lgamma(y[i] + 1)
		if y[i] > 0 {
			ll += y[i] * math.Log(mu[i])
		}
		ll += -mu[i] - lg
	}
	return ll
}
