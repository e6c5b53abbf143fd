// Package glm implements the iteratively reweighted least squares fits used
// by the substitution-model and background-rate estimators: a log-link
// Poisson GLM and a negative-binomial GLM with jointly estimated
// overdispersion.
package glm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Options bound the iterative maximization. Zero values select the defaults.
type Options struct {
	MaxIter int     // iteration budget (default 50)
	Tol     float64 // relative log-likelihood tolerance (default 1e-8)
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 50
	}
	if o.Tol <= 0 {
		o.Tol = 1e-8
	}
	return o
}

// ConvergenceError reports an optimizer that exhausted its iteration budget.
// It is fatal to the run: downstream estimates computed from a non-converged
// fit would be invalid.
type ConvergenceError struct {
	Stage string
	Iters int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: no convergence after %d iterations", e.Stage, e.Iters)
}

// Result holds a converged GLM fit.
type Result struct {
	Coef   []float64
	Cov    *mat.SymDense // coefficient covariance, inverse Fisher information
	Fitted []float64     // fitted means per observation
	LogLik float64
	Iters  int
}

// StdErr returns the standard error of coefficient i.
func (r *Result) StdErr(i int) float64 {
	return math.Sqrt(r.Cov.At(i, i))
}

// linkInv is the log-link inverse with clamping against overflow.
func linkInv(eta float64) float64 {
	if eta > 30 {
		eta = 30
	} else if eta < -30 {
		eta = -30
	}
	return math.Exp(eta)
}

// wlsSolve solves the weighted least-squares step of IRLS:
// beta = (X'WX)^-1 X'Wz, also returning the inverted information matrix.
func wlsSolve(x *mat.Dense, w, z []float64) ([]float64, *mat.SymDense, error) {
	n, p := x.Dims()

	xtwx := mat.NewSymDense(p, nil)
	xtwz := make([]float64, p)
	for i := 0; i < n; i++ {
		wi := w[i]
		if wi <= 0 {
			continue
		}
		for a := 0; a < p; a++ {
			xa := x.At(i, a)
			if xa == 0 {
				continue
			}
			xtwz[a] += wi * xa * z[i]
			for b := a; b < p; b++ {
				xtwx.SetSym(a, b, xtwx.At(a, b)+wi*xa*x.At(i, b))
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(xtwx); !ok {
		return nil, nil, fmt.Errorf("singular information matrix (collinear design or empty rate class)")
	}

	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, mat.NewVecDense(p, xtwz)); err != nil {
		return nil, nil, fmt.Errorf("solving IRLS step: %w", err)
	}

	cov := mat.NewSymDense(p, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, nil, fmt.Errorf("inverting information matrix: %w", err)
	}

	out := make([]float64, p)
	copy(out, beta.RawVector().Data)
	return out, cov, nil
}
