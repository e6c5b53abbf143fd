package selection

import (
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/driverdx/dnds/internal/annotate"
	"github.com/driverdx/dnds/internal/mutation"
	"github.com/driverdx/dnds/internal/regression"
	"github.com/driverdx/dnds/internal/submodel"
)

// tFloor keeps the profiled rate multiplier strictly positive.
const tFloor = 1e-10

// Engine runs the per-gene likelihood-ratio tests. All fields are read-only
// while Run executes, so per-gene work parallelizes freely.
type Engine struct {
	Model     *submodel.Model
	Rates     *regression.Fit
	IndelRate float64 // pooled indels per coding base among retained mutations
	Workers   int
}

// Run tests every gene and returns results sorted by gene ID with q-values
// filled in. Genes with no opportunity are retained as degenerate rows.
func (e *Engine) Run(genes []*annotate.GeneCounts) []GeneResult {
	results := make([]GeneResult, len(genes))

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range genes {
		g.Go(func() error {
			results[i] = e.testGene(genes[i])
			return nil
		})
	}
	g.Wait() // workers never return errors; degenerate genes yield p=1 rows

	sort.Slice(results, func(a, b int) bool { return results[a].GeneID < results[b].GeneID })
	adjust(results)
	return results
}

// hypothesis describes which omega parameters are free: each entry is a
// group of classes sharing one free coefficient; everything else is fixed
// at omega = 1.
type hypothesis [][]mutation.Class

func (h hypothesis) df() int { return len(h) }

var (
	hypNull     = hypothesis{}
	hypMisFree  = hypothesis{{mutation.ClassMissense}}
	hypNonFree  = hypothesis{{mutation.ClassNonsense}}
	hypSplFree  = hypothesis{{mutation.ClassSplice}}
	hypTruFree  = hypothesis{{mutation.ClassNonsense, mutation.ClassSplice}}
	hypAllFree  = hypothesis{{mutation.ClassMissense, mutation.ClassNonsense, mutation.ClassSplice}}
	hypFull     = hypothesis{{mutation.ClassMissense}, {mutation.ClassNonsense, mutation.ClassSplice}}
)

// profile maximizes the per-gene log-likelihood under a hypothesis, with the
// background rate multiplier t profiled out in closed form. The Gamma(theta)
// prior from the regression enters as theta pseudo-synonymous counts:
// t = (sum x_fixed + theta) / (sum E_fixed + theta/mu). A free group's
// maximized contribution is independent of t, so the profile is exact.
func profile(x, ex [mutation.NumSubClasses]float64, prior regression.GeneRate, h hypothesis) (ll float64, omega []float64, t float64) {
	free := [mutation.NumSubClasses]int{}
	for c := range free {
		free[c] = -1
	}
	for gi, grp := range h {
		for _, c := range grp {
			free[c] = gi
		}
	}

	// Rate multiplier from the omega-fixed classes plus the prior.
	xr, er := 0.0, 0.0
	for c := 0; c < mutation.NumSubClasses; c++ {
		if free[c] < 0 {
			xr += x[c]
			er += ex[c]
		}
	}
	num, den := xr, er
	if prior.Theta > 0 {
		num += prior.Theta
		den += prior.Theta / math.Max(prior.Mu, tFloor)
	}
	t = tFloor
	if den > 0 {
		t = math.Max(num/den, tFloor)
	}

	// Fixed-class Poisson terms (log-gamma constants cancel in the LRT).
	for c := 0; c < mutation.NumSubClasses; c++ {
		if free[c] >= 0 {
			continue
		}
		mu := t * ex[c]
		if x[c] > 0 && mu > 0 {
			ll += x[c] * math.Log(mu)
		}
		ll -= mu
	}

	// Free groups: omega-hat = X/(t E'), whose contribution reduces to a
	// t-independent closed form.
	omega = make([]float64, len(h))
	for gi, grp := range h {
		sx, se, sxlog := 0.0, 0.0, 0.0
		for _, c := range grp {
			sx += x[c]
			se += ex[c]
			if x[c] > 0 && ex[c] > 0 {
				sxlog += x[c] * math.Log(ex[c])
			}
		}
		if sx <= 0 || se <= 0 {
			omega[gi] = 0
			continue
		}
		omega[gi] = sx / (t * se)
		ll += sxlog + sx*math.Log(sx/se) - sx
	}

	if prior.Theta > 0 {
		ll += prior.Theta*math.Log(t) - prior.Theta/math.Max(prior.Mu, tFloor)*t
	}
	return ll, omega, t
}

// lrt converts twice the log-likelihood gain into a chi-squared p-value.
func lrt(llAlt, llNull float64, df int) float64 {
	stat := 2 * (llAlt - llNull)
	if stat < 0 {
		stat = 0 // numerical guard; the null is nested in the alternative
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(stat)
}

func (e *Engine) testGene(g *annotate.GeneCounts) GeneResult {
	r := GeneResult{GeneID: g.GeneID, Obs: g.Obs}
	r.Expected = e.Model.ExpectedByClass(g.Opp)
	r.ExpInd = e.IndelRate * g.CodingLength()

	total := 0.0
	for _, v := range r.Expected {
		total += v
	}
	if total <= 0 {
		r.Degenerate = true
		r.Pmis, r.Ptrunc, r.Pallsubs, r.Pind, r.Pglobal = 1, 1, 1, 1, 1
		return r
	}

	x := g.ObsSubstitutions()
	prior := e.Rates.Rate(g.GeneID)

	llNull, _, tNull := profile(x, r.Expected, prior, hypNull)
	llFull, _, _ := profile(x, r.Expected, prior, hypFull)
	llMis, _, _ := profile(x, r.Expected, prior, hypTruFree) // wmis fixed, trunc free
	llTru, _, _ := profile(x, r.Expected, prior, hypMisFree) // trunc fixed, wmis free

	_, wm, _ := profile(x, r.Expected, prior, hypMisFree)
	_, wn, _ := profile(x, r.Expected, prior, hypNonFree)
	_, ws, _ := profile(x, r.Expected, prior, hypSplFree)
	_, wt, _ := profile(x, r.Expected, prior, hypTruFree)
	_, wa, _ := profile(x, r.Expected, prior, hypAllFree)
	r.Wmis, r.Wnon, r.Wspl, r.Wtru, r.Wall = wm[0], wn[0], ws[0], wt[0], wa[0]

	r.Pmis = lrt(llFull, llMis, 1)
	r.Ptrunc = lrt(llFull, llTru, 1)
	r.Pallsubs = lrt(llFull, llNull, hypFull.df())

	// Indel test: simple counting against the gene's length-scaled share
	// of the pooled indel rate, at the null background multiplier.
	r.Wind, r.Pind = e.indelTest(float64(g.Obs[mutation.ClassIndel]), r.ExpInd, tNull)

	// Global test: Fisher combination of the substitution and indel tests.
	fisher := -2 * (math.Log(r.Pallsubs) + math.Log(r.Pind))
	r.Pglobal = distuv.ChiSquared{K: 4}.Survival(fisher)

	return r
}

func (e *Engine) indelTest(xInd, eInd, t float64) (wind, p float64) {
	if eInd <= 0 {
		return 0, 1
	}
	mu := t * eInd
	wind = xInd / mu
	llNull := -mu
	if xInd > 0 {
		llNull += xInd * math.Log(mu)
	}
	llAlt := 0.0
	if xInd > 0 {
		llAlt = xInd*math.Log(xInd) - xInd
	}
	return wind, lrt(llAlt, llNull, 1)
}

// adjust fills the q-value columns with BH-corrected p-values across the
// whole universe, independently per test.
func adjust(rs []GeneResult) {
	cols := []struct {
		p func(*GeneResult) float64
		q func(*GeneResult, float64)
	}{
		{func(r *GeneResult) float64 { return r.Pmis }, func(r *GeneResult, q float64) { r.Qmis = q }},
		{func(r *GeneResult) float64 { return r.Ptrunc }, func(r *GeneResult, q float64) { r.Qtrunc = q }},
		{func(r *GeneResult) float64 { return r.Pallsubs }, func(r *GeneResult, q float64) { r.Qallsubs = q }},
		{func(r *GeneResult) float64 { return r.Pind }, func(r *GeneResult, q float64) { r.Qind = q }},
		{func(r *GeneResult) float64 { return r.Pglobal }, func(r *GeneResult, q float64) { r.Qglobal = q }},
	}
	for _, col := range cols {
		p := make([]float64, len(rs))
		for i := range rs {
			p[i] = col.p(&rs[i])
		}
		q := BenjaminiHochberg(p)
		for i := range rs {
			col.q(&rs[i], q[i])
		}
	}
}
