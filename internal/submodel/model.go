package submodel

import (
	"fmt"
	"math"

	"github.com/driverdx/dnds/internal/mutation"
)

// Parameterization selects how the 192 substitution types share rate
// parameters.
type Parameterization int

const (
	// Full192 gives every strand-oriented trinucleotide substitution type
	// its own rate.
	Full192 Parameterization = iota
	// Pooled12 pools types by reference and alternate base only.
	Pooled12
	// TsTv2 distinguishes transitions from transversions.
	TsTv2
)

// ParseParameterization maps the configuration values "192", "12" and "2".
func ParseParameterization(s string) (Parameterization, error) {
	switch s {
	case "192":
		return Full192, nil
	case "12":
		return Pooled12, nil
	case "2":
		return TsTv2, nil
	}
	return 0, fmt.Errorf("unknown substitution model %q (want 192, 12 or 2)", s)
}

func (p Parameterization) String() string {
	switch p {
	case Full192:
		return "192"
	case Pooled12:
		return "12"
	case TsTv2:
		return "2"
	case Single1:
		return "1"
	}
	return fmt.Sprintf("parameterization(%d)", int(p))
}

// NumRateClasses returns the number of free rate classes.
func (p Parameterization) NumRateClasses() int {
	switch p {
	case Full192:
		return NumSubtypes
	case Pooled12:
		return 12
	default:
		return 2
	}
}

// RateClass maps a substitution type to its rate class under this
// parameterization.
func (p Parameterization) RateClass(subtype int) int {
	switch p {
	case Full192:
		return subtype
	case Pooled12:
		tri := subtype / 3
		return ((tri/4)%4)*3 + subtype%3
	default:
		_, ref, _, alt := SubtypeBases(subtype)
		if IsTransition(ref, alt) {
			return 0
		}
		return 1
	}
}

// Opportunities is a gene's substitution-type by consequence-class site
// composition: Sites[j][c] counts the coding positions where a type-j
// substitution produces a class-c consequence. Derived purely from sequence,
// independent of observed mutations.
type Opportunities struct {
	Sites [NumSubtypes][mutation.NumSubClasses]float64
}

// Add accumulates o2 into o.
func (o *Opportunities) Add(o2 *Opportunities) {
	for j := range o.Sites {
		for c := range o.Sites[j] {
			o.Sites[j][c] += o2.Sites[j][c]
		}
	}
}

// CodingLength returns the number of coding positions covered: each position
// contributes its three possible substitutions.
func (o *Opportunities) CodingLength() float64 {
	t := 0.0
	for j := range o.Sites {
		for c := range o.Sites[j] {
			t += o.Sites[j][c]
		}
	}
	return t / 3
}

// Spectrum pools observed substitution counts and opportunities across genes,
// stratified by substitution type and consequence class.
type Spectrum struct {
	Count [NumSubtypes][mutation.NumSubClasses]float64
	Opp   Opportunities
}

// AddObservation counts one observed substitution.
func (s *Spectrum) AddObservation(subtype int, class mutation.Class) {
	if subtype >= 0 && subtype < NumSubtypes && class < mutation.NumSubClasses {
		s.Count[subtype][class]++
	}
}

// ClassTotals returns the total observed count per consequence class.
func (s *Spectrum) ClassTotals() [mutation.NumSubClasses]float64 {
	var t [mutation.NumSubClasses]float64
	for j := range s.Count {
		for c := range s.Count[j] {
			t[c] += s.Count[j][c]
		}
	}
	return t
}

// OmegaGrouping defines which nonsynonymous classes share a selection
// coefficient in the fit.
type OmegaGrouping [][]mutation.Class

var (
	// GroupPerClass fits separate wmis, wnon and wspl.
	GroupPerClass = OmegaGrouping{{mutation.ClassMissense}, {mutation.ClassNonsense}, {mutation.ClassSplice}}
	// GroupAllSubs fits a single coefficient over all nonsynonymous classes.
	GroupAllSubs = OmegaGrouping{{mutation.ClassMissense, mutation.ClassNonsense, mutation.ClassSplice}}
	// GroupTruncating fits wmis plus one shared truncating coefficient.
	GroupTruncating = OmegaGrouping{{mutation.ClassMissense}, {mutation.ClassNonsense, mutation.ClassSplice}}
)

// Model is a fitted substitution model: absolute per-site rates for all 192
// types plus global selection coefficients for the fitted omega groups.
// Immutable after fitting.
type Model struct {
	Param     Parameterization
	Groups    OmegaGrouping
	Rates     [NumSubtypes]float64
	Omega     []float64    // one per omega group
	OmegaSE   []float64    // standard error of log omega
	Fallback  []int        // rate classes with no observations, given the pooled rate
	LogLik    float64
	NumParams int
	Iters     int
}

// AIC returns the Akaike information criterion of the fit.
func (m *Model) AIC() float64 {
	return 2*float64(m.NumParams) - 2*m.LogLik
}

// Rate returns the fitted neutral rate for a substitution type.
func (m *Model) Rate(subtype int) float64 {
	return m.Rates[subtype]
}

// ExpectedByClass returns the neutral expected mutation counts per
// consequence class for a gene with the given opportunities.
func (m *Model) ExpectedByClass(opp *Opportunities) [mutation.NumSubClasses]float64 {
	var e [mutation.NumSubClasses]float64
	for j := range opp.Sites {
		r := m.Rates[j]
		for c := range opp.Sites[j] {
			e[c] += r * opp.Sites[j][c]
		}
	}
	return e
}

// OmegaCI returns the 95% Wald confidence interval for omega group i.
func (m *Model) OmegaCI(i int) (lo, hi float64) {
	const z = 1.959963984540054
	if m.Omega[i] <= 0 {
		return 0, math.Inf(1)
	}
	l := math.Log(m.Omega[i])
	return math.Exp(l - z*m.OmegaSE[i]), math.Exp(l + z*m.OmegaSE[i])
}

// Evaluate returns the Poisson log-likelihood of a spectrum under the fitted
// rates and selection coefficients, for cross-model comparison.
func (m *Model) Evaluate(s *Spectrum) float64 {
	omega := make([]float64, mutation.NumSubClasses)
	omega[mutation.ClassSynonymous] = 1
	for gi, g := range m.Groups {
		for _, c := range g {
			omega[c] = m.Omega[gi]
		}
	}

	ll := 0.0
	for j := range s.Count {
		for c := range s.Count[j] {
			l := s.Opp.Sites[j][c]
			if l <= 0 {
				continue
			}
			mu := m.Rates[j] * omega[c] * l
			n := s.Count[j][c]
			lg, _ := math.Lgamma(n + 1)
			if n > 0 && mu > 0 {
				ll += n * math.Log(mu)
			}
			ll += -mu - lg
		}
	}
	return ll
}
