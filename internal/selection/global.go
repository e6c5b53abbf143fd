package selection

import (
	"github.com/driverdx/dnds/internal/submodel"
)

// GlobalDnds computes the pooled dN/dS summary with 95% confidence
// intervals. Point estimates and intervals come from the substitution-model
// GLM: the per-class fit gives wmis/wnon/wspl, and refits with pooled
// selection groups give the single-coefficient wall and wtru maxima.
func GlobalDnds(s *submodel.Spectrum, param submodel.Parameterization, opts submodel.FitOptions) (*GlobalResult, error) {
	perClass, err := submodel.Fit(s, param, submodel.GroupPerClass, opts)
	if err != nil {
		return nil, err
	}
	all, err := submodel.Fit(s, param, submodel.GroupAllSubs, opts)
	if err != nil {
		return nil, err
	}
	trunc, err := submodel.Fit(s, param, submodel.GroupTruncating, opts)
	if err != nil {
		return nil, err
	}

	iv := func(m *submodel.Model, i int) Interval {
		lo, hi := m.OmegaCI(i)
		return Interval{Est: m.Omega[i], Lo: lo, Hi: hi}
	}
	return &GlobalResult{
		Wmis: iv(perClass, 0),
		Wnon: iv(perClass, 1),
		Wspl: iv(perClass, 2),
		Wall: iv(all, 0),
		Wtru: iv(trunc, 1),
	}, nil
}
