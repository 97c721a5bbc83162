package core

import (
	"panelbench/pkg/mixedmodel"
	"panelbench/pkg/study"
)

// SummarizeFit digests a fitted mixed model into the storable run record form.
func SummarizeFit(fit *mixedmodel.Fit) study.FitSummary {
	spec := fit.Spec()
	coefs := make(map[string]float64)
	for _, name := range fit.CoefficientNames() {
		if v, ok := fit.Coefficient(name); ok {
			coefs[name] = v
		}
	}
	sds := make(map[string]float64, len(spec.Intercepts))
	for _, group := range spec.Intercepts {
		if sd, ok := fit.VarianceComponent(group); ok {
			sds[group] = sd
		}
	}
	return study.FitSummary{
		Model:           spec.String(),
		Family:          string(fit.Family()),
		Coefficients:    coefs,
		RandomEffectSDs: sds,
		ResidualSD:      fit.ResidualSD(),
		LogLikelihood:   fit.LogLikelihood(),
		AIC:             fit.AIC(),
		Observations:    fit.NumObs(),
		Converged:       fit.Converged(),
	}
}
