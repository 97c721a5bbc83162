package mixedmodel

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Family identifies the response distribution of a fitted model.
type Family string

const (
	FamilyGaussian Family = "gaussian"
	FamilyBinomial Family = "binomial"
)

// Fit is the structured result of a model fit. Estimates are addressed by
// name: fixed-effect coefficients by column, variance components and random
// effects by grouping column and level identifier.
type Fit struct {
	spec      ModelSpec
	family    Family
	coefNames []string
	coef      map[string]float64
	varComp   map[string]float64
	residSD   float64
	ranef     map[string]map[string]float64
	logLik    float64
	nobs      int
	nparams   int
	converged bool
}

// Spec returns the model specification that produced the fit.
func (f *Fit) Spec() ModelSpec { return f.spec.clone() }

// Family returns the response family.
func (f *Fit) Family() Family { return f.family }

// Converged reports whether the optimizer satisfied its convergence criteria.
func (f *Fit) Converged() bool { return f.converged }

// NumObs returns the number of observations used in the fit.
func (f *Fit) NumObs() int { return f.nobs }

// NumParams returns the number of estimated parameters.
func (f *Fit) NumParams() int { return f.nparams }

// CoefficientNames returns the fixed-effect terms in design order, starting
// with the intercept.
func (f *Fit) CoefficientNames() []string {
	return append([]string(nil), f.coefNames...)
}

// Coefficient returns the named fixed-effect estimate.
func (f *Fit) Coefficient(name string) (float64, bool) {
	v, ok := f.coef[name]
	return v, ok
}

// Intercept returns the fixed intercept estimate.
func (f *Fit) Intercept() float64 { return f.coef[InterceptName] }

// VarianceComponent returns the estimated standard deviation attributable to
// the named grouping factor.
func (f *Fit) VarianceComponent(group string) (float64, bool) {
	v, ok := f.varComp[group]
	return v, ok
}

// ResidualSD returns the estimated residual standard deviation. For binomial
// fits this is the quasi-likelihood dispersion on the working scale.
func (f *Fit) ResidualSD() float64 { return f.residSD }

// RandomEffects returns the predicted per-level offsets (BLUPs) for the
// named grouping factor, keyed by level identifier.
func (f *Fit) RandomEffects(group string) (map[string]float64, bool) {
	levels, ok := f.ranef[group]
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(levels))
	for k, v := range levels {
		out[k] = v
	}
	return out, true
}

// LogLikelihood returns the maximized log-likelihood (approximate for
// binomial fits).
func (f *Fit) LogLikelihood() float64 { return f.logLik }

// Deviance returns -2 times the log-likelihood.
func (f *Fit) Deviance() float64 { return -2 * f.logLik }

// AIC returns Akaike's information criterion for the fit.
func (f *Fit) AIC() float64 { return f.Deviance() + 2*float64(f.nparams) }

// Summary renders a human-readable fit report.
func (f *Fit) Summary() string {
	var b strings.Builder
	switch f.family {
	case FamilyBinomial:
		b.WriteString("Mixed logistic regression (penalized quasi-likelihood)\n")
	default:
		b.WriteString("Linear mixed model fit by maximum likelihood\n")
	}
	fmt.Fprintf(&b, "  observations: %d   logLik: %.2f   AIC: %.2f\n", f.nobs, f.logLik, f.AIC())
	if !f.converged {
		b.WriteString("  WARNING: fit did not converge; estimates are unreliable\n")
	}

	b.WriteString("Random effects (std.dev):\n")
	groups := make([]string, 0, len(f.varComp))
	for g := range f.varComp {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		fmt.Fprintf(&b, "  %-12s %10.3f\n", g, f.varComp[g])
	}
	fmt.Fprintf(&b, "  %-12s %10.3f\n", "residual", f.residSD)

	b.WriteString("Fixed effects:\n")
	for _, name := range f.coefNames {
		fmt.Fprintf(&b, "  %-12s %10.3f\n", name, f.coef[name])
	}
	return b.String()
}

// LRTResult summarizes a likelihood-ratio comparison of two nested fits.
type LRTResult struct {
	Statistic float64 `json:"statistic"`
	DF        int     `json:"df"`
	PValue    float64 `json:"p_value"`
}

func finiteOrErr(v float64, what string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("mixedmodel: %s is not finite", what)
	}
	return nil
}
