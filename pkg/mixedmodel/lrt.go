package mixedmodel

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// LikelihoodRatio compares two nested fits of the same family on the same
// data: the reduced model must be the full model with parameters removed.
// The statistic is twice the log-likelihood difference, referred to a
// chi-squared distribution with the parameter-count difference as degrees of
// freedom.
func LikelihoodRatio(full, reduced *Fit) (LRTResult, error) {
	if full == nil || reduced == nil {
		return LRTResult{}, fmt.Errorf("mixedmodel: both fits required")
	}
	if full.family != reduced.family {
		return LRTResult{}, fmt.Errorf("mixedmodel: cannot compare %s fit against %s fit", full.family, reduced.family)
	}
	if full.nobs != reduced.nobs {
		return LRTResult{}, fmt.Errorf("mixedmodel: fits use different observation counts (%d vs %d)", full.nobs, reduced.nobs)
	}
	df := full.nparams - reduced.nparams
	if df <= 0 {
		return LRTResult{}, fmt.Errorf("mixedmodel: reduced model must have fewer parameters than full model")
	}
	stat := 2 * (full.logLik - reduced.logLik)
	if stat < 0 {
		stat = 0
	}
	p := distuv.ChiSquared{K: float64(df)}.Survival(stat)
	return LRTResult{Statistic: stat, DF: df, PValue: p}, nil
}
