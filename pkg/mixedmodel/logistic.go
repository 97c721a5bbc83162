package mixedmodel

import (
	"fmt"
	"math"
)

const (
	pqlMaxIter  = 40
	pqlTol      = 1e-6
	muFloor     = 1e-6
	weightFloor = 1e-6
)

// FitLogistic fits a mixed logistic regression by penalized
// quasi-likelihood: iteratively reweighted working responses are fed through
// the weighted linear machinery until the fixed effects stabilize. The
// response column must contain only 0 and 1 values. The reported
// log-likelihood is the binomial log-likelihood at the final fitted
// probabilities, which is an approximation.
func FitLogistic(f *Frame, spec ModelSpec) (*Fit, error) {
	d, err := buildDesign(f, spec)
	if err != nil {
		return nil, err
	}
	n := len(d.y)
	for i, v := range d.y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("mixedmodel: binomial response must be 0 or 1, row %d has %v", i, v)
		}
	}

	y := d.y
	eta := make([]float64, n)
	for i := range eta {
		eta[i] = logit((y[i] + 0.5) / 2)
	}

	working := *d
	mu := make([]float64, n)
	weights := make([]float64, n)
	z := make([]float64, n)

	var eng *engineFit
	var prevBeta []float64
	converged := false
	for iter := 0; iter < pqlMaxIter; iter++ {
		for i := 0; i < n; i++ {
			mu[i] = clamp(sigmoid(eta[i]), muFloor, 1-muFloor)
			weights[i] = math.Max(mu[i]*(1-mu[i]), weightFloor)
			z[i] = eta[i] + (y[i]-mu[i])/weights[i]
		}
		working.y = z
		eng, err = fitEngine(&working, weights)
		if err != nil {
			return nil, fmt.Errorf("mixedmodel: pql iteration %d: %w", iter, err)
		}

		for i := 0; i < n; i++ {
			v := 0.0
			for j := range eng.beta {
				v += eng.beta[j] * d.x.At(i, j)
			}
			for g, group := range d.groups {
				v += eng.ranef[g][group.levels[group.index[i]]]
			}
			eta[i] = v
		}

		if prevBeta != nil && maxAbsDiff(prevBeta, eng.beta) < pqlTol {
			converged = true
			break
		}
		prevBeta = append(prevBeta[:0], eng.beta...)
	}
	eng.converged = converged

	logLik := 0.0
	for i := 0; i < n; i++ {
		m := clamp(sigmoid(eta[i]), muFloor, 1-muFloor)
		logLik += y[i]*math.Log(m) + (1-y[i])*math.Log(1-m)
	}
	if err := finiteOrErr(logLik, "log-likelihood"); err != nil {
		return nil, err
	}
	return assembleFit(spec, d, eng, FamilyBinomial, logLik), nil
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

func maxAbsDiff(a, b []float64) float64 {
	max := 0.0
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > max {
			max = d
		}
	}
	return max
}
