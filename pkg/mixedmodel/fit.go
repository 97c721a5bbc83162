package mixedmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const thetaBound = 30 // log variance-ratio clamp keeps the covariance factorizable

// FitLinear fits a linear mixed model by maximum likelihood. The fixed
// effects and residual variance are profiled out of the deviance; the
// variance ratios of the grouping factors are optimized on the log scale
// with Nelder-Mead.
func FitLinear(f *Frame, spec ModelSpec) (*Fit, error) {
	d, err := buildDesign(f, spec)
	if err != nil {
		return nil, err
	}
	eng, err := fitEngine(d, nil)
	if err != nil {
		return nil, err
	}
	logLik := -eng.deviance / 2
	if err := finiteOrErr(logLik, "log-likelihood"); err != nil {
		return nil, err
	}
	return assembleFit(spec, d, eng, FamilyGaussian, logLik), nil
}

// engineFit is the raw output of the profiled weighted fit.
type engineFit struct {
	beta      []float64
	gamma     []float64
	sigma2    float64
	deviance  float64
	converged bool
	ranef     []map[string]float64
}

// fitEngine solves the weighted model y ~ N(Xb, sigma2*(W^-1 + sum gamma_g
// Zg Zg')) for the design, profiling beta and sigma2 and minimizing the
// deviance over the log variance ratios.
func fitEngine(d *design, weights []float64) (*engineFit, error) {
	prof := profiledDeviance{d: d, weights: weights}

	nGroups := len(d.groups)
	if nGroups == 0 {
		ev := prof.eval(nil)
		if !ev.ok {
			return nil, fmt.Errorf("mixedmodel: singular design")
		}
		return prof.finish(nil, ev), nil
	}

	problem := optimize.Problem{Func: func(theta []float64) float64 {
		ev := prof.eval(theta)
		if !ev.ok {
			return math.Inf(1)
		}
		return ev.deviance
	}}
	initial := make([]float64, nGroups)
	result, err := optimize.Minimize(problem, initial, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("mixedmodel: deviance optimization failed: %w", err)
	}
	ev := prof.eval(result.X)
	if !ev.ok {
		return nil, fmt.Errorf("mixedmodel: deviance not finite at optimum")
	}
	return prof.finish(result.X, ev), nil
}

type profiledDeviance struct {
	d       *design
	weights []float64
}

type evalState struct {
	ok        bool
	deviance  float64
	beta      []float64
	sigma2    float64
	gamma     []float64
	vinvResid []float64
}

func (p *profiledDeviance) eval(theta []float64) evalState {
	d := p.d
	n := len(d.y)
	gamma := make([]float64, len(theta))
	for i, t := range theta {
		gamma[i] = math.Exp(clamp(t, -thetaBound, thetaBound))
	}

	// V0 = W^-1 + sum_g gamma_g Zg Zg'
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		w := 1.0
		if p.weights != nil {
			w = p.weights[i]
		}
		data[i*n+i] = 1 / w
	}
	for g, group := range d.groups {
		byLevel := make([][]int, len(group.levels))
		for row, level := range group.index {
			byLevel[level] = append(byLevel[level], row)
		}
		for _, rows := range byLevel {
			for _, a := range rows {
				for _, b := range rows {
					data[a*n+b] += gamma[g]
				}
			}
		}
	}
	v0 := mat.NewSymDense(n, data)

	var chol mat.Cholesky
	if ok := chol.Factorize(v0); !ok {
		return evalState{}
	}

	yVec := mat.NewVecDense(n, d.y)
	var vy mat.VecDense
	if err := chol.SolveVecTo(&vy, yVec); err != nil {
		return evalState{}
	}
	var vx mat.Dense
	if err := chol.SolveTo(&vx, d.x); err != nil {
		return evalState{}
	}

	var xtvx mat.Dense
	xtvx.Mul(d.x.T(), &vx)
	var xtvy mat.VecDense
	xtvy.MulVec(d.x.T(), &vy)
	var beta mat.VecDense
	if err := beta.SolveVec(&xtvx, &xtvy); err != nil {
		return evalState{}
	}

	var fitted mat.VecDense
	fitted.MulVec(d.x, &beta)
	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		resid[i] = d.y[i] - fitted.AtVec(i)
	}
	residVec := mat.NewVecDense(n, resid)
	var vr mat.VecDense
	if err := chol.SolveVecTo(&vr, residVec); err != nil {
		return evalState{}
	}
	quad := mat.Dot(residVec, &vr)
	sigma2 := quad / float64(n)
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return evalState{}
	}

	deviance := float64(n)*math.Log(2*math.Pi*sigma2) + chol.LogDet() + float64(n)
	if math.IsNaN(deviance) || math.IsInf(deviance, 0) {
		return evalState{}
	}

	betaOut := make([]float64, beta.Len())
	for i := range betaOut {
		betaOut[i] = beta.AtVec(i)
	}
	vrOut := make([]float64, n)
	for i := range vrOut {
		vrOut[i] = vr.AtVec(i)
	}
	return evalState{
		ok:        true,
		deviance:  deviance,
		beta:      betaOut,
		sigma2:    sigma2,
		gamma:     gamma,
		vinvResid: vrOut,
	}
}

// finish converts the winning evaluation into an engineFit, predicting the
// per-level random effects as gamma_g * Zg' V0^-1 r.
func (p *profiledDeviance) finish(theta []float64, ev evalState) *engineFit {
	d := p.d
	ranef := make([]map[string]float64, len(d.groups))
	for g, group := range d.groups {
		effects := make(map[string]float64, len(group.levels))
		sums := make([]float64, len(group.levels))
		for row, level := range group.index {
			sums[level] += ev.vinvResid[row]
		}
		for i, level := range group.levels {
			effects[level] = ev.gamma[g] * sums[i]
		}
		ranef[g] = effects
	}
	return &engineFit{
		beta:      ev.beta,
		gamma:     ev.gamma,
		sigma2:    ev.sigma2,
		deviance:  ev.deviance,
		converged: true,
		ranef:     ranef,
	}
}

func assembleFit(spec ModelSpec, d *design, eng *engineFit, family Family, logLik float64) *Fit {
	coef := make(map[string]float64, len(d.terms))
	for i, name := range d.terms {
		coef[name] = eng.beta[i]
	}
	varComp := make(map[string]float64, len(d.groups))
	ranef := make(map[string]map[string]float64, len(d.groups))
	for g, group := range d.groups {
		varComp[group.name] = math.Sqrt(eng.gamma[g] * eng.sigma2)
		ranef[group.name] = eng.ranef[g]
	}
	return &Fit{
		spec:      spec.clone(),
		family:    family,
		coefNames: append([]string(nil), d.terms...),
		coef:      coef,
		varComp:   varComp,
		residSD:   math.Sqrt(eng.sigma2),
		ranef:     ranef,
		logLik:    logLik,
		nobs:      len(d.y),
		nparams:   len(d.terms) + len(d.groups) + 1,
		converged: eng.converged,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
