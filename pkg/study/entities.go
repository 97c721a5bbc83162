// Package study defines the persistent entities and persistence contracts for
// simulation studies and their recorded runs. Storage backends in
// internal/infra/persistence implement the interfaces declared here.
package study

import "time"

// Study groups a series of simulation runs under a shared research question.
type Study struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RunStatus reports the terminal outcome of a recorded run.
type RunStatus string

const (
	// RunStatusSucceeded marks a run whose dataset materialized cleanly.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed marks a run rejected by parameter validation or the binder.
	RunStatusFailed RunStatus = "failed"
)

// Run records one execution of a dataset template: the parameters that were
// submitted, the outcome, and any model fits attached afterwards.
type Run struct {
	ID           string         `json:"id"`
	StudyID      string         `json:"study_id,omitempty"`
	TemplateSlug string         `json:"template_slug"`
	Requestor    string         `json:"requestor,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Rows         int            `json:"rows"`
	Status       RunStatus      `json:"status"`
	Error        string         `json:"error,omitempty"`
	Fits         []FitSummary   `json:"fits,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// FitSummary is the storable digest of a fitted mixed model.
type FitSummary struct {
	Model           string             `json:"model"`
	Family          string             `json:"family"`
	Coefficients    map[string]float64 `json:"coefficients"`
	RandomEffectSDs map[string]float64 `json:"random_effect_sds,omitempty"`
	ResidualSD      float64            `json:"residual_sd,omitempty"`
	LogLikelihood   float64            `json:"log_likelihood"`
	AIC             float64            `json:"aic"`
	Observations    int                `json:"observations"`
	Converged       bool               `json:"converged"`
}

// CloneStudy returns a deep copy of the study.
func CloneStudy(s Study) Study { return s }

// CloneRun returns a deep copy of the run, detached from shared maps and slices.
func CloneRun(r Run) Run {
	out := r
	if r.Parameters != nil {
		out.Parameters = make(map[string]any, len(r.Parameters))
		for k, v := range r.Parameters {
			out.Parameters[k] = v
		}
	}
	if r.Fits != nil {
		out.Fits = make([]FitSummary, len(r.Fits))
		for i, f := range r.Fits {
			out.Fits[i] = CloneFitSummary(f)
		}
	}
	return out
}

// CloneFitSummary returns a deep copy of the fit summary.
func CloneFitSummary(f FitSummary) FitSummary {
	out := f
	if f.Coefficients != nil {
		out.Coefficients = make(map[string]float64, len(f.Coefficients))
		for k, v := range f.Coefficients {
			out.Coefficients[k] = v
		}
	}
	if f.RandomEffectSDs != nil {
		out.RandomEffectSDs = make(map[string]float64, len(f.RandomEffectSDs))
		for k, v := range f.RandomEffectSDs {
			out.RandomEffectSDs[k] = v
		}
	}
	return out
}
