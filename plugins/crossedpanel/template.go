// Package crossedpanel contributes the fully crossed subject-by-item dataset
// template used by the mixed-model teaching studies.
package crossedpanel

import (
	"context"
	"fmt"

	"panelbench/pkg/panel"
	"panelbench/pkg/simdata"
)

// Study is the namespace the template registers under.
const Study = "panel"

// Key and Version identify the template within the study namespace.
const (
	Key     = "crossed-panel"
	Version = "1.0.0"
)

// Slug is the fully qualified template identifier.
const Slug = Study + "/" + Key + "@" + Version

func floatPtr(v float64) *float64 { return &v }

// Template declares the crossed-panel dataset template. Defaults reproduce the
// reaction-time study design: 6 subjects, 20 items, and a slope of -5 ms per
// unit of the predictor.
func Template() simdata.Template {
	return simdata.Template{
		Key:         Key,
		Version:     Version,
		Title:       "Fully crossed subject-by-item panel",
		Description: "Simulates a balanced panel with random subject and item intercepts and a known fixed slope.",
		Parameters: []simdata.Parameter{
			{Name: "subjects", Type: "integer", Default: 6, Minimum: floatPtr(1), Description: "Number of subjects."},
			{Name: "items", Type: "integer", Default: 20, Minimum: floatPtr(1), Description: "Number of items crossed with every subject."},
			{Name: "fixed_slope", Type: "number", Default: -5.0, Description: "Fixed-effect slope of the response on the predictor."},
			{Name: "subject_sd", Type: "number", Default: 40.0, Minimum: floatPtr(0), Description: "Standard deviation of subject intercept offsets."},
			{Name: "item_sd", Type: "number", Default: 20.0, Minimum: floatPtr(0), Description: "Standard deviation of item intercept offsets."},
			{Name: "residual_sd", Type: "number", Default: 20.0, Minimum: floatPtr(0), Description: "Standard deviation of per-observation noise."},
			{Name: "predictor_scale", Type: "number", Default: 10.0, Description: "Scale applied to the exponential predictor draws."},
			{Name: "mean", Type: "number", Default: 300.0, Description: "Grand mean of the response."},
			{Name: "seed", Type: "integer", Default: 666, Minimum: floatPtr(0), Description: "Seed for the deterministic random source."},
		},
		Columns: []simdata.Column{
			{Name: "subject", Type: "string", Description: "Subject identifier."},
			{Name: "item", Type: "string", Description: "Item identifier."},
			{Name: "predictor", Type: "number", Description: "Item-level predictor value."},
			{Name: "response", Type: "number", Description: "Simulated response."},
		},
		OutputFormats: []simdata.Format{
			simdata.FormatJSON,
			simdata.FormatCSV,
			simdata.FormatHTML,
			simdata.FormatPNG,
		},
		Binder: bind,
	}
}

func bind(env simdata.Environment) (simdata.Runner, error) {
	if env.Now == nil {
		return nil, fmt.Errorf("crossedpanel: environment clock missing")
	}
	return func(_ context.Context, req simdata.RunRequest) (simdata.RunResult, error) {
		params, err := paramsFrom(req.Parameters)
		if err != nil {
			return simdata.RunResult{}, err
		}
		dataset, _, err := panel.Generate(params)
		if err != nil {
			return simdata.RunResult{}, err
		}
		rows := make([]map[string]any, dataset.Len())
		for i, obs := range dataset.Observations {
			rows[i] = map[string]any{
				"subject":   obs.SubjectID,
				"item":      obs.ItemID,
				"predictor": obs.Predictor,
				"response":  obs.Response,
			}
		}
		return simdata.RunResult{
			Rows: rows,
			Metadata: map[string]any{
				"seed":     params.Seed,
				"subjects": params.Subjects,
				"items":    params.Items,
			},
			GeneratedAt: env.Now(),
		}, nil
	}, nil
}

func paramsFrom(values map[string]any) (panel.Params, error) {
	params := panel.Params{}
	var err error
	if params.Subjects, err = intValue(values, "subjects"); err != nil {
		return panel.Params{}, err
	}
	if params.Items, err = intValue(values, "items"); err != nil {
		return panel.Params{}, err
	}
	if params.FixedSlope, err = floatValue(values, "fixed_slope"); err != nil {
		return panel.Params{}, err
	}
	if params.SubjectSD, err = floatValue(values, "subject_sd"); err != nil {
		return panel.Params{}, err
	}
	if params.ItemSD, err = floatValue(values, "item_sd"); err != nil {
		return panel.Params{}, err
	}
	if params.ResidualSD, err = floatValue(values, "residual_sd"); err != nil {
		return panel.Params{}, err
	}
	if params.PredictorScale, err = floatValue(values, "predictor_scale"); err != nil {
		return panel.Params{}, err
	}
	if params.Mean, err = floatValue(values, "mean"); err != nil {
		return panel.Params{}, err
	}
	seed, err := intValue(values, "seed")
	if err != nil {
		return panel.Params{}, err
	}
	params.Seed = uint64(seed)
	return params, nil
}

func intValue(values map[string]any, name string) (int, error) {
	v, ok := values[name].(int)
	if !ok {
		return 0, fmt.Errorf("crossedpanel: parameter %s missing or not an integer", name)
	}
	return v, nil
}

func floatValue(values map[string]any, name string) (float64, error) {
	switch v := values[name].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("crossedpanel: parameter %s missing or not a number", name)
	}
}
