package ratings

import (
	"fmt"

	"panelbench/pkg/mixedmodel"
)

// AnalysisConfig names the columns of a ratings table and the cutoff that
// dichotomizes the rating.
type AnalysisConfig struct {
	RaterColumn     string  `json:"rater_column"`
	StimulusColumn  string  `json:"stimulus_column"`
	RatingColumn    string  `json:"rating_column"`
	ConditionColumn string  `json:"condition_column"`
	ConditionLevel  string  `json:"condition_level"`
	Threshold       float64 `json:"threshold"`
}

// Report is the outcome of a ratings analysis: the condition-by-outcome
// tabulation and the mixed logistic fit with random intercepts for rater and
// stimulus.
type Report struct {
	Observations int
	HighCount    int
	Counts       Crosstab
	Fit          *mixedmodel.Fit
}

// Analyze dichotomizes the rating column at the configured threshold and
// fits outcome ~ condition + (1|rater) + (1|stimulus).
func Analyze(t *Table, cfg AnalysisConfig) (*Report, error) {
	if t.Len() == 0 {
		return nil, fmt.Errorf("ratings: table is empty")
	}

	outcome, err := t.Dichotomize(cfg.RatingColumn, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	condition, err := t.Indicator(cfg.ConditionColumn, cfg.ConditionLevel)
	if err != nil {
		return nil, err
	}
	raters, err := t.Column(cfg.RaterColumn)
	if err != nil {
		return nil, err
	}
	stimuli, err := t.Column(cfg.StimulusColumn)
	if err != nil {
		return nil, err
	}

	frame := mixedmodel.NewFrame()
	if err := frame.AddNumeric("outcome", outcome); err != nil {
		return nil, err
	}
	if err := frame.AddNumeric("condition", condition); err != nil {
		return nil, err
	}
	if err := frame.AddCategorical("rater", raters); err != nil {
		return nil, err
	}
	if err := frame.AddCategorical("stimulus", stimuli); err != nil {
		return nil, err
	}

	fit, err := mixedmodel.FitLogistic(frame, mixedmodel.ModelSpec{
		Response:   "outcome",
		Fixed:      []string{"condition"},
		Intercepts: []string{"rater", "stimulus"},
	})
	if err != nil {
		return nil, err
	}

	counts, err := t.Crosstab(cfg.ConditionColumn, cfg.RatingColumn)
	if err != nil {
		return nil, err
	}

	high := 0
	for _, v := range outcome {
		if v == 1 {
			high++
		}
	}
	return &Report{
		Observations: t.Len(),
		HighCount:    high,
		Counts:       counts,
		Fit:          fit,
	}, nil
}
