package core

import (
	"testing"

	"panelbench/pkg/mixedmodel"
	"panelbench/pkg/panel"
)

func TestSummarizeFitCarriesModelDigest(t *testing.T) {
	dataset, _, err := panel.Generate(panel.Params{
		Subjects:       6,
		Items:          20,
		FixedSlope:     -5,
		SubjectSD:      40,
		ItemSD:         20,
		ResidualSD:     20,
		PredictorScale: 10,
		Mean:           300,
		Seed:           666,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	frame := mixedmodel.FromPanel(dataset)
	fit, err := mixedmodel.FitLinear(frame, mixedmodel.ModelSpec{
		Response:   mixedmodel.ColResponse,
		Fixed:      []string{mixedmodel.ColPredictor},
		Intercepts: []string{mixedmodel.ColSubject, mixedmodel.ColItem},
	})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	summary := SummarizeFit(fit)
	if summary.Model != "response ~ 1 + predictor + (1|subject) + (1|item)" {
		t.Fatalf("model = %q", summary.Model)
	}
	if summary.Family != "gaussian" {
		t.Fatalf("family = %q", summary.Family)
	}
	if _, ok := summary.Coefficients["predictor"]; !ok {
		t.Fatalf("missing predictor coefficient: %v", summary.Coefficients)
	}
	if _, ok := summary.RandomEffectSDs["subject"]; !ok {
		t.Fatalf("missing subject SD: %v", summary.RandomEffectSDs)
	}
	if summary.Observations != 120 {
		t.Fatalf("observations = %d, want 120", summary.Observations)
	}
	if summary.AIC <= 0 {
		t.Fatalf("expected positive AIC, got %v", summary.AIC)
	}
}
