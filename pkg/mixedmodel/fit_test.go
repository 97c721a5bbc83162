package mixedmodel

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"panelbench/pkg/panel"
)

func recoveryParams() panel.Params {
	return panel.Params{
		Subjects:       6,
		Items:          20,
		FixedSlope:     -5,
		SubjectSD:      40,
		ItemSD:         20,
		ResidualSD:     20,
		PredictorScale: 10,
		Mean:           300,
		Seed:           666,
	}
}

func crossedSpec() ModelSpec {
	return ModelSpec{
		Response:   ColResponse,
		Fixed:      []string{ColPredictor},
		Intercepts: []string{ColSubject, ColItem},
	}
}

func TestFitLinearNoGroups(t *testing.T) {
	// y = 3 + 2x plus small deterministic perturbations; plain GLS reduces
	// to ordinary least squares here.
	n := 50
	x := make([]float64, n)
	y := make([]float64, n)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		x[i] = float64(i) / 5
		y[i] = 3 + 2*x[i] + rng.NormFloat64()*0.5
	}
	f := NewFrame()
	if err := f.AddNumeric("x", x); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := f.AddNumeric("y", y); err != nil {
		t.Fatalf("add y: %v", err)
	}

	fit, err := FitLinear(f, ModelSpec{Response: "y", Fixed: []string{"x"}})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	slope, ok := fit.Coefficient("x")
	if !ok {
		t.Fatalf("slope coefficient missing")
	}
	if math.Abs(slope-2) > 0.2 {
		t.Fatalf("slope %v, want near 2", slope)
	}
	if math.Abs(fit.Intercept()-3) > 0.5 {
		t.Fatalf("intercept %v, want near 3", fit.Intercept())
	}
	if fit.ResidualSD() < 0.2 || fit.ResidualSD() > 1 {
		t.Fatalf("residual sd %v, want near 0.5", fit.ResidualSD())
	}
}

func TestFitLinearRecoversGeneratingParameters(t *testing.T) {
	ds, _, err := panel.Generate(recoveryParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	fit, err := FitLinear(FromPanel(ds), crossedSpec())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	slope, ok := fit.Coefficient(ColPredictor)
	if !ok {
		t.Fatalf("predictor coefficient missing")
	}
	if slope < -7.5 || slope > -2.5 {
		t.Fatalf("slope %v outside [-7.5, -2.5]", slope)
	}

	subjectSD, ok := fit.VarianceComponent(ColSubject)
	if !ok {
		t.Fatalf("subject variance component missing")
	}
	// only six subjects inform this component, so the band is wide
	if subjectSD < 16 || subjectSD > 70 {
		t.Fatalf("subject sd %v outside [16, 70]", subjectSD)
	}

	itemSD, ok := fit.VarianceComponent(ColItem)
	if !ok {
		t.Fatalf("item variance component missing")
	}
	if itemSD < 10 || itemSD > 30 {
		t.Fatalf("item sd %v outside [10, 30]", itemSD)
	}

	if rs := fit.ResidualSD(); rs < 10 || rs > 30 {
		t.Fatalf("residual sd %v outside [10, 30]", rs)
	}
}

func TestFitLinearOmittedInterceptInflatesResidual(t *testing.T) {
	ds, _, err := panel.Generate(recoveryParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	frame := FromPanel(ds)

	full, err := FitLinear(frame, crossedSpec())
	if err != nil {
		t.Fatalf("fit full: %v", err)
	}
	reduced, err := FitLinear(frame, ModelSpec{
		Response:   ColResponse,
		Fixed:      []string{ColPredictor},
		Intercepts: []string{ColSubject},
	})
	if err != nil {
		t.Fatalf("fit reduced: %v", err)
	}

	if reduced.ResidualSD() <= full.ResidualSD() {
		t.Fatalf("dropping the item intercept should inflate residual sd: full %v, reduced %v",
			full.ResidualSD(), reduced.ResidualSD())
	}
	if full.LogLikelihood() < reduced.LogLikelihood() {
		t.Fatalf("full model log-likelihood %v below reduced %v",
			full.LogLikelihood(), reduced.LogLikelihood())
	}
}

func TestFitLinearRandomEffectsKeyedByLevel(t *testing.T) {
	ds, diag, err := panel.Generate(recoveryParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	fit, err := FitLinear(FromPanel(ds), crossedSpec())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	effects, ok := fit.RandomEffects(ColSubject)
	if !ok {
		t.Fatalf("subject random effects missing")
	}
	if len(effects) != 6 {
		t.Fatalf("expected 6 subject effects, got %d", len(effects))
	}
	for id := range diag.SubjectOffsets {
		if _, ok := effects[id]; !ok {
			t.Fatalf("no predicted effect for subject %s", id)
		}
	}
	// shrinkage keeps predictions on the same scale as the true offsets
	for id, v := range effects {
		if math.Abs(v) > 4*diag.Params.SubjectSD {
			t.Fatalf("subject %s effect %v implausibly large", id, v)
		}
	}
}

func TestFitLinearLargerDesignTightensRecovery(t *testing.T) {
	params := panel.Params{
		Subjects:       20,
		Items:          30,
		FixedSlope:     -5,
		SubjectSD:      40,
		ItemSD:         20,
		ResidualSD:     20,
		PredictorScale: 10,
		Mean:           300,
		Seed:           42,
	}
	ds, _, err := panel.Generate(params)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	fit, err := FitLinear(FromPanel(ds), crossedSpec())
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	slope, _ := fit.Coefficient(ColPredictor)
	if math.Abs(slope+5) > 1.5 {
		t.Fatalf("slope %v, want near -5", slope)
	}
	subjectSD, _ := fit.VarianceComponent(ColSubject)
	if subjectSD < 25 || subjectSD > 55 {
		t.Fatalf("subject sd %v outside [25, 55]", subjectSD)
	}
}

func TestFitLinearUnknownColumns(t *testing.T) {
	ds, _, err := panel.Generate(recoveryParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	frame := FromPanel(ds)

	if _, err := FitLinear(frame, ModelSpec{Response: "missing"}); err == nil {
		t.Fatalf("expected error for unknown response")
	}
	if _, err := FitLinear(frame, ModelSpec{Response: ColResponse, Fixed: []string{"nope"}}); err == nil {
		t.Fatalf("expected error for unknown fixed effect")
	}
	if _, err := FitLinear(frame, ModelSpec{Response: ColResponse, Intercepts: []string{"slope_group"}}); err == nil {
		t.Fatalf("expected error for unknown grouping column")
	}
}

func TestModelSpecString(t *testing.T) {
	got := crossedSpec().String()
	want := "response ~ 1 + predictor + (1|subject) + (1|item)"
	if got != want {
		t.Fatalf("spec string %q, want %q", got, want)
	}
}
