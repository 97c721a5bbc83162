package study

import (
	"errors"
	"testing"
)

func TestCloneRunDetachesSharedState(t *testing.T) {
	original := Run{
		ID:         "r1",
		Parameters: map[string]any{"subjects": 6},
		Fits: []FitSummary{{
			Model:           "response ~ 1 + predictor + (1|subject)",
			Coefficients:    map[string]float64{"predictor": -5},
			RandomEffectSDs: map[string]float64{"subject": 40},
		}},
	}
	clone := CloneRun(original)
	clone.Parameters["subjects"] = 99
	clone.Fits[0].Coefficients["predictor"] = 0
	clone.Fits[0].RandomEffectSDs["subject"] = 0

	if original.Parameters["subjects"] != 6 {
		t.Fatalf("clone mutated original parameters")
	}
	if original.Fits[0].Coefficients["predictor"] != -5 {
		t.Fatalf("clone mutated original coefficients")
	}
	if original.Fits[0].RandomEffectSDs["subject"] != 40 {
		t.Fatalf("clone mutated original variance components")
	}
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("run", "abc")
	if got := err.Error(); got != `run "abc" not found` {
		t.Fatalf("unexpected message %q", got)
	}
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError")
	}
	if nf.Entity != "run" || nf.ID != "abc" {
		t.Fatalf("unexpected fields: %+v", nf)
	}
}
