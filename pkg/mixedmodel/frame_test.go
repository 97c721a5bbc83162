package mixedmodel

import (
	"reflect"
	"testing"

	"panelbench/pkg/panel"
)

func TestFrameColumnRules(t *testing.T) {
	f := NewFrame()
	if err := f.AddNumeric("x", []float64{1, 2, 3}); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := f.AddNumeric("x", []float64{1, 2, 3}); err == nil {
		t.Fatalf("expected duplicate column error")
	}
	if err := f.AddCategorical("x", []string{"a", "b", "c"}); err == nil {
		t.Fatalf("expected duplicate column error across kinds")
	}
	if err := f.AddCategorical("g", []string{"a", "b"}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if err := f.AddCategorical("", []string{"a", "b", "c"}); err == nil {
		t.Fatalf("expected empty name error")
	}
	if f.Len() != 3 {
		t.Fatalf("len %d, want 3", f.Len())
	}
}

func TestFrameLevelsSorted(t *testing.T) {
	f := NewFrame()
	if err := f.AddCategorical("g", []string{"b", "a", "c", "a"}); err != nil {
		t.Fatalf("add g: %v", err)
	}
	if got := f.Levels("g"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("levels %v", got)
	}
	if got := f.Levels("missing"); got != nil {
		t.Fatalf("levels for missing column should be nil, got %v", got)
	}
}

func TestFrameCopiesAreDefensive(t *testing.T) {
	f := NewFrame()
	source := []float64{1, 2, 3}
	if err := f.AddNumeric("x", source); err != nil {
		t.Fatalf("add x: %v", err)
	}
	source[0] = 99
	stored, ok := f.Numeric("x")
	if !ok {
		t.Fatalf("column missing")
	}
	if stored[0] != 1 {
		t.Fatalf("mutation of caller slice leaked into frame")
	}
	stored[1] = 99
	again, _ := f.Numeric("x")
	if again[1] != 2 {
		t.Fatalf("mutation of returned slice leaked into frame")
	}
}

func TestFromPanelShape(t *testing.T) {
	ds, _, err := panel.Generate(panel.Params{
		Subjects: 2, Items: 3, PredictorScale: 10, Seed: 1,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	f := FromPanel(ds)
	if f.Len() != 6 {
		t.Fatalf("frame rows %d, want 6", f.Len())
	}
	if got := len(f.Levels(ColSubject)); got != 2 {
		t.Fatalf("subject levels %d, want 2", got)
	}
	if got := len(f.Levels(ColItem)); got != 3 {
		t.Fatalf("item levels %d, want 3", got)
	}
	if _, ok := f.Numeric(ColResponse); !ok {
		t.Fatalf("response column missing")
	}
}
