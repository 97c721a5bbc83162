package ratings

import (
	"strings"
	"testing"
)

const sampleCSV = `rater,photo,condition,rating
R1,P01,selfie,2
R1,P02,posed,6
R2,P01,selfie,3
R2,P02,posed,5
R3,P01,selfie,7
R3,P02,posed,1
`

func TestLoad(t *testing.T) {
	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if table.Len() != 6 {
		t.Fatalf("rows %d, want 6", table.Len())
	}
	want := []string{"rater", "photo", "condition", "rating"}
	got := table.Columns()
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("columns %v, want %v", got, want)
		}
	}
}

func TestLoadRejectsBadHeaders(t *testing.T) {
	if _, err := Load(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := Load(strings.NewReader("a,a\n1,2\n")); err == nil {
		t.Fatalf("expected duplicate column error")
	}
	if _, err := Load(strings.NewReader("a,\n1,2\n")); err == nil {
		t.Fatalf("expected empty column name error")
	}
}

func TestFilter(t *testing.T) {
	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	selfies := table.Filter(func(r Row) bool { return r.Get("condition") == "selfie" })
	if selfies.Len() != 3 {
		t.Fatalf("selfie rows %d, want 3", selfies.Len())
	}
	if table.Len() != 6 {
		t.Fatalf("filter mutated the source table")
	}
	high := table.Filter(func(r Row) bool {
		v, err := r.Float("rating")
		return err == nil && v >= 5
	})
	if high.Len() != 3 {
		t.Fatalf("high rows %d, want 3", high.Len())
	}
}

func TestDichotomize(t *testing.T) {
	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	outcome, err := table.Dichotomize("rating", 5)
	if err != nil {
		t.Fatalf("dichotomize: %v", err)
	}
	want := []float64{0, 1, 0, 1, 1, 0}
	for i, v := range want {
		if outcome[i] != v {
			t.Fatalf("outcome %v, want %v", outcome, want)
		}
	}
	if _, err := table.Dichotomize("condition", 5); err == nil {
		t.Fatalf("expected error for non-numeric column")
	}
	if _, err := table.Dichotomize("missing", 5); err == nil {
		t.Fatalf("expected error for unknown column")
	}
}

func TestIndicator(t *testing.T) {
	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	selfie, err := table.Indicator("condition", "selfie")
	if err != nil {
		t.Fatalf("indicator: %v", err)
	}
	want := []float64{1, 0, 1, 0, 1, 0}
	for i, v := range want {
		if selfie[i] != v {
			t.Fatalf("indicator %v, want %v", selfie, want)
		}
	}
}

func TestCrosstab(t *testing.T) {
	table, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ct, err := table.Crosstab("condition", "rater")
	if err != nil {
		t.Fatalf("crosstab: %v", err)
	}
	if len(ct.RowLevels) != 2 || ct.RowLevels[0] != "posed" || ct.RowLevels[1] != "selfie" {
		t.Fatalf("row levels %v", ct.RowLevels)
	}
	if got := ct.Counts["selfie"]["R1"]; got != 1 {
		t.Fatalf("selfie/R1 count %d, want 1", got)
	}
	if got := ct.Counts["posed"]["R3"]; got != 1 {
		t.Fatalf("posed/R3 count %d, want 1", got)
	}
	if _, err := table.Crosstab("condition", "missing"); err == nil {
		t.Fatalf("expected error for unknown column")
	}
}
