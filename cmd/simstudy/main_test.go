package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunSimulationReportsComparison(t *testing.T) {
	out := &bytes.Buffer{}
	err := run([]string{"-subjects", "6", "-items", "12", "-seed", "666"}, out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "generated 72 observations") {
		t.Fatalf("missing generation summary: %s", text)
	}
	if !strings.Contains(text, "LRT chisq") {
		t.Fatalf("missing likelihood ratio line: %s", text)
	}
	if !strings.Contains(text, "response ~ 1 + predictor + (1|subject) + (1|item)") {
		t.Fatalf("missing full model formula: %s", text)
	}
	if !strings.Contains(text, "generating slope -5.000") {
		t.Fatalf("missing recovery line: %s", text)
	}
}

func TestRunSimulationIsDeterministic(t *testing.T) {
	first := &bytes.Buffer{}
	second := &bytes.Buffer{}
	args := []string{"-subjects", "4", "-items", "8", "-seed", "123"}
	if err := run(args, first); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := run(args, second); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("same seed produced different reports")
	}
}

func TestRunWritesDatasetCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	out := &bytes.Buffer{}
	if err := run([]string{"-subjects", "3", "-items", "4", "-csv", path}, out); err != nil {
		t.Fatalf("run: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 13 {
		t.Fatalf("expected header plus 12 rows, got %d", len(records))
	}
	if records[0][0] != "subject" || records[0][3] != "response" {
		t.Fatalf("unexpected header: %v", records[0])
	}
}

func TestRunRejectsInvalidParameters(t *testing.T) {
	out := &bytes.Buffer{}
	if err := run([]string{"-subjects", "0"}, out); err == nil {
		t.Fatalf("expected error for zero subjects")
	}
}

func TestRunRatingsAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.csv")
	writeRatingsFixture(t, path)

	out := &bytes.Buffer{}
	err := run([]string{
		"-ratings", path,
		"-condition-level", "b",
		"-threshold", "4.5",
	}, out)
	if err != nil {
		t.Fatalf("run ratings: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "analyzed 32 observations") {
		t.Fatalf("missing analysis summary: %s", text)
	}
	if !strings.Contains(text, "outcome ~ 1 + condition + (1|rater) + (1|stimulus)") {
		t.Fatalf("missing logistic formula: %s", text)
	}
}

func TestRunRatingsMissingFile(t *testing.T) {
	out := &bytes.Buffer{}
	if err := run([]string{"-ratings", filepath.Join(t.TempDir(), "absent.csv")}, out); err == nil {
		t.Fatalf("expected error for missing ratings file")
	}
}

func writeRatingsFixture(t *testing.T, path string) {
	t.Helper()
	raters := []string{"r1", "r2", "r3", "r4"}
	// condition a stays mostly low, b mostly high, with one dissenting rater
	// per condition so neither outcome is constant within a stimulus.
	byCondition := map[string][]string{
		"a": {"2", "3", "5", "3"},
		"b": {"6", "7", "4", "6"},
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	writer := csv.NewWriter(f)
	if err := writer.Write([]string{"rater", "stimulus", "condition", "rating"}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for s := 0; s < 8; s++ {
		condition := "a"
		if s%2 == 1 {
			condition = "b"
		}
		stimulus := fmt.Sprintf("s%d", s)
		for i, rater := range raters {
			rating := byCondition[condition][i]
			if err := writer.Write([]string{rater, stimulus, condition, rating}); err != nil {
				t.Fatalf("write row: %v", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		t.Fatalf("flush fixture: %v", err)
	}
}
