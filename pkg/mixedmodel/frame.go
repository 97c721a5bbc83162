// Package mixedmodel fits mixed-effects regression models with crossed
// random intercepts. Linear models are fitted by maximum likelihood with the
// fixed effects and residual variance profiled out and the remaining variance
// ratios optimized numerically; logistic models use penalized
// quasi-likelihood on top of the same weighted machinery. Results expose
// named accessors for coefficients, variance components, and per-level
// random effects rather than positional or string-indexed output.
package mixedmodel

import (
	"fmt"
	"sort"

	"panelbench/pkg/panel"
)

// Frame is a column-named table of observations: numeric columns for
// responses and fixed predictors, categorical columns for grouping factors.
// All columns share the same row count.
type Frame struct {
	rows        int
	sized       bool
	numeric     map[string][]float64
	categorical map[string][]string
}

// NewFrame constructs an empty frame.
func NewFrame() *Frame {
	return &Frame{
		numeric:     make(map[string][]float64),
		categorical: make(map[string][]string),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// AddNumeric adds a numeric column. Every column must have the same length.
func (f *Frame) AddNumeric(name string, values []float64) error {
	if err := f.checkColumn(name, len(values)); err != nil {
		return err
	}
	f.numeric[name] = append([]float64(nil), values...)
	return nil
}

// AddCategorical adds a categorical (grouping) column.
func (f *Frame) AddCategorical(name string, values []string) error {
	if err := f.checkColumn(name, len(values)); err != nil {
		return err
	}
	f.categorical[name] = append([]string(nil), values...)
	return nil
}

func (f *Frame) checkColumn(name string, length int) error {
	if name == "" {
		return fmt.Errorf("mixedmodel: column name required")
	}
	if _, ok := f.numeric[name]; ok {
		return fmt.Errorf("mixedmodel: column %q already present", name)
	}
	if _, ok := f.categorical[name]; ok {
		return fmt.Errorf("mixedmodel: column %q already present", name)
	}
	if !f.sized {
		f.rows = length
		f.sized = true
		return nil
	}
	if length != f.rows {
		return fmt.Errorf("mixedmodel: column %q has %d rows, frame has %d", name, length, f.rows)
	}
	return nil
}

// Numeric returns a copy of the named numeric column.
func (f *Frame) Numeric(name string) ([]float64, bool) {
	values, ok := f.numeric[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), values...), true
}

// Categorical returns a copy of the named categorical column.
func (f *Frame) Categorical(name string) ([]string, bool) {
	values, ok := f.categorical[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), values...), true
}

// Levels returns the sorted distinct values of a categorical column.
func (f *Frame) Levels(name string) []string {
	values, ok := f.categorical[name]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Panel column names used by FromPanel.
const (
	ColSubject   = "subject"
	ColItem      = "item"
	ColPredictor = "predictor"
	ColResponse  = "response"
)

// FromPanel bridges a panel dataset into a frame with subject/item grouping
// columns and predictor/response numeric columns.
func FromPanel(ds panel.Dataset) *Frame {
	n := ds.Len()
	subjects := make([]string, n)
	items := make([]string, n)
	predictors := make([]float64, n)
	responses := make([]float64, n)
	for i, o := range ds.Observations {
		subjects[i] = o.SubjectID
		items[i] = o.ItemID
		predictors[i] = o.Predictor
		responses[i] = o.Response
	}
	f := NewFrame()
	// column lengths are equal by construction
	_ = f.AddCategorical(ColSubject, subjects)
	_ = f.AddCategorical(ColItem, items)
	_ = f.AddNumeric(ColPredictor, predictors)
	_ = f.AddNumeric(ColResponse, responses)
	return f
}
