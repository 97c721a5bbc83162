// Package ratings loads and reshapes observed rating data: CSV ingestion,
// row filtering, dichotomization of a numeric rating, cross-tabulation, and
// bridging into a model frame for mixed logistic fits.
package ratings

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// Table is a small string-typed table with named columns, one row per rated
// trial. Numeric interpretation happens at the point of use.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// Load reads a CSV with a header row.
func Load(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ratings: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ratings: csv has no header row")
	}
	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			return nil, fmt.Errorf("ratings: empty column name at position %d", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("ratings: duplicate column %q", name)
		}
		index[name] = i
	}
	return &Table{columns: header, index: index, rows: records[1:]}, nil
}

// LoadFile reads a CSV file from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ratings: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Len returns the row count.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns the column names in file order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// Row provides named access to a single row.
type Row struct {
	table *Table
	cells []string
}

// Get returns the named cell value.
func (r Row) Get(column string) string {
	i, ok := r.table.index[column]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return r.cells[i]
}

// Float parses the named cell as a float.
func (r Row) Float(column string) (float64, error) {
	raw := r.Get(column)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ratings: column %s value %q is not numeric", column, raw)
	}
	return v, nil
}

// Filter returns a new table containing the rows the predicate keeps.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{columns: t.columns, index: t.index}
	for _, cells := range t.rows {
		if keep(Row{table: t, cells: cells}) {
			out.rows = append(out.rows, cells)
		}
	}
	return out
}

// Column returns the named column's raw values.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("ratings: unknown column %q", name)
	}
	out := make([]string, len(t.rows))
	for j, cells := range t.rows {
		out[j] = cells[i]
	}
	return out, nil
}

// FloatColumn parses the named column as floats.
func (t *Table) FloatColumn(name string) ([]float64, error) {
	raw, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, cell := range raw {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("ratings: column %s row %d value %q is not numeric", name, i, cell)
		}
		out[i] = v
	}
	return out, nil
}

// Dichotomize converts a numeric column into a 0/1 indicator: 1 where the
// value meets or exceeds the threshold. Returns the indicator values in row
// order.
func (t *Table) Dichotomize(column string, threshold float64) ([]float64, error) {
	values, err := t.FloatColumn(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if v >= threshold {
			out[i] = 1
		}
	}
	return out, nil
}

// Indicator converts a categorical column into a 0/1 indicator for one level.
func (t *Table) Indicator(column, level string) ([]float64, error) {
	values, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if v == level {
			out[i] = 1
		}
	}
	return out, nil
}

// Crosstab counts row combinations of two categorical columns.
type Crosstab struct {
	RowLevels []string                  `json:"row_levels"`
	ColLevels []string                  `json:"col_levels"`
	Counts    map[string]map[string]int `json:"counts"`
}

// Crosstab tabulates counts of rowColumn level by colColumn level.
func (t *Table) Crosstab(rowColumn, colColumn string) (Crosstab, error) {
	rows, err := t.Column(rowColumn)
	if err != nil {
		return Crosstab{}, err
	}
	cols, err := t.Column(colColumn)
	if err != nil {
		return Crosstab{}, err
	}
	counts := make(map[string]map[string]int)
	rowSeen := make(map[string]struct{})
	colSeen := make(map[string]struct{})
	for i := range rows {
		if counts[rows[i]] == nil {
			counts[rows[i]] = make(map[string]int)
		}
		counts[rows[i]][cols[i]]++
		rowSeen[rows[i]] = struct{}{}
		colSeen[cols[i]] = struct{}{}
	}
	ct := Crosstab{Counts: counts}
	for level := range rowSeen {
		ct.RowLevels = append(ct.RowLevels, level)
	}
	for level := range colSeen {
		ct.ColLevels = append(ct.ColLevels, level)
	}
	sort.Strings(ct.RowLevels)
	sort.Strings(ct.ColLevels)
	return ct, nil
}
