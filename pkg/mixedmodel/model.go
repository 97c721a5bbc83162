package mixedmodel

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// InterceptName is the fixed-intercept term name in fit results.
const InterceptName = "(Intercept)"

// ModelSpec declares a model over a frame: a numeric response column, zero
// or more numeric fixed-effect columns, and zero or more categorical
// grouping columns that each contribute a random intercept. A fixed
// intercept is always included.
type ModelSpec struct {
	Response   string   `json:"response"`
	Fixed      []string `json:"fixed,omitempty"`
	Intercepts []string `json:"intercepts,omitempty"`
}

func (s ModelSpec) clone() ModelSpec {
	cp := s
	cp.Fixed = append([]string(nil), s.Fixed...)
	cp.Intercepts = append([]string(nil), s.Intercepts...)
	return cp
}

// String renders the specification in conventional notation.
func (s ModelSpec) String() string {
	out := s.Response + " ~ 1"
	for _, f := range s.Fixed {
		out += " + " + f
	}
	for _, g := range s.Intercepts {
		out += " + (1|" + g + ")"
	}
	return out
}

// grouping is a resolved random-intercept factor: its sorted levels and the
// level index of every row.
type grouping struct {
	name   string
	levels []string
	index  []int
}

// design is the resolved numeric form of a spec against a frame.
type design struct {
	y      []float64
	x      *mat.Dense
	terms  []string
	groups []grouping
}

func buildDesign(f *Frame, spec ModelSpec) (*design, error) {
	if f == nil || f.Len() == 0 {
		return nil, fmt.Errorf("mixedmodel: frame is empty")
	}
	n := f.Len()

	y, ok := f.Numeric(spec.Response)
	if !ok {
		return nil, fmt.Errorf("mixedmodel: unknown response column %q", spec.Response)
	}

	terms := append([]string{InterceptName}, spec.Fixed...)
	x := mat.NewDense(n, len(terms), nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	for j, name := range spec.Fixed {
		col, ok := f.Numeric(name)
		if !ok {
			return nil, fmt.Errorf("mixedmodel: unknown fixed-effect column %q", name)
		}
		for i := 0; i < n; i++ {
			x.Set(i, j+1, col[i])
		}
	}

	groups := make([]grouping, 0, len(spec.Intercepts))
	for _, name := range spec.Intercepts {
		values, ok := f.Categorical(name)
		if !ok {
			return nil, fmt.Errorf("mixedmodel: unknown grouping column %q", name)
		}
		levels := f.Levels(name)
		levelIndex := make(map[string]int, len(levels))
		for i, level := range levels {
			levelIndex[level] = i
		}
		index := make([]int, n)
		for i, v := range values {
			index[i] = levelIndex[v]
		}
		groups = append(groups, grouping{name: name, levels: levels, index: index})
	}

	return &design{y: y, x: x, terms: terms, groups: groups}, nil
}
