// Package panel models fully-crossed repeated-measures datasets and generates
// synthetic ones with known fixed-effect and random-effect structure. The
// generator exists to validate that a mixed-model fitting procedure recovers
// the parameters that produced the data.
package panel

import "sort"

// Observation is a single trial: one subject responding to one item. The
// predictor is an item-level covariate shared by every observation of the
// same item.
type Observation struct {
	SubjectID string  `json:"subject_id"`
	ItemID    string  `json:"item_id"`
	Predictor float64 `json:"predictor"`
	Response  float64 `json:"response"`
}

// Dataset is an ordered sequence of observations. Generated datasets are
// fully crossed: every subject responds to every item exactly once, in
// subject-major order.
type Dataset struct {
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations.
func (d Dataset) Len() int { return len(d.Observations) }

// Subjects returns the distinct subject identifiers in sorted order.
func (d Dataset) Subjects() []string {
	return distinct(d.Observations, func(o Observation) string { return o.SubjectID })
}

// Items returns the distinct item identifiers in sorted order.
func (d Dataset) Items() []string {
	return distinct(d.Observations, func(o Observation) string { return o.ItemID })
}

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	cp := Dataset{}
	if len(d.Observations) > 0 {
		cp.Observations = append([]Observation(nil), d.Observations...)
	}
	return cp
}

func distinct(obs []Observation, key func(Observation) string) []string {
	seen := make(map[string]struct{}, len(obs))
	var out []string
	for _, o := range obs {
		k := key(o)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Params are the generating parameters for a synthetic panel dataset.
type Params struct {
	Subjects       int     `json:"subjects"`
	Items          int     `json:"items"`
	FixedSlope     float64 `json:"fixed_slope"`
	SubjectSD      float64 `json:"subject_sd"`
	ItemSD         float64 `json:"item_sd"`
	ResidualSD     float64 `json:"residual_sd"`
	PredictorScale float64 `json:"predictor_scale"`
	Mean           float64 `json:"mean"`
	Seed           uint64  `json:"seed"`
}

// Diagnostics retains the latent construction of a generated dataset: the
// per-group offsets, per-record residuals, and the parameters used. The
// observable Dataset deliberately omits all of this; tests use Diagnostics to
// verify the additive decomposition and parameter recovery.
type Diagnostics struct {
	Params         Params             `json:"params"`
	SubjectOffsets map[string]float64 `json:"subject_offsets"`
	ItemOffsets    map[string]float64 `json:"item_offsets"`
	Predictors     map[string]float64 `json:"predictors"`
	Residuals      []float64          `json:"residuals"`
}

// Clone returns a deep copy of the diagnostics.
func (g Diagnostics) Clone() Diagnostics {
	cp := g
	cp.SubjectOffsets = cloneFloatMap(g.SubjectOffsets)
	cp.ItemOffsets = cloneFloatMap(g.ItemOffsets)
	cp.Predictors = cloneFloatMap(g.Predictors)
	if len(g.Residuals) > 0 {
		cp.Residuals = append([]float64(nil), g.Residuals...)
	}
	return cp
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
