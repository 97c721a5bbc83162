package panel

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Generate materializes a fully-crossed panel dataset from the supplied
// parameters. The returned dataset carries only the observable columns
// (subject, item, predictor, response); the latent offsets and residuals are
// available through the returned Diagnostics.
//
// The random source is derived from Params.Seed and threaded through each
// draw step, so the seed and the fixed draw order are the sole determinants
// of the output: equal parameters always yield a bit-identical dataset, and
// concurrent calls share no state. Draws happen in four steps, in order:
// per-item predictors, per-subject offsets, per-item offsets, per-record
// residuals (subject-major).
func Generate(params Params) (Dataset, Diagnostics, error) {
	if err := params.Validate(); err != nil {
		return Dataset{}, Diagnostics{}, err
	}
	src := rand.NewSource(params.Seed)

	exponential := distuv.Exponential{Rate: 1, Src: src}
	predictors := make(map[string]float64, params.Items)
	itemIDs := make([]string, params.Items)
	for i := range itemIDs {
		id := itemID(i)
		itemIDs[i] = id
		predictors[id] = roundTo(exponential.Rand()*params.PredictorScale, 2)
	}

	subjectNormal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	subjectOffsets := make(map[string]float64, params.Subjects)
	subjectIDs := make([]string, params.Subjects)
	for s := range subjectIDs {
		id := subjectID(s)
		subjectIDs[s] = id
		subjectOffsets[id] = subjectNormal.Rand() * params.SubjectSD
	}

	itemOffsets := make(map[string]float64, params.Items)
	for _, id := range itemIDs {
		itemOffsets[id] = subjectNormal.Rand() * params.ItemSD
	}

	total := params.Subjects * params.Items
	residuals := make([]float64, 0, total)
	observations := make([]Observation, 0, total)
	for _, sid := range subjectIDs {
		for _, iid := range itemIDs {
			residual := subjectNormal.Rand() * params.ResidualSD
			residuals = append(residuals, residual)
			predictor := predictors[iid]
			response := params.Mean +
				subjectOffsets[sid] +
				itemOffsets[iid] +
				residual +
				params.FixedSlope*predictor
			observations = append(observations, Observation{
				SubjectID: sid,
				ItemID:    iid,
				Predictor: predictor,
				Response:  response,
			})
		}
	}

	diag := Diagnostics{
		Params:         params,
		SubjectOffsets: subjectOffsets,
		ItemOffsets:    itemOffsets,
		Predictors:     predictors,
		Residuals:      residuals,
	}
	return Dataset{Observations: observations}, diag, nil
}

// Validate checks the generating parameters without consuming entropy.
func (p Params) Validate() error {
	if p.Subjects < 1 {
		return &InvalidParameterError{Field: "subjects", Reason: "must be at least 1"}
	}
	if p.Items < 1 {
		return &InvalidParameterError{Field: "items", Reason: "must be at least 1"}
	}
	if p.SubjectSD < 0 {
		return &InvalidParameterError{Field: "subject_sd", Reason: "must not be negative"}
	}
	if p.ItemSD < 0 {
		return &InvalidParameterError{Field: "item_sd", Reason: "must not be negative"}
	}
	if p.ResidualSD < 0 {
		return &InvalidParameterError{Field: "residual_sd", Reason: "must not be negative"}
	}
	if p.PredictorScale <= 0 {
		return &InvalidParameterError{Field: "predictor_scale", Reason: "must be positive"}
	}
	return nil
}

func subjectID(index int) string { return fmt.Sprintf("S%02d", index+1) }

func itemID(index int) string { return fmt.Sprintf("I%02d", index+1) }

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
