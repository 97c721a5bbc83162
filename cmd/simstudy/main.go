// Command simstudy runs a parameter-recovery study from the command line:
// it generates a synthetic crossed panel dataset, fits the full mixed model
// and a reduced model without the fixed slope, and reports the likelihood
// ratio comparison. With -ratings it instead analyzes an observed ratings
// CSV with a mixed logistic model.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"panelbench/internal/ratings"
	"panelbench/pkg/mixedmodel"
	"panelbench/pkg/panel"
)

var exitFunc = os.Exit

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "simstudy: %v\n", err)
		exitFunc(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("simstudy", flag.ContinueOnError)
	subjects := fs.Int("subjects", 6, "number of subjects")
	items := fs.Int("items", 20, "number of items")
	slope := fs.Float64("slope", -5.0, "fixed slope on the predictor")
	mean := fs.Float64("mean", 300.0, "grand mean of the response")
	subjectSD := fs.Float64("subject-sd", 40.0, "subject intercept standard deviation")
	itemSD := fs.Float64("item-sd", 20.0, "item intercept standard deviation")
	residualSD := fs.Float64("residual-sd", 20.0, "residual standard deviation")
	predictorScale := fs.Float64("predictor-scale", 10.0, "scale of the item predictor")
	seed := fs.Uint64("seed", 666, "random seed")
	csvPath := fs.String("csv", "", "write the generated dataset to this CSV file")
	ratingsPath := fs.String("ratings", "", "analyze an observed ratings CSV instead of simulating")
	threshold := fs.Float64("threshold", 4.5, "rating cutoff for the high outcome (with -ratings)")
	raterCol := fs.String("rater-col", "rater", "rater column name (with -ratings)")
	stimulusCol := fs.String("stimulus-col", "stimulus", "stimulus column name (with -ratings)")
	ratingCol := fs.String("rating-col", "rating", "rating column name (with -ratings)")
	conditionCol := fs.String("condition-col", "condition", "condition column name (with -ratings)")
	conditionLevel := fs.String("condition-level", "", "condition level coded 1 (with -ratings)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *ratingsPath != "" {
		return runRatings(out, *ratingsPath, ratings.AnalysisConfig{
			RaterColumn:     *raterCol,
			StimulusColumn:  *stimulusCol,
			RatingColumn:    *ratingCol,
			ConditionColumn: *conditionCol,
			ConditionLevel:  *conditionLevel,
			Threshold:       *threshold,
		})
	}

	params := panel.Params{
		Subjects:       *subjects,
		Items:          *items,
		FixedSlope:     *slope,
		Mean:           *mean,
		SubjectSD:      *subjectSD,
		ItemSD:         *itemSD,
		ResidualSD:     *residualSD,
		PredictorScale: *predictorScale,
		Seed:           *seed,
	}
	return runSimulation(out, params, *csvPath)
}

func runSimulation(out io.Writer, params panel.Params, csvPath string) error {
	dataset, _, err := panel.Generate(params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "generated %d observations (%d subjects x %d items, seed %d)\n\n",
		dataset.Len(), params.Subjects, params.Items, params.Seed)

	if csvPath != "" {
		if err := writeDatasetCSV(csvPath, dataset); err != nil {
			return err
		}
		fmt.Fprintf(out, "dataset written to %s\n\n", csvPath)
	}

	frame := mixedmodel.FromPanel(dataset)
	fullSpec := mixedmodel.ModelSpec{
		Response:   mixedmodel.ColResponse,
		Fixed:      []string{mixedmodel.ColPredictor},
		Intercepts: []string{mixedmodel.ColSubject, mixedmodel.ColItem},
	}
	reducedSpec := mixedmodel.ModelSpec{
		Response:   mixedmodel.ColResponse,
		Intercepts: []string{mixedmodel.ColSubject, mixedmodel.ColItem},
	}

	full, err := mixedmodel.FitLinear(frame, fullSpec)
	if err != nil {
		return fmt.Errorf("fit full model: %w", err)
	}
	reduced, err := mixedmodel.FitLinear(frame, reducedSpec)
	if err != nil {
		return fmt.Errorf("fit reduced model: %w", err)
	}

	fmt.Fprintln(out, full.Summary())
	fmt.Fprintln(out)

	lrt, err := mixedmodel.LikelihoodRatio(full, reduced)
	if err != nil {
		return err
	}
	writeComparison(out, full, reduced, lrt)

	fmt.Fprintf(out, "\ngenerating slope %.3f, recovered %.3f\n",
		params.FixedSlope, coefficientOrZero(full, mixedmodel.ColPredictor))
	return nil
}

func runRatings(out io.Writer, path string, cfg ratings.AnalysisConfig) error {
	table, err := ratings.LoadFile(path)
	if err != nil {
		return err
	}
	report, err := ratings.Analyze(table, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "analyzed %d observations, %d above threshold %.2f\n\n",
		report.Observations, report.HighCount, cfg.Threshold)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\tcount\n", cfg.ConditionColumn, cfg.RatingColumn)
	for _, row := range report.Counts.RowLevels {
		for _, col := range report.Counts.ColLevels {
			if n := report.Counts.Counts[row][col]; n > 0 {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", row, col, n)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, report.Fit.Spec().String())
	fmt.Fprintln(out, report.Fit.Summary())
	return nil
}

func writeComparison(out io.Writer, full, reduced *mixedmodel.Fit, lrt mixedmodel.LRTResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "model\tnpar\tlogLik\tAIC")
	fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\n", reduced.Spec(), reduced.NumParams(), reduced.LogLikelihood(), reduced.AIC())
	fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\n", full.Spec(), full.NumParams(), full.LogLikelihood(), full.AIC())
	_ = tw.Flush()
	fmt.Fprintf(out, "\nLRT chisq = %.3f, df = %d, p = %s\n", lrt.Statistic, lrt.DF, formatP(lrt.PValue))
}

func formatP(p float64) string {
	if p < 0.001 {
		return "< 0.001"
	}
	return strconv.FormatFloat(p, 'f', 4, 64)
}

func coefficientOrZero(fit *mixedmodel.Fit, name string) float64 {
	v, _ := fit.Coefficient(name)
	return v
}

func writeDatasetCSV(path string, dataset panel.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	writer := csv.NewWriter(f)
	if err := writer.Write([]string{"subject", "item", "predictor", "response"}); err != nil {
		return err
	}
	for _, obs := range dataset.Observations {
		record := []string{
			obs.SubjectID,
			obs.ItemID,
			strconv.FormatFloat(obs.Predictor, 'f', -1, 64),
			strconv.FormatFloat(obs.Response, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
