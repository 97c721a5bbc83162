package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"panelbench/pkg/study"
)

func TestRunInTransactionCommitsOnSuccess(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var created study.Run
	err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
		run, err := tx.CreateRun(study.Run{
			TemplateSlug: "panel/crossed-panel@1.0.0",
			Parameters:   map[string]any{"subjects": 6},
			Rows:         120,
			Status:       study.RunStatusSucceeded,
		})
		if err != nil {
			return err
		}
		created = run
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated run id")
	}
	got, ok := store.GetRun(created.ID)
	if !ok {
		t.Fatalf("run not visible after commit")
	}
	if got.Rows != 120 || got.TemplateSlug != "panel/crossed-panel@1.0.0" {
		t.Fatalf("unexpected run: %+v", got)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
		if _, err := tx.CreateRun(study.Run{TemplateSlug: "panel/crossed-panel@1.0.0"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if runs := store.ListRuns(); len(runs) != 0 {
		t.Fatalf("expected empty store after rollback, got %d runs", len(runs))
	}
}

func TestUpdateRunAttachesFit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var runID string
	if err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
		run, err := tx.CreateRun(study.Run{TemplateSlug: "panel/crossed-panel@1.0.0", Status: study.RunStatusSucceeded})
		if err != nil {
			return err
		}
		runID = run.ID
		return nil
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	fit := study.FitSummary{
		Model:        "response ~ 1 + predictor + (1|subject) + (1|item)",
		Family:       "gaussian",
		Coefficients: map[string]float64{"(Intercept)": 300, "predictor": -5},
		Converged:    true,
	}
	if err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
		_, err := tx.UpdateRun(runID, func(r *study.Run) error {
			r.Fits = append(r.Fits, fit)
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := store.GetRun(runID)
	if len(got.Fits) != 1 || got.Fits[0].Coefficients["predictor"] != -5 {
		t.Fatalf("fit not attached: %+v", got.Fits)
	}
}

func TestUpdateMissingRunReturnsNotFound(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx study.Transaction) error {
		_, err := tx.UpdateRun("missing", func(*study.Run) error { return nil })
		return err
	})
	var nf study.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Entity != "run" || nf.ID != "missing" {
		t.Fatalf("unexpected not-found detail: %+v", nf)
	}
}

func TestCreateRunRejectsUnknownStudy(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx study.Transaction) error {
		_, err := tx.CreateRun(study.Run{StudyID: "ghost", TemplateSlug: "panel/crossed-panel@1.0.0"})
		return err
	})
	var nf study.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for dangling study id, got %v", err)
	}
}

func TestListRunsOrderedByCreation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	store.SetNowFunc(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	})

	for i := 0; i < 3; i++ {
		if err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
			_, err := tx.CreateRun(study.Run{TemplateSlug: "panel/crossed-panel@1.0.0"})
			return err
		}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	runs := store.ListRuns()
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].CreatedAt.Before(runs[i-1].CreatedAt) {
			t.Fatalf("runs out of order at %d", i)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
		st, err := tx.CreateStudy(study.Study{Code: "sleep-deprivation", Title: "Sleep deprivation panel"})
		if err != nil {
			return err
		}
		_, err = tx.CreateRun(study.Run{StudyID: st.ID, TemplateSlug: "panel/crossed-panel@1.0.0"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore()
	restored.ImportState(store.ExportState())
	if len(restored.ListStudies()) != 1 || len(restored.ListRuns()) != 1 {
		t.Fatalf("round trip lost state")
	}
}

func TestMigrateSnapshotClearsDanglingStudyRefs(t *testing.T) {
	store := NewStore()
	store.ImportState(Snapshot{
		Runs: map[string]study.Run{
			"r1": {ID: "r1", StudyID: "deleted", TemplateSlug: "panel/crossed-panel@1.0.0"},
		},
	})
	run, ok := store.GetRun("r1")
	if !ok {
		t.Fatalf("run lost during migration")
	}
	if run.StudyID != "" {
		t.Fatalf("expected dangling study reference cleared, got %q", run.StudyID)
	}
}

func TestDeleteStudyDetachesRuns(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	var studyID, runID string
	if err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
		st, err := tx.CreateStudy(study.Study{Code: "pilot"})
		if err != nil {
			return err
		}
		studyID = st.ID
		run, err := tx.CreateRun(study.Run{StudyID: st.ID, TemplateSlug: "panel/crossed-panel@1.0.0"})
		if err != nil {
			return err
		}
		runID = run.ID
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.RunInTransaction(ctx, func(tx study.Transaction) error {
		return tx.DeleteStudy(studyID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	run, _ := store.GetRun(runID)
	if run.StudyID != "" {
		t.Fatalf("expected run detached from deleted study")
	}
}
