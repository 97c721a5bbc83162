package exports

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"panelbench/internal/core"
	"panelbench/internal/infra/persistence/memory"
	"panelbench/pkg/simdata"
	"panelbench/plugins/crossedpanel"
)

func newTestService(t *testing.T) *core.Service {
	t.Helper()
	svc := core.NewService(memory.NewStore())
	if _, err := svc.RegisterTemplate(crossedpanel.Study, crossedpanel.Template()); err != nil {
		t.Fatalf("register template: %v", err)
	}
	return svc
}

func waitForExport(t *testing.T, worker *Worker, id string) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		current, ok := worker.GetExport(id)
		if !ok {
			t.Fatalf("export %s missing", id)
		}
		switch current.Status {
		case StatusSucceeded:
			return current
		case StatusFailed:
			t.Fatalf("export failed: %s", current.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for export %s", id)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerProcessesExport(t *testing.T) {
	svc := newTestService(t)
	store := NewMemoryObjectStore()
	audit := NewMemoryAuditLog()
	worker := NewWorker(svc, store, audit)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	record, err := worker.Enqueue(context.Background(), Input{
		TemplateSlug: crossedpanel.Slug,
		Parameters:   map[string]any{"subjects": 3, "items": 4},
		Formats:      []simdata.Format{simdata.FormatJSON, simdata.FormatCSV},
		Scope:        simdata.Scope{Requestor: "analyst@panelbench"},
		RequestedBy:  "analyst@panelbench",
	})
	if err != nil {
		t.Fatalf("enqueue export: %v", err)
	}
	if record.Status != StatusQueued {
		t.Fatalf("expected queued status, got %s", record.Status)
	}

	done := waitForExport(t, worker, record.ID)
	if len(done.Artifacts) != 2 {
		t.Fatalf("expected two artifacts, got %d", len(done.Artifacts))
	}

	objects := store.Objects()
	jsonPayload, ok := objects[record.ID+"/dataset.json"]
	if !ok {
		t.Fatalf("json artifact missing from object store, keys: %v", keysOf(objects))
	}
	var result simdata.RunResult
	if err := json.Unmarshal(jsonPayload, &result); err != nil {
		t.Fatalf("decode stored dataset: %v", err)
	}
	if len(result.Rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(result.Rows))
	}

	csvPayload, ok := objects[record.ID+"/dataset.csv"]
	if !ok {
		t.Fatalf("csv artifact missing from object store")
	}
	lines := strings.Split(strings.TrimSpace(string(csvPayload)), "\n")
	if len(lines) != 13 {
		t.Fatalf("expected header plus 12 csv rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "predictor") {
		t.Fatalf("csv header missing predictor column: %s", lines[0])
	}

	entries := audit.Entries()
	if len(entries) == 0 {
		t.Fatalf("expected audit entries")
	}
	last := entries[len(entries)-1]
	if last.Action != "dataset_export" || last.Status != StatusSucceeded {
		t.Fatalf("unexpected final audit entry: %+v", last)
	}
	if last.Actor != "analyst@panelbench" {
		t.Fatalf("unexpected audit actor %q", last.Actor)
	}
}

func TestWorkerRendersScatterAndReport(t *testing.T) {
	svc := newTestService(t)
	store := NewMemoryObjectStore()
	worker := NewWorker(svc, store, nil)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	record, err := worker.Enqueue(context.Background(), Input{
		TemplateSlug: crossedpanel.Slug,
		Parameters:   map[string]any{"subjects": 2, "items": 2},
		Formats:      []simdata.Format{simdata.FormatHTML, simdata.FormatPNG},
	})
	if err != nil {
		t.Fatalf("enqueue export: %v", err)
	}
	waitForExport(t, worker, record.ID)

	objects := store.Objects()
	html, ok := objects[record.ID+"/report.html"]
	if !ok {
		t.Fatalf("html artifact missing")
	}
	if !strings.Contains(string(html), "<table>") {
		t.Fatalf("html report missing table")
	}
	pngPayload, ok := objects[record.ID+"/scatter.png"]
	if !ok {
		t.Fatalf("png artifact missing")
	}
	if len(pngPayload) < 8 || string(pngPayload[1:4]) != "PNG" {
		t.Fatalf("payload is not a png image")
	}
}

func TestWorkerRejectsUnsupportedFormat(t *testing.T) {
	svc := newTestService(t)
	worker := NewWorker(svc, NewMemoryObjectStore(), nil)
	if _, err := worker.Enqueue(context.Background(), Input{
		TemplateSlug: crossedpanel.Slug,
		Formats:      []simdata.Format{simdata.Format("xml")},
	}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestWorkerRejectsUnknownTemplate(t *testing.T) {
	svc := newTestService(t)
	worker := NewWorker(svc, NewMemoryObjectStore(), nil)
	if _, err := worker.Enqueue(context.Background(), Input{TemplateSlug: "panel/none@9.9.9"}); err == nil {
		t.Fatalf("expected error for unknown template")
	}
	if _, err := worker.Enqueue(context.Background(), Input{TemplateSlug: "  "}); err == nil {
		t.Fatalf("expected error for blank slug")
	}
}

func TestWorkerRecordsParameterFailure(t *testing.T) {
	svc := newTestService(t)
	worker := NewWorker(svc, NewMemoryObjectStore(), nil)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	record, err := worker.Enqueue(context.Background(), Input{
		TemplateSlug: crossedpanel.Slug,
		Parameters:   map[string]any{"subjects": -1},
		Formats:      []simdata.Format{simdata.FormatJSON},
	})
	if err != nil {
		t.Fatalf("enqueue export: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		current, _ := worker.GetExport(record.ID)
		if current.Status == StatusFailed {
			if !strings.Contains(current.Error, "parameter") {
				t.Fatalf("unexpected failure reason: %s", current.Error)
			}
			if current.CompletedAt == nil {
				t.Fatalf("expected completion timestamp on failure")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for failure")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerFullQueueLeavesNoRecord(t *testing.T) {
	svc := newTestService(t)
	worker := NewWorker(svc, NewMemoryObjectStore(), nil)
	// Worker not started, so accepted jobs sit in the queue.

	input := Input{
		TemplateSlug: crossedpanel.Slug,
		Parameters:   map[string]any{"subjects": 2, "items": 2},
		Formats:      []simdata.Format{simdata.FormatJSON},
	}
	for i := 0; i < queueCapacity; i++ {
		if _, err := worker.Enqueue(context.Background(), input); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	rejected, err := worker.Enqueue(context.Background(), input)
	if err == nil {
		t.Fatalf("expected full-queue error")
	}
	if rejected.ID != "" {
		if _, ok := worker.GetExport(rejected.ID); ok {
			t.Fatalf("rejected export must not be tracked")
		}
	}
	if got := len(worker.ListExports()); got != queueCapacity {
		t.Fatalf("expected %d tracked exports, got %d", queueCapacity, got)
	}
	for _, record := range worker.ListExports() {
		if record.Status != StatusQueued {
			t.Fatalf("unexpected status %s for %s", record.Status, record.ID)
		}
	}
}

func TestMemoryObjectStoreRejectsDuplicateKey(t *testing.T) {
	store := NewMemoryObjectStore()
	ctx := context.Background()
	if _, err := store.Put(ctx, "a/b.json", []byte("{}"), "application/json", nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "a/b.json", []byte("{}"), "application/json", nil); err == nil {
		t.Fatalf("expected duplicate key rejection")
	}
	artifacts, err := store.List(ctx, "a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected one artifact, got %d", len(artifacts))
	}
}

func keysOf(objects map[string][]byte) []string {
	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	return keys
}
