// Package exports materializes simulation datasets into downloadable
// artifacts (JSON, CSV, HTML tables, scatter plots) through an asynchronous
// worker with an audit trail.
package exports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"panelbench/pkg/simdata"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored export output.
type Artifact struct {
	ID          string         `json:"id"`
	Format      simdata.Format `json:"format"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	URL         string         `json:"url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string             `json:"id"`
	Template    simdata.Descriptor `json:"template"`
	Scope       simdata.Scope      `json:"scope"`
	Parameters  map[string]any     `json:"parameters"`
	Formats     []simdata.Format   `json:"formats"`
	Status      Status             `json:"status"`
	Error       string             `json:"error,omitempty"`
	Artifacts   []Artifact         `json:"artifacts,omitempty"`
	RequestedBy string             `json:"requested_by"`
	Reason      string             `json:"reason,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Input represents an enqueue request for the worker.
type Input struct {
	TemplateSlug string
	Parameters   map[string]any
	Formats      []simdata.Format
	Scope        simdata.Scope
	RequestedBy  string
	Reason       string
}

// Catalog resolves template slugs to bound host templates.
type Catalog interface {
	ResolveTemplate(slug string) (*simdata.HostTemplate, bool)
}

// Scheduler queues export requests and exposes status.
type Scheduler interface {
	Enqueue(ctx context.Context, input Input) (Record, error)
	GetExport(id string) (Record, bool)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Template   string         `json:"template"`
	Status     Status         `json:"status"`
	Scope      simdata.Scope  `json:"scope"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// queueCapacity bounds pending exports; Enqueue fails once full.
const queueCapacity = 32

// Worker executes dataset exports asynchronously.
type Worker struct {
	catalog Catalog
	store   ObjectStore
	audit   AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

type rendered struct {
	artifact Artifact
	payload  []byte
}

// NewWorker constructs an export worker.
func NewWorker(catalog Catalog, store ObjectStore, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		catalog: catalog,
		store:   store,
		audit:   audit,
		queue:   make(chan task, queueCapacity),
		jobs:    make(map[string]*Record),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export job and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.catalog == nil {
		return Record{}, fmt.Errorf("export catalog not configured")
	}
	slug := strings.TrimSpace(input.TemplateSlug)
	if slug == "" {
		return Record{}, fmt.Errorf("template slug required")
	}
	host, ok := w.catalog.ResolveTemplate(slug)
	if !ok {
		return Record{}, fmt.Errorf("template %s not found", slug)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []simdata.Format{simdata.FormatJSON, simdata.FormatCSV}
	}
	uniq := make([]simdata.Format, 0, len(formats))
	seen := make(map[simdata.Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if !host.SupportsFormat(format) {
			return Record{}, fmt.Errorf("format %s not supported by template", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		Template:    host.Descriptor(),
		Scope:       input.Scope,
		Parameters:  cloneMap(input.Parameters),
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		// Keep the record out of the catalog when the job was never
		// accepted, otherwise it would stay queued forever.
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return Record{}, fmt.Errorf("export queue full")
	}

	w.recordAudit(ctx, id, StatusQueued, nil)
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// ListExports returns snapshots of all known export records.
func (w *Worker) ListExports() []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Record, 0, len(w.jobs))
	for _, record := range w.jobs {
		out = append(out, record.copy())
	}
	return out
}

func (w *Worker) process(t task) {
	host, ok := w.catalog.ResolveTemplate(t.input.TemplateSlug)
	if !ok {
		w.fail(t.id, fmt.Sprintf("template %s missing", t.input.TemplateSlug))
		return
	}

	w.updateStatus(t.id, StatusRunning, "")

	result, paramErrs, err := host.Run(w.ctx, t.input.Parameters, t.input.Scope)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("dataset run failed: %v", err))
		return
	}
	if len(paramErrs) > 0 {
		w.fail(t.id, fmt.Sprintf("parameter validation failed: %v", paramErrs))
		return
	}

	w.mu.RLock()
	formats := append([]simdata.Format(nil), w.jobs[t.id].Formats...)
	w.mu.RUnlock()

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		out, err := materialize(format, host.Descriptor(), result)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		if w.store != nil {
			key := artifactKey(t.id, format)
			stored, err := w.store.Put(w.ctx, key, out.payload, out.artifact.ContentType, out.artifact.Metadata)
			if err != nil {
				w.fail(t.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			stored.Format = out.artifact.Format
			if stored.ContentType == "" {
				stored.ContentType = out.artifact.ContentType
			}
			if stored.SizeBytes == 0 {
				stored.SizeBytes = out.artifact.SizeBytes
			}
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = out.artifact.CreatedAt
			}
			stored.Metadata = mergeMetadata(out.artifact.Metadata, stored.Metadata)
			artifacts = append(artifacts, stored)
		} else {
			artifacts = append(artifacts, out.artifact)
		}
	}
	w.complete(t.id, artifacts)
}

func artifactKey(recordID string, format simdata.Format) string {
	name := map[simdata.Format]string{
		simdata.FormatJSON: "dataset.json",
		simdata.FormatCSV:  "dataset.csv",
		simdata.FormatHTML: "report.html",
		simdata.FormatPNG:  "scatter.png",
	}[format]
	if name == "" {
		name = string(format)
	}
	return recordID + "/" + name
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, nil)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusSucceeded, nil)
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusFailed, map[string]any{"error": reason})
}

func (w *Worker) recordAudit(ctx context.Context, id string, status Status, metadata map[string]any) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	var actor, slug string
	var scope simdata.Scope
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
		slug = record.Template.Slug
		scope = record.Scope
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "dataset_export",
		Actor:      actor,
		Template:   slug,
		Status:     status,
		Scope:      scope,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	})
}

func materialize(format simdata.Format, descriptor simdata.Descriptor, result simdata.RunResult) (rendered, error) {
	switch format {
	case simdata.FormatJSON:
		payload, err := json.Marshal(result)
		if err != nil {
			return rendered{}, fmt.Errorf("marshal json: %w", err)
		}
		return newRendered(simdata.FormatJSON, "application/json", payload, len(result.Rows)), nil
	case simdata.FormatCSV:
		payload, err := renderCSV(descriptor, result)
		if err != nil {
			return rendered{}, err
		}
		return newRendered(simdata.FormatCSV, "text/csv", payload, len(result.Rows)), nil
	case simdata.FormatHTML:
		return newRendered(simdata.FormatHTML, "text/html", renderHTML(descriptor, result), len(result.Rows)), nil
	case simdata.FormatPNG:
		payload, err := renderScatterPNG(result)
		if err != nil {
			return rendered{}, err
		}
		return newRendered(simdata.FormatPNG, "image/png", payload, len(result.Rows)), nil
	default:
		return rendered{}, fmt.Errorf("unsupported export format %s", format)
	}
}

func newRendered(format simdata.Format, contentType string, payload []byte, rows int) rendered {
	return rendered{
		artifact: Artifact{
			ID:          newID(),
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			Metadata:    map[string]any{"rows": rows},
			CreatedAt:   time.Now().UTC(),
		},
		payload: payload,
	}
}

func renderCSV(descriptor simdata.Descriptor, result simdata.RunResult) ([]byte, error) {
	columns := result.Schema
	if len(columns) == 0 {
		columns = descriptor.Columns
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	headers := make([]string, len(columns))
	for i, column := range columns {
		headers[i] = column.Name
	}
	if err := writer.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range result.Rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = formatValue(row[column.Name])
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderHTML(descriptor simdata.Descriptor, result simdata.RunResult) []byte {
	columns := result.Schema
	if len(columns) == 0 {
		columns = descriptor.Columns
	}
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(descriptor.Title)
	buf.WriteString("</title></head><body><table>")
	buf.WriteString("<thead><tr>")
	for _, column := range columns {
		buf.WriteString("<th>")
		buf.WriteString(column.Name)
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, row := range result.Rows {
		buf.WriteString("<tr>")
		for _, column := range columns {
			buf.WriteString("<td>")
			buf.WriteString(formatValue(row[column.Name]))
			buf.WriteString("</td>")
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table></body></html>")
	return []byte(buf.String())
}

func (r Record) copy() Record {
	dup := r
	dup.Parameters = cloneMap(r.Parameters)
	dup.Formats = append([]simdata.Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
