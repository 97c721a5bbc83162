package exports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"panelbench/docs/schema/openapi"
	"panelbench/internal/core"
	"panelbench/pkg/simdata"
)

// Handler provides HTTP access to simulation templates, recorded runs, and exports.
type Handler struct {
	Service *core.Service
	Exports Scheduler
}

// NewHandler constructs a simulation HTTP handler.
func NewHandler(svc *core.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "simulation service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && path == "/api/v1/sim/openapi.yaml":
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Spec())
	case r.Method == http.MethodGet && path == "/api/v1/sim/templates":
		h.handleListTemplates(w)
	case strings.HasPrefix(path, "/api/v1/sim/templates/"):
		h.handleTemplate(w, r, strings.TrimPrefix(path, "/api/v1/sim/templates/"))
	case strings.HasPrefix(path, "/api/v1/sim/exports"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
	case r.Method == http.MethodGet && path == "/api/v1/sim/runs":
		writeJSON(w, http.StatusOK, map[string]any{"runs": h.Service.ListRuns()})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v1/sim/runs/"):
		id := strings.TrimPrefix(path, "/api/v1/sim/runs/")
		run, ok := h.Service.GetRun(id)
		if !ok {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleListTemplates(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.Service.ListTemplates()})
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) < 3 {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	studyName, key, version := segments[0], segments[1], segments[2]
	slug := fmt.Sprintf("%s/%s@%s", studyName, key, version)

	host, ok := h.Service.ResolveTemplate(slug)
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	if len(segments) == 3 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"template": host.Descriptor()})
		return
	}
	if len(segments) != 4 {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch segments[3] {
	case "validate":
		h.handleValidate(w, r, host)
	case "run":
		h.handleRun(w, r, host, slug)
	default:
		writeError(w, http.StatusNotFound, "endpoint not found")
	}
}

type validationRequest struct {
	Parameters map[string]any `json:"parameters"`
}

type validationResponse struct {
	Template   simdata.Descriptor       `json:"template"`
	Valid      bool                     `json:"valid"`
	Parameters map[string]any           `json:"parameters"`
	Errors     []simdata.ParameterError `json:"errors,omitempty"`
}

const emptyBodySentinel = "EOF"

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request, host *simdata.HostTemplate) {
	var req validationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid validation request payload")
		return
	}
	cleaned, errs := host.ValidateParameters(req.Parameters)
	writeJSON(w, http.StatusOK, validationResponse{
		Template:   host.Descriptor(),
		Valid:      len(errs) == 0,
		Parameters: cleaned,
		Errors:     errs,
	})
}

type runRequest struct {
	Parameters map[string]any `json:"parameters"`
	StudyID    string         `json:"study_id"`
	Scope      simdata.Scope  `json:"scope"`
}

type runResponse struct {
	Template   simdata.Descriptor `json:"template"`
	RunID      string             `json:"run_id"`
	Scope      simdata.Scope      `json:"scope"`
	Parameters map[string]any     `json:"parameters"`
	Result     simdata.RunResult  `json:"result"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request, host *simdata.HostTemplate, slug string) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid run request payload")
		return
	}

	format := negotiateFormat(r, host.Descriptor().OutputFormats)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}

	run, result, paramErrs, err := h.Service.RunTemplate(r.Context(), core.RunTemplateRequest{
		Slug:       slug,
		StudyID:    req.StudyID,
		Parameters: req.Parameters,
		Scope:      req.Scope,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(paramErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Template:   host.Descriptor(),
			Valid:      false,
			Parameters: req.Parameters,
			Errors:     paramErrs,
		})
		return
	}

	if format == string(simdata.FormatCSV) {
		streamCSV(w, host.Descriptor(), *result)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		Template:   host.Descriptor(),
		RunID:      run.ID,
		Scope:      req.Scope,
		Parameters: req.Parameters,
		Result:     *result,
	})
}

type exportRequest struct {
	Template struct {
		Slug    string `json:"slug"`
		Study   string `json:"study"`
		Key     string `json:"key"`
		Version string `json:"version"`
	} `json:"template"`
	Parameters  map[string]any `json:"parameters"`
	Formats     []string       `json:"formats"`
	Scope       simdata.Scope  `json:"scope"`
	RequestedBy string         `json:"requested_by"`
	Reason      string         `json:"reason"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/sim/exports" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(path, "/api/v1/sim/exports/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != emptyBodySentinel {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}

	slug := strings.TrimSpace(req.Template.Slug)
	if slug == "" {
		if req.Template.Study == "" || req.Template.Key == "" || req.Template.Version == "" {
			writeError(w, http.StatusBadRequest, "template slug or study/key/version required")
			return
		}
		slug = fmt.Sprintf("%s/%s@%s", req.Template.Study, req.Template.Key, req.Template.Version)
	}

	formats := make([]simdata.Format, 0, len(req.Formats))
	for _, f := range req.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "json":
			formats = append(formats, simdata.FormatJSON)
		case "csv":
			formats = append(formats, simdata.FormatCSV)
		case "html":
			formats = append(formats, simdata.FormatHTML)
		case "png":
			formats = append(formats, simdata.FormatPNG)
		default:
			writeError(w, http.StatusBadRequest, "unsupported export format")
			return
		}
	}

	record, err := h.Exports.Enqueue(r.Context(), Input{
		TemplateSlug: slug,
		Parameters:   req.Parameters,
		Formats:      formats,
		Scope:        req.Scope,
		RequestedBy:  firstNonEmpty(req.RequestedBy, req.Scope.Requestor),
		Reason:       req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func negotiateFormat(r *http.Request, supported []simdata.Format) string {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		if strings.Contains(r.Header.Get("Accept"), "text/csv") {
			wanted = string(simdata.FormatCSV)
		} else {
			wanted = string(simdata.FormatJSON)
		}
	}
	switch simdata.Format(wanted) {
	case simdata.FormatCSV, simdata.FormatJSON:
		for _, candidate := range supported {
			if string(candidate) == wanted {
				return wanted
			}
		}
	}
	return ""
}

func streamCSV(w http.ResponseWriter, descriptor simdata.Descriptor, result simdata.RunResult) {
	filename := fmt.Sprintf("%s-%s.csv", descriptor.Key, time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writer := csv.NewWriter(w)
	defer writer.Flush()

	columns := result.Schema
	if len(columns) == 0 {
		columns = descriptor.Columns
	}
	headers := make([]string, len(columns))
	for i, column := range columns {
		headers[i] = column.Name
	}
	if err := writer.Write(headers); err != nil {
		return
	}
	for _, row := range result.Rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = formatValue(row[column.Name])
		}
		if err := writer.Write(record); err != nil {
			return
		}
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case float32:
		return fmt.Sprintf("%g", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprint(v)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
