package simdata

import (
	"context"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func stubTemplate() Template {
	return Template{
		Key:     "stub",
		Version: "1.0.0",
		Title:   "Stub",
		Parameters: []Parameter{
			{Name: "count", Type: "integer", Required: true, Minimum: floatPtr(1)},
			{Name: "scale", Type: "number", Default: 10.0, Minimum: floatPtr(0)},
			{Name: "label", Type: "string", Enum: []string{"a", "b"}},
		},
		Columns:       []Column{{Name: "value", Type: "number"}},
		OutputFormats: []Format{FormatJSON, FormatCSV},
		Binder: func(env Environment) (Runner, error) {
			return func(ctx context.Context, req RunRequest) (RunResult, error) {
				n := req.Parameters["count"].(int)
				rows := make([]map[string]any, n)
				for i := range rows {
					rows[i] = map[string]any{"value": float64(i) * req.Parameters["scale"].(float64)}
				}
				return RunResult{Rows: rows, GeneratedAt: env.Now()}, nil
			}, nil
		},
	}
}

func TestNewHostTemplateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Template)
	}{
		{"missing key", func(tpl *Template) { tpl.Key = " " }},
		{"missing version", func(tpl *Template) { tpl.Version = "" }},
		{"missing title", func(tpl *Template) { tpl.Title = "" }},
		{"no columns", func(tpl *Template) { tpl.Columns = nil }},
		{"no formats", func(tpl *Template) { tpl.OutputFormats = nil }},
		{"no binder", func(tpl *Template) { tpl.Binder = nil }},
		{"bad parameter type", func(tpl *Template) { tpl.Parameters[0].Type = "complex" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := stubTemplate()
			tc.mutate(&tpl)
			if _, err := NewHostTemplate("demo", tpl); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestHostTemplateSlugAndFormats(t *testing.T) {
	host, err := NewHostTemplate("demo", stubTemplate())
	if err != nil {
		t.Fatalf("new host template: %v", err)
	}
	if got := host.Slug(); got != "demo/stub@1.0.0" {
		t.Fatalf("slug %q", got)
	}
	if !host.SupportsFormat(FormatCSV) {
		t.Fatalf("csv should be supported")
	}
	if host.SupportsFormat(FormatPNG) {
		t.Fatalf("png should not be supported")
	}
}

func TestValidateParameters(t *testing.T) {
	host, err := NewHostTemplate("demo", stubTemplate())
	if err != nil {
		t.Fatalf("new host template: %v", err)
	}

	cleaned, errs := host.ValidateParameters(map[string]any{"count": 3, "label": "a"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cleaned["count"] != 3 {
		t.Fatalf("count %v", cleaned["count"])
	}
	if cleaned["scale"] != 10.0 {
		t.Fatalf("default scale not applied: %v", cleaned["scale"])
	}

	_, errs = host.ValidateParameters(nil)
	if len(errs) != 1 || errs[0].Name != "count" {
		t.Fatalf("expected missing-count error, got %v", errs)
	}

	_, errs = host.ValidateParameters(map[string]any{"count": 0})
	if len(errs) != 1 {
		t.Fatalf("expected bound violation, got %v", errs)
	}

	_, errs = host.ValidateParameters(map[string]any{"count": 1, "scale": -2})
	if len(errs) != 1 {
		t.Fatalf("expected negative scale rejection, got %v", errs)
	}

	_, errs = host.ValidateParameters(map[string]any{"count": 1, "label": "z"})
	if len(errs) != 1 {
		t.Fatalf("expected enum violation, got %v", errs)
	}

	_, errs = host.ValidateParameters(map[string]any{"count": 1, "mystery": true})
	if len(errs) != 1 || errs[0].Message != "parameter not declared" {
		t.Fatalf("expected undeclared parameter error, got %v", errs)
	}
}

func TestValidateParametersCoercion(t *testing.T) {
	host, err := NewHostTemplate("demo", stubTemplate())
	if err != nil {
		t.Fatalf("new host template: %v", err)
	}
	cleaned, errs := host.ValidateParameters(map[string]any{
		"COUNT": "4", // parameter lookup is case-insensitive
		"scale": float64(2),
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cleaned["count"] != 4 {
		t.Fatalf("count coercion: %v", cleaned["count"])
	}
	if cleaned["scale"] != 2.0 {
		t.Fatalf("scale coercion: %v", cleaned["scale"])
	}

	_, errs = host.ValidateParameters(map[string]any{"count": 1.5})
	if len(errs) != 1 {
		t.Fatalf("fractional integer should fail, got %v", errs)
	}
}

func TestHostTemplateRun(t *testing.T) {
	host, err := NewHostTemplate("demo", stubTemplate())
	if err != nil {
		t.Fatalf("new host template: %v", err)
	}
	if _, _, err := host.Run(context.Background(), nil, Scope{}); err == nil {
		t.Fatalf("unbound template should refuse to run")
	}

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := host.Bind(Environment{Now: func() time.Time { return fixed }}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	result, paramErrs, err := host.Run(context.Background(), map[string]any{"count": 2}, Scope{Requestor: "analyst"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(paramErrs) != 0 {
		t.Fatalf("unexpected parameter errors: %v", paramErrs)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows %d, want 2", len(result.Rows))
	}
	if len(result.Schema) != 1 || result.Schema[0].Name != "value" {
		t.Fatalf("schema fallback missing: %v", result.Schema)
	}
	if !result.GeneratedAt.Equal(fixed) {
		t.Fatalf("generated at %v", result.GeneratedAt)
	}

	_, paramErrs, err = host.Run(context.Background(), map[string]any{}, Scope{})
	if err != nil {
		t.Fatalf("run with missing params errored: %v", err)
	}
	if len(paramErrs) != 1 {
		t.Fatalf("expected parameter errors, got %v", paramErrs)
	}
}
