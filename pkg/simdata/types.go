// Package simdata defines parameterized simulation-dataset templates and the
// host-side runtime that validates parameters and executes a bound template.
// Study packages contribute templates; the service registers them and runs
// them on request.
package simdata

import (
	"context"
	"time"
)

// Format identifies an artifact rendering of a generated dataset.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatPNG  Format = "png"
)

// Scope carries the identity of the requestor for audit purposes.
type Scope struct {
	Requestor string `json:"requestor"`
	Study     string `json:"study,omitempty"`
}

// Parameter declares a single template parameter. Supported types are
// "integer", "number", "string", and "boolean". Minimum and Maximum bound
// numeric parameters inclusively.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Column describes one column of a template's output table.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Template is a contributed dataset recipe: declared parameters, output
// schema, and a binder that produces the runtime runner.
type Template struct {
	Key           string
	Version       string
	Title         string
	Description   string
	Parameters    []Parameter
	Columns       []Column
	OutputFormats []Format
	Binder        Binder
}

// Descriptor is an immutable snapshot of a registered template.
type Descriptor struct {
	Study         string      `json:"study"`
	Key           string      `json:"key"`
	Version       string      `json:"version"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Parameters    []Parameter `json:"parameters"`
	Columns       []Column    `json:"columns"`
	OutputFormats []Format    `json:"output_formats"`
	Slug          string      `json:"slug"`
}

// RunRequest is handed to a runner with validated, coerced parameters.
type RunRequest struct {
	Template   Descriptor
	Parameters map[string]any
	Scope      Scope
}

// RunResult is a materialized dataset: one row per observation with named
// columns, plus optional run metadata.
type RunResult struct {
	Schema      []Column         `json:"schema"`
	Rows        []map[string]any `json:"rows"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Runner executes a template against validated parameters.
type Runner func(context.Context, RunRequest) (RunResult, error)

// Environment provides runtime dependencies to binders.
type Environment struct {
	Now func() time.Time
}

// Binder produces a runner from the runtime environment.
type Binder func(Environment) (Runner, error)

// ParameterError reports a single invalid or missing parameter.
type ParameterError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}
