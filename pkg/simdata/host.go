package simdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HostTemplate pairs a contributed template with host-side runtime state:
// the owning study name, validation helpers, and the bound runner.
type HostTemplate struct {
	study   string
	tpl     Template
	runtime Runner
}

// NewHostTemplate validates the template structurally and wraps it for the
// host. The result is unbound; call Bind before Run.
func NewHostTemplate(study string, tpl Template) (HostTemplate, error) {
	if err := validateTemplate(tpl); err != nil {
		return HostTemplate{}, err
	}
	return HostTemplate{study: strings.TrimSpace(study), tpl: cloneTemplate(tpl)}, nil
}

// Study returns the study identifier that contributed the template.
func (h HostTemplate) Study() string { return h.study }

// Slug returns the canonical identifier, study/key@version.
func (h HostTemplate) Slug() string { return slugFor(h.study, h.tpl.Key, h.tpl.Version) }

// Descriptor produces a defensive snapshot of the template.
func (h HostTemplate) Descriptor() Descriptor {
	return Descriptor{
		Study:         h.study,
		Key:           h.tpl.Key,
		Version:       h.tpl.Version,
		Title:         h.tpl.Title,
		Description:   h.tpl.Description,
		Parameters:    cloneParameters(h.tpl.Parameters),
		Columns:       cloneColumns(h.tpl.Columns),
		OutputFormats: cloneFormats(h.tpl.OutputFormats),
		Slug:          h.Slug(),
	}
}

// SupportsFormat reports whether the template declares the requested format.
func (h HostTemplate) SupportsFormat(format Format) bool {
	for _, candidate := range h.tpl.OutputFormats {
		if candidate == format {
			return true
		}
	}
	return false
}

// ValidateParameters validates and coerces supplied parameters against the
// declarations, applying defaults for absent optional parameters.
func (h HostTemplate) ValidateParameters(params map[string]any) (map[string]any, []ParameterError) {
	return validateParameters(h.tpl.Parameters, params)
}

// Bind attaches the runtime runner produced by the template's binder.
func (h *HostTemplate) Bind(env Environment) error {
	if h == nil {
		return errors.New("simdata: host template nil")
	}
	if h.tpl.Binder == nil {
		return errors.New("simdata: template binder missing")
	}
	runner, err := h.tpl.Binder(env)
	if err != nil {
		return err
	}
	if runner == nil {
		return errors.New("simdata: template binder returned nil runner")
	}
	h.runtime = runner
	return nil
}

// Run validates parameters and executes the bound runner.
func (h HostTemplate) Run(ctx context.Context, params map[string]any, scope Scope) (RunResult, []ParameterError, error) {
	if h.runtime == nil {
		return RunResult{}, nil, errors.New("simdata: template not bound")
	}
	cleaned, errs := validateParameters(h.tpl.Parameters, params)
	if len(errs) > 0 {
		return RunResult{}, errs, nil
	}
	result, err := h.runtime(ctx, RunRequest{
		Template:   h.Descriptor(),
		Parameters: cleaned,
		Scope:      scope,
	})
	if err != nil {
		return RunResult{}, nil, err
	}
	if len(result.Schema) == 0 {
		result.Schema = cloneColumns(h.tpl.Columns)
	}
	result.GeneratedAt = result.GeneratedAt.UTC()
	return result, nil, nil
}

func validateTemplate(tpl Template) error {
	if strings.TrimSpace(tpl.Key) == "" {
		return errors.New("simdata: template key required")
	}
	if strings.TrimSpace(tpl.Version) == "" {
		return errors.New("simdata: template version required")
	}
	if strings.TrimSpace(tpl.Title) == "" {
		return errors.New("simdata: template title required")
	}
	if len(tpl.Columns) == 0 {
		return errors.New("simdata: template requires at least one column")
	}
	if len(tpl.OutputFormats) == 0 {
		return errors.New("simdata: template must declare output formats")
	}
	if tpl.Binder == nil {
		return errors.New("simdata: template binder required")
	}
	for _, p := range tpl.Parameters {
		switch p.Type {
		case "integer", "number", "string", "boolean":
		default:
			return fmt.Errorf("simdata: parameter %s has unsupported type %q", p.Name, p.Type)
		}
	}
	return nil
}

func validateParameters(definitions []Parameter, supplied map[string]any) (map[string]any, []ParameterError) {
	cleaned := make(map[string]any)
	var errs []ParameterError
	provided := make(map[string]struct{}, len(supplied))
	for k := range supplied {
		provided[strings.ToLower(k)] = struct{}{}
	}
	for _, param := range definitions {
		key := strings.ToLower(param.Name)
		val, ok := findValue(param.Name, supplied)
		if !ok {
			if param.Required {
				errs = append(errs, ParameterError{Name: param.Name, Message: "required parameter missing"})
				continue
			}
			if param.Default != nil {
				coerced, err := coerceParameter(param, param.Default)
				if err != nil {
					errs = append(errs, ParameterError{Name: param.Name, Message: err.Error()})
					continue
				}
				cleaned[param.Name] = coerced
			}
			continue
		}
		coerced, err := coerceParameter(param, val)
		if err != nil {
			errs = append(errs, ParameterError{Name: param.Name, Message: err.Error()})
			continue
		}
		cleaned[param.Name] = coerced
		delete(provided, key)
	}
	for leftover := range provided {
		errs = append(errs, ParameterError{Name: leftover, Message: "parameter not declared"})
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Name < errs[j].Name })
	}
	return cleaned, errs
}

func findValue(name string, supplied map[string]any) (any, bool) {
	if supplied == nil {
		return nil, false
	}
	if val, ok := supplied[name]; ok {
		return val, true
	}
	lower := strings.ToLower(name)
	for k, v := range supplied {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return nil, false
}

func coerceParameter(param Parameter, raw any) (any, error) {
	if raw == nil {
		return nil, fmt.Errorf("parameter %s cannot be null", param.Name)
	}
	switch param.Type {
	case "string":
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %s expects string", param.Name)
		}
		if len(param.Enum) > 0 && !containsString(param.Enum, v) {
			return nil, fmt.Errorf("parameter %s must be one of: %s", param.Name, strings.Join(param.Enum, ", "))
		}
		return v, nil
	case "boolean":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %s expects boolean", param.Name)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("parameter %s expects boolean", param.Name)
		}
	case "integer":
		parsed, err := coerceInt(param.Name, raw)
		if err != nil {
			return nil, err
		}
		if err := checkBounds(param, float64(parsed)); err != nil {
			return nil, err
		}
		return parsed, nil
	case "number":
		parsed, err := coerceFloat(param.Name, raw)
		if err != nil {
			return nil, err
		}
		if err := checkBounds(param, parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", param.Type)
	}
}

func coerceInt(name string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("parameter %s expects integer", name)
		}
		return int(v), nil
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parameter %s expects integer", name)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("parameter %s expects integer", name)
	}
}

func coerceFloat(name string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %s expects number", name)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("parameter %s expects number", name)
	}
}

func checkBounds(param Parameter, v float64) error {
	if param.Minimum != nil && v < *param.Minimum {
		return fmt.Errorf("parameter %s must be at least %v", param.Name, *param.Minimum)
	}
	if param.Maximum != nil && v > *param.Maximum {
		return fmt.Errorf("parameter %s must be at most %v", param.Name, *param.Maximum)
	}
	return nil
}

func containsString(list []string, target string) bool {
	for _, candidate := range list {
		if candidate == target {
			return true
		}
	}
	return false
}

func slugFor(study, key, version string) string {
	keyPart := strings.TrimSpace(key)
	versionPart := strings.TrimSpace(version)
	if study = strings.TrimSpace(study); study == "" {
		return fmt.Sprintf("%s@%s", keyPart, versionPart)
	}
	return fmt.Sprintf("%s/%s@%s", study, keyPart, versionPart)
}

// SortDescriptors orders descriptors by study, key, version for stable
// listings.
func SortDescriptors(descriptors []Descriptor) {
	sort.Slice(descriptors, func(i, j int) bool {
		a, b := descriptors[i], descriptors[j]
		if a.Study != b.Study {
			return a.Study < b.Study
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Version < b.Version
	})
}

func cloneTemplate(t Template) Template {
	cloned := t
	cloned.Parameters = cloneParameters(t.Parameters)
	cloned.Columns = cloneColumns(t.Columns)
	cloned.OutputFormats = cloneFormats(t.OutputFormats)
	return cloned
}

func cloneParameters(params []Parameter) []Parameter {
	if len(params) == 0 {
		return nil
	}
	cloned := make([]Parameter, len(params))
	copy(cloned, params)
	for i := range cloned {
		if len(cloned[i].Enum) > 0 {
			cloned[i].Enum = append([]string(nil), cloned[i].Enum...)
		}
		if cloned[i].Minimum != nil {
			m := *cloned[i].Minimum
			cloned[i].Minimum = &m
		}
		if cloned[i].Maximum != nil {
			m := *cloned[i].Maximum
			cloned[i].Maximum = &m
		}
	}
	return cloned
}

func cloneColumns(columns []Column) []Column {
	if len(columns) == 0 {
		return nil
	}
	cloned := make([]Column, len(columns))
	copy(cloned, columns)
	return cloned
}

func cloneFormats(formats []Format) []Format {
	if len(formats) == 0 {
		return nil
	}
	cloned := make([]Format, len(formats))
	copy(cloned, formats)
	return cloned
}
