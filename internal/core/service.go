// Package core wires dataset templates, study persistence, and observability
// into the panelbench service layer.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"panelbench/pkg/simdata"
	"panelbench/pkg/study"
)

// Service coordinates template execution and run bookkeeping on top of a
// persistent store.
type Service struct {
	store   study.PersistentStore
	mu      sync.RWMutex
	tpls    map[string]*simdata.HostTemplate
	metrics MetricsRecorder
	tracer  Tracer
	nowFn   func() time.Time
}

// NewService constructs a service backed by the supplied store.
func NewService(store study.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		tpls:  make(map[string]*simdata.HostTemplate),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying persistent store for read-side consumers.
func (s *Service) Store() study.PersistentStore { return s.store }

// RegisterTemplate validates, binds, and registers a dataset template under
// the given study namespace. Registration fails if the slug is already taken.
func (s *Service) RegisterTemplate(studyName string, tpl simdata.Template) (simdata.Descriptor, error) {
	host, err := simdata.NewHostTemplate(studyName, tpl)
	if err != nil {
		return simdata.Descriptor{}, err
	}
	if err := host.Bind(simdata.Environment{Now: s.nowFn}); err != nil {
		return simdata.Descriptor{}, fmt.Errorf("bind template %s: %w", host.Slug(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slug := host.Slug()
	if _, exists := s.tpls[slug]; exists {
		return simdata.Descriptor{}, fmt.Errorf("template %s already registered", slug)
	}
	s.tpls[slug] = &host
	return host.Descriptor(), nil
}

// ListTemplates returns descriptors for all registered templates in slug order.
func (s *Service) ListTemplates() []simdata.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]simdata.Descriptor, 0, len(s.tpls))
	for _, host := range s.tpls {
		out = append(out, host.Descriptor())
	}
	simdata.SortDescriptors(out)
	return out
}

// FindTemplate returns the descriptor for the given slug.
func (s *Service) FindTemplate(slug string) (simdata.Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, ok := s.tpls[slug]
	if !ok {
		return simdata.Descriptor{}, false
	}
	return host.Descriptor(), true
}

func (s *Service) host(slug string) (*simdata.HostTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, ok := s.tpls[slug]
	return host, ok
}

// ResolveTemplate returns the bound host template for a slug. Export workers
// use this to execute templates outside the run-recording path.
func (s *Service) ResolveTemplate(slug string) (*simdata.HostTemplate, bool) {
	return s.host(slug)
}

// ValidateTemplateParameters checks the supplied parameters against the
// template's declarations without executing it.
func (s *Service) ValidateTemplateParameters(slug string, params map[string]any) (map[string]any, []simdata.ParameterError, error) {
	host, ok := s.host(slug)
	if !ok {
		return nil, nil, study.NewNotFound("template", slug)
	}
	cleaned, errs := host.ValidateParameters(params)
	return cleaned, errs, nil
}

// RunTemplateRequest names a template and the parameters to execute it with.
type RunTemplateRequest struct {
	Slug       string
	StudyID    string
	Parameters map[string]any
	Scope      simdata.Scope
}

// RunTemplate executes a registered template and records the run. Parameter
// validation errors are returned to the caller without recording a run; a
// runner failure records a failed run before surfacing the error.
func (s *Service) RunTemplate(ctx context.Context, req RunTemplateRequest) (study.Run, *simdata.RunResult, []simdata.ParameterError, error) {
	var (
		run       study.Run
		result    *simdata.RunResult
		paramErrs []simdata.ParameterError
	)
	err := s.instrument(ctx, "run_template", func(ctx context.Context) error {
		host, ok := s.host(req.Slug)
		if !ok {
			return study.NewNotFound("template", req.Slug)
		}
		res, errs, runErr := host.Run(ctx, req.Parameters, req.Scope)
		if len(errs) > 0 {
			paramErrs = errs
			return nil
		}
		if runErr != nil {
			if recordErr := s.recordRun(ctx, req, 0, study.RunStatusFailed, runErr.Error(), &run); recordErr != nil {
				return recordErr
			}
			return runErr
		}
		if recordErr := s.recordRun(ctx, req, len(res.Rows), study.RunStatusSucceeded, "", &run); recordErr != nil {
			return recordErr
		}
		result = &res
		return nil
	})
	if err != nil {
		return run, nil, nil, err
	}
	return run, result, paramErrs, nil
}

func (s *Service) recordRun(ctx context.Context, req RunTemplateRequest, rows int, status study.RunStatus, message string, out *study.Run) error {
	return s.store.RunInTransaction(ctx, func(tx study.Transaction) error {
		created, err := tx.CreateRun(study.Run{
			StudyID:      req.StudyID,
			TemplateSlug: req.Slug,
			Requestor:    req.Scope.Requestor,
			Parameters:   req.Parameters,
			Rows:         rows,
			Status:       status,
			Error:        message,
		})
		if err != nil {
			return err
		}
		*out = created
		return nil
	})
}

// AttachFit appends a fitted-model summary to an existing run record.
func (s *Service) AttachFit(ctx context.Context, runID string, fit study.FitSummary) (study.Run, error) {
	var updated study.Run
	err := s.instrument(ctx, "attach_fit", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx study.Transaction) error {
			run, err := tx.UpdateRun(runID, func(r *study.Run) error {
				r.Fits = append(r.Fits, study.CloneFitSummary(fit))
				return nil
			})
			if err != nil {
				return err
			}
			updated = run
			return nil
		})
	})
	return updated, err
}

// CreateStudy registers a new study.
func (s *Service) CreateStudy(ctx context.Context, st study.Study) (study.Study, error) {
	var created study.Study
	err := s.instrument(ctx, "create_study", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx study.Transaction) error {
			out, err := tx.CreateStudy(st)
			if err != nil {
				return err
			}
			created = out
			return nil
		})
	})
	return created, err
}

// GetStudy returns the study with the given id.
func (s *Service) GetStudy(id string) (study.Study, bool) { return s.store.GetStudy(id) }

// ListStudies returns all studies.
func (s *Service) ListStudies() []study.Study { return s.store.ListStudies() }

// GetRun returns the run with the given id.
func (s *Service) GetRun(id string) (study.Run, bool) { return s.store.GetRun(id) }

// ListRuns returns all recorded runs.
func (s *Service) ListRuns() []study.Run { return s.store.ListRuns() }
