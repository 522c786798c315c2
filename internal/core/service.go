// Package core composes curve fitting, quality control, and workflow
// sequencing behind one instrumented service facade. Every operation is
// audited, timed, and traced through the configured recorders.
package core

import (
	"context"
	"log/slog"
	"time"

	"assaycore/internal/curvefit"
	"assaycore/internal/qc"
	"assaycore/internal/sop"
	"assaycore/pkg/domain"
)

// Service exposes the assay operations: logistic calibration fits, Westgard
// control evaluation, and SOP workflow sequencing.
type Service struct {
	store     domain.PersistentStore
	workflows *sop.WorkflowService
	evaluator *qc.Evaluator

	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	logger  *slog.Logger
	now     func() time.Time

	solver  curvefit.Solver
	backend curvefit.Backend
}

// Option adjusts service construction.
type Option func(*Service)

// WithAuditRecorder routes audit entries to the supplied recorder instead of
// the default store-backed trail.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) { s.audit = rec }
}

// WithMetricsRecorder routes operation timings to the supplied recorder.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer opens a span around every service operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithLogger overrides the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSolver installs a delegate curve-fit solver, selected by the fit
// backend preference.
func WithSolver(solver curvefit.Solver) Option {
	return func(s *Service) { s.solver = solver }
}

// WithFitBackend sets the default backend preference for fit operations.
func WithFitBackend(backend curvefit.Backend) Option {
	return func(s *Service) { s.backend = backend }
}

// WithTemplateLibrary overrides the workflow template library.
func WithTemplateLibrary(lib *sop.TemplateLibrary) Option {
	return func(s *Service) { s.workflows = sop.NewWorkflowService(s.store, lib) }
}

// NewService constructs a service over the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		workflows: sop.NewWorkflowService(store, nil),
		evaluator: qc.NewEvaluator(),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
		backend:   curvefit.BackendAuto,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = NewStoreAuditRecorder(store, "service")
	}
	s.workflows.WithClock(s.now)
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// instrument wraps an operation with tracing, metrics, audit, and logging.
// entityID may be empty for operations that do not target a stored entity.
func (s *Service) instrument(ctx context.Context, op, entityID string, detail map[string]any, fn func(context.Context) error) error {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, op)
	}
	err := fn(ctx)
	elapsed := time.Since(start)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, elapsed)
	}
	status := AuditStatusSuccess
	if err != nil {
		status = AuditStatusError
		if detail == nil {
			detail = map[string]any{}
		}
		detail["error"] = err.Error()
	}
	if s.audit != nil {
		s.audit.Record(ctx, AuditEntry{
			Operation: op,
			Status:    status,
			EntityID:  entityID,
			Detail:    detail,
			At:        s.now(),
		})
	}
	if err != nil {
		s.logger.Warn("operation failed", "op", op, "entity", entityID, "error", err)
	} else {
		s.logger.Debug("operation complete", "op", op, "entity", entityID, "elapsed", elapsed)
	}
	return err
}

func (s *Service) fitConfig(cfg curvefit.Config) curvefit.Config {
	if cfg.Backend == "" {
		cfg.Backend = s.backend
	}
	if cfg.Solver == nil {
		cfg.Solver = s.solver
	}
	return cfg
}

// Fit4PL fits the four-parameter logistic model to calibration standards.
func (s *Service) Fit4PL(ctx context.Context, xs, ys []float64, cfg curvefit.Config) (domain.FitResult, error) {
	var result domain.FitResult
	err := s.instrument(ctx, "fit_4pl", "", map[string]any{"points": len(xs)}, func(context.Context) error {
		var err error
		result, err = curvefit.Fit4PL(xs, ys, s.fitConfig(cfg))
		return err
	})
	return result, err
}

// Fit5PL fits the five-parameter logistic model to calibration standards.
func (s *Service) Fit5PL(ctx context.Context, xs, ys []float64, cfg curvefit.Config) (domain.FitResult, error) {
	var result domain.FitResult
	err := s.instrument(ctx, "fit_5pl", "", map[string]any{"points": len(xs)}, func(context.Context) error {
		var err error
		result, err = curvefit.Fit5PL(xs, ys, s.fitConfig(cfg))
		return err
	})
	return result, err
}

// SampleCurve evaluates a fitted model over an evenly spaced grid.
func (s *Service) SampleCurve(ctx context.Context, result domain.FitResult, points int) ([]domain.CurvePoint, error) {
	var curve []domain.CurvePoint
	err := s.instrument(ctx, "sample_curve", "", nil, func(context.Context) error {
		var err error
		curve, err = curvefit.SampleCurve(result, points)
		return err
	})
	return curve, err
}

// CheckWestgard evaluates an ordered control sequence against the Westgard
// multi-rule scheme.
func (s *Service) CheckWestgard(ctx context.Context, results []domain.ControlResult) (domain.BreachReport, error) {
	var report domain.BreachReport
	err := s.instrument(ctx, "check_westgard", "", map[string]any{"runs": len(results)}, func(context.Context) error {
		report = s.evaluator.Evaluate(results)
		return nil
	})
	return report, err
}

// LeveyJennings maps control observations onto chart points.
func (s *Service) LeveyJennings(ctx context.Context, results []domain.ControlResult) ([]domain.LeveyJenningsPoint, error) {
	var points []domain.LeveyJenningsPoint
	err := s.instrument(ctx, "levey_jennings", "", nil, func(context.Context) error {
		points = qc.LeveyJenningsPoints(results)
		return nil
	})
	return points, err
}

// CreateWorkflow registers a workflow from an ordered step-name list.
func (s *Service) CreateWorkflow(ctx context.Context, id string, stepNames []string) (domain.Workflow, error) {
	var workflow domain.Workflow
	err := s.instrument(ctx, "create_workflow", id, nil, func(ctx context.Context) error {
		var err error
		workflow, err = s.workflows.CreateWorkflow(ctx, id, stepNames)
		return err
	})
	return workflow, err
}

// CreateWorkflowFromTemplate registers a workflow from a named SOP template.
func (s *Service) CreateWorkflowFromTemplate(ctx context.Context, id, template string) (domain.Workflow, error) {
	var workflow domain.Workflow
	err := s.instrument(ctx, "create_workflow_from_template", id, map[string]any{"template": template}, func(ctx context.Context) error {
		var err error
		workflow, err = s.workflows.CreateWorkflowFromTemplate(ctx, id, template)
		return err
	})
	return workflow, err
}

// StartStep activates the next pending step of the workflow.
func (s *Service) StartStep(ctx context.Context, id, operator string, inputs domain.FieldValues) (domain.StepRecord, error) {
	var record domain.StepRecord
	err := s.instrument(ctx, "start_step", id, map[string]any{"operator": operator}, func(ctx context.Context) error {
		var err error
		record, err = s.workflows.RecordStepStart(ctx, id, operator, inputs)
		return err
	})
	return record, err
}

// SignOffStep completes the active step of the workflow.
func (s *Service) SignOffStep(ctx context.Context, id, signature string, inputs domain.FieldValues) (domain.StepRecord, error) {
	var record domain.StepRecord
	err := s.instrument(ctx, "sign_off_step", id, nil, func(ctx context.Context) error {
		var err error
		record, err = s.workflows.RecordStepSignature(ctx, id, signature, inputs)
		return err
	})
	return record, err
}

// Workflow returns the current committed state of a workflow.
func (s *Service) Workflow(ctx context.Context, id string) (domain.Workflow, error) {
	var workflow domain.Workflow
	err := s.instrument(ctx, "get_workflow", id, nil, func(context.Context) error {
		var err error
		workflow, err = s.workflows.GetWorkflow(id)
		return err
	})
	return workflow, err
}

// WorkflowSummary reports per-step execution records.
func (s *Service) WorkflowSummary(ctx context.Context, id string) ([]domain.StepSummary, error) {
	var summary []domain.StepSummary
	err := s.instrument(ctx, "workflow_summary", id, nil, func(context.Context) error {
		var err error
		summary, err = s.workflows.GetWorkflowSummary(id)
		return err
	})
	return summary, err
}

// WorkflowRequirements reports what each step demands before start and
// sign-off.
func (s *Service) WorkflowRequirements(ctx context.Context, id string) ([]domain.StepRequirements, error) {
	var reqs []domain.StepRequirements
	err := s.instrument(ctx, "workflow_requirements", id, nil, func(context.Context) error {
		var err error
		reqs, err = s.workflows.GetWorkflowRequirements(id)
		return err
	})
	return reqs, err
}

// ListWorkflows returns committed workflows ordered by id.
func (s *Service) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	var workflows []domain.Workflow
	err := s.instrument(ctx, "list_workflows", "", nil, func(context.Context) error {
		workflows = s.store.ListWorkflows()
		return nil
	})
	return workflows, err
}

// AuditTrail returns the persisted audit entries in append order.
func (s *Service) AuditTrail() []domain.AuditEntry {
	return s.store.AuditTrail()
}
