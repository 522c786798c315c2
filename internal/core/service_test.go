package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"assaycore/internal/curvefit"
	"assaycore/internal/infra/persistence/memory"
	"assaycore/pkg/domain"
)

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAudit) Record(ctx context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) last(t *testing.T) AuditEntry {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return c.entries[len(c.entries)-1]
}

type metricObservation struct {
	operation string
	success   bool
	duration  time.Duration
}

type captureMetrics struct {
	mu           sync.Mutex
	observations []metricObservation
}

func (c *captureMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observations = append(c.observations, metricObservation{operation, success, duration})
}

type captureSpan struct {
	operation string
	err       error
	ended     bool
}

func (s *captureSpan) End(err error) {
	s.err = err
	s.ended = true
}

type captureTracer struct {
	mu    sync.Mutex
	spans []*captureSpan
}

func (c *captureTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	span := &captureSpan{operation: operation}
	c.spans = append(c.spans, span)
	return ctx, span
}

func standards() (xs, ys []float64) {
	xs = []float64{0.1, 0.5, 1, 2, 5}
	ys = make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = curvefit.FourPL(x, 0.05, 1.2, 2.0, 1.0)
	}
	return xs, ys
}

func newInstrumentedService(t *testing.T) (*Service, *captureAudit, *captureMetrics, *captureTracer) {
	t.Helper()
	audit := &captureAudit{}
	metrics := &captureMetrics{}
	tracer := &captureTracer{}
	svc := NewService(memory.NewStore(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)
	return svc, audit, metrics, tracer
}

func TestFitOperationsAreInstrumented(t *testing.T) {
	svc, audit, metrics, tracer := newInstrumentedService(t)
	xs, ys := standards()

	result, err := svc.Fit4PL(context.Background(), xs, ys, curvefit.Config{})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if !result.Converged || result.RSquared <= 0.95 {
		t.Fatalf("unexpected fit result %+v", result)
	}

	entry := audit.last(t)
	if entry.Operation != "fit_4pl" || entry.Status != AuditStatusSuccess {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.Detail["points"] != len(xs) {
		t.Fatalf("expected point count in audit detail, got %+v", entry.Detail)
	}
	if len(metrics.observations) != 1 || !metrics.observations[0].success || metrics.observations[0].operation != "fit_4pl" {
		t.Fatalf("unexpected metrics %+v", metrics.observations)
	}
	if len(tracer.spans) != 1 || !tracer.spans[0].ended || tracer.spans[0].err != nil {
		t.Fatalf("unexpected span state %+v", tracer.spans)
	}
}

func TestFailedOperationRecordsError(t *testing.T) {
	svc, audit, metrics, tracer := newInstrumentedService(t)

	_, err := svc.Fit4PL(context.Background(), nil, nil, curvefit.Config{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	entry := audit.last(t)
	if entry.Operation != "fit_4pl" || entry.Status != AuditStatusError {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if _, ok := entry.Detail["error"]; !ok {
		t.Fatalf("error detail missing: %+v", entry.Detail)
	}
	if len(metrics.observations) != 1 || metrics.observations[0].success {
		t.Fatalf("failure not observed in metrics: %+v", metrics.observations)
	}
	if tracer.spans[0].err == nil {
		t.Fatal("span should carry the operation error")
	}
}

func TestQCAndCurveOperations(t *testing.T) {
	svc, audit, _, _ := newInstrumentedService(t)
	ctx := context.Background()

	controls := []domain.ControlResult{
		{Run: 1, Value: 13.5, Mean: 10, SD: 1},
		{Run: 2, Value: 10.1, Mean: 10, SD: 1},
	}
	breaches, err := svc.CheckWestgard(ctx, controls)
	if err != nil {
		t.Fatalf("check westgard: %v", err)
	}
	if !breaches.HasBreach() {
		t.Fatal("3s excursion should breach")
	}
	if entry := audit.last(t); entry.Operation != "check_westgard" {
		t.Fatalf("unexpected audit operation %q", entry.Operation)
	}

	chart, err := svc.LeveyJennings(ctx, controls)
	if err != nil {
		t.Fatalf("levey jennings: %v", err)
	}
	if len(chart) != 2 || chart[0].ZScore != 3.5 {
		t.Fatalf("unexpected chart %+v", chart)
	}

	xs, ys := standards()
	result, err := svc.Fit4PL(ctx, xs, ys, curvefit.Config{})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	points, err := svc.SampleCurve(ctx, result, 10)
	if err != nil {
		t.Fatalf("sample curve: %v", err)
	}
	if len(points) != 10 {
		t.Fatalf("expected 10 points, got %d", len(points))
	}
	if entry := audit.last(t); entry.Operation != "sample_curve" {
		t.Fatalf("unexpected audit operation %q", entry.Operation)
	}
}

func TestWorkflowLifecycleThroughService(t *testing.T) {
	svc, audit, _, _ := newInstrumentedService(t)
	ctx := context.Background()

	workflow, err := svc.CreateWorkflow(ctx, "wf-1", []string{"prepare", "read"})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	if len(workflow.Steps) != 2 {
		t.Fatalf("unexpected workflow %+v", workflow)
	}
	if entry := audit.last(t); entry.EntityID != "wf-1" || entry.Operation != "create_workflow" {
		t.Fatalf("unexpected audit entry %+v", entry)
	}

	if _, err := svc.StartStep(ctx, "wf-1", "tech", nil); err != nil {
		t.Fatalf("start step: %v", err)
	}
	if _, err := svc.SignOffStep(ctx, "wf-1", "tech-signature", nil); err != nil {
		t.Fatalf("sign off: %v", err)
	}

	got, err := svc.Workflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.Cursor != 1 {
		t.Fatalf("cursor should advance after sign-off, got %d", got.Cursor)
	}

	if _, err := svc.StartStep(ctx, "wf-1", "tech", nil); err != nil {
		t.Fatalf("start second step: %v", err)
	}
	summary, err := svc.WorkflowSummary(ctx, "wf-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected a record per started step, got %+v", summary)
	}
	if !summary[0].Completed || summary[1].Completed {
		t.Fatalf("unexpected completion states %+v", summary)
	}

	list, err := svc.ListWorkflows(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "wf-1" {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestTemplateWorkflowThroughService(t *testing.T) {
	svc, _, _, _ := newInstrumentedService(t)
	ctx := context.Background()

	workflow, err := svc.CreateWorkflowFromTemplate(ctx, "wf-t", "elisa_basic")
	if err != nil {
		t.Fatalf("create from template: %v", err)
	}
	if len(workflow.Steps) != 3 {
		t.Fatalf("unexpected template workflow %+v", workflow)
	}

	reqs, err := svc.WorkflowRequirements(ctx, "wf-t")
	if err != nil {
		t.Fatalf("requirements: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("unexpected requirements %+v", reqs)
	}

	if _, err := svc.CreateWorkflowFromTemplate(ctx, "wf-u", "does_not_exist"); err == nil {
		t.Fatal("unknown template should fail")
	}
}

func TestDefaultAuditRecorderPersistsToStore(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.CreateWorkflow(ctx, "wf-audit", []string{"only"}); err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	trail := svc.AuditTrail()
	if len(trail) == 0 {
		t.Fatal("expected persisted audit entries")
	}
	entry := trail[len(trail)-1]
	if entry.Action != "create_workflow" || entry.Actor != "service" || entry.EntityID != "wf-audit" {
		t.Fatalf("unexpected persisted entry %+v", entry)
	}
	if entry.ID == "" {
		t.Fatal("persisted entry missing id")
	}
}

func TestStoreAuditRecorderEncodesDetail(t *testing.T) {
	store := memory.NewStore()
	rec := NewStoreAuditRecorder(store, "qa")
	rec.Record(context.Background(), AuditEntry{
		Operation: "check_westgard",
		Status:    AuditStatusSuccess,
		Detail:    map[string]any{"controls": 5},
		At:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})

	trail := store.AuditTrail()
	if len(trail) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(trail))
	}
	entry := trail[0]
	if entry.Actor != "qa" || entry.Action != "check_westgard" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	var detail map[string]any
	if err := json.Unmarshal([]byte(entry.Detail), &detail); err != nil {
		t.Fatalf("detail not json: %v", err)
	}
	if detail["controls"] != float64(5) {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestServiceWithConfiguredSolver(t *testing.T) {
	solver := stubServiceSolver{params: []float64{0.05, 1.2, 2.0, 1.0}}
	svc := NewService(memory.NewStore(), WithSolver(solver), WithFitBackend(curvefit.BackendSolver))
	xs, ys := standards()

	result, err := svc.Fit4PL(context.Background(), xs, ys, curvefit.Config{})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if result.Status != "converged: delegate solver" {
		t.Fatalf("delegate solver not used: %q", result.Status)
	}
}

type stubServiceSolver struct {
	params []float64
}

func (s stubServiceSolver) Fit(model domain.ModelKind, xs, ys, initial []float64, constraints []curvefit.Bound, maxEvaluations int) ([]float64, error) {
	return append([]float64(nil), s.params...), nil
}
