package sop

import (
	"context"
	"time"

	"assaycore/pkg/domain"
)

// WorkflowService tracks SOP workflow instances keyed by id. All mutations
// run inside store transactions, so a failed start or sign-off leaves the
// committed workflow state untouched.
type WorkflowService struct {
	store     domain.PersistentStore
	templates *TemplateLibrary
	now       func() time.Time
}

// NewWorkflowService constructs a service over the given store and template
// library. A nil library falls back to the built-in definitions only.
func NewWorkflowService(store domain.PersistentStore, templates *TemplateLibrary) *WorkflowService {
	if templates == nil {
		templates = NewTemplateLibrary("")
	}
	return &WorkflowService{store: store, templates: templates, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the wall clock, for tests.
func (s *WorkflowService) WithClock(now func() time.Time) *WorkflowService {
	s.now = now
	return s
}

// CreateWorkflow registers a workflow from a bare ordered step-name list.
// Steps created this way carry no field or duration constraints.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, id string, stepNames []string) (domain.Workflow, error) {
	steps := make([]domain.StepTemplate, len(stepNames))
	for i, name := range stepNames {
		steps[i] = domain.StepTemplate{Name: name}
	}
	return s.create(ctx, id, "", steps)
}

// CreateWorkflowFromTemplate registers a workflow from a named template
// definition carrying full field and duration constraints.
func (s *WorkflowService) CreateWorkflowFromTemplate(ctx context.Context, id, templateName string) (domain.Workflow, error) {
	steps, err := s.templates.Resolve(templateName)
	if err != nil {
		return domain.Workflow{}, err
	}
	return s.create(ctx, id, templateName, steps)
}

func (s *WorkflowService) create(ctx context.Context, id, template string, steps []domain.StepTemplate) (domain.Workflow, error) {
	now := s.now()
	workflow := domain.Workflow{
		ID:        id,
		Template:  template,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var created domain.Workflow
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateWorkflow(workflow)
		return err
	})
	if err != nil {
		return domain.Workflow{}, err
	}
	return created, nil
}

// RecordStepStart activates the next step of the workflow.
func (s *WorkflowService) RecordStepStart(ctx context.Context, id, operator string, inputs domain.FieldValues) (domain.StepRecord, error) {
	now := s.now()
	var record domain.StepRecord
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateWorkflow(id, func(w *domain.Workflow) error {
			var err error
			record, err = startNextStep(w, now, operator, inputs)
			return err
		})
		return err
	})
	if err != nil {
		return domain.StepRecord{}, err
	}
	return record, nil
}

// RecordStepSignature signs off the active step of the workflow.
func (s *WorkflowService) RecordStepSignature(ctx context.Context, id, signature string, completionInputs domain.FieldValues) (domain.StepRecord, error) {
	now := s.now()
	var record domain.StepRecord
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateWorkflow(id, func(w *domain.Workflow) error {
			var err error
			record, err = signOffStep(w, now, signature, completionInputs)
			return err
		})
		return err
	})
	if err != nil {
		return domain.StepRecord{}, err
	}
	return record, nil
}

// GetWorkflow returns a snapshot of the workflow.
func (s *WorkflowService) GetWorkflow(id string) (domain.Workflow, error) {
	workflow, ok := s.store.GetWorkflow(id)
	if !ok {
		return domain.Workflow{}, domain.NotFoundError{Kind: "workflow", ID: id}
	}
	return workflow, nil
}

// GetWorkflowSummary reports the per-step execution records.
func (s *WorkflowService) GetWorkflowSummary(id string) ([]domain.StepSummary, error) {
	workflow, err := s.GetWorkflow(id)
	if err != nil {
		return nil, err
	}
	return summarize(workflow), nil
}

// GetWorkflowRequirements reports what each step demands before start and
// sign-off.
func (s *WorkflowService) GetWorkflowRequirements(id string) ([]domain.StepRequirements, error) {
	workflow, err := s.GetWorkflow(id)
	if err != nil {
		return nil, err
	}
	return requirements(workflow), nil
}
