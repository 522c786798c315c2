// Package sop enforces template-driven standard-operating-procedure runs:
// ordered step starts, required-field capture, duration bounds, and operator
// sign-off.
package sop

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"assaycore/pkg/domain"
)

// startNextStep activates the next template step on the workflow. The record
// is appended without advancing the cursor; the cursor moves only on
// sign-off. Fails when all steps are complete, when a step is already
// active, or when required start fields are missing.
func startNextStep(w *domain.Workflow, now time.Time, operator string, inputs domain.FieldValues) (domain.StepRecord, error) {
	if w.Completed() {
		return domain.StepRecord{}, domain.SequencingError{WorkflowID: w.ID, Reason: "all steps completed"}
	}
	if _, active := w.ActiveRecord(); active {
		return domain.StepRecord{}, domain.SequencingError{WorkflowID: w.ID, Reason: fmt.Sprintf("step %q already active", w.Steps[w.Cursor].Name)}
	}

	step := w.Steps[w.Cursor]
	if missing := inputs.Missing(step.RequiredStartFields); len(missing) > 0 {
		return domain.StepRecord{}, domain.ValidationError{Op: "record_step_start", Reason: "missing required start fields", Fields: missing}
	}

	record := domain.StepRecord{
		ID:          uuid.NewString(),
		Name:        step.Name,
		Operator:    operator,
		StartedAt:   now,
		StartFields: inputs.Clone(),
	}
	w.Records = append(w.Records, record)
	w.UpdatedAt = now
	return record, nil
}

// signOffStep completes the active step: validates required completion
// fields, checks elapsed duration against the template bounds, stamps the
// completion timestamp and signature, and advances the cursor. Any failure
// leaves the workflow unchanged.
func signOffStep(w *domain.Workflow, now time.Time, signature string, inputs domain.FieldValues) (domain.StepRecord, error) {
	record, active := w.ActiveRecord()
	if !active {
		// Records never outrun the cursor: a signed step advances it, so the
		// only inactive state is "nothing started".
		return domain.StepRecord{}, domain.SequencingError{WorkflowID: w.ID, Reason: "no step started"}
	}

	step := w.Steps[w.Cursor]
	if missing := inputs.Missing(step.RequiredCompletionFields); len(missing) > 0 {
		return domain.StepRecord{}, domain.ValidationError{Op: "record_step_signature", Reason: "missing required completion fields", Fields: missing}
	}

	elapsed := now.Sub(record.StartedAt)
	if step.MinDuration != nil && elapsed < *step.MinDuration {
		return domain.StepRecord{}, domain.SequencingError{
			WorkflowID: w.ID,
			Reason:     fmt.Sprintf("step %q signed after %s, below minimum duration %s", step.Name, elapsed, *step.MinDuration),
		}
	}
	if step.MaxDuration != nil && elapsed > *step.MaxDuration {
		return domain.StepRecord{}, domain.SequencingError{
			WorkflowID: w.ID,
			Reason:     fmt.Sprintf("step %q signed after %s, above maximum duration %s", step.Name, elapsed, *step.MaxDuration),
		}
	}

	completed := now
	record.CompletedAt = &completed
	record.CompletionFields = inputs.Clone()
	record.Signature = signature
	w.Records[w.Cursor] = record
	w.Cursor++
	w.UpdatedAt = now
	return record, nil
}

// summarize builds the step-by-step read model for a workflow.
func summarize(w domain.Workflow) []domain.StepSummary {
	out := make([]domain.StepSummary, len(w.Records))
	for i, record := range w.Records {
		out[i] = domain.StepSummary{
			Name:      record.Name,
			Operator:  record.Operator,
			StartedAt: record.StartedAt,
			Completed: record.Completed(),
			Signature: record.Signature,
			Fields:    record.StartFields.Clone(),
		}
	}
	return out
}

// requirements lists what each template step demands, durations in seconds.
func requirements(w domain.Workflow) []domain.StepRequirements {
	out := make([]domain.StepRequirements, len(w.Steps))
	for i, step := range w.Steps {
		req := domain.StepRequirements{
			Name:                     step.Name,
			RequiredStartFields:      append([]string{}, step.RequiredStartFields...),
			RequiredCompletionFields: append([]string{}, step.RequiredCompletionFields...),
			Controls:                 append([]string(nil), step.Controls...),
			Reagents:                 append([]string(nil), step.Reagents...),
		}
		if step.MinDuration != nil {
			req.MinDurationSeconds = step.MinDuration.Seconds()
		}
		if step.MaxDuration != nil {
			req.MaxDurationSeconds = step.MaxDuration.Seconds()
		}
		out[i] = req
	}
	return out
}
