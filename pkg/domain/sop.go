package domain

import "time"

// FieldValues carries the free-form operator inputs captured at step start and
// sign-off. Required keys are presence-checked against the step template.
type FieldValues map[string]string

// Missing returns the required field names absent from the values, in the
// order they are listed by the template.
func (f FieldValues) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := f[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Clone returns a deep copy.
func (f FieldValues) Clone() FieldValues {
	if f == nil {
		return nil
	}
	out := make(FieldValues, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// StepTemplate describes one SOP step: its required operator inputs, timing
// bounds, and associated controls/reagents metadata. Loaded once from a
// template document and immutable afterwards.
type StepTemplate struct {
	Name                     string         `json:"name"`
	RequiredStartFields      []string       `json:"required_start_fields,omitempty"`
	RequiredCompletionFields []string       `json:"required_completion_fields,omitempty"`
	MinDuration              *time.Duration `json:"min_duration,omitempty"`
	MaxDuration              *time.Duration `json:"max_duration,omitempty"`
	Controls                 []string       `json:"controls,omitempty"`
	Reagents                 []string       `json:"reagents,omitempty"`
}

// StepRecord is the execution record for one SOP step. Created on step start
// and mutated exactly once, on sign-off, to fill the completion fields.
type StepRecord struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Operator         string      `json:"operator"`
	StartedAt        time.Time   `json:"started_at"`
	StartFields      FieldValues `json:"start_fields,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	CompletionFields FieldValues `json:"completion_fields,omitempty"`
	Signature        string      `json:"signature,omitempty"`
}

// Completed reports whether the step has been signed off.
func (r StepRecord) Completed() bool {
	return r.CompletedAt != nil
}

// Workflow owns the ordered step templates of one SOP run plus the growing
// record sequence and cursor. The cursor counts signed-off steps; it only
// increases and never exceeds the template count. At most one record beyond
// the cursor exists (the active, unsigned step).
type Workflow struct {
	ID        string         `json:"id"`
	Template  string         `json:"template,omitempty"`
	Steps     []StepTemplate `json:"steps"`
	Records   []StepRecord   `json:"records"`
	Cursor    int            `json:"cursor"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ActiveRecord returns the started-but-unsigned step record, if any.
func (w Workflow) ActiveRecord() (StepRecord, bool) {
	if len(w.Records) == w.Cursor+1 {
		return w.Records[w.Cursor], true
	}
	return StepRecord{}, false
}

// Completed reports whether every step has been signed off.
func (w Workflow) Completed() bool {
	return w.Cursor >= len(w.Steps)
}

// Clone returns a deep copy safe to hand across the persistence boundary.
func (w Workflow) Clone() Workflow {
	dup := w
	dup.Steps = append([]StepTemplate(nil), w.Steps...)
	for i, step := range dup.Steps {
		dup.Steps[i] = cloneStepTemplate(step)
	}
	dup.Records = append([]StepRecord(nil), w.Records...)
	for i, rec := range dup.Records {
		dup.Records[i] = cloneStepRecord(rec)
	}
	return dup
}

func cloneStepTemplate(s StepTemplate) StepTemplate {
	dup := s
	dup.RequiredStartFields = append([]string(nil), s.RequiredStartFields...)
	dup.RequiredCompletionFields = append([]string(nil), s.RequiredCompletionFields...)
	dup.Controls = append([]string(nil), s.Controls...)
	dup.Reagents = append([]string(nil), s.Reagents...)
	if s.MinDuration != nil {
		d := *s.MinDuration
		dup.MinDuration = &d
	}
	if s.MaxDuration != nil {
		d := *s.MaxDuration
		dup.MaxDuration = &d
	}
	return dup
}

func cloneStepRecord(r StepRecord) StepRecord {
	dup := r
	dup.StartFields = r.StartFields.Clone()
	dup.CompletionFields = r.CompletionFields.Clone()
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}

// StepSummary is the read model returned by workflow summaries.
type StepSummary struct {
	Name      string      `json:"name"`
	Operator  string      `json:"operator"`
	StartedAt time.Time   `json:"started_at"`
	Completed bool        `json:"completed"`
	Signature string      `json:"signature,omitempty"`
	Fields    FieldValues `json:"fields,omitempty"`
}

// StepRequirements is the read model describing what a step demands before it
// can start and before it can be signed off.
type StepRequirements struct {
	Name                     string   `json:"name"`
	RequiredStartFields      []string `json:"required_start_fields"`
	RequiredCompletionFields []string `json:"required_completion_fields"`
	MinDurationSeconds       float64  `json:"min_duration_seconds,omitempty"`
	MaxDurationSeconds       float64  `json:"max_duration_seconds,omitempty"`
	Controls                 []string `json:"controls,omitempty"`
	Reagents                 []string `json:"reagents,omitempty"`
}
