package sop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"assaycore/pkg/domain"
)

// TemplateDocument is the on-disk shape of a named SOP definition. Durations
// are given in minutes; the loader converts them to time.Duration values.
type TemplateDocument struct {
	Name  string         `json:"name"`
	Steps []TemplateStep `json:"steps"`
}

// TemplateStep is one step entry in a template document.
type TemplateStep struct {
	Name                     string   `json:"name"`
	RequiredStartFields      []string `json:"required_start_fields,omitempty"`
	RequiredCompletionFields []string `json:"required_completion_fields,omitempty"`
	MinDurationMinutes       *float64 `json:"min_duration_minutes,omitempty"`
	MaxDurationMinutes       *float64 `json:"max_duration_minutes,omitempty"`
	Controls                 []string `json:"controls,omitempty"`
	Reagents                 []string `json:"reagents,omitempty"`
}

// TemplateLibrary resolves named SOP definitions. Built-in definitions are
// always available; a template directory, when configured, overrides and
// extends them with one JSON document per file.
type TemplateLibrary struct {
	dir      string
	builtins map[string]TemplateDocument
}

// NewTemplateLibrary constructs a library with the built-in definitions and
// an optional override directory (empty string disables directory lookup).
func NewTemplateLibrary(dir string) *TemplateLibrary {
	return &TemplateLibrary{
		dir: dir,
		builtins: map[string]TemplateDocument{
			elisaBasic.Name: elisaBasic,
		},
	}
}

// Resolve loads the named template, preferring the override directory.
func (l *TemplateLibrary) Resolve(name string) ([]domain.StepTemplate, error) {
	if l.dir != "" {
		path := filepath.Join(l.dir, name+".json")
		payload, err := os.ReadFile(path)
		if err == nil {
			var doc TemplateDocument
			if err := json.Unmarshal(payload, &doc); err != nil {
				return nil, fmt.Errorf("parse template %s: %w", path, err)
			}
			return doc.Compile(), nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read template %s: %w", path, err)
		}
	}
	if doc, ok := l.builtins[name]; ok {
		return doc.Compile(), nil
	}
	return nil, domain.NotFoundError{Kind: "template", ID: name}
}

// Compile converts the document into immutable step templates, translating
// minute durations into time.Duration values.
func (d TemplateDocument) Compile() []domain.StepTemplate {
	steps := make([]domain.StepTemplate, len(d.Steps))
	for i, s := range d.Steps {
		step := domain.StepTemplate{
			Name:                     s.Name,
			RequiredStartFields:      append([]string(nil), s.RequiredStartFields...),
			RequiredCompletionFields: append([]string(nil), s.RequiredCompletionFields...),
			Controls:                 append([]string(nil), s.Controls...),
			Reagents:                 append([]string(nil), s.Reagents...),
		}
		if s.MinDurationMinutes != nil {
			min := time.Duration(*s.MinDurationMinutes * float64(time.Minute))
			step.MinDuration = &min
		}
		if s.MaxDurationMinutes != nil {
			max := time.Duration(*s.MaxDurationMinutes * float64(time.Minute))
			step.MaxDuration = &max
		}
		steps[i] = step
	}
	return steps
}

func minutes(m float64) *float64 { return &m }

// elisaBasic is the built-in three-step ELISA run definition.
var elisaBasic = TemplateDocument{
	Name: "elisa_basic",
	Steps: []TemplateStep{
		{
			Name:                     "prepare_reagents",
			RequiredStartFields:      []string{"operator", "reagent_lot"},
			RequiredCompletionFields: []string{"plate_id"},
			Reagents:                 []string{"coating_antigen", "conjugate", "substrate", "stop_solution"},
		},
		{
			Name:                     "incubation",
			RequiredStartFields:      []string{"operator"},
			RequiredCompletionFields: []string{"incubation_time_minutes"},
			MinDurationMinutes:       minutes(30),
			MaxDurationMinutes:       minutes(120),
			Controls:                 []string{"blank", "low_control", "high_control"},
		},
		{
			Name:                     "read_plate",
			RequiredStartFields:      []string{"operator", "instrument_id"},
			RequiredCompletionFields: []string{"export_reference"},
		},
	},
}
