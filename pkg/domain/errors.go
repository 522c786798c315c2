package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports rejected caller input. It is raised before any
// computation or state change takes place.
type ValidationError struct {
	Op     string
	Reason string
	Fields []string
}

func (e ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Reason, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// SequencingError reports an SOP state-machine violation: step out of order,
// duplicate sign-off, or a duration outside the template bounds. The workflow
// state is left unchanged.
type SequencingError struct {
	WorkflowID string
	Reason     string
}

func (e SequencingError) Error() string {
	return fmt.Sprintf("workflow %s: %s", e.WorkflowID, e.Reason)
}

// NotFoundError is returned when a workflow or template lookup fails.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError is returned when creating an entity whose id already exists.
type ConflictError struct {
	Kind string
	ID   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}
