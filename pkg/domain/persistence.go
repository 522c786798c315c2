package domain

import "context"

// Transaction exposes the domain operations a persistence implementation must
// support within an atomic scope. Mutations are visible to later calls in the
// same transaction and discarded wholesale if the transaction function errors.
type Transaction interface {
	CreateWorkflow(Workflow) (Workflow, error)
	UpdateWorkflow(id string, mutator func(*Workflow) error) (Workflow, error)
	FindWorkflow(id string) (Workflow, bool)
	AppendAudit(AuditEntry)
}

// TransactionView provides read-only access to committed state.
type TransactionView interface {
	FindWorkflow(id string) (Workflow, bool)
	ListWorkflows() []Workflow
	AuditTrail() []AuditEntry
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetWorkflow(id string) (Workflow, bool)
	ListWorkflows() []Workflow
	AuditTrail() []AuditEntry
}
