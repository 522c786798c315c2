// Package memory provides the in-memory workflow store used for tests,
// ephemeral runs, and as the authoritative state behind the durable
// snapshotting backends.
package memory

import (
	"context"
	"sort"
	"sync"

	"assaycore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type state struct {
	workflows map[string]domain.Workflow
	audit     []domain.AuditEntry
}

// Snapshot captures a point-in-time clone of the store state for durable
// backends.
type Snapshot struct {
	Workflows map[string]domain.Workflow `json:"workflows"`
	Audit     []domain.AuditEntry        `json:"audit"`
}

// Store keeps workflow and audit state in memory. Transactions operate on a
// deep copy and commit by swapping state, so a failed transaction leaves
// committed state untouched.
type Store struct {
	mu    sync.RWMutex
	state state
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{state: state{workflows: make(map[string]domain.Workflow)}}
}

func cloneState(s state) state {
	dup := state{
		workflows: make(map[string]domain.Workflow, len(s.workflows)),
		audit:     append([]domain.AuditEntry(nil), s.audit...),
	}
	for id, w := range s.workflows {
		dup.workflows[id] = w.Clone()
	}
	return dup
}

// Transaction is a mutable unit of work over a cloned state.
type Transaction struct {
	state state
}

var _ domain.Transaction = (*Transaction)(nil)

// CreateWorkflow registers a new workflow; the id must be unused.
func (t *Transaction) CreateWorkflow(w domain.Workflow) (domain.Workflow, error) {
	if _, exists := t.state.workflows[w.ID]; exists {
		return domain.Workflow{}, domain.ConflictError{Kind: "workflow", ID: w.ID}
	}
	t.state.workflows[w.ID] = w.Clone()
	return w, nil
}

// UpdateWorkflow applies the mutator to a copy of the stored workflow and
// keeps the result only when the mutator succeeds.
func (t *Transaction) UpdateWorkflow(id string, mutator func(*domain.Workflow) error) (domain.Workflow, error) {
	current, ok := t.state.workflows[id]
	if !ok {
		return domain.Workflow{}, domain.NotFoundError{Kind: "workflow", ID: id}
	}
	updated := current.Clone()
	if err := mutator(&updated); err != nil {
		return domain.Workflow{}, err
	}
	t.state.workflows[id] = updated
	return updated.Clone(), nil
}

// FindWorkflow returns a snapshot of the workflow within the transaction.
func (t *Transaction) FindWorkflow(id string) (domain.Workflow, bool) {
	w, ok := t.state.workflows[id]
	if !ok {
		return domain.Workflow{}, false
	}
	return w.Clone(), true
}

// AppendAudit records an audit entry within the transaction.
func (t *Transaction) AppendAudit(entry domain.AuditEntry) {
	t.state.audit = append(t.state.audit, entry)
}

// RunInTransaction executes fn against a cloned state and commits on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Transaction{state: cloneState(s.state)}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

type view struct {
	state state
}

func (v view) FindWorkflow(id string) (domain.Workflow, bool) {
	w, ok := v.state.workflows[id]
	if !ok {
		return domain.Workflow{}, false
	}
	return w.Clone(), true
}

func (v view) ListWorkflows() []domain.Workflow {
	out := make([]domain.Workflow, 0, len(v.state.workflows))
	for _, w := range v.state.workflows {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) AuditTrail() []domain.AuditEntry {
	return append([]domain.AuditEntry(nil), v.state.audit...)
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := cloneState(s.state)
	s.mu.RUnlock()
	return fn(view{state: snapshot})
}

// GetWorkflow returns a snapshot of the workflow by id.
func (s *Store) GetWorkflow(id string) (domain.Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.state.workflows[id]
	if !ok {
		return domain.Workflow{}, false
	}
	return w.Clone(), true
}

// ListWorkflows returns snapshots of all workflows ordered by id.
func (s *Store) ListWorkflows() []domain.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: s.state}.ListWorkflows()
}

// AuditTrail returns a copy of the recorded audit entries in order.
func (s *Store) AuditTrail() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEntry(nil), s.state.audit...)
}

// ExportState clones the full store state for durable snapshotting.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := cloneState(s.state)
	return Snapshot{Workflows: cloned.workflows, Audit: cloned.audit}
}

// ImportState replaces the store state with the snapshot contents.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := state{workflows: make(map[string]domain.Workflow, len(snapshot.Workflows))}
	for id, w := range snapshot.Workflows {
		next.workflows[id] = w.Clone()
	}
	next.audit = append([]domain.AuditEntry(nil), snapshot.Audit...)
	s.state = next
}
