package core

import (
	"context"
	"encoding/json"
	"time"

	"assaycore/pkg/domain"

	"github.com/google/uuid"
)

// AuditStatus labels an audited operation outcome.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures a single service operation for compliance review.
type AuditEntry struct {
	Operation string         `json:"operation"`
	Status    AuditStatus    `json:"status"`
	EntityID  string         `json:"entity_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

// AuditRecorder receives audit entries for every service operation. Recorders
// must not block; slow sinks should buffer internally.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder receives operation timing and outcome observations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a single traced operation.
type TraceSpan interface {
	End(err error)
}

// StoreAuditRecorder persists audit entries into the audit trail of a
// persistent store, keyed by generated ids.
type StoreAuditRecorder struct {
	store domain.PersistentStore
	actor string
}

// NewStoreAuditRecorder wires audit entries into the store's trail. The actor
// labels every persisted entry; empty defaults to "service".
func NewStoreAuditRecorder(store domain.PersistentStore, actor string) *StoreAuditRecorder {
	if actor == "" {
		actor = "service"
	}
	return &StoreAuditRecorder{store: store, actor: actor}
}

// Record implements AuditRecorder. Persistence failures are dropped; the
// audit trail is advisory and must not fail the audited operation.
func (r *StoreAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	persisted := domain.AuditEntry{
		ID:         uuid.NewString(),
		Actor:      r.actor,
		Action:     entry.Operation,
		EntityID:   entry.EntityID,
		Status:     domain.AuditStatus(entry.Status),
		OccurredAt: entry.At,
	}
	if len(entry.Detail) > 0 {
		if payload, err := json.Marshal(entry.Detail); err == nil {
			persisted.Detail = string(payload)
		}
	}
	_ = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tx.AppendAudit(persisted)
		return nil
	})
}
