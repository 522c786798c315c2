package domain

import "time"

// AuditStatus marks the outcome recorded for an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures the electronic-record attributes retained for every
// service operation: who did what to which entity, when, and how it ended.
type AuditEntry struct {
	ID         string      `json:"id"`
	Actor      string      `json:"actor"`
	Action     string      `json:"action"`
	EntityID   string      `json:"entity_id,omitempty"`
	Status     AuditStatus `json:"status"`
	Detail     string      `json:"detail,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
