package contracts

import "time"

// AuditEventType classifies audit trail entries
type AuditEventType string

const (
	AuditOrderSubmitted AuditEventType = "ORDER_SUBMITTED"
	AuditStatusUpdate   AuditEventType = "STATUS_UPDATE"
	AuditFill           AuditEventType = "FILL"
	AuditReconciliation AuditEventType = "RECONCILIATION"
)

// AuditEntry is one append-only audit trail record.
// Entries are ordered by Sequence, which is assigned atomically and is
// monotonic process-wide regardless of which goroutine appended.
type AuditEntry struct {
	Sequence  int64                  `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
	OrderID   string                 `json:"order_id,omitempty"`
	EventType AuditEventType         `json:"event_type"`
	Details   map[string]interface{} `json:"details"`
}
