package audit

import (
	"sort"
	"sync"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

// Trail is the append-only, sequence-ordered execution audit log
// ⭐ SSOT: 감사 기록 추가/조회는 여기서만
//
// Sequence numbers are assigned under the trail lock, so they are
// monotonic process-wide regardless of which goroutine appends.
type Trail struct {
	mu      sync.RWMutex
	seq     int64
	entries []contracts.AuditEntry
}

// NewTrail creates an empty audit trail
func NewTrail() *Trail {
	return &Trail{
		entries: make([]contracts.AuditEntry, 0, 256),
	}
}

// Append records an event and returns the stored entry
func (t *Trail) Append(eventType contracts.AuditEventType, orderID string, details map[string]interface{}) contracts.AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	entry := contracts.AuditEntry{
		Sequence:  t.seq,
		Timestamp: time.Now(),
		OrderID:   orderID,
		EventType: eventType,
		Details:   details,
	}
	t.entries = append(t.entries, entry)

	return entry
}

// Filter selects audit entries; zero values match everything
type Filter struct {
	OrderID string
	Start   *time.Time
	End     *time.Time
}

func (f Filter) matches(e contracts.AuditEntry) bool {
	if f.OrderID != "" && e.OrderID != f.OrderID {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// Entries returns matching entries ordered by sequence number
func (t *Trail) Entries(f Filter) []contracts.AuditEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]contracts.AuditEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})

	return out
}

// Len returns the number of recorded entries
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
