package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

// Ledger owns every order record and is the only gate to them
// ⭐ SSOT: 주문 원장 접근은 이 타입의 메서드로만
//
// All reads and writes happen while holding the internal lock; records
// returned to callers are deep copies. Broker I/O must never be done
// inside an Update callback.
type Ledger struct {
	mu       sync.RWMutex
	records  map[string]*Record
	sequence []string // insertion order, for stable listings
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		records: make(map[string]*Record),
	}
}

// Create adds a new PENDING record for a validated order
func (l *Ledger) Create(order contracts.Order, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[order.ID]; exists {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateOrder, order.ID)
	}

	rec := &Record{
		Order:       order,
		Status:      contracts.StatusPending,
		Fills:       make([]contracts.Fill, 0),
		SubmittedAt: at,
		UpdatedAt:   at,
		History: []StatusChange{{
			Status:    contracts.StatusPending,
			Timestamp: at,
			Message:   "order accepted for submission",
		}},
	}

	l.records[order.ID] = rec
	l.sequence = append(l.sequence, order.ID)

	return nil
}

// Get returns a copy of the record for an order ID
func (l *Ledger) Get(orderID string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, exists := l.records[orderID]
	if !exists {
		return Record{}, fmt.Errorf("%w: %s", contracts.ErrOrderNotFound, orderID)
	}

	return rec.clone(), nil
}

// Update applies fn to the record under the ledger lock. fn must not
// block on I/O; gather broker results first, then apply them here.
func (l *Ledger) Update(orderID string, fn func(*Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.records[orderID]
	if !exists {
		return fmt.Errorf("%w: %s", contracts.ErrOrderNotFound, orderID)
	}

	return fn(rec)
}

// Transition moves an order to the next status under the lock
func (l *Ledger) Transition(orderID string, to contracts.Status, message string, at time.Time) error {
	return l.Update(orderID, func(r *Record) error {
		return r.Transition(to, message, at)
	})
}

// List returns copies of records matching the filter, in insertion order.
// A nil filter matches everything.
func (l *Ledger) List(filter func(*Record) bool) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.sequence))
	for _, id := range l.sequence {
		rec := l.records[id]
		if filter == nil || filter(rec) {
			out = append(out, rec.clone())
		}
	}
	return out
}

// ByStatus returns copies of records with the given status
func (l *Ledger) ByStatus(status contracts.Status) []Record {
	return l.List(func(r *Record) bool {
		return r.Status == status
	})
}

// Active returns copies of records the monitor must still poll,
// i.e. everything PENDING or OPEN.
func (l *Ledger) Active() []Record {
	return l.List(func(r *Record) bool {
		return !r.Status.Terminal()
	})
}

// Len returns the number of ledgered orders
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
