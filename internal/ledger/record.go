package ledger

import (
	"fmt"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

// StatusChange is one append-only status history entry
type StatusChange struct {
	Status        contracts.Status `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Message       string           `json:"message,omitempty"`
	BrokerOrderID string           `json:"broker_order_id,omitempty"`
}

// Record is the canonical ledger entry for one order.
//
// Invariants: FilledQuantity equals the sum of Fills quantities and never
// exceeds Order.Quantity; Fills and History are append-only.
type Record struct {
	Order            contracts.Order  `json:"order"`
	BrokerOrderID    string           `json:"broker_order_id,omitempty"`
	Status           contracts.Status `json:"status"`
	FilledQuantity   int64            `json:"filled_quantity"`
	AverageFillPrice float64          `json:"average_fill_price"`
	Fills            []contracts.Fill `json:"fills"`
	History          []StatusChange   `json:"history"`
	RetryCount       int              `json:"retry_count"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	Commission       float64          `json:"commission"`
	ReferencePrice   float64          `json:"reference_price,omitempty"` // market price at submission, for slippage
	SubmittedAt      time.Time        `json:"submitted_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	FirstFillAt      *time.Time       `json:"first_fill_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// Remaining returns the unfilled quantity
func (r *Record) Remaining() int64 {
	return r.Order.Quantity - r.FilledQuantity
}

// HasFill reports whether a fill ID was already applied to this record
func (r *Record) HasFill(fillID string) bool {
	for _, f := range r.Fills {
		if f.FillID == fillID {
			return true
		}
	}
	return false
}

// Transition moves the record to the next status, enforcing the state
// machine. Terminal records reject every transition with an explicit
// error rather than being silently ignored.
func (r *Record) Transition(to contracts.Status, message string, at time.Time) error {
	if r.Status == to {
		return nil
	}

	if r.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", contracts.ErrTerminalOrder, r.Order.ID, r.Status)
	}

	if !r.Status.CanTransitionTo(to) {
		return fmt.Errorf("invalid transition %s -> %s for order %s", r.Status, to, r.Order.ID)
	}

	r.Status = to
	r.UpdatedAt = at
	r.History = append(r.History, StatusChange{
		Status:        to,
		Timestamp:     at,
		Message:       message,
		BrokerOrderID: r.BrokerOrderID,
	})

	return nil
}

// clone returns a deep copy so callers can never mutate ledger state
// through a returned record.
func (r *Record) clone() Record {
	out := *r

	out.Fills = make([]contracts.Fill, len(r.Fills))
	copy(out.Fills, r.Fills)

	out.History = make([]StatusChange, len(r.History))
	copy(out.History, r.History)

	if r.FirstFillAt != nil {
		t := *r.FirstFillAt
		out.FirstFillAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}

	return out
}
