package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors for the execution engine error taxonomy
var (
	// ErrOrderNotFound is returned when an order ID is unknown to the ledger
	ErrOrderNotFound = errors.New("order not found")

	// ErrTerminalOrder is returned on any attempt to modify, cancel or
	// transition an order already in a terminal state
	ErrTerminalOrder = errors.New("order is in a terminal state")

	// ErrDuplicateOrder is returned when an order ID is already ledgered
	ErrDuplicateOrder = errors.New("order already exists")
)

// ValidationError rejects an order before submission. Non-retryable.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order validation failed: %s", e.Reason)
}

// SubmissionError is a transient broker or network failure during
// submission; retried with backoff up to the configured bound.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("order submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ExchangeRejection is a definitive broker-level rejection. Not retried;
// the order goes terminal REJECTED.
type ExchangeRejection struct {
	Reason string
}

func (e *ExchangeRejection) Error() string {
	return fmt.Sprintf("order rejected by exchange: %s", e.Reason)
}

// InvariantViolation marks a state that must never occur under correct
// operation, such as filled quantity exceeding order quantity. The record
// is flagged and the anomaly surfaced through the audit trail; resolution
// is a policy decision for upstream risk control.
type InvariantViolation struct {
	OrderID string
	Detail  string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on order %s: %s", e.OrderID, e.Detail)
}
