package contracts

import "time"

// Order represents an immutable order request handed to the engine
// ⭐ SSOT: 주문 정보 전달은 이 타입으로만
//
// Once created an Order is never mutated; quantity or price changes go
// through a validated modification request against the broker gateway.
type Order struct {
	ID           string    `json:"id"`
	Instrument   string    `json:"instrument"`
	Side         Side      `json:"side"`
	Quantity     int64     `json:"quantity"`
	Kind         Kind      `json:"kind"`
	Price        float64   `json:"price,omitempty"`         // limit price, 0 when unset
	TriggerPrice float64   `json:"trigger_price,omitempty"` // stop trigger, 0 when unset
	StrategyID   string    `json:"strategy_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OrderChanges carries the fields of a modification request.
// Nil pointers mean "leave unchanged".
type OrderChanges struct {
	Quantity     *int64   `json:"quantity,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	TriggerPrice *float64 `json:"trigger_price,omitempty"`
}

// Empty reports whether the request changes nothing
func (c OrderChanges) Empty() bool {
	return c.Quantity == nil && c.Price == nil && c.TriggerPrice == nil
}

// Side represents buy or sell
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Kind represents the order kind
type Kind string

const (
	KindMarket    Kind = "MARKET"
	KindLimit     Kind = "LIMIT"
	KindStop      Kind = "STOP"
	KindStopLimit Kind = "STOP_LIMIT"
)

// RequiresPrice reports whether the kind needs a limit price
func (k Kind) RequiresPrice() bool {
	return k == KindLimit || k == KindStopLimit
}

// RequiresTrigger reports whether the kind needs a trigger price
func (k Kind) RequiresTrigger() bool {
	return k == KindStop || k == KindStopLimit
}

// Status represents order lifecycle state
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOpen      Status = "OPEN"
	StatusComplete  Status = "COMPLETE"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
	StatusFailed    Status = "FAILED"
)

// transitions lists the allowed next states per state.
// Terminal states have no entries: once terminal, always terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusOpen, StatusCancelled, StatusRejected, StatusFailed},
	StatusOpen:    {StatusComplete, StatusCancelled, StatusRejected},
}

// Terminal reports whether the status accepts no further transitions
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusCancelled, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Rank orders statuses by lifecycle progress. Broker snapshots reporting
// a lower rank than already recorded are stale and must be ignored.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusOpen:
		return 1
	default:
		return 2
	}
}
