package contracts

import "time"

// EventType classifies events fanned out to registered listeners
type EventType string

const (
	EventStatusUpdate      EventType = "STATUS_UPDATE"
	EventFill              EventType = "FILL"
	EventExecutionComplete EventType = "EXECUTION_COMPLETE"
	EventPositionUpdate    EventType = "POSITION_UPDATE"
)

// Event is the typed union dispatched through the callback registry
type Event interface {
	Type() EventType
}

// StatusUpdateEvent reports an order status change
type StatusUpdateEvent struct {
	OrderID          string    `json:"order_id"`
	BrokerOrderID    string    `json:"broker_order_id,omitempty"`
	Status           Status    `json:"status"`
	FilledQuantity   int64     `json:"filled_quantity"`
	AverageFillPrice float64   `json:"average_fill_price"`
	Message          string    `json:"message,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Type implements Event
func (StatusUpdateEvent) Type() EventType { return EventStatusUpdate }

// FillEvent reports a newly applied fill
type FillEvent struct {
	Fill Fill `json:"fill"`
}

// Type implements Event
func (FillEvent) Type() EventType { return EventFill }

// ExecutionCompleteEvent reports that an order is fully filled
type ExecutionCompleteEvent struct {
	Report ExecutionReport `json:"report"`
}

// Type implements Event
func (ExecutionCompleteEvent) Type() EventType { return EventExecutionComplete }

// PositionUpdateEvent reports a position change after a fill
type PositionUpdateEvent struct {
	Update PositionUpdate `json:"update"`
}

// Type implements Event
func (PositionUpdateEvent) Type() EventType { return EventPositionUpdate }
