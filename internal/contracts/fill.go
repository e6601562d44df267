package contracts

import "time"

// Fill represents a single partial or complete execution of an order
// ⭐ SSOT: 체결 정보 전달은 이 타입으로만
type Fill struct {
	OrderID           string     `json:"order_id"`
	BrokerOrderID     string     `json:"broker_order_id"`
	FillID            string     `json:"fill_id"`
	Quantity          int64      `json:"quantity"`
	Price             float64    `json:"price"`
	Timestamp         time.Time  `json:"timestamp"`
	ExchangeTimestamp *time.Time `json:"exchange_timestamp,omitempty"`
	TradeID           string     `json:"trade_id,omitempty"`
	Commission        float64    `json:"commission,omitempty"`
}

// StatusSnapshot is the broker gateway's view of an order at poll time
type StatusSnapshot struct {
	BrokerOrderID  string  `json:"broker_order_id"`
	Status         Status  `json:"status"`
	FilledQuantity int64   `json:"filled_quantity"`
	AveragePrice   float64 `json:"average_price"`
	Fills          []Fill  `json:"fills"`
}

// ExecutionReport is a read-only projection of an order's execution,
// assembled on demand and never persisted as a source of truth.
type ExecutionReport struct {
	OrderID           string     `json:"order_id"`
	BrokerOrderID     string     `json:"broker_order_id"`
	Instrument        string     `json:"instrument"`
	Side              Side       `json:"side"`
	Kind              Kind       `json:"kind"`
	TotalQuantity     int64      `json:"total_quantity"`
	FilledQuantity    int64      `json:"filled_quantity"`
	RemainingQuantity int64      `json:"remaining_quantity"`
	AverageFillPrice  float64    `json:"average_fill_price"`
	Fills             []Fill     `json:"fills"`
	Status            Status     `json:"status"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	FirstFillAt       *time.Time `json:"first_fill_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Slippage          float64    `json:"slippage"`
	Commission        float64    `json:"commission"`
}
