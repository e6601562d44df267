package contracts

import "time"

// Position tracks the net open quantity per instrument.
//
// AveragePrice is the cost basis of the open lot and is meaningful only
// while NetQuantity != 0; a full close resets it to zero. UnrealizedPnL
// is derived from an external mark price and is zero when no mark is
// available.
type Position struct {
	Instrument    string    `json:"instrument"`
	NetQuantity   int64     `json:"net_quantity"`
	AveragePrice  float64   `json:"average_price"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Flat reports whether the position has no open quantity
func (p Position) Flat() bool {
	return p.NetQuantity == 0
}

// PositionUpdate is the position state after a fill was applied
type PositionUpdate struct {
	Instrument   string    `json:"instrument"`
	NetQuantity  int64     `json:"net_quantity"`
	AveragePrice float64   `json:"average_price"`
	RealizedPnL  float64   `json:"realized_pnl"`
	Timestamp    time.Time `json:"timestamp"`
}

// PositionSnapshot is an externally supplied (broker) view of a position
type PositionSnapshot struct {
	Instrument   string  `json:"instrument"`
	NetQuantity  int64   `json:"net_quantity"`
	AveragePrice float64 `json:"average_price"`
}

// ReconcileResult reports the comparison of an internal position against
// a broker snapshot, naming the fields that differ.
type ReconcileResult struct {
	Instrument     string    `json:"instrument"`
	Match          bool      `json:"match"`
	MismatchFields []string  `json:"mismatch_fields,omitempty"`
	InternalQty    int64     `json:"internal_qty"`
	BrokerQty      int64     `json:"broker_qty"`
	InternalAvg    float64   `json:"internal_avg"`
	BrokerAvg      float64   `json:"broker_avg"`
	CheckedAt      time.Time `json:"checked_at"`
}
