package gateway

import (
	"context"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

// Broker defines the interface to an external brokerage gateway
// ⭐ SSOT: 증권사 연동 인터페이스는 여기서만 정의
//
// Implementations are substitutable: the live REST gateway and the
// simulated gateway satisfy the same contract. Calls are blocking I/O
// and must be made without holding the ledger lock.
//
// A definitive exchange-level rejection is signalled by returning a
// *contracts.ExchangeRejection; any other error from Submit is treated
// as transient and retried by the submission worker. Broker-side
// deduplication of repeated submissions is the gateway's concern.
type Broker interface {
	// Submit places an order and returns the broker-assigned order ID
	Submit(ctx context.Context, order contracts.Order) (string, error)

	// Cancel requests cancellation of a working order
	Cancel(ctx context.Context, brokerOrderID string) error

	// Modify applies a change request to a working order
	Modify(ctx context.Context, brokerOrderID string, changes contracts.OrderChanges) error

	// PollStatus returns the broker's current view of an order
	PollStatus(ctx context.Context, brokerOrderID string) (contracts.StatusSnapshot, error)

	// Positions returns the broker's view of all open positions, used
	// for reconciliation
	Positions(ctx context.Context) ([]contracts.PositionSnapshot, error)
}
