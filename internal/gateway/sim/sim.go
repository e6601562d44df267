// Package sim implements a simulated broker gateway.
//
// The simulator accepts orders, reveals scripted fills one poll at a
// time, and can inject transient submission failures or definitive
// rejections. It backs the sim broker kind and the engine test suite.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

// Step is one scripted fill of a planned execution
type Step struct {
	Quantity int64
	Price    float64
}

type simOrder struct {
	order     contracts.Order
	steps     []Step
	revealed  int
	cancelled bool
}

// Gateway is the simulated broker
// ⭐ 운영에서는 rest.Gateway 사용, 시뮬레이션/테스트 전용
type Gateway struct {
	mu sync.Mutex

	nextID int
	orders map[string]*simOrder

	// Next-submission behavior injection
	pendingPlan  []Step
	failSubmits  int
	rejectReason string

	positions map[string]contracts.PositionSnapshot
}

// New creates an empty simulated gateway
func New() *Gateway {
	return &Gateway{
		orders:    make(map[string]*simOrder),
		positions: make(map[string]contracts.PositionSnapshot),
	}
}

// PlanFills scripts the fills for the next accepted order. Each
// PollStatus call reveals one more step.
func (g *Gateway) PlanFills(steps ...Step) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pendingPlan = steps
}

// FailSubmissions makes the next n Submit calls fail transiently
func (g *Gateway) FailSubmissions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSubmits = n
}

// RejectNext makes the next Submit call return a definitive exchange
// rejection with the given reason.
func (g *Gateway) RejectNext(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectReason = reason
}

// SetPosition sets the broker-side position snapshot for an instrument
func (g *Gateway) SetPosition(snapshot contracts.PositionSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[snapshot.Instrument] = snapshot
}

// Submit implements gateway.Broker
func (g *Gateway) Submit(ctx context.Context, order contracts.Order) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failSubmits > 0 {
		g.failSubmits--
		return "", fmt.Errorf("simulated gateway timeout")
	}

	if g.rejectReason != "" {
		reason := g.rejectReason
		g.rejectReason = ""
		return "", &contracts.ExchangeRejection{Reason: reason}
	}

	g.nextID++
	brokerID := fmt.Sprintf("SIM-%06d", g.nextID)

	g.orders[brokerID] = &simOrder{
		order: order,
		steps: g.pendingPlan,
	}
	g.pendingPlan = nil

	return brokerID, nil
}

// Cancel implements gateway.Broker
func (g *Gateway) Cancel(ctx context.Context, brokerOrderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	so, exists := g.orders[brokerOrderID]
	if !exists {
		return fmt.Errorf("unknown broker order %s", brokerOrderID)
	}
	if so.filledQuantity() == so.order.Quantity {
		return fmt.Errorf("order %s already complete", brokerOrderID)
	}

	so.cancelled = true
	return nil
}

// Modify implements gateway.Broker
func (g *Gateway) Modify(ctx context.Context, brokerOrderID string, changes contracts.OrderChanges) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	so, exists := g.orders[brokerOrderID]
	if !exists {
		return fmt.Errorf("unknown broker order %s", brokerOrderID)
	}
	if so.cancelled || so.filledQuantity() == so.order.Quantity {
		return fmt.Errorf("order %s no longer working", brokerOrderID)
	}

	if changes.Quantity != nil {
		so.order.Quantity = *changes.Quantity
	}
	if changes.Price != nil {
		so.order.Price = *changes.Price
	}
	if changes.TriggerPrice != nil {
		so.order.TriggerPrice = *changes.TriggerPrice
	}

	return nil
}

// PollStatus implements gateway.Broker. Each call reveals at most one
// further scripted fill, so repeated polls walk through the plan.
func (g *Gateway) PollStatus(ctx context.Context, brokerOrderID string) (contracts.StatusSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	so, exists := g.orders[brokerOrderID]
	if !exists {
		return contracts.StatusSnapshot{}, fmt.Errorf("unknown broker order %s", brokerOrderID)
	}

	if !so.cancelled && so.revealed < len(so.steps) {
		so.revealed++
	}

	return so.snapshot(brokerOrderID), nil
}

// Positions implements gateway.Broker
func (g *Gateway) Positions(ctx context.Context) ([]contracts.PositionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]contracts.PositionSnapshot, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out, nil
}

func (so *simOrder) filledQuantity() int64 {
	var total int64
	for _, s := range so.steps[:so.revealed] {
		total += s.Quantity
	}
	return total
}

func (so *simOrder) snapshot(brokerOrderID string) contracts.StatusSnapshot {
	filled := so.filledQuantity()

	var notional float64
	fills := make([]contracts.Fill, 0, so.revealed)
	for i, s := range so.steps[:so.revealed] {
		notional += float64(s.Quantity) * s.Price
		fills = append(fills, contracts.Fill{
			OrderID:       so.order.ID,
			BrokerOrderID: brokerOrderID,
			FillID:        fmt.Sprintf("%s-F%d", brokerOrderID, i+1),
			Quantity:      s.Quantity,
			Price:         s.Price,
			Timestamp:     time.Now(),
		})
	}

	var avg float64
	if filled > 0 {
		avg = notional / float64(filled)
	}

	status := contracts.StatusOpen
	switch {
	case so.cancelled:
		status = contracts.StatusCancelled
	case filled == so.order.Quantity && filled > 0:
		status = contracts.StatusComplete
	}

	return contracts.StatusSnapshot{
		BrokerOrderID:  brokerOrderID,
		Status:         status,
		FilledQuantity: filled,
		AveragePrice:   avg,
		Fills:          fills,
	}
}
