package execution

import (
	"fmt"
	"sync"

	"github.com/gtrdotmcs/auto-trade/internal/audit"
	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/events"
	"github.com/gtrdotmcs/auto-trade/internal/ledger"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// FillProcessor reconciles broker fills into the ledger and positions
// ⭐ SSOT: 체결 반영은 여기서만
//
// Processing one fill is atomic with respect to the ledger record: the
// fill append, quantity, VWAP and status move happen in one Update. A
// fill ID seen before is ignored entirely, so replayed broker
// notifications cannot double-count.
type FillProcessor struct {
	ledger   *ledger.Ledger
	book     *PositionBook
	trail    *audit.Trail
	reporter *audit.Reporter
	events   *events.Dispatcher
	logger   *logger.Logger

	mu      sync.Mutex
	applied map[string]contracts.PositionUpdate
}

// NewFillProcessor wires the fill path over ledger, positions and audit
func NewFillProcessor(l *ledger.Ledger, book *PositionBook, trail *audit.Trail, reporter *audit.Reporter, d *events.Dispatcher, log *logger.Logger) *FillProcessor {
	return &FillProcessor{
		ledger:   l,
		book:     book,
		trail:    trail,
		reporter: reporter,
		events:   d,
		logger:   log,
		applied:  make(map[string]contracts.PositionUpdate),
	}
}

// Apply reconciles one fill. Duplicates are silently ignored; an
// over-fill beyond the order quantity is recorded as an invariant
// violation and not applied.
func (p *FillProcessor) Apply(fill contracts.Fill) error {
	p.mu.Lock()
	if _, seen := p.applied[fill.FillID]; seen {
		p.mu.Unlock()
		p.logger.WithFields(map[string]interface{}{
			"order_id": fill.OrderID,
			"fill_id":  fill.FillID,
		}).Debug("Duplicate fill ignored")
		return nil
	}
	p.mu.Unlock()

	var rec ledger.Record
	var completed bool
	duplicate := false

	err := p.ledger.Update(fill.OrderID, func(r *ledger.Record) error {
		if r.HasFill(fill.FillID) {
			duplicate = true
			return nil
		}

		if r.FilledQuantity+fill.Quantity > r.Order.Quantity {
			violation := &contracts.InvariantViolation{
				OrderID: fill.OrderID,
				Detail: fmt.Sprintf("fill %s of %d would exceed order quantity %d (already filled %d)",
					fill.FillID, fill.Quantity, r.Order.Quantity, r.FilledQuantity),
			}
			r.ErrorMessage = violation.Detail
			p.trail.Append(contracts.AuditStatusUpdate, fill.OrderID, map[string]interface{}{
				"anomaly": violation.Detail,
			})
			return violation
		}

		// Status moves happen before any fill effect is recorded, so a
		// refused transition leaves the record untouched. A pushed fill
		// can land before the submit response marks the order OPEN.
		if r.Status == contracts.StatusPending {
			if err := r.Transition(contracts.StatusOpen, "first fill", fill.Timestamp); err != nil {
				return err
			}
		}
		if r.FilledQuantity+fill.Quantity == r.Order.Quantity {
			if err := r.Transition(contracts.StatusComplete, "fully filled", fill.Timestamp); err != nil {
				return err
			}
			at := fill.Timestamp
			r.CompletedAt = &at
			completed = true
		}

		// 누적 VWAP 갱신
		notional := r.AverageFillPrice*float64(r.FilledQuantity) + fill.Price*float64(fill.Quantity)
		r.FilledQuantity += fill.Quantity
		r.AverageFillPrice = notional / float64(r.FilledQuantity)
		r.Fills = append(r.Fills, fill)
		r.Commission += fill.Commission
		r.UpdatedAt = fill.Timestamp

		if r.FirstFillAt == nil {
			at := fill.Timestamp
			r.FirstFillAt = &at
		}

		rec = *r
		return nil
	})
	if err != nil {
		return err
	}
	if duplicate {
		return nil
	}

	update := p.book.Apply(rec.Order.Instrument, rec.Order.Side, fill.Quantity, fill.Price, fill.Timestamp)

	p.mu.Lock()
	p.applied[fill.FillID] = update
	p.mu.Unlock()

	p.trail.Append(contracts.AuditFill, fill.OrderID, map[string]interface{}{
		"fill_id":       fill.FillID,
		"quantity":      fill.Quantity,
		"price":         fill.Price,
		"filled_total":  rec.FilledQuantity,
		"average_price": rec.AverageFillPrice,
		"net_position":  update.NetQuantity,
	})

	if update.NetQuantity == 0 {
		// 포지션 청산 시점의 실현손익 스냅샷
		p.trail.Append(contracts.AuditReconciliation, fill.OrderID, map[string]interface{}{
			"instrument":   update.Instrument,
			"event":        "position_closed",
			"realized_pnl": update.RealizedPnL,
		})
	}

	p.logger.WithFields(map[string]interface{}{
		"order_id": fill.OrderID,
		"fill_id":  fill.FillID,
		"quantity": fill.Quantity,
		"price":    fill.Price,
		"filled":   rec.FilledQuantity,
		"of":       rec.Order.Quantity,
	}).Info("Fill applied")

	// Listener order: fill, then completion, then position
	p.events.Publish(contracts.FillEvent{Fill: fill})

	if completed {
		if report, rerr := p.reporter.ExecutionReport(fill.OrderID); rerr == nil {
			p.events.Publish(contracts.ExecutionCompleteEvent{Report: report})
		}
		p.events.Publish(contracts.StatusUpdateEvent{
			OrderID:          fill.OrderID,
			BrokerOrderID:    rec.BrokerOrderID,
			Status:           contracts.StatusComplete,
			FilledQuantity:   rec.FilledQuantity,
			AverageFillPrice: rec.AverageFillPrice,
			Timestamp:        fill.Timestamp,
		})
	}

	p.events.Publish(contracts.PositionUpdateEvent{Update: update})

	return nil
}

// AppliedUpdate returns the position update a fill produced, if that
// fill was processed. Used by reconciliation diagnostics.
func (p *FillProcessor) AppliedUpdate(fillID string) (contracts.PositionUpdate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.applied[fillID]
	return u, ok
}
