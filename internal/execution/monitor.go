package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/audit"
	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/events"
	"github.com/gtrdotmcs/auto-trade/internal/gateway"
	"github.com/gtrdotmcs/auto-trade/internal/ledger"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// Monitor polls the broker for the state of working orders
// ⭐ SSOT: 체결 모니터링 로직은 여기서만
//
// Snapshots are applied monotonically: a snapshot whose lifecycle rank
// or filled quantity is behind the ledger is stale and discarded. Fill
// deltas flow through the fill processor, which also dedupes, so a push
// feed and the poll loop can coexist.
type Monitor struct {
	ledger *ledger.Ledger
	broker gateway.Broker
	fills  *FillProcessor
	trail  *audit.Trail
	events *events.Dispatcher
	logger *logger.Logger

	interval time.Duration
	timeout  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a poll loop over the broker gateway
func NewMonitor(l *ledger.Ledger, broker gateway.Broker, fills *FillProcessor, trail *audit.Trail, d *events.Dispatcher, log *logger.Logger, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{
		ledger:   l,
		broker:   broker,
		fills:    fills,
		trail:    trail,
		events:   d,
		logger:   log,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the poll loop goroutine
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Poll(context.Background())
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the poll loop
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Poll checks every working order once. Broker errors are logged and
// skipped; the next cycle retries naturally.
func (m *Monitor) Poll(ctx context.Context) {
	for _, rec := range m.ledger.Active() {
		if rec.BrokerOrderID == "" {
			// Still queued for submission
			continue
		}

		pollCtx, cancel := context.WithTimeout(ctx, m.timeout)
		snap, err := m.broker.PollStatus(pollCtx, rec.BrokerOrderID)
		cancel()
		if err != nil {
			m.logger.WithError(err).WithFields(map[string]interface{}{
				"order_id":        rec.Order.ID,
				"broker_order_id": rec.BrokerOrderID,
			}).Warn("Status poll failed")
			continue
		}

		if err := m.ApplySnapshot(rec.Order.ID, snap); err != nil {
			m.logger.WithError(err).WithField("order_id", rec.Order.ID).Error("Failed to apply status snapshot")
		}
	}
}

// ApplySnapshot reconciles one broker snapshot into the ledger. Also
// the entry point for push-fed status updates.
func (m *Monitor) ApplySnapshot(orderID string, snap contracts.StatusSnapshot) error {
	rec, err := m.ledger.Get(orderID)
	if err != nil {
		return err
	}

	// 지연 도착한 과거 스냅샷은 폐기
	if snap.Status.Rank() < rec.Status.Rank() || snap.FilledQuantity < rec.FilledQuantity {
		m.logger.WithFields(map[string]interface{}{
			"order_id":      orderID,
			"ledger_status": rec.Status,
			"snapshot":      snap.Status,
			"ledger_filled": rec.FilledQuantity,
			"snapshot_fill": snap.FilledQuantity,
		}).Debug("Stale snapshot discarded")
		return nil
	}

	if err := m.applyFills(rec, snap); err != nil {
		return err
	}

	return m.applyStatus(orderID, snap)
}

// applyFills routes new fills from the snapshot through the processor.
// Brokers that report only aggregate filled quantity get a synthetic
// delta fill at the implied price.
func (m *Monitor) applyFills(rec ledger.Record, snap contracts.StatusSnapshot) error {
	if len(snap.Fills) > 0 {
		for _, f := range snap.Fills {
			if rec.HasFill(f.FillID) {
				continue
			}
			f.OrderID = rec.Order.ID
			if f.Timestamp.IsZero() {
				f.Timestamp = time.Now()
			}
			if err := m.fills.Apply(f); err != nil {
				return err
			}
		}
		return nil
	}

	delta := snap.FilledQuantity - rec.FilledQuantity
	if delta <= 0 {
		return nil
	}

	// Implied price of the unseen quantity from the average move
	price := (snap.AveragePrice*float64(snap.FilledQuantity) - rec.AverageFillPrice*float64(rec.FilledQuantity)) / float64(delta)

	return m.fills.Apply(contracts.Fill{
		OrderID:       rec.Order.ID,
		BrokerOrderID: rec.BrokerOrderID,
		FillID:        fmt.Sprintf("%s-POLL-%d", rec.BrokerOrderID, snap.FilledQuantity),
		Quantity:      delta,
		Price:         price,
		Timestamp:     time.Now(),
	})
}

// applyStatus moves the ledger status when the snapshot advanced it.
// COMPLETE is owned by the fill path; here only broker-side CANCELLED,
// REJECTED and the PENDING->OPEN acknowledgement are applied.
func (m *Monitor) applyStatus(orderID string, snap contracts.StatusSnapshot) error {
	switch snap.Status {
	case contracts.StatusOpen, contracts.StatusCancelled, contracts.StatusRejected:
	default:
		return nil
	}

	now := time.Now()
	changed := false
	var after ledger.Record

	err := m.ledger.Update(orderID, func(r *ledger.Record) error {
		if r.Status == snap.Status || r.Status.Terminal() {
			return nil
		}
		if err := r.Transition(snap.Status, "reported by broker", now); err != nil {
			return err
		}
		changed = true
		after = *r
		return nil
	})
	if err != nil || !changed {
		return err
	}

	m.trail.Append(contracts.AuditStatusUpdate, orderID, map[string]interface{}{
		"status": snap.Status,
		"source": "poll",
	})

	m.events.Publish(contracts.StatusUpdateEvent{
		OrderID:          orderID,
		BrokerOrderID:    snap.BrokerOrderID,
		Status:           snap.Status,
		FilledQuantity:   after.FilledQuantity,
		AverageFillPrice: after.AverageFillPrice,
		Timestamp:        now,
	})

	return nil
}
