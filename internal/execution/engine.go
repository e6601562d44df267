package execution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/audit"
	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/events"
	"github.com/gtrdotmcs/auto-trade/internal/gateway"
	"github.com/gtrdotmcs/auto-trade/internal/ledger"
	"github.com/gtrdotmcs/auto-trade/pkg/config"
	"github.com/gtrdotmcs/auto-trade/pkg/id"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
	"github.com/gtrdotmcs/auto-trade/pkg/redis"
)

// Engine is the order execution and position reconciliation facade
// ⭐ SSOT: 주문 실행 파이프라인 조립은 여기서만
//
// It owns the ledger, position book, audit trail, event dispatcher,
// submission worker and status monitor, and is the only surface the API
// and scheduler talk to.
type Engine struct {
	cfg    *config.Config
	broker gateway.Broker
	marks  *redis.MarkCache
	logger *logger.Logger

	ledger    *ledger.Ledger
	book      *PositionBook
	trail     *audit.Trail
	reporter  *audit.Reporter
	events    *events.Dispatcher
	validator *Validator
	fills     *FillProcessor
	submitter *Submitter
	monitor   *Monitor
}

// NewEngine wires the full execution pipeline. marks may be nil when no
// mark-price cache is configured.
func NewEngine(cfg *config.Config, broker gateway.Broker, marks *redis.MarkCache, log *logger.Logger) *Engine {
	l := ledger.New()
	trail := audit.NewTrail()
	book := NewPositionBook()
	reporter := audit.NewReporter(l, trail, log)
	dispatcher := events.NewDispatcher(log, cfg.Engine.EventQueueSize)
	fills := NewFillProcessor(l, book, trail, reporter, dispatcher, log)

	return &Engine{
		cfg:       cfg,
		broker:    broker,
		marks:     marks,
		logger:    log,
		ledger:    l,
		book:      book,
		trail:     trail,
		reporter:  reporter,
		events:    dispatcher,
		validator: NewValidator(marks, log),
		fills:     fills,
		submitter: NewSubmitter(l, trail, dispatcher, broker, log, cfg.Engine.MaxRetries, cfg.Engine.QueueSize, cfg.Broker.Timeout),
		monitor:   NewMonitor(l, broker, fills, trail, dispatcher, log, cfg.Engine.MonitorInterval, cfg.Broker.Timeout),
	}
}

// Start launches the dispatcher, submission worker and status monitor
func (e *Engine) Start() {
	e.events.Start()
	e.submitter.Start()
	e.monitor.Start()
	e.logger.Info("Execution engine started")
}

// Stop shuts the pipeline down in dependency order: no new polls, then
// drain queued submissions, then flush pending events.
func (e *Engine) Stop() {
	e.monitor.Stop()
	e.submitter.Stop()
	e.events.Stop()
	e.logger.Info("Execution engine stopped")
}

// SubmitOrder validates and ledgers an order, then queues it for
// asynchronous submission. Returns the assigned order ID.
func (e *Engine) SubmitOrder(ctx context.Context, order contracts.Order) (string, error) {
	if order.ID == "" {
		order.ID = id.NewOrderID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	if err := e.validator.Validate(ctx, order); err != nil {
		e.trail.Append(contracts.AuditOrderSubmitted, order.ID, map[string]interface{}{
			"instrument": order.Instrument,
			"side":       order.Side,
			"quantity":   order.Quantity,
			"kind":       order.Kind,
			"result":     "validation_failed",
			"reason":     err.Error(),
		})
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("Order rejected by validation")
		return order.ID, err
	}

	if err := e.ledger.Create(order, time.Now()); err != nil {
		return order.ID, err
	}

	// 슬리피지 기준가: 제출 시점의 시세 스냅샷
	if e.marks != nil {
		if mark, ok, err := e.marks.Get(ctx, order.Instrument); err == nil && ok {
			_ = e.ledger.Update(order.ID, func(r *ledger.Record) error {
				r.ReferencePrice = mark
				return nil
			})
		}
	}

	if err := e.submitter.Enqueue(order.ID); err != nil {
		reason := "submission queue full"
		_ = e.ledger.Update(order.ID, func(r *ledger.Record) error {
			r.ErrorMessage = reason
			return r.Transition(contracts.StatusFailed, reason, time.Now())
		})
		e.trail.Append(contracts.AuditStatusUpdate, order.ID, map[string]interface{}{
			"status": contracts.StatusFailed,
			"reason": reason,
		})
		return order.ID, fmt.Errorf("submit order %s: %w", order.ID, err)
	}

	e.logger.WithFields(map[string]interface{}{
		"order_id":   order.ID,
		"instrument": order.Instrument,
		"side":       order.Side,
		"quantity":   order.Quantity,
		"kind":       order.Kind,
	}).Info("Order accepted")

	return order.ID, nil
}

// CancelOrder cancels a working order. Orders still queued locally are
// cancelled without a broker round trip; terminal orders return an
// explicit error.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	rec, err := e.ledger.Get(orderID)
	if err != nil {
		return err
	}

	if rec.Status.Terminal() {
		return fmt.Errorf("cancel order %s: %w (%s)", orderID, contracts.ErrTerminalOrder, rec.Status)
	}

	// 아직 브로커에 도달하지 않은 주문은 로컬에서 종료
	if rec.BrokerOrderID == "" {
		if err := e.ledger.Transition(orderID, contracts.StatusCancelled, "cancelled before submission", time.Now()); err != nil {
			return err
		}
		e.auditStatus(orderID, contracts.StatusCancelled, "cancelled before submission")
		return nil
	}

	if err := e.broker.Cancel(ctx, rec.BrokerOrderID); err != nil {
		return fmt.Errorf("cancel order %s at broker: %w", orderID, err)
	}

	if err := e.ledger.Transition(orderID, contracts.StatusCancelled, "cancelled by request", time.Now()); err != nil {
		return err
	}
	e.auditStatus(orderID, contracts.StatusCancelled, "cancelled by request")

	return nil
}

// ModifyOrder applies quantity or price changes to a working order
func (e *Engine) ModifyOrder(ctx context.Context, orderID string, changes contracts.OrderChanges) error {
	if changes.Empty() {
		return &contracts.ValidationError{Reason: "modification changes nothing"}
	}

	rec, err := e.ledger.Get(orderID)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("modify order %s: %w (%s)", orderID, contracts.ErrTerminalOrder, rec.Status)
	}

	if changes.Quantity != nil {
		if *changes.Quantity <= 0 {
			return &contracts.ValidationError{Reason: "modified quantity must be positive"}
		}
		if *changes.Quantity < rec.FilledQuantity {
			return &contracts.ValidationError{
				Reason: fmt.Sprintf("modified quantity %d below already filled %d", *changes.Quantity, rec.FilledQuantity),
			}
		}
	}
	if changes.Price != nil && *changes.Price <= 0 {
		return &contracts.ValidationError{Reason: "modified price must be positive"}
	}
	if changes.TriggerPrice != nil && *changes.TriggerPrice <= 0 {
		return &contracts.ValidationError{Reason: "modified trigger price must be positive"}
	}

	if rec.BrokerOrderID != "" {
		if err := e.broker.Modify(ctx, rec.BrokerOrderID, changes); err != nil {
			return fmt.Errorf("modify order %s at broker: %w", orderID, err)
		}
	}

	if err := e.ledger.Update(orderID, func(r *ledger.Record) error {
		if changes.Quantity != nil {
			r.Order.Quantity = *changes.Quantity
		}
		if changes.Price != nil {
			r.Order.Price = *changes.Price
		}
		if changes.TriggerPrice != nil {
			r.Order.TriggerPrice = *changes.TriggerPrice
		}
		r.UpdatedAt = time.Now()
		return nil
	}); err != nil {
		return err
	}

	details := map[string]interface{}{"action": "modify"}
	if changes.Quantity != nil {
		details["quantity"] = *changes.Quantity
	}
	if changes.Price != nil {
		details["price"] = *changes.Price
	}
	if changes.TriggerPrice != nil {
		details["trigger_price"] = *changes.TriggerPrice
	}
	e.trail.Append(contracts.AuditStatusUpdate, orderID, details)

	return nil
}

// Order returns the ledger record for one order
func (e *Engine) Order(orderID string) (ledger.Record, error) {
	return e.ledger.Get(orderID)
}

// Orders returns ledger records, optionally filtered by status
func (e *Engine) Orders(status contracts.Status) []ledger.Record {
	if status == "" {
		return e.ledger.List(nil)
	}
	return e.ledger.ByStatus(status)
}

// ActiveOrders returns non-terminal ledger records
func (e *Engine) ActiveOrders() []ledger.Record {
	return e.ledger.Active()
}

// Position returns the tracked position for an instrument, enriched
// with unrealized P&L when a mark price is cached.
func (e *Engine) Position(ctx context.Context, instrument string) (contracts.Position, bool) {
	p, ok := e.book.Get(instrument)
	if !ok {
		return contracts.Position{}, false
	}
	e.enrich(ctx, &p)
	return p, true
}

// Positions returns every tracked position in instrument order
func (e *Engine) Positions(ctx context.Context) []contracts.Position {
	out := e.book.All()
	for i := range out {
		e.enrich(ctx, &out[i])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

func (e *Engine) enrich(ctx context.Context, p *contracts.Position) {
	if e.marks == nil || p.NetQuantity == 0 {
		return
	}
	if mark, ok, err := e.marks.Get(ctx, p.Instrument); err == nil && ok {
		p.UnrealizedPnL = (mark - p.AveragePrice) * float64(p.NetQuantity)
	}
}

// Reconcile compares every internal position against the broker's view
// and records the outcome in the audit trail.
func (e *Engine) Reconcile(ctx context.Context) ([]contracts.ReconcileResult, error) {
	snapshots, err := e.broker.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch broker positions: %w", err)
	}

	brokerSide := make(map[string]contracts.PositionSnapshot, len(snapshots))
	for _, s := range snapshots {
		brokerSide[s.Instrument] = s
	}

	seen := make(map[string]bool)
	now := time.Now()
	results := make([]contracts.ReconcileResult, 0, len(snapshots))

	for _, p := range e.book.All() {
		seen[p.Instrument] = true
		results = append(results, e.compare(p, brokerSide[p.Instrument], now))
	}

	// Broker-only positions the engine never traded
	for _, s := range snapshots {
		if seen[s.Instrument] {
			continue
		}
		results = append(results, e.compare(contracts.Position{Instrument: s.Instrument}, s, now))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Instrument < results[j].Instrument
	})

	for _, r := range results {
		e.trail.Append(contracts.AuditReconciliation, "", map[string]interface{}{
			"instrument":      r.Instrument,
			"match":           r.Match,
			"mismatch_fields": r.MismatchFields,
			"internal_qty":    r.InternalQty,
			"broker_qty":      r.BrokerQty,
		})
		if !r.Match {
			e.logger.WithFields(map[string]interface{}{
				"instrument":   r.Instrument,
				"internal_qty": r.InternalQty,
				"broker_qty":   r.BrokerQty,
				"fields":       r.MismatchFields,
			}).Warn("Position mismatch against broker")
		}
	}

	return results, nil
}

// ReconcileInstrument checks one instrument against an externally
// supplied snapshot, without calling the broker.
func (e *Engine) ReconcileInstrument(instrument string, snap contracts.PositionSnapshot) contracts.ReconcileResult {
	p, ok := e.book.Get(instrument)
	if !ok {
		p = contracts.Position{Instrument: instrument}
	}
	snap.Instrument = instrument

	result := e.compare(p, snap, time.Now())

	e.trail.Append(contracts.AuditReconciliation, "", map[string]interface{}{
		"instrument":      result.Instrument,
		"match":           result.Match,
		"mismatch_fields": result.MismatchFields,
		"internal_qty":    result.InternalQty,
		"broker_qty":      result.BrokerQty,
	})

	return result
}

func (e *Engine) compare(p contracts.Position, s contracts.PositionSnapshot, at time.Time) contracts.ReconcileResult {
	r := contracts.ReconcileResult{
		Instrument:  p.Instrument,
		InternalQty: p.NetQuantity,
		BrokerQty:   s.NetQuantity,
		InternalAvg: p.AveragePrice,
		BrokerAvg:   s.AveragePrice,
		CheckedAt:   at,
	}
	if p.Instrument == "" {
		r.Instrument = s.Instrument
	}

	if r.InternalQty != r.BrokerQty {
		r.MismatchFields = append(r.MismatchFields, "net_quantity")
	}
	// 평단 비교는 열린 포지션에서만 의미 있음
	if r.InternalQty == r.BrokerQty && r.InternalQty != 0 && r.InternalAvg != r.BrokerAvg {
		r.MismatchFields = append(r.MismatchFields, "average_price")
	}

	r.Match = len(r.MismatchFields) == 0
	return r
}

// Report returns the execution report for one order
func (e *Engine) Report(orderID string) (contracts.ExecutionReport, error) {
	return e.reporter.ExecutionReport(orderID)
}

// Statistics aggregates execution statistics over an optional window
func (e *Engine) Statistics(start, end *time.Time) audit.Summary {
	return e.reporter.Summary(start, end)
}

// Export writes summary and audit trail to a JSON file
func (e *Engine) Export(path string, start, end *time.Time) error {
	return e.reporter.Export(path, start, end)
}

// AuditTrail returns matching audit entries in sequence order
func (e *Engine) AuditTrail(f audit.Filter) []contracts.AuditEntry {
	return e.trail.Entries(f)
}

// Subscribe registers an event handler and returns its subscription ID
func (e *Engine) Subscribe(t contracts.EventType, h events.Handler) int {
	return e.events.Register(t, h)
}

// Unsubscribe removes an event handler
func (e *Engine) Unsubscribe(t contracts.EventType, subID int) bool {
	return e.events.Unregister(t, subID)
}

// Trail exposes the audit trail for persistence and reporting surfaces
func (e *Engine) Trail() *audit.Trail {
	return e.trail
}

// Ledger exposes the order ledger for read-side consumers
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Events exposes the dispatcher for handler wiring at startup
func (e *Engine) Events() *events.Dispatcher {
	return e.events
}

// PollOnce runs one monitor cycle immediately, used by the scheduler
// and tests.
func (e *Engine) PollOnce(ctx context.Context) {
	e.monitor.Poll(ctx)
}

// ApplyPush feeds a pushed broker snapshot through the same stale-check
// and fill path as polling. Replays and poll/push races dedupe here.
func (e *Engine) ApplyPush(orderID string, snap contracts.StatusSnapshot) error {
	return e.monitor.ApplySnapshot(orderID, snap)
}

func (e *Engine) auditStatus(orderID string, status contracts.Status, reason string) {
	e.trail.Append(contracts.AuditStatusUpdate, orderID, map[string]interface{}{
		"status": status,
		"reason": reason,
	})
	e.events.Publish(contracts.StatusUpdateEvent{
		OrderID:   orderID,
		Status:    status,
		Message:   reason,
		Timestamp: time.Now(),
	})
}
