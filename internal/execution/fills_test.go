package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/audit"
	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/events"
	"github.com/gtrdotmcs/auto-trade/internal/ledger"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

type fillFixture struct {
	ledger *ledger.Ledger
	book   *PositionBook
	trail  *audit.Trail
	events *events.Dispatcher
	proc   *FillProcessor
}

func newFillFixture(t *testing.T) *fillFixture {
	t.Helper()
	log := logger.NewNop()
	l := ledger.New()
	trail := audit.NewTrail()
	d := events.NewSyncDispatcher(log)
	book := NewPositionBook()
	reporter := audit.NewReporter(l, trail, log)
	return &fillFixture{
		ledger: l,
		book:   book,
		trail:  trail,
		events: d,
		proc:   NewFillProcessor(l, book, trail, reporter, d, log),
	}
}

func (f *fillFixture) openOrder(t *testing.T, id string, side contracts.Side, qty int64) {
	t.Helper()
	now := time.Now()
	order := contracts.Order{ID: id, Instrument: "INFY", Side: side, Quantity: qty, Kind: contracts.KindMarket, CreatedAt: now}
	if err := f.ledger.Create(order, now); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.Update(id, func(r *ledger.Record) error {
		r.BrokerOrderID = "BRK-" + id
		return r.Transition(contracts.StatusOpen, "accepted", now)
	}); err != nil {
		t.Fatal(err)
	}
}

// pendingOrder ledgers an order that has not yet been acknowledged,
// as when a pushed fill notice beats the submit response.
func (f *fillFixture) pendingOrder(t *testing.T, id string, side contracts.Side, qty int64) {
	t.Helper()
	now := time.Now()
	order := contracts.Order{ID: id, Instrument: "INFY", Side: side, Quantity: qty, Kind: contracts.KindMarket, CreatedAt: now}
	if err := f.ledger.Create(order, now); err != nil {
		t.Fatal(err)
	}
}

func fill(orderID, fillID string, qty int64, price float64) contracts.Fill {
	return contracts.Fill{
		OrderID:       orderID,
		BrokerOrderID: "BRK-" + orderID,
		FillID:        fillID,
		Quantity:      qty,
		Price:         price,
		Timestamp:     time.Now(),
	}
}

func TestFillProcessor_PartialFillsToCompletion(t *testing.T) {
	f := newFillFixture(t)
	f.openOrder(t, "ORD-1", contracts.SideBuy, 100)

	var completed []contracts.ExecutionReport
	f.events.Register(contracts.EventExecutionComplete, func(ev contracts.Event) {
		completed = append(completed, ev.(contracts.ExecutionCompleteEvent).Report)
	})

	if err := f.proc.Apply(fill("ORD-1", "F1", 60, 1500)); err != nil {
		t.Fatal(err)
	}

	rec, _ := f.ledger.Get("ORD-1")
	if rec.Status != contracts.StatusOpen {
		t.Errorf("status after partial = %s, want OPEN", rec.Status)
	}
	if rec.FilledQuantity != 60 || rec.AverageFillPrice != 1500 {
		t.Errorf("after partial: filled=%d avg=%v", rec.FilledQuantity, rec.AverageFillPrice)
	}
	if rec.FirstFillAt == nil {
		t.Error("FirstFillAt not set on first fill")
	}

	if err := f.proc.Apply(fill("ORD-1", "F2", 40, 1510)); err != nil {
		t.Fatal(err)
	}

	rec, _ = f.ledger.Get("ORD-1")
	if rec.Status != contracts.StatusComplete {
		t.Errorf("status = %s, want COMPLETE", rec.Status)
	}
	// VWAP: (60*1500 + 40*1510) / 100
	if rec.AverageFillPrice != 1504 {
		t.Errorf("average = %v, want 1504", rec.AverageFillPrice)
	}
	if rec.CompletedAt == nil {
		t.Error("CompletedAt not set on completion")
	}

	if len(completed) != 1 {
		t.Fatalf("completion events = %d, want 1", len(completed))
	}
	if completed[0].RemainingQuantity != 0 {
		t.Errorf("report remaining = %d, want 0", completed[0].RemainingQuantity)
	}
}

func TestFillProcessor_PartialFillOpensPendingOrder(t *testing.T) {
	f := newFillFixture(t)
	f.pendingOrder(t, "ORD-1", contracts.SideBuy, 100)

	if err := f.proc.Apply(fill("ORD-1", "F1", 60, 1500)); err != nil {
		t.Fatal(err)
	}

	rec, _ := f.ledger.Get("ORD-1")
	if rec.Status != contracts.StatusOpen {
		t.Errorf("status = %s, want OPEN (first fill acknowledges the order)", rec.Status)
	}
	if rec.FilledQuantity != 60 {
		t.Errorf("filled = %d, want 60", rec.FilledQuantity)
	}
	if pos, _ := f.book.Get("INFY"); pos.NetQuantity != 60 {
		t.Errorf("position = %d, want 60", pos.NetQuantity)
	}
}

func TestFillProcessor_FullFillCompletesPendingOrder(t *testing.T) {
	f := newFillFixture(t)
	f.pendingOrder(t, "ORD-1", contracts.SideBuy, 100)

	var completions int
	f.events.Register(contracts.EventExecutionComplete, func(contracts.Event) { completions++ })

	first := fill("ORD-1", "F1", 100, 1500)
	if err := f.proc.Apply(first); err != nil {
		t.Fatalf("fill on a pending order must apply, got %v", err)
	}

	rec, _ := f.ledger.Get("ORD-1")
	if rec.Status != contracts.StatusComplete {
		t.Errorf("status = %s, want COMPLETE", rec.Status)
	}
	if rec.FilledQuantity != 100 || rec.CompletedAt == nil {
		t.Errorf("filled=%d completedAt=%v", rec.FilledQuantity, rec.CompletedAt)
	}

	// The record passed through OPEN rather than jumping from PENDING
	var sawOpen bool
	for _, h := range rec.History {
		if h.Status == contracts.StatusOpen {
			sawOpen = true
		}
	}
	if !sawOpen {
		t.Error("status history missing OPEN between PENDING and COMPLETE")
	}

	if pos, ok := f.book.Get("INFY"); !ok || pos.NetQuantity != 100 {
		t.Errorf("position = %+v ok=%v, want net 100", pos, ok)
	}
	if completions != 1 {
		t.Errorf("completion events = %d, want 1", completions)
	}

	// Replay of the same notice stays a no-op
	if err := f.proc.Apply(first); err != nil {
		t.Fatalf("replay must be a no-op, got %v", err)
	}
	rec, _ = f.ledger.Get("ORD-1")
	if rec.FilledQuantity != 100 || len(rec.Fills) != 1 {
		t.Errorf("after replay: filled=%d fills=%d", rec.FilledQuantity, len(rec.Fills))
	}
}

func TestFillProcessor_DuplicateFillIgnored(t *testing.T) {
	f := newFillFixture(t)
	f.openOrder(t, "ORD-1", contracts.SideBuy, 100)

	var fillEvents int
	f.events.Register(contracts.EventFill, func(contracts.Event) { fillEvents++ })

	first := fill("ORD-1", "F1", 60, 1500)
	if err := f.proc.Apply(first); err != nil {
		t.Fatal(err)
	}
	if err := f.proc.Apply(first); err != nil {
		t.Fatalf("duplicate must be a no-op, got %v", err)
	}

	rec, _ := f.ledger.Get("ORD-1")
	if rec.FilledQuantity != 60 {
		t.Errorf("filled = %d, want 60 (duplicate not double-counted)", rec.FilledQuantity)
	}
	if pos, _ := f.book.Get("INFY"); pos.NetQuantity != 60 {
		t.Errorf("position = %d, want 60", pos.NetQuantity)
	}
	if fillEvents != 1 {
		t.Errorf("fill events = %d, want 1", fillEvents)
	}
}

func TestFillProcessor_OverfillRejected(t *testing.T) {
	f := newFillFixture(t)
	f.openOrder(t, "ORD-1", contracts.SideBuy, 100)

	if err := f.proc.Apply(fill("ORD-1", "F1", 80, 1500)); err != nil {
		t.Fatal(err)
	}

	err := f.proc.Apply(fill("ORD-1", "F2", 30, 1500))
	var violation *contracts.InvariantViolation
	if !errors.As(err, &violation) {
		t.Fatalf("want InvariantViolation, got %v", err)
	}

	rec, _ := f.ledger.Get("ORD-1")
	if rec.FilledQuantity != 80 {
		t.Errorf("filled = %d, want 80 (over-fill not applied)", rec.FilledQuantity)
	}
	if rec.ErrorMessage == "" {
		t.Error("record not marked with the violation detail")
	}

	// The anomaly is visible in the audit trail
	entries := f.trail.Entries(audit.Filter{OrderID: "ORD-1"})
	found := false
	for _, e := range entries {
		if _, ok := e.Details["anomaly"]; ok {
			found = true
		}
	}
	if !found {
		t.Error("invariant violation not surfaced in audit trail")
	}
}

func TestFillProcessor_UnknownOrder(t *testing.T) {
	f := newFillFixture(t)

	err := f.proc.Apply(fill("ORD-ghost", "F1", 10, 100))
	if !errors.Is(err, contracts.ErrOrderNotFound) {
		t.Fatalf("want ErrOrderNotFound, got %v", err)
	}
}

func TestFillProcessor_EventOrdering(t *testing.T) {
	f := newFillFixture(t)
	f.openOrder(t, "ORD-1", contracts.SideBuy, 50)

	var order []string
	f.events.Register(contracts.EventFill, func(contracts.Event) { order = append(order, "fill") })
	f.events.Register(contracts.EventExecutionComplete, func(contracts.Event) { order = append(order, "complete") })
	f.events.Register(contracts.EventPositionUpdate, func(contracts.Event) { order = append(order, "position") })

	if err := f.proc.Apply(fill("ORD-1", "F1", 50, 1000)); err != nil {
		t.Fatal(err)
	}

	want := []string{"fill", "complete", "position"}
	if len(order) < 3 || order[0] != want[0] || order[1] != want[1] || order[len(order)-1] != want[2] {
		t.Errorf("event order %v, want fill before completion before position", order)
	}
}

func TestFillProcessor_PositionClosedAuditEntry(t *testing.T) {
	f := newFillFixture(t)
	f.openOrder(t, "ORD-1", contracts.SideBuy, 100)
	f.openOrder(t, "ORD-2", contracts.SideSell, 100)

	if err := f.proc.Apply(fill("ORD-1", "F1", 100, 1500)); err != nil {
		t.Fatal(err)
	}
	if err := f.proc.Apply(fill("ORD-2", "F2", 100, 1600)); err != nil {
		t.Fatal(err)
	}

	entries := f.trail.Entries(audit.Filter{OrderID: "ORD-2"})
	var closed bool
	for _, e := range entries {
		if e.EventType == contracts.AuditReconciliation && e.Details["event"] == "position_closed" {
			closed = true
			if e.Details["realized_pnl"] != 10000.0 {
				t.Errorf("realized_pnl = %v, want 10000", e.Details["realized_pnl"])
			}
		}
	}
	if !closed {
		t.Error("no position_closed audit entry after going flat")
	}
}
