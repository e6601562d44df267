package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

func testOrder(qty int64) contracts.Order {
	return contracts.Order{
		ID:         "ORD-1",
		Instrument: "RELIANCE",
		Side:       contracts.SideBuy,
		Quantity:   qty,
		Kind:       contracts.KindMarket,
		CreatedAt:  time.Now(),
	}
}

func TestGateway_SubmitAssignsSequentialIDs(t *testing.T) {
	g := New()
	ctx := context.Background()

	first, err := g.Submit(ctx, testOrder(10))
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.Submit(ctx, testOrder(10))
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Errorf("broker IDs must be unique, got %s twice", first)
	}
}

func TestGateway_PollRevealsOneStepPerCall(t *testing.T) {
	g := New()
	ctx := context.Background()

	g.PlanFills(Step{Quantity: 60, Price: 1500}, Step{Quantity: 40, Price: 1510})
	id, err := g.Submit(ctx, testOrder(100))
	if err != nil {
		t.Fatal(err)
	}

	snap, err := g.PollStatus(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != contracts.StatusOpen {
		t.Errorf("status after first poll = %s, want OPEN", snap.Status)
	}
	if snap.FilledQuantity != 60 {
		t.Errorf("filled after first poll = %d, want 60", snap.FilledQuantity)
	}

	snap, err = g.PollStatus(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != contracts.StatusComplete {
		t.Errorf("status after second poll = %s, want COMPLETE", snap.Status)
	}
	if snap.FilledQuantity != 100 {
		t.Errorf("filled after second poll = %d, want 100", snap.FilledQuantity)
	}
	if snap.AveragePrice != 1504 {
		t.Errorf("average price = %v, want 1504", snap.AveragePrice)
	}
	if len(snap.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(snap.Fills))
	}
	if snap.Fills[0].FillID == snap.Fills[1].FillID {
		t.Error("fill IDs must be distinct")
	}

	// Repeated polls are stable; the same fill IDs come back
	again, err := g.PollStatus(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if again.Fills[0].FillID != snap.Fills[0].FillID {
		t.Error("fill IDs must be deterministic across polls")
	}
}

func TestGateway_FailSubmissions(t *testing.T) {
	g := New()
	ctx := context.Background()

	g.FailSubmissions(2)

	if _, err := g.Submit(ctx, testOrder(10)); err == nil {
		t.Fatal("first submit should fail")
	}
	if _, err := g.Submit(ctx, testOrder(10)); err == nil {
		t.Fatal("second submit should fail")
	}
	if _, err := g.Submit(ctx, testOrder(10)); err != nil {
		t.Fatalf("third submit should succeed, got %v", err)
	}
}

func TestGateway_RejectNext(t *testing.T) {
	g := New()
	ctx := context.Background()

	g.RejectNext("insufficient margin")

	_, err := g.Submit(ctx, testOrder(10))
	var rejection *contracts.ExchangeRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected ExchangeRejection, got %v", err)
	}
	if rejection.Reason != "insufficient margin" {
		t.Errorf("reason = %q", rejection.Reason)
	}

	// Rejection is one-shot
	if _, err := g.Submit(ctx, testOrder(10)); err != nil {
		t.Fatalf("rejection must not persist, got %v", err)
	}
}

func TestGateway_CancelStopsFills(t *testing.T) {
	g := New()
	ctx := context.Background()

	g.PlanFills(Step{Quantity: 50, Price: 100}, Step{Quantity: 50, Price: 100})
	id, err := g.Submit(ctx, testOrder(100))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := g.PollStatus(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := g.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	snap, err := g.PollStatus(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != contracts.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", snap.Status)
	}
	if snap.FilledQuantity != 50 {
		t.Errorf("filled after cancel = %d, want 50 (partial kept)", snap.FilledQuantity)
	}
}

func TestGateway_CancelCompleteOrderFails(t *testing.T) {
	g := New()
	ctx := context.Background()

	g.PlanFills(Step{Quantity: 10, Price: 100})
	id, _ := g.Submit(ctx, testOrder(10))
	if _, err := g.PollStatus(ctx, id); err != nil {
		t.Fatal(err)
	}

	if err := g.Cancel(ctx, id); err == nil {
		t.Fatal("cancelling a fully filled order must fail")
	}
}

func TestGateway_Modify(t *testing.T) {
	g := New()
	ctx := context.Background()

	order := testOrder(100)
	order.Kind = contracts.KindLimit
	order.Price = 1500
	id, err := g.Submit(ctx, order)
	if err != nil {
		t.Fatal(err)
	}

	newQty := int64(80)
	newPrice := 1490.0
	err = g.Modify(ctx, id, contracts.OrderChanges{Quantity: &newQty, Price: &newPrice})
	if err != nil {
		t.Fatalf("Modify failed: %v", err)
	}

	if err := g.Modify(ctx, "SIM-999999", contracts.OrderChanges{Quantity: &newQty}); err == nil {
		t.Error("modifying an unknown order must fail")
	}
}

func TestGateway_Positions(t *testing.T) {
	g := New()
	ctx := context.Background()

	g.SetPosition(contracts.PositionSnapshot{Instrument: "TCS", NetQuantity: 100, AveragePrice: 3500})

	positions, err := g.Positions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Instrument != "TCS" {
		t.Errorf("positions = %+v", positions)
	}
}
