package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

func testOrder(id string) contracts.Order {
	return contracts.Order{
		ID:         id,
		Instrument: "RELIANCE",
		Side:       contracts.SideBuy,
		Quantity:   100,
		Kind:       contracts.KindMarket,
		CreatedAt:  time.Now(),
	}
}

func TestLedger_CreateAndGet(t *testing.T) {
	l := New()
	now := time.Now()

	if err := l.Create(testOrder("ORD-1"), now); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec, err := l.Get("ORD-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if rec.Status != contracts.StatusPending {
		t.Errorf("new record status = %s, want PENDING", rec.Status)
	}
	if len(rec.History) != 1 {
		t.Errorf("history length = %d, want 1", len(rec.History))
	}

	// Duplicate IDs are rejected
	if err := l.Create(testOrder("ORD-1"), now); !errors.Is(err, contracts.ErrDuplicateOrder) {
		t.Errorf("duplicate Create error = %v, want ErrDuplicateOrder", err)
	}

	if _, err := l.Get("ORD-missing"); !errors.Is(err, contracts.ErrOrderNotFound) {
		t.Errorf("Get missing error = %v, want ErrOrderNotFound", err)
	}
}

func TestLedger_GetReturnsCopy(t *testing.T) {
	l := New()
	now := time.Now()
	if err := l.Create(testOrder("ORD-1"), now); err != nil {
		t.Fatal(err)
	}

	rec, _ := l.Get("ORD-1")
	rec.Fills = append(rec.Fills, contracts.Fill{FillID: "F1", Quantity: 10})
	rec.Status = contracts.StatusComplete

	fresh, _ := l.Get("ORD-1")
	if len(fresh.Fills) != 0 {
		t.Error("mutating a returned record must not leak into the ledger")
	}
	if fresh.Status != contracts.StatusPending {
		t.Error("mutating a returned record status must not leak into the ledger")
	}
}

func TestLedger_Transition(t *testing.T) {
	l := New()
	now := time.Now()
	if err := l.Create(testOrder("ORD-1"), now); err != nil {
		t.Fatal(err)
	}

	if err := l.Transition("ORD-1", contracts.StatusOpen, "broker ack", now); err != nil {
		t.Fatalf("PENDING -> OPEN failed: %v", err)
	}
	if err := l.Transition("ORD-1", contracts.StatusComplete, "fully filled", now); err != nil {
		t.Fatalf("OPEN -> COMPLETE failed: %v", err)
	}

	// Terminal orders reject further transitions with an explicit error
	err := l.Transition("ORD-1", contracts.StatusCancelled, "cancel", now)
	if !errors.Is(err, contracts.ErrTerminalOrder) {
		t.Errorf("transition from terminal = %v, want ErrTerminalOrder", err)
	}

	rec, _ := l.Get("ORD-1")
	if rec.Status != contracts.StatusComplete {
		t.Errorf("status after rejected transition = %s, want COMPLETE", rec.Status)
	}
	if len(rec.History) != 3 {
		t.Errorf("history length = %d, want 3", len(rec.History))
	}
}

func TestLedger_TransitionSameStatusIsNoop(t *testing.T) {
	l := New()
	now := time.Now()
	if err := l.Create(testOrder("ORD-1"), now); err != nil {
		t.Fatal(err)
	}

	if err := l.Transition("ORD-1", contracts.StatusPending, "again", now); err != nil {
		t.Fatalf("same-status transition should be a no-op, got %v", err)
	}

	rec, _ := l.Get("ORD-1")
	if len(rec.History) != 1 {
		t.Errorf("no-op transition must not append history, got %d entries", len(rec.History))
	}
}

func TestLedger_ByStatusAndActive(t *testing.T) {
	l := New()
	now := time.Now()

	for _, id := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		if err := l.Create(testOrder(id), now); err != nil {
			t.Fatal(err)
		}
	}

	if err := l.Transition("ORD-2", contracts.StatusOpen, "", now); err != nil {
		t.Fatal(err)
	}
	if err := l.Transition("ORD-3", contracts.StatusRejected, "exchange reject", now); err != nil {
		t.Fatal(err)
	}

	if got := len(l.ByStatus(contracts.StatusPending)); got != 1 {
		t.Errorf("pending count = %d, want 1", got)
	}
	if got := len(l.ByStatus(contracts.StatusOpen)); got != 1 {
		t.Errorf("open count = %d, want 1", got)
	}

	active := l.Active()
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	// Insertion order is preserved
	if active[0].Order.ID != "ORD-1" || active[1].Order.ID != "ORD-2" {
		t.Errorf("active listing out of insertion order: %s, %s", active[0].Order.ID, active[1].Order.ID)
	}
}

func TestLedger_ConcurrentUpdates(t *testing.T) {
	l := New()
	now := time.Now()
	if err := l.Create(testOrder("ORD-1"), now); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Update("ORD-1", func(r *Record) error {
				r.RetryCount++
				return nil
			})
		}()
	}
	wg.Wait()

	rec, _ := l.Get("ORD-1")
	if rec.RetryCount != 50 {
		t.Errorf("retry count = %d, want 50", rec.RetryCount)
	}
}
