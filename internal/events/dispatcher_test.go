package events

import (
	"sync"
	"testing"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := NewSyncDispatcher(logger.NewNop())

	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		d.Register(contracts.EventFill, func(contracts.Event) {
			got = append(got, i)
		})
	}

	d.Publish(contracts.FillEvent{})

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("handlers ran in order %v, want [1 2 3]", got)
	}
}

func TestDispatcher_PanicIsolated(t *testing.T) {
	d := NewSyncDispatcher(logger.NewNop())

	var after bool
	d.Register(contracts.EventStatusUpdate, func(contracts.Event) {
		panic("listener bug")
	})
	d.Register(contracts.EventStatusUpdate, func(contracts.Event) {
		after = true
	})

	d.Publish(contracts.StatusUpdateEvent{OrderID: "ORD-1"})

	if !after {
		t.Error("a panicking handler must not prevent subsequent handlers")
	}
}

func TestDispatcher_OnlyMatchingTypeDelivered(t *testing.T) {
	d := NewSyncDispatcher(logger.NewNop())

	var fills, positions int
	d.Register(contracts.EventFill, func(contracts.Event) { fills++ })
	d.Register(contracts.EventPositionUpdate, func(contracts.Event) { positions++ })

	d.Publish(contracts.FillEvent{})
	d.Publish(contracts.FillEvent{})
	d.Publish(contracts.PositionUpdateEvent{})

	if fills != 2 {
		t.Errorf("fill handler invoked %d times, want 2", fills)
	}
	if positions != 1 {
		t.Errorf("position handler invoked %d times, want 1", positions)
	}
}

func TestDispatcher_Unregister(t *testing.T) {
	d := NewSyncDispatcher(logger.NewNop())

	var calls int
	id := d.Register(contracts.EventFill, func(contracts.Event) { calls++ })

	d.Publish(contracts.FillEvent{})

	if !d.Unregister(contracts.EventFill, id) {
		t.Fatal("Unregister returned false for a live subscription")
	}
	if d.Unregister(contracts.EventFill, id) {
		t.Error("second Unregister should return false")
	}

	d.Publish(contracts.FillEvent{})

	if calls != 1 {
		t.Errorf("handler invoked %d times, want 1", calls)
	}
}

func TestDispatcher_QueuedDelivery(t *testing.T) {
	d := NewDispatcher(logger.NewNop(), 16)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	d.Register(contracts.EventStatusUpdate, func(ev contracts.Event) {
		su := ev.(contracts.StatusUpdateEvent)
		mu.Lock()
		got = append(got, su.OrderID)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	d.Start()
	defer d.Stop()

	for _, id := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		d.Publish(contracts.StatusUpdateEvent{OrderID: id})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued events were not delivered in time")
	}

	mu.Lock()
	defer mu.Unlock()
	// FIFO delivery through the queue
	if got[0] != "ORD-1" || got[1] != "ORD-2" || got[2] != "ORD-3" {
		t.Errorf("delivery order %v, want FIFO", got)
	}
}

func TestDispatcher_StopDrainsBufferedEvents(t *testing.T) {
	d := NewDispatcher(logger.NewNop(), 16)

	var mu sync.Mutex
	var count int
	d.Register(contracts.EventFill, func(contracts.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		d.Publish(contracts.FillEvent{})
	}

	d.Start()
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("delivered %d events before stop, want 5", count)
	}
}
