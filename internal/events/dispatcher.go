package events

import (
	"sync"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// Handler consumes one dispatched event
type Handler func(contracts.Event)

type registration struct {
	id      int
	handler Handler
}

// Dispatcher fans events out to registered handlers
// ⭐ SSOT: 이벤트 콜백 등록/전파는 여기서만
//
// Handlers per event type run in registration order. A panicking handler
// is recovered and logged; it never blocks subsequent handlers or leaks
// into ledger state. In queued mode events are buffered and delivered by
// a dedicated goroutine so slow listeners cannot stall the fill path;
// synchronous mode exists for deterministic tests.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[contracts.EventType][]registration
	nextID   int

	logger *logger.Logger

	queue  chan contracts.Event
	stopCh chan struct{}
	wg     sync.WaitGroup
	queued bool
}

// NewDispatcher creates a queued dispatcher; call Start to begin delivery
func NewDispatcher(log *logger.Logger, queueSize int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		handlers: make(map[contracts.EventType][]registration),
		logger:   log,
		queue:    make(chan contracts.Event, queueSize),
		stopCh:   make(chan struct{}),
		queued:   true,
	}
}

// NewSyncDispatcher creates a dispatcher that delivers on the publishing
// goroutine. Intended for tests.
func NewSyncDispatcher(log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[contracts.EventType][]registration),
		logger:   log,
	}
}

// Register adds a handler for an event type and returns a subscription
// ID for Unregister.
func (d *Dispatcher) Register(t contracts.EventType, h Handler) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.handlers[t] = append(d.handlers[t], registration{id: d.nextID, handler: h})

	return d.nextID
}

// Unregister removes a previously registered handler
func (d *Dispatcher) Unregister(t contracts.EventType, id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.handlers[t]
	for i, reg := range regs {
		if reg.id == id {
			d.handlers[t] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish hands an event to the dispatcher. In queued mode this blocks
// only when the buffer is full, applying backpressure instead of
// dropping events.
func (d *Dispatcher) Publish(ev contracts.Event) {
	if !d.queued {
		d.deliver(ev)
		return
	}

	select {
	case d.queue <- ev:
	case <-d.stopCh:
		d.logger.WithField("event_type", ev.Type()).Warn("Event dropped: dispatcher stopped")
	}
}

// Start launches the delivery goroutine for a queued dispatcher
func (d *Dispatcher) Start() {
	if !d.queued {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case ev := <-d.queue:
				d.deliver(ev)
			case <-d.stopCh:
				// Drain whatever is already buffered, then exit
				for {
					select {
					case ev := <-d.queue:
						d.deliver(ev)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop signals the delivery goroutine and waits for buffered events to
// finish delivering.
func (d *Dispatcher) Stop() {
	if !d.queued {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
}

// deliver invokes all handlers for the event's type in registration
// order, isolating panics.
func (d *Dispatcher) deliver(ev contracts.Event) {
	d.mu.RLock()
	regs := make([]registration, len(d.handlers[ev.Type()]))
	copy(regs, d.handlers[ev.Type()])
	d.mu.RUnlock()

	for _, reg := range regs {
		d.invoke(reg, ev)
	}
}

func (d *Dispatcher) invoke(reg registration, ev contracts.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(map[string]interface{}{
				"event_type":   ev.Type(),
				"subscription": reg.id,
				"panic":        r,
			}).Error("Event handler panicked")
		}
	}()

	reg.handler(ev)
}
