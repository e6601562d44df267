package execution

import (
	"context"
	"errors"
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

// ErrQueueFull is returned when the submission queue cannot accept more
// orders without blocking.
var ErrQueueFull = errors.New("submission queue full")

// Submitter drains the order queue and places orders with the broker
// ⭐ SSOT: 주문 제출은 여기서만
//
// Transient broker failures are retried with backoff up to the
// configured attempt bound; a definitive exchange rejection goes
// terminal immediately. Every attempt leaves an audit entry. Broker
// calls happen on the worker goroutine without any ledger lock held.
type Submitter struct {
	ledger *ledger.Ledger
	trail  *audit.Trail
	events *events.Dispatcher
	broker gateway.Broker
	logger *logger.Logger

	maxAttempts int
	backoff     BackoffPolicy
	timeout     time.Duration
	sleep       func(time.Duration) // injected in tests

	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSubmitter creates a submission worker. maxAttempts bounds the total
// number of broker submissions per order, including the first.
func NewSubmitter(l *ledger.Ledger, trail *audit.Trail, d *events.Dispatcher, broker gateway.Broker, log *logger.Logger, maxAttempts, queueSize int, timeout time.Duration) *Submitter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	return &Submitter{
		ledger:      l,
		trail:       trail,
		events:      d,
		broker:      broker,
		logger:      log,
		maxAttempts: maxAttempts,
		backoff:     ExponentialBackoff(500*time.Millisecond, 8*time.Second),
		timeout:     timeout,
		sleep:       time.Sleep,
		queue:       make(chan string, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Enqueue hands a ledgered PENDING order to the worker. Returns
// ErrQueueFull instead of blocking the caller.
func (s *Submitter) Enqueue(orderID string) error {
	select {
	case s.queue <- orderID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the worker goroutine
func (s *Submitter) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case orderID := <-s.queue:
				s.process(orderID)
			case <-s.stopCh:
				// Drain queued orders before exiting
				for {
					select {
					case orderID := <-s.queue:
						s.process(orderID)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop signals the worker and waits for queued submissions to finish
func (s *Submitter) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// process submits one order, retrying transient failures with backoff
func (s *Submitter) process(orderID string) {
	rec, err := s.ledger.Get(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Queued order missing from ledger")
		return
	}

	// 큐 대기 중 취소된 주문은 건너뜀
	if rec.Status != contracts.StatusPending {
		s.logger.WithFields(map[string]interface{}{
			"order_id": orderID,
			"status":   rec.Status,
		}).Debug("Skipping submission: order no longer pending")
		return
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		brokerID, err := s.broker.Submit(ctx, rec.Order)
		cancel()

		details := map[string]interface{}{
			"instrument": rec.Order.Instrument,
			"side":       rec.Order.Side,
			"quantity":   rec.Order.Quantity,
			"kind":       rec.Order.Kind,
			"attempt":    attempt,
		}

		if err == nil {
			details["broker_order_id"] = brokerID
			s.trail.Append(contracts.AuditOrderSubmitted, orderID, details)
			s.accept(orderID, brokerID)
			return
		}

		details["error"] = err.Error()
		s.trail.Append(contracts.AuditOrderSubmitted, orderID, details)

		var rejection *contracts.ExchangeRejection
		if errors.As(err, &rejection) {
			s.reject(orderID, rejection.Reason)
			return
		}

		uerr := s.ledger.Update(orderID, func(r *ledger.Record) error {
			r.RetryCount++
			r.ErrorMessage = err.Error()
			return nil
		})
		if uerr != nil {
			s.logger.WithError(uerr).WithField("order_id", orderID).Error("Failed to record submission retry")
		}

		s.logger.WithError(err).WithFields(map[string]interface{}{
			"order_id": orderID,
			"attempt":  attempt,
			"of":       s.maxAttempts,
		}).Warn("Order submission failed")

		if attempt < s.maxAttempts {
			s.sleep(s.backoff(attempt))
		}
	}

	s.fail(orderID, fmt.Sprintf("submission failed after %d attempts", s.maxAttempts))
}

func (s *Submitter) accept(orderID, brokerID string) {
	now := time.Now()
	err := s.ledger.Update(orderID, func(r *ledger.Record) error {
		r.BrokerOrderID = brokerID
		return r.Transition(contracts.StatusOpen, "accepted by broker", now)
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to mark order open")
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"order_id":        orderID,
		"broker_order_id": brokerID,
	}).Info("Order submitted")

	s.events.Publish(contracts.StatusUpdateEvent{
		OrderID:       orderID,
		BrokerOrderID: brokerID,
		Status:        contracts.StatusOpen,
		Timestamp:     now,
	})
}

func (s *Submitter) reject(orderID, reason string) {
	s.terminal(orderID, contracts.StatusRejected, reason)
}

func (s *Submitter) fail(orderID, reason string) {
	s.terminal(orderID, contracts.StatusFailed, reason)
}

func (s *Submitter) terminal(orderID string, status contracts.Status, reason string) {
	now := time.Now()
	err := s.ledger.Update(orderID, func(r *ledger.Record) error {
		r.ErrorMessage = reason
		return r.Transition(status, reason, now)
	})
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"order_id": orderID,
			"status":   status,
		}).Error("Failed to mark order terminal")
		return
	}

	s.trail.Append(contracts.AuditStatusUpdate, orderID, map[string]interface{}{
		"status": status,
		"reason": reason,
	})

	s.logger.WithFields(map[string]interface{}{
		"order_id": orderID,
		"status":   status,
		"reason":   reason,
	}).Warn("Order terminal without execution")

	s.events.Publish(contracts.StatusUpdateEvent{
		OrderID:   orderID,
		Status:    status,
		Message:   reason,
		Timestamp: now,
	})
}
