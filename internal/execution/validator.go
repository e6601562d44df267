package execution

import (
	"context"
	"fmt"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
	"github.com/gtrdotmcs/auto-trade/pkg/redis"
)

// Validator checks orders before they are accepted into the ledger
// ⭐ SSOT: 주문 사전 검증은 여기서만
//
// A failed validation is final: the order is rejected before submission
// and never retried. Trigger prices for stop orders are additionally
// checked against the cached mark price when one is available.
type Validator struct {
	marks  *redis.MarkCache
	logger *logger.Logger
}

// NewValidator creates a validator. marks may be nil when no mark-price
// cache is configured; trigger-versus-market checks are then skipped.
func NewValidator(marks *redis.MarkCache, log *logger.Logger) *Validator {
	return &Validator{
		marks:  marks,
		logger: log,
	}
}

// Validate returns a *contracts.ValidationError describing the first
// rule the order breaks, or nil when the order is acceptable.
func (v *Validator) Validate(ctx context.Context, order contracts.Order) error {
	if order.Instrument == "" {
		return &contracts.ValidationError{Reason: "instrument is required"}
	}

	if order.Quantity <= 0 {
		return &contracts.ValidationError{Reason: fmt.Sprintf("quantity must be positive, got %d", order.Quantity)}
	}

	if order.Side != contracts.SideBuy && order.Side != contracts.SideSell {
		return &contracts.ValidationError{Reason: fmt.Sprintf("unknown side %q", order.Side)}
	}

	switch order.Kind {
	case contracts.KindMarket, contracts.KindLimit, contracts.KindStop, contracts.KindStopLimit:
	default:
		return &contracts.ValidationError{Reason: fmt.Sprintf("unknown order kind %q", order.Kind)}
	}

	if order.Kind.RequiresPrice() && order.Price <= 0 {
		return &contracts.ValidationError{Reason: fmt.Sprintf("%s order requires a positive limit price", order.Kind)}
	}
	if !order.Kind.RequiresPrice() && order.Price != 0 {
		return &contracts.ValidationError{Reason: fmt.Sprintf("%s order must not carry a limit price", order.Kind)}
	}

	if order.Kind.RequiresTrigger() && order.TriggerPrice <= 0 {
		return &contracts.ValidationError{Reason: fmt.Sprintf("%s order requires a positive trigger price", order.Kind)}
	}
	if !order.Kind.RequiresTrigger() && order.TriggerPrice != 0 {
		return &contracts.ValidationError{Reason: fmt.Sprintf("%s order must not carry a trigger price", order.Kind)}
	}

	if order.Kind.RequiresTrigger() && v.marks != nil {
		if err := v.validateTrigger(ctx, order); err != nil {
			return err
		}
	}

	return nil
}

// validateTrigger rejects stop orders whose trigger would fire
// immediately: a BUY stop must trigger above the current mark, a SELL
// stop below it.
func (v *Validator) validateTrigger(ctx context.Context, order contracts.Order) error {
	mark, ok, err := v.marks.Get(ctx, order.Instrument)
	if err != nil {
		// 시세 캐시 장애는 검증을 막지 않음
		v.logger.WithError(err).WithField("instrument", order.Instrument).Warn("Mark lookup failed; skipping trigger check")
		return nil
	}
	if !ok {
		return nil
	}

	if order.Side == contracts.SideBuy && order.TriggerPrice < mark {
		return &contracts.ValidationError{
			Reason: fmt.Sprintf("BUY trigger %.2f below current mark %.2f", order.TriggerPrice, mark),
		}
	}
	if order.Side == contracts.SideSell && order.TriggerPrice > mark {
		return &contracts.ValidationError{
			Reason: fmt.Sprintf("SELL trigger %.2f above current mark %.2f", order.TriggerPrice, mark),
		}
	}

	return nil
}
