package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

func validOrder() contracts.Order {
	return contracts.Order{
		ID:         "ORD-1",
		Instrument: "INFY",
		Side:       contracts.SideBuy,
		Quantity:   100,
		Kind:       contracts.KindMarket,
		CreatedAt:  time.Now(),
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator(nil, logger.NewNop())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*contracts.Order)
		ok     bool
	}{
		{"valid market", func(o *contracts.Order) {}, true},
		{"missing instrument", func(o *contracts.Order) { o.Instrument = "" }, false},
		{"zero quantity", func(o *contracts.Order) { o.Quantity = 0 }, false},
		{"negative quantity", func(o *contracts.Order) { o.Quantity = -5 }, false},
		{"unknown side", func(o *contracts.Order) { o.Side = "HOLD" }, false},
		{"unknown kind", func(o *contracts.Order) { o.Kind = "ICEBERG" }, false},
		{"limit without price", func(o *contracts.Order) { o.Kind = contracts.KindLimit }, false},
		{"limit with price", func(o *contracts.Order) { o.Kind = contracts.KindLimit; o.Price = 1500 }, true},
		{"market with price", func(o *contracts.Order) { o.Price = 1500 }, false},
		{"stop without trigger", func(o *contracts.Order) { o.Kind = contracts.KindStop }, false},
		{"stop with trigger", func(o *contracts.Order) { o.Kind = contracts.KindStop; o.TriggerPrice = 1600 }, true},
		{"market with trigger", func(o *contracts.Order) { o.TriggerPrice = 1600 }, false},
		{
			"stop limit complete",
			func(o *contracts.Order) {
				o.Kind = contracts.KindStopLimit
				o.Price = 1605
				o.TriggerPrice = 1600
			},
			true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := validOrder()
			tc.mutate(&order)

			err := v.Validate(ctx, order)
			if tc.ok && err != nil {
				t.Errorf("unexpected rejection: %v", err)
			}
			if !tc.ok {
				var verr *contracts.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("want ValidationError, got %v", err)
				}
			}
		})
	}
}
