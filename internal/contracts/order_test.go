package contracts

import (
	"testing"
)

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{StatusComplete, StatusCancelled, StatusRejected, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []Status{StatusPending, StatusOpen} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusOpen, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusComplete, false},
		{StatusOpen, StatusComplete, true},
		{StatusOpen, StatusCancelled, true},
		{StatusOpen, StatusRejected, true},
		{StatusOpen, StatusPending, false},
		{StatusOpen, StatusFailed, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

// Once terminal, always terminal: no transition may originate from a
// terminal state.
func TestStatus_TerminalAcceptsNothing(t *testing.T) {
	all := []Status{StatusPending, StatusOpen, StatusComplete, StatusCancelled, StatusRejected, StatusFailed}

	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				t.Errorf("terminal state %s must not transition to %s", from, to)
			}
		}
	}
}

func TestStatus_Rank_Monotone(t *testing.T) {
	if StatusPending.Rank() >= StatusOpen.Rank() {
		t.Error("PENDING must rank below OPEN")
	}
	for _, s := range []Status{StatusComplete, StatusCancelled, StatusRejected, StatusFailed} {
		if s.Rank() <= StatusOpen.Rank() {
			t.Errorf("terminal %s must rank above OPEN", s)
		}
	}
}

func TestSide_Sign(t *testing.T) {
	if SideBuy.Sign() != 1 {
		t.Errorf("BUY sign = %d, want 1", SideBuy.Sign())
	}
	if SideSell.Sign() != -1 {
		t.Errorf("SELL sign = %d, want -1", SideSell.Sign())
	}
}

func TestKind_PriceRequirements(t *testing.T) {
	if !KindLimit.RequiresPrice() || !KindStopLimit.RequiresPrice() {
		t.Error("LIMIT and STOP_LIMIT require a price")
	}
	if KindMarket.RequiresPrice() || KindStop.RequiresPrice() {
		t.Error("MARKET and STOP do not require a price")
	}
	if !KindStop.RequiresTrigger() || !KindStopLimit.RequiresTrigger() {
		t.Error("STOP kinds require a trigger price")
	}
	if KindMarket.RequiresTrigger() || KindLimit.RequiresTrigger() {
		t.Error("MARKET and LIMIT do not require a trigger price")
	}
}

func TestOrderChanges_Empty(t *testing.T) {
	if !(OrderChanges{}).Empty() {
		t.Error("zero OrderChanges should be empty")
	}

	qty := int64(10)
	if (OrderChanges{Quantity: &qty}).Empty() {
		t.Error("OrderChanges with quantity should not be empty")
	}
}
