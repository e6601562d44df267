package execution

import (
	"sync"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
)

// PositionBook tracks the net position per instrument
// ⭐ SSOT: 포지션 상태 변경은 이 타입의 메서드로만
//
// Realized P&L accumulates per instrument and survives the position
// going flat; the cost basis resets to zero whenever the open quantity
// reaches zero.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*contracts.Position
}

// NewPositionBook creates an empty position book
func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions: make(map[string]*contracts.Position),
	}
}

// Apply folds one fill into the instrument's position and returns the
// resulting state.
//
// Three cases: opening a new position sets the cost basis to the fill
// price; adding in the same direction moves the basis to the weighted
// average; trading against the position realizes P&L on the closed
// quantity, and any excess reopens in the opposite direction at the
// fill price.
func (b *PositionBook) Apply(instrument string, side contracts.Side, quantity int64, price float64, at time.Time) contracts.PositionUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, exists := b.positions[instrument]
	if !exists {
		p = &contracts.Position{Instrument: instrument}
		b.positions[instrument] = p
	}

	signed := quantity * side.Sign()

	switch {
	case p.NetQuantity == 0:
		p.NetQuantity = signed
		p.AveragePrice = price

	case sameDirection(p.NetQuantity, signed):
		open := abs(p.NetQuantity)
		p.AveragePrice = (float64(open)*p.AveragePrice + float64(quantity)*price) / float64(open+quantity)
		p.NetQuantity += signed

	default:
		open := abs(p.NetQuantity)
		closed := quantity
		if closed > open {
			closed = open
		}

		// 실현손익: 청산 수량 × (체결가 - 평단) × 포지션 방향
		direction := float64(1)
		if p.NetQuantity < 0 {
			direction = -1
		}
		p.RealizedPnL += float64(closed) * (price - p.AveragePrice) * direction

		p.NetQuantity += signed
		switch {
		case p.NetQuantity == 0:
			p.AveragePrice = 0
		case sameDirection(p.NetQuantity, signed):
			// Reversal: the surplus reopens at the fill price
			p.AveragePrice = price
		}
	}

	p.LastUpdated = at

	return contracts.PositionUpdate{
		Instrument:   instrument,
		NetQuantity:  p.NetQuantity,
		AveragePrice: p.AveragePrice,
		RealizedPnL:  p.RealizedPnL,
		Timestamp:    at,
	}
}

// Get returns a copy of the instrument's position
func (b *PositionBook) Get(instrument string) (contracts.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, exists := b.positions[instrument]
	if !exists {
		return contracts.Position{}, false
	}
	return *p, true
}

// All returns copies of every tracked position, including flat ones
// that still carry realized P&L.
func (b *PositionBook) All() []contracts.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]contracts.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

func sameDirection(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
