package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// MarkCache stores the latest mark price per instrument.
// ⭐ SSOT: 시세 캐시 접근은 여기서만
//
// Marks are written by an external market-data feed and read by the
// engine for unrealized P&L and STOP-order trigger validation. A missing
// or expired mark is reported as absent, never as zero.
type MarkCache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewMarkCache creates a mark-price cache helper
func NewMarkCache(client *Client, prefix string, ttl time.Duration) *MarkCache {
	return &MarkCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Set stores the mark price for an instrument
func (m *MarkCache) Set(ctx context.Context, instrument string, price float64) error {
	if !m.client.Enabled() {
		return nil
	}

	key := fmt.Sprintf("%s:mark:%s", m.prefix, instrument)
	return m.client.Redis().Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), m.ttl).Err()
}

// Get retrieves the mark price for an instrument.
// The second return value is false when no mark is cached.
func (m *MarkCache) Get(ctx context.Context, instrument string) (float64, bool, error) {
	if !m.client.Enabled() {
		return 0, false, nil
	}

	key := fmt.Sprintf("%s:mark:%s", m.prefix, instrument)
	raw, err := m.client.Redis().Get(ctx, key).Result()
	if err != nil {
		// Key not found is not an error
		return 0, false, nil
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt mark for %s: %w", instrument, err)
	}

	return price, true, nil
}
