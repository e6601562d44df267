package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gtrdotmcs/auto-trade/internal/audit"
	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/events"
	"github.com/gtrdotmcs/auto-trade/internal/ledger"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// Repository persists execution data to PostgreSQL
// ⭐ SSOT: Execution 데이터 저장/조회는 여기서만
//
// The ledger remains the source of truth; rows here are a durable
// mirror written from event handlers and the periodic audit flush, so a
// persistence failure never blocks the execution path.
type Repository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger

	mu           sync.Mutex
	auditFlushed int64 // highest audit sequence already written
}

// NewRepository creates a new execution repository
func NewRepository(pool *pgxpool.Pool, log *logger.Logger) *Repository {
	return &Repository{pool: pool, logger: log}
}

// EnsureSchema creates the execution tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS execution`,
		`CREATE TABLE IF NOT EXISTS execution.orders (
			order_id         TEXT PRIMARY KEY,
			broker_order_id  TEXT,
			instrument       TEXT NOT NULL,
			side             TEXT NOT NULL,
			quantity         BIGINT NOT NULL,
			kind             TEXT NOT NULL,
			price            DOUBLE PRECISION,
			trigger_price    DOUBLE PRECISION,
			strategy_id      TEXT,
			status           TEXT NOT NULL,
			filled_quantity  BIGINT NOT NULL DEFAULT 0,
			average_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
			retry_count      INT NOT NULL DEFAULT 0,
			error_message    TEXT,
			submitted_at     TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS execution.fills (
			fill_id          TEXT PRIMARY KEY,
			order_id         TEXT NOT NULL,
			broker_order_id  TEXT,
			quantity         BIGINT NOT NULL,
			price            DOUBLE PRECISION NOT NULL,
			commission       DOUBLE PRECISION NOT NULL DEFAULT 0,
			trade_id         TEXT,
			filled_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS execution.positions (
			instrument       TEXT PRIMARY KEY,
			net_quantity     BIGINT NOT NULL,
			average_price    DOUBLE PRECISION NOT NULL,
			realized_pnl     DOUBLE PRECISION NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS execution.audit_trail (
			sequence         BIGINT PRIMARY KEY,
			order_id         TEXT,
			event_type       TEXT NOT NULL,
			details          JSONB,
			recorded_at      TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure execution schema: %w", err)
		}
	}

	return nil
}

// SaveOrder upserts the persistent mirror of a ledger record
func (r *Repository) SaveOrder(ctx context.Context, rec ledger.Record) error {
	query := `
		INSERT INTO execution.orders (
			order_id, broker_order_id, instrument, side, quantity, kind,
			price, trigger_price, strategy_id, status, filled_quantity,
			average_price, retry_count, error_message, submitted_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (order_id) DO UPDATE SET
			broker_order_id = EXCLUDED.broker_order_id,
			status          = EXCLUDED.status,
			quantity        = EXCLUDED.quantity,
			price           = EXCLUDED.price,
			trigger_price   = EXCLUDED.trigger_price,
			filled_quantity = EXCLUDED.filled_quantity,
			average_price   = EXCLUDED.average_price,
			retry_count     = EXCLUDED.retry_count,
			error_message   = EXCLUDED.error_message,
			updated_at      = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		rec.Order.ID, rec.BrokerOrderID, rec.Order.Instrument, rec.Order.Side,
		rec.Order.Quantity, rec.Order.Kind, rec.Order.Price, rec.Order.TriggerPrice,
		rec.Order.StrategyID, rec.Status, rec.FilledQuantity, rec.AverageFillPrice,
		rec.RetryCount, rec.ErrorMessage, rec.SubmittedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	return nil
}

// SaveFill inserts one fill; replays are ignored by the primary key
func (r *Repository) SaveFill(ctx context.Context, fill contracts.Fill) error {
	query := `
		INSERT INTO execution.fills (
			fill_id, order_id, broker_order_id, quantity, price, commission, trade_id, filled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (fill_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		fill.FillID, fill.OrderID, fill.BrokerOrderID,
		fill.Quantity, fill.Price, fill.Commission, fill.TradeID, fill.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save fill: %w", err)
	}

	return nil
}

// SavePosition upserts the persistent mirror of a position
func (r *Repository) SavePosition(ctx context.Context, update contracts.PositionUpdate) error {
	query := `
		INSERT INTO execution.positions (
			instrument, net_quantity, average_price, realized_pnl, updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instrument) DO UPDATE SET
			net_quantity  = EXCLUDED.net_quantity,
			average_price = EXCLUDED.average_price,
			realized_pnl  = EXCLUDED.realized_pnl,
			updated_at    = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		update.Instrument, update.NetQuantity, update.AveragePrice,
		update.RealizedPnL, update.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	return nil
}

// FlushAudit writes audit entries newer than the last flushed sequence.
// Called periodically by the scheduler.
func (r *Repository) FlushAudit(ctx context.Context, trail *audit.Trail) (int, error) {
	r.mu.Lock()
	since := r.auditFlushed
	r.mu.Unlock()

	entries := trail.Entries(audit.Filter{})
	written := 0
	highest := since

	for _, e := range entries {
		if e.Sequence <= since {
			continue
		}

		query := `
			INSERT INTO execution.audit_trail (sequence, order_id, event_type, details, recorded_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sequence) DO NOTHING
		`
		if _, err := r.pool.Exec(ctx, query, e.Sequence, e.OrderID, e.EventType, e.Details, e.Timestamp); err != nil {
			return written, fmt.Errorf("failed to flush audit entry %d: %w", e.Sequence, err)
		}

		written++
		if e.Sequence > highest {
			highest = e.Sequence
		}
	}

	r.mu.Lock()
	r.auditFlushed = highest
	r.mu.Unlock()

	return written, nil
}

// RegisterHandlers mirrors ledger changes to PostgreSQL from the event
// stream. Failures are logged, never propagated into the fill path.
func (r *Repository) RegisterHandlers(d *events.Dispatcher, l *ledger.Ledger) {
	d.Register(contracts.EventStatusUpdate, func(ev contracts.Event) {
		su := ev.(contracts.StatusUpdateEvent)
		r.mirrorOrder(l, su.OrderID)
	})

	d.Register(contracts.EventExecutionComplete, func(ev contracts.Event) {
		report := ev.(contracts.ExecutionCompleteEvent).Report
		r.mirrorOrder(l, report.OrderID)
	})

	d.Register(contracts.EventFill, func(ev contracts.Event) {
		fill := ev.(contracts.FillEvent).Fill
		ctx := context.Background()
		if err := r.SaveFill(ctx, fill); err != nil {
			r.logger.WithError(err).WithField("fill_id", fill.FillID).Error("Failed to persist fill")
		}
		r.mirrorOrder(l, fill.OrderID)
	})

	d.Register(contracts.EventPositionUpdate, func(ev contracts.Event) {
		update := ev.(contracts.PositionUpdateEvent).Update
		if err := r.SavePosition(context.Background(), update); err != nil {
			r.logger.WithError(err).WithField("instrument", update.Instrument).Error("Failed to persist position")
		}
	})
}

func (r *Repository) mirrorOrder(l *ledger.Ledger, orderID string) {
	rec, err := l.Get(orderID)
	if err != nil {
		return
	}
	if err := r.SaveOrder(context.Background(), rec); err != nil {
		r.logger.WithError(err).WithField("order_id", orderID).Error("Failed to persist order")
	}
}
