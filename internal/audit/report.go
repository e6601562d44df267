package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/ledger"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// Reporter derives execution reports and summaries from ledger and trail
// ⭐ SSOT: 실행 리포트 생성은 여기서만
type Reporter struct {
	ledger *ledger.Ledger
	trail  *Trail
	logger *logger.Logger
}

// NewReporter creates a reporter over the given ledger and trail
func NewReporter(l *ledger.Ledger, t *Trail, log *logger.Logger) *Reporter {
	return &Reporter{
		ledger: l,
		trail:  t,
		logger: log,
	}
}

// ExecutionReport assembles the point-in-time execution view of an order.
//
// Slippage is reported for MARKET orders as average_fill_price minus the
// reference price at submission; with that sign convention adverse
// slippage is positive for BUY and negative for SELL.
func (r *Reporter) ExecutionReport(orderID string) (contracts.ExecutionReport, error) {
	rec, err := r.ledger.Get(orderID)
	if err != nil {
		return contracts.ExecutionReport{}, err
	}

	var slippage float64
	if rec.Order.Kind == contracts.KindMarket && rec.ReferencePrice > 0 && rec.FilledQuantity > 0 {
		slippage = rec.AverageFillPrice - rec.ReferencePrice
	}

	return contracts.ExecutionReport{
		OrderID:           rec.Order.ID,
		BrokerOrderID:     rec.BrokerOrderID,
		Instrument:        rec.Order.Instrument,
		Side:              rec.Order.Side,
		Kind:              rec.Order.Kind,
		TotalQuantity:     rec.Order.Quantity,
		FilledQuantity:    rec.FilledQuantity,
		RemainingQuantity: rec.Remaining(),
		AverageFillPrice:  rec.AverageFillPrice,
		Fills:             rec.Fills,
		Status:            rec.Status,
		SubmittedAt:       rec.SubmittedAt,
		FirstFillAt:       rec.FirstFillAt,
		CompletedAt:       rec.CompletedAt,
		Slippage:          slippage,
		Commission:        rec.Commission,
	}, nil
}

// Summary aggregates execution statistics over an optional time window
type Summary struct {
	TotalOrders     int     `json:"total_orders"`
	CompletedOrders int     `json:"completed_orders"`
	CancelledOrders int     `json:"cancelled_orders"`
	RejectedOrders  int     `json:"rejected_orders"`
	FailedOrders    int     `json:"failed_orders"`
	FillRate        float64 `json:"fill_rate"`

	// Mean latencies in seconds; zero when no completed orders
	MeanTimeToFirstFill  float64 `json:"mean_time_to_first_fill_sec"`
	MeanTimeToCompletion float64 `json:"mean_time_to_completion_sec"`

	TotalVolume     float64 `json:"total_volume"`
	TotalCommission float64 `json:"total_commission"`
}

// Summary computes execution statistics for orders submitted inside the
// window; nil bounds are open-ended.
func (r *Reporter) Summary(start, end *time.Time) Summary {
	var s Summary
	var firstFillSum, completionSum float64
	var firstFillN, completionN int

	records := r.ledger.List(func(rec *ledger.Record) bool {
		if start != nil && rec.SubmittedAt.Before(*start) {
			return false
		}
		if end != nil && rec.SubmittedAt.After(*end) {
			return false
		}
		return true
	})

	for _, rec := range records {
		s.TotalOrders++

		switch rec.Status {
		case contracts.StatusComplete:
			s.CompletedOrders++
		case contracts.StatusCancelled:
			s.CancelledOrders++
		case contracts.StatusRejected:
			s.RejectedOrders++
		case contracts.StatusFailed:
			s.FailedOrders++
		}

		// Traded volume counts filled quantity at the fill price
		for _, f := range rec.Fills {
			s.TotalVolume += float64(f.Quantity) * f.Price
		}
		s.TotalCommission += rec.Commission

		if rec.FirstFillAt != nil {
			firstFillSum += rec.FirstFillAt.Sub(rec.SubmittedAt).Seconds()
			firstFillN++
		}
		if rec.CompletedAt != nil {
			completionSum += rec.CompletedAt.Sub(rec.SubmittedAt).Seconds()
			completionN++
		}
	}

	if s.TotalOrders > 0 {
		s.FillRate = float64(s.CompletedOrders) / float64(s.TotalOrders)
	}
	if firstFillN > 0 {
		s.MeanTimeToFirstFill = firstFillSum / float64(firstFillN)
	}
	if completionN > 0 {
		s.MeanTimeToCompletion = completionSum / float64(completionN)
	}

	return s
}

// exportDocument is the on-disk export layout
type exportDocument struct {
	ExportedAt time.Time              `json:"exported_at"`
	Start      *time.Time             `json:"start,omitempty"`
	End        *time.Time             `json:"end,omitempty"`
	Summary    Summary                `json:"summary"`
	AuditTrail []contracts.AuditEntry `json:"audit_trail"`
}

// Export writes the summary plus filtered audit trail as one JSON
// document. Failures are returned to the caller, never swallowed.
func (r *Reporter) Export(path string, start, end *time.Time) error {
	doc := exportDocument{
		ExportedAt: time.Now(),
		Start:      start,
		End:        end,
		Summary:    r.Summary(start, end),
		AuditTrail: r.trail.Entries(Filter{Start: start, End: end}),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export document: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"path":    path,
		"entries": len(doc.AuditTrail),
	}).Info("Execution data exported")

	return nil
}
