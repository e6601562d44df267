package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gtrdotmcs/auto-trade/pkg/config"
	"github.com/gtrdotmcs/auto-trade/pkg/httputil"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "실행 중인 엔진 상태 조회",
	Long: `실행 중인 엔진의 API를 호출하여 주문/포지션 요약을 표시합니다.

표시 정보:
- 주문 통계 (상태별 집계, 체결률)
- 보유 포지션 및 실현 손익

Example:
  go run ./cmd/trade status
  go run ./cmd/trade status --addr http://localhost:8087`,
	RunE: runStatus,
}

var statusAddr string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "엔진 API 주소 (기본: http://localhost:$PORT)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	addr := statusAddr
	if addr == "" {
		addr = "http://localhost:" + cfg.Port
	}

	client := httputil.New(logger.NewNop(), 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. Execution summary
	var summary struct {
		TotalOrders     int     `json:"total_orders"`
		CompletedOrders int     `json:"completed_orders"`
		CancelledOrders int     `json:"cancelled_orders"`
		RejectedOrders  int     `json:"rejected_orders"`
		FailedOrders    int     `json:"failed_orders"`
		FillRate        float64 `json:"fill_rate"`
		TotalVolume     float64 `json:"total_volume"`
	}
	if err := getJSON(ctx, client, addr+"/api/summary", &summary); err != nil {
		return fmt.Errorf("fetch summary (is the engine running?): %w", err)
	}

	fmt.Println("📊 Order Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-15s %10d\n", "Total:", summary.TotalOrders)
	fmt.Printf("%-15s %10d\n", "Completed:", summary.CompletedOrders)
	fmt.Printf("%-15s %10d\n", "Cancelled:", summary.CancelledOrders)
	fmt.Printf("%-15s %10d\n", "Rejected:", summary.RejectedOrders)
	fmt.Printf("%-15s %10d\n", "Failed:", summary.FailedOrders)
	fmt.Printf("%-15s %9.1f%%\n", "Fill Rate:", summary.FillRate*100)
	fmt.Printf("%-15s %12.2f\n", "Volume:", summary.TotalVolume)
	fmt.Println()

	// 2. Positions
	var positions struct {
		Positions []struct {
			Instrument   string  `json:"instrument"`
			NetQuantity  int64   `json:"net_quantity"`
			AveragePrice float64 `json:"average_price"`
			RealizedPnL  float64 `json:"realized_pnl"`
		} `json:"positions"`
	}
	if err := getJSON(ctx, client, addr+"/api/positions", &positions); err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	fmt.Println("💼 Positions")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if len(positions.Positions) == 0 {
		fmt.Println("  (none)")
	}
	for _, p := range positions.Positions {
		fmt.Printf("%-12s qty %8d  avg %10.2f  realized %12.2f\n",
			p.Instrument, p.NetQuantity, p.AveragePrice, p.RealizedPnL)
	}

	return nil
}

// getJSON fetches one API endpoint into out
func getJSON(ctx context.Context, client *httputil.Client, url string, out interface{}) error {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
