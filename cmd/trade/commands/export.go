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

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "실행 데이터 내보내기",
	Long: `실행 중인 엔진에 내보내기를 요청하여 요약과 감사 로그를
JSON 파일로 기록합니다.

Example:
  go run ./cmd/trade export
  go run ./cmd/trade export --filename today.json --start 2026-08-31T00:00:00Z`,
	RunE: runExport,
}

var (
	exportAddr     string
	exportFilename string
	exportStart    string
	exportEnd      string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportAddr, "addr", "", "엔진 API 주소 (기본: http://localhost:$PORT)")
	exportCmd.Flags().StringVar(&exportFilename, "filename", "", "내보내기 파일명 (기본: 타임스탬프)")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "조회 시작 (RFC3339)")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "조회 종료 (RFC3339)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	addr := exportAddr
	if addr == "" {
		addr = "http://localhost:" + cfg.Port
	}

	client := httputil.New(logger.NewNop(), 30*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	payload := map[string]string{}
	if exportFilename != "" {
		payload["filename"] = exportFilename
	}
	if exportStart != "" {
		payload["start"] = exportStart
	}
	if exportEnd != "" {
		payload["end"] = exportEnd
	}

	resp, err := client.PostJSON(ctx, addr+"/api/export", payload)
	if err != nil {
		return fmt.Errorf("request export (is the engine running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("export failed with status %d", resp.StatusCode)
	}

	var result struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode export response: %w", err)
	}

	fmt.Printf("✅ Execution data exported to %s\n", result.Path)
	return nil
}
