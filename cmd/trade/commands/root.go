package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trade",
	Short: "주문 실행 및 포지션 정산 엔진",
	Long: `Order Execution Engine CLI

브로커 게이트웨이를 통한 주문 제출, 체결 정산, 포지션 관리.

Usage:
  go run ./cmd/trade [command]

Examples:
  go run ./cmd/trade start
  go run ./cmd/trade status
  go run ./cmd/trade check db`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
