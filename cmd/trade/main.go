package main

import (
	"os"

	"github.com/gtrdotmcs/auto-trade/cmd/trade/commands"
)

// main is the entry point for the trade CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/trade [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
