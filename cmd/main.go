// Command tradeledger settles trades across an off-chain journal and an
// on-chain ledger contract.
//
// Usage:
//
//	tradeledger serve --config config.yaml
//	tradeledger buy sol 2 --user alice --key $ALICE_KEY
//	tradeledger admin sync
//
// Environment variables:
//
//	TRADELEDGER_ADMIN_KEY: contract owner key, required for admin commands and the simulated chain
//	TRADELEDGER_USER_KEY: default signing key for buy and sell
//	TRADELEDGER_JOURNAL_DSN: journal connection string, overrides journal.dsn
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vadiminshakov/tradeledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
