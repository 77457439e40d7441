package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func newServeCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the price feed, contract price sync and ops server",
		Long: `Serve audits in-flight orders left by a previous run, then keeps the
oracle fed from the configured exchange, pushes prices into the ledger
contract when price_sync is enabled and exposes /healthz, /metrics,
/prices and /prices/stream on the ops address.

Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.openAndRun(cmd, false, func(ctx context.Context, e engine) error {
				return e.Run(ctx)
			})
		},
	}
}
