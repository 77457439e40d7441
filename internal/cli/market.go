package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

func newPriceCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "price [SYMBOL...]",
		Short: "Show oracle prices",
		Long: `Price prints the oracle price of each symbol, or of every supported
symbol when none is given, with where the price came from: live from the
exchange, cached, or the configured fallback.`,
		Example: "  tradeledger price\n  tradeledger price sol eth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				quotes, err := quotesFor(ctx, e, args)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderQuotes(quotes))
				return nil
			})
		},
	}
}

func quotesFor(ctx context.Context, e engine, symbols []string) ([]domain.PriceQuote, error) {
	if len(symbols) == 0 {
		return e.AllPrices(ctx), nil
	}
	quotes := make([]domain.PriceQuote, 0, len(symbols))
	for _, s := range symbols {
		q, err := e.Price(ctx, s)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func newStatsCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "stats SYMBOL",
		Short:   "Show rolling 24h market statistics",
		Example: "  tradeledger stats btc",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				s, err := e.Stats24h(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStats(s))
				return nil
			})
		},
	}
}
