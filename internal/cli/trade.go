package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

func newBuyCmd(rc *RootConfig) *cobra.Command {
	var (
		acc   accountFlags
		value string
	)
	cmd := &cobra.Command{
		Use:   "buy SYMBOL AMOUNT",
		Short: "Buy an asset",
		Long: `Buy settles AMOUNT of SYMBOL for the user.

Contract assets are paid in the settlement asset from the signing key's
address; --value sets the payment, any excess is refunded by the
contract, and an omitted value pays the exact quoted cost. Off-chain
assets are journaled at the oracle price.`,
		Example: "  tradeledger buy sol 2 --user alice --key $ALICE_KEY\n" +
			"  tradeledger buy btc 0.1 --user alice --key $ALICE_KEY",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := parseOrder(&acc, args)
			if err != nil {
				return err
			}
			if value != "" {
				if order.Value, err = parseAmount("value", value); err != nil {
					return err
				}
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				res, err := e.Buy(ctx, order)
				return printOrder(cmd, domain.TradeTypeBuy, res, err)
			})
		},
	}
	acc.register(cmd)
	cmd.Flags().StringVar(&value, "value", "", "settlement-asset payment, defaults to the quoted cost")
	return cmd
}

func newSellCmd(rc *RootConfig) *cobra.Command {
	var acc accountFlags
	cmd := &cobra.Command{
		Use:     "sell SYMBOL AMOUNT",
		Short:   "Sell an asset",
		Example: "  tradeledger sell sol 1 --user alice --key $ALICE_KEY",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := parseOrder(&acc, args)
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				res, err := e.Sell(ctx, order)
				return printOrder(cmd, domain.TradeTypeSell, res, err)
			})
		},
	}
	acc.register(cmd)
	return cmd
}

func parseOrder(acc *accountFlags, args []string) (domain.Order, error) {
	account, err := acc.account(true)
	if err != nil {
		return domain.Order{}, err
	}
	amount, err := parseAmount("amount", args[1])
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{Account: account, Symbol: args[0], Amount: amount, Value: decimal.Zero}, nil
}

// printOrder renders a result. A consistency alert is printed and still
// returned so the process exits non-zero.
func printOrder(cmd *cobra.Command, side domain.TradeType, res *domain.OrderResult, err error) error {
	if res != nil {
		fmt.Fprintln(cmd.OutOrStdout(), renderOrder(side, res))
	}
	if err != nil {
		return err
	}
	if res != nil && res.Alert != nil {
		return res.Alert
	}
	return nil
}

func newOrderCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect orders by intent id",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status INTENT_ID",
		Short: "Show what happened to an order",
		Long: `Status looks up the order's intent and, when the chain outcome was
unknown at the time the order returned, asks the chain for it now.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				st, err := e.OrderStatus(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderOrderStatus(st))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "open",
		Short: "List orders that have not reached a final state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withEngine(cmd, func(_ context.Context, e engine) error {
				fmt.Fprintln(cmd.OutOrStdout(), renderIntents(e.OpenIntents()))
				return nil
			})
		},
	})
	return cmd
}
