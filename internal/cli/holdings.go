package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newBalanceCmd(rc *RootConfig) *cobra.Command {
	var acc accountFlags
	cmd := &cobra.Command{
		Use:   "balance SYMBOL",
		Short: "Show the effective balance of one asset",
		Long: `Balance reads the contract for assets it settles and sums the journal
for off-chain assets. Contract assets need the account address, taken
from --key, $TRADELEDGER_USER_KEY or --address.`,
		Example: "  tradeledger balance sol --user alice --address 0xabc...",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := acc.account(false)
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				sym, err := e.Assets().Normalize(args[0])
				if err != nil {
					return err
				}
				bal, err := e.Balance(ctx, account, sym)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderBalance(account, sym, bal))
				return nil
			})
		},
	}
	acc.register(cmd)
	return cmd
}

func newPortfolioCmd(rc *RootConfig) *cobra.Command {
	var acc accountFlags
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Value every holding of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := acc.account(false)
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				p, err := e.Portfolio(ctx, account)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderPortfolio(p))
				return nil
			})
		},
	}
	acc.register(cmd)
	return cmd
}

func newHistoryCmd(rc *RootConfig) *cobra.Command {
	var acc accountFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List an account's transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := acc.account(false)
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				items, err := e.History(ctx, account)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistory(items))
				return nil
			})
		},
	}
	acc.register(cmd)
	return cmd
}

func newTxCmd(rc *RootConfig) *cobra.Command {
	var acc accountFlags
	cmd := &cobra.Command{
		Use:   "tx ENTRY_ID",
		Short: "Show one journal entry with its chain record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := acc.account(false)
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				it, err := e.Transaction(ctx, account, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistoryItem(it))
				return nil
			})
		},
	}
	acc.register(cmd)
	return cmd
}
