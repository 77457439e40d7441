package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newAdminCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Contract owner operations",
		Long: `Admin commands sign with $TRADELEDGER_ADMIN_KEY, the key that owns the
ledger contract. Prices and amounts are in the settlement asset.`,
	}

	cmd.AddCommand(
		newAdminTxCmd(rc, "add-asset SYMBOL PRICE", "List an asset in the contract", "listed",
			func(ctx context.Context, e engine, args []string, v decimal.Decimal) (common.Hash, error) {
				return e.AddAsset(ctx, args[0], v)
			}),
		newAdminTxCmd(rc, "update-price SYMBOL PRICE", "Set the contract price of an asset", "updated",
			func(ctx context.Context, e engine, args []string, v decimal.Decimal) (common.Hash, error) {
				return e.UpdatePrice(ctx, args[0], v)
			}),
		newAdminTxCmd(rc, "deposit AMOUNT", "Fund the reserve that pays out sells", "deposited",
			func(ctx context.Context, e engine, _ []string, v decimal.Decimal) (common.Hash, error) {
				return e.DepositReserve(ctx, v)
			}),
		newAdminTxCmd(rc, "withdraw AMOUNT", "Take funds out of the reserve", "withdrawn",
			func(ctx context.Context, e engine, _ []string, v decimal.Decimal) (common.Hash, error) {
				return e.WithdrawReserve(ctx, v)
			}),
		newReserveCmd(rc),
		newAssetsCmd(rc),
		newSyncCmd(rc),
		newFundCmd(rc),
		newNativeCmd(rc),
		newAuditCmd(rc),
	)
	return cmd
}

type adminTx func(ctx context.Context, e engine, args []string, v decimal.Decimal) (common.Hash, error)

// newAdminTxCmd builds a command whose last argument is a decimal amount.
func newAdminTxCmd(rc *RootConfig, use, short, done string, call adminTx) *cobra.Command {
	argc := len(strings.Fields(use)) - 1
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(argc),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseAmount("amount", args[argc-1])
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				hash, err := call(ctx, e, args, v)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTx(done, hash))
				return nil
			})
		},
	}
}

func newReserveCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve",
		Short: "Show the contract reserve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				r, err := e.Reserve(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), box("reserve", e.Assets().Settlement(), r.String()))
				return nil
			})
		},
	}
}

func newAssetsCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "List assets registered in the contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				list, err := e.ListAssets(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderListed(list, e.Assets().Settlement()))
				return nil
			})
		},
	}
}

func newSyncCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push oracle prices into the contract once",
		Long: `Sync converts each listed asset's USD oracle price into the settlement
asset and updates the contract where it differs. Assets priced from the
fallback table are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				r, err := e.SyncPrices(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSyncReport(r))
				return nil
			})
		},
	}
}

func newFundCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "fund ADDRESS AMOUNT",
		Short: "Credit settlement asset to an address on the simulated chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			v, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				if err := e.Fund(addr, v); err != nil {
					return err
				}
				bal, err := e.NativeBalance(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), box("funded "+addr.Hex(), e.Assets().Settlement(), bal.String()))
				return nil
			})
		},
	}
}

func newNativeCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "native ADDRESS",
		Short: "Show the settlement-asset balance of an address on chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				bal, err := e.NativeBalance(ctx, addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), box(addr.Hex(), e.Assets().Settlement(), bal.String()))
				return nil
			})
		},
	}
}

func newAuditCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare in-flight orders against the chain",
		Long: `Audit resolves every order that has not reached a final state and
reports the ones whose chain transaction succeeded without a journal
entry. Run it only while no serve process is taking orders.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withEngine(cmd, func(ctx context.Context, e engine) error {
				findings, err := e.AuditIntents(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderFindings(findings))
				return nil
			})
		},
	}
}
