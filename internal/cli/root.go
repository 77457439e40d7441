// Package cli is the command line front end of the settlement engine.
package cli

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/tradeledger/config"
	"github.com/vadiminshakov/tradeledger/internal/app"
	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/orchestrator"
	"github.com/vadiminshakov/tradeledger/internal/services/pricesync"
	"github.com/vadiminshakov/tradeledger/internal/storage/intents"
)

type engine interface {
	Assets() *domain.AssetSet
	Price(ctx context.Context, symbol string) (domain.PriceQuote, error)
	AllPrices(ctx context.Context) []domain.PriceQuote
	Stats24h(ctx context.Context, symbol string) (domain.Stats24h, error)
	Balance(ctx context.Context, account domain.Account, symbol string) (decimal.Decimal, error)
	Portfolio(ctx context.Context, account domain.Account) (domain.Portfolio, error)
	Buy(ctx context.Context, order domain.Order) (*domain.OrderResult, error)
	Sell(ctx context.Context, order domain.Order) (*domain.OrderResult, error)
	History(ctx context.Context, account domain.Account) ([]domain.HistoryItem, error)
	Transaction(ctx context.Context, account domain.Account, id string) (domain.HistoryItem, error)
	OrderStatus(ctx context.Context, intentID string) (orchestrator.OrderStatus, error)
	AuditIntents(ctx context.Context) ([]orchestrator.Finding, error)
	OpenIntents() []intents.Intent
	AddAsset(ctx context.Context, symbol string, price decimal.Decimal) (common.Hash, error)
	UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) (common.Hash, error)
	DepositReserve(ctx context.Context, amount decimal.Decimal) (common.Hash, error)
	WithdrawReserve(ctx context.Context, amount decimal.Decimal) (common.Hash, error)
	Reserve(ctx context.Context) (decimal.Decimal, error)
	ListAssets(ctx context.Context) ([]app.ListedAsset, error)
	SyncPrices(ctx context.Context) (pricesync.Report, error)
	Fund(addr common.Address, amount decimal.Decimal) error
	NativeBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error)
	Run(ctx context.Context) error
	Close() error
}

type opener func(ctx context.Context, cfg config.Config, l *zap.Logger) (engine, error)

func openEngine(ctx context.Context, cfg config.Config, l *zap.Logger) (engine, error) {
	return app.Open(ctx, cfg, l)
}

// RootConfig is shared by every subcommand.
type RootConfig struct {
	ConfigPath string
	Dev        bool
	Verbose    bool

	open opener
}

// withEngine loads configuration, opens the engine, runs fn and closes it.
// One-shot commands log at warn unless --verbose is set.
func (rc *RootConfig) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e engine) error) error {
	return rc.openAndRun(cmd, !rc.Verbose, fn)
}

func (rc *RootConfig) openAndRun(cmd *cobra.Command, quiet bool, fn func(ctx context.Context, e engine) error) error {
	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if quiet {
		level = "warn"
	}
	l, err := newLogger(level, rc.Dev)
	if err != nil {
		return err
	}
	defer l.Sync() //nolint:errcheck

	ctx := cmd.Context()
	e, err := rc.open(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			l.Warn("close engine", zap.Error(cerr))
		}
	}()
	return fn(ctx, e)
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if dev {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// New builds the root command.
func New() *cobra.Command {
	return newRoot(&RootConfig{open: openEngine})
}

func newRoot(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tradeledger",
		Short: "Dual-ledger settlement engine",
		Long: `tradeledger settles trades across an off-chain journal and an
on-chain ledger contract, priced by a cached exchange oracle.

Assets registered in the contract settle on chain; the settlement and
benchmark assets live in the journal only.

Environment:
  TRADELEDGER_ADMIN_KEY   contract owner key (hex)
  TRADELEDGER_USER_KEY    default signing key for buy and sell
  TRADELEDGER_JOURNAL_DSN journal connection string`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&rc.ConfigPath, "config", "c", "", "path to YAML config (defaults apply when empty)")
	cmd.PersistentFlags().BoolVar(&rc.Dev, "dev", false, "human readable development logs")
	cmd.PersistentFlags().BoolVarP(&rc.Verbose, "verbose", "v", false, "log at the configured level instead of warn")

	cmd.AddCommand(
		newInitCmd(),
		newServeCmd(rc),
		newPriceCmd(rc),
		newStatsCmd(rc),
		newBuyCmd(rc),
		newSellCmd(rc),
		newBalanceCmd(rc),
		newPortfolioCmd(rc),
		newHistoryCmd(rc),
		newTxCmd(rc),
		newOrderCmd(rc),
		newAdminCmd(rc),
		newLoadtestCmd(rc),
	)
	return cmd
}

// Execute runs the command line against os.Args. Cancelling ctx stops serve.
func Execute(ctx context.Context) error {
	return New().ExecuteContext(ctx)
}
