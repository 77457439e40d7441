// Package app assembles the settlement engine and exposes its operations.
package app

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/config"
	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/events"
	"github.com/vadiminshakov/tradeledger/internal/ledger"
	"github.com/vadiminshakov/tradeledger/internal/services/chain"
	"github.com/vadiminshakov/tradeledger/internal/services/oracle"
	"github.com/vadiminshakov/tradeledger/internal/services/orchestrator"
	"github.com/vadiminshakov/tradeledger/internal/services/pricesync"
	"github.com/vadiminshakov/tradeledger/internal/services/reconciler"
	"github.com/vadiminshakov/tradeledger/internal/storage/intents"
	"github.com/vadiminshakov/tradeledger/internal/storage/journal"
)

var (
	// ErrNoAdminKey an administrative call was made without TRADELEDGER_ADMIN_KEY.
	ErrNoAdminKey = errors.New("admin key is not configured")
	// ErrNotSimulated the operation exists only on the simulated chain.
	ErrNotSimulated = errors.New("operation requires the simulated chain")
)

func errUnsupportedPlatform(p string) error {
	return errors.Errorf("unsupported platform: %s", p)
}

// Engine is the upward interface of the settlement engine.
type Engine struct {
	cfg      config.Config
	assets   *domain.AssetSet
	upstream priceService
	stream   streamService
	oracle   *oracle.Oracle
	chain    *chain.Client
	node     *ledger.Node
	journal  journal.Store
	intents  *intents.Store
	orders   *orchestrator.Orchestrator
	balances *reconciler.Engine
	syncer   *pricesync.Syncer
	ticks    *events.PriceBroadcaster
	pub      events.Publisher
	registry *prometheus.Registry
	admin    *ecdsa.PrivateKey
	closers  []func() error
	l        *zap.Logger
}

// Assets returns the supported symbol universe.
func (e *Engine) Assets() *domain.AssetSet { return e.assets }

// Price returns the current price of symbol with its provenance.
func (e *Engine) Price(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	return e.oracle.Price(ctx, symbol)
}

// AllPrices returns every supported symbol's price in configured order.
func (e *Engine) AllPrices(ctx context.Context) []domain.PriceQuote {
	return e.oracle.AllPrices(ctx)
}

// Stats24h returns rolling 24h statistics of symbol.
func (e *Engine) Stats24h(ctx context.Context, symbol string) (domain.Stats24h, error) {
	return e.oracle.Stats24h(ctx, symbol)
}

// Balance returns the effective balance of symbol for account.
func (e *Engine) Balance(ctx context.Context, account domain.Account, symbol string) (decimal.Decimal, error) {
	return e.balances.EffectiveBalance(ctx, account, symbol)
}

// Portfolio values every holding of account.
func (e *Engine) Portfolio(ctx context.Context, account domain.Account) (domain.Portfolio, error) {
	return e.balances.Portfolio(ctx, account)
}

// Buy executes a buy order.
func (e *Engine) Buy(ctx context.Context, order domain.Order) (*domain.OrderResult, error) {
	return e.orders.ExecuteBuy(ctx, order)
}

// Sell executes a sell order.
func (e *Engine) Sell(ctx context.Context, order domain.Order) (*domain.OrderResult, error) {
	return e.orders.ExecuteSell(ctx, order)
}

// History returns account's journal annotated with chain records, newest first.
func (e *Engine) History(ctx context.Context, account domain.Account) ([]domain.HistoryItem, error) {
	return e.balances.History(ctx, account)
}

// Transaction returns one journal entry of account.
func (e *Engine) Transaction(ctx context.Context, account domain.Account, id string) (domain.HistoryItem, error) {
	return e.balances.Transaction(ctx, account, id)
}

// OrderStatus reports an order by intent id.
func (e *Engine) OrderStatus(ctx context.Context, intentID string) (orchestrator.OrderStatus, error) {
	return e.orders.OrderStatus(ctx, intentID)
}

// AuditIntents flags orders whose ledgers may disagree. It marks confirmed
// intents diverged, so it must not run while orders are in flight.
func (e *Engine) AuditIntents(ctx context.Context) ([]orchestrator.Finding, error) {
	return e.orders.AuditIntents(ctx)
}

// OpenIntents lists intents that have not reached a final state.
func (e *Engine) OpenIntents() []intents.Intent {
	return e.intents.ByStatus(intents.StatusPending, intents.StatusSubmitted, intents.StatusConfirmed, intents.StatusDiverged)
}

// AddAsset lists symbol in the contract at price settlement units.
func (e *Engine) AddAsset(ctx context.Context, symbol string, price decimal.Decimal) (common.Hash, error) {
	sym, err := e.trackedSymbol(symbol)
	if err != nil {
		return common.Hash{}, err
	}
	return e.adminCall(ctx, price, func(key *ecdsa.PrivateKey, v *big.Int) (*chain.Outcome, error) {
		return e.chain.AddAsset(ctx, key, sym, v)
	})
}

// UpdatePrice sets the contract price of symbol.
func (e *Engine) UpdatePrice(ctx context.Context, symbol string, price decimal.Decimal) (common.Hash, error) {
	sym, err := e.trackedSymbol(symbol)
	if err != nil {
		return common.Hash{}, err
	}
	return e.adminCall(ctx, price, func(key *ecdsa.PrivateKey, v *big.Int) (*chain.Outcome, error) {
		return e.chain.UpdatePrice(ctx, key, sym, v)
	})
}

// DepositReserve funds the contract reserve that pays out sells.
func (e *Engine) DepositReserve(ctx context.Context, amount decimal.Decimal) (common.Hash, error) {
	return e.adminCall(ctx, amount, func(key *ecdsa.PrivateKey, v *big.Int) (*chain.Outcome, error) {
		return e.chain.DepositReserve(ctx, key, v)
	})
}

// WithdrawReserve returns reserve funds to the administrator.
func (e *Engine) WithdrawReserve(ctx context.Context, amount decimal.Decimal) (common.Hash, error) {
	return e.adminCall(ctx, amount, func(key *ecdsa.PrivateKey, v *big.Int) (*chain.Outcome, error) {
		return e.chain.WithdrawReserve(ctx, key, v)
	})
}

// Reserve returns the contract reserve in settlement units.
func (e *Engine) Reserve(ctx context.Context) (decimal.Decimal, error) {
	v, err := e.chain.Reserve(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.FromUnits(v), nil
}

// ListedAsset contract listing of one asset.
type ListedAsset struct {
	Symbol string
	Price  decimal.Decimal
	Active bool
}

// ListAssets returns the assets registered in the contract.
func (e *Engine) ListAssets(ctx context.Context) ([]ListedAsset, error) {
	list, err := e.chain.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ListedAsset, len(list))
	for i, a := range list {
		out[i] = ListedAsset{Symbol: a.Symbol, Price: domain.FromUnits(a.Price), Active: a.Active}
	}
	return out, nil
}

// SyncPrices pushes oracle prices into the contract once.
func (e *Engine) SyncPrices(ctx context.Context) (pricesync.Report, error) {
	if e.syncer == nil {
		return pricesync.Report{}, ErrNoAdminKey
	}
	return e.syncer.Sync(ctx)
}

// Fund credits settlement-asset balance to addr on the simulated chain.
func (e *Engine) Fund(addr common.Address, amount decimal.Decimal) error {
	if e.node == nil {
		return ErrNotSimulated
	}
	v, err := domain.ToUnits(amount)
	if err != nil {
		return err
	}
	return e.node.Fund(addr, v)
}

// NativeBalance returns the settlement-asset balance of addr on chain.
func (e *Engine) NativeBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	v, err := e.chain.NativeBalance(ctx, addr)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.FromUnits(v), nil
}

// Close releases storage and transport handles in reverse order of creation.
func (e *Engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (e *Engine) trackedSymbol(symbol string) (string, error) {
	sym, err := e.assets.Normalize(symbol)
	if err != nil {
		return "", err
	}
	if e.assets.IsOffChainOnly(sym) {
		return "", errors.Errorf("%s is settled off chain and cannot be listed in the contract", sym)
	}
	return sym, nil
}

func (e *Engine) adminCall(ctx context.Context, amount decimal.Decimal,
	call func(key *ecdsa.PrivateKey, v *big.Int) (*chain.Outcome, error)) (common.Hash, error) {
	if e.admin == nil {
		return common.Hash{}, ErrNoAdminKey
	}
	v, err := domain.ToUnits(amount)
	if err != nil {
		return common.Hash{}, err
	}
	out, err := call(e.admin, v)
	if err != nil {
		return common.Hash{}, err
	}
	return out.TxHash, nil
}
