// Package orchestrator executes buy and sell orders across both ledgers:
// the contract call first, the journal write only after confirmation.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/events"
	"github.com/vadiminshakov/tradeledger/internal/services/chain"
	"github.com/vadiminshakov/tradeledger/internal/storage/intents"
)

// ErrMissingKey an on-chain order came without a signing key.
var ErrMissingKey = errors.New("account has no signing key")

type pricer interface {
	Price(ctx context.Context, symbol string) (domain.PriceQuote, error)
}

type ledgerClient interface {
	Buy(ctx context.Context, key *ecdsa.PrivateKey, symbol string, amount, value *big.Int) (*chain.Trade, error)
	Sell(ctx context.Context, key *ecdsa.PrivateKey, symbol string, amount *big.Int) (*chain.Trade, error)
	PriceOf(ctx context.Context, symbol string) (*big.Int, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type balancer interface {
	EffectiveBalance(ctx context.Context, account domain.Account, symbol string) (decimal.Decimal, error)
}

type journalWriter interface {
	Append(ctx context.Context, e *domain.JournalEntry) error
}

type intentLog interface {
	Prepare(in intents.Intent) (intents.Intent, error)
	Advance(id string, status intents.Status, changes ...intents.Change) (intents.Intent, error)
	Get(id string) (intents.Intent, error)
	ByStatus(statuses ...intents.Status) []intents.Intent
}

type Orchestrator struct {
	assets    *domain.AssetSet
	prices    pricer
	chain     ledgerClient
	balances  balancer
	journal   journalWriter
	intents   intentLog
	publisher events.Publisher
	l         *zap.Logger
	metrics   *Metrics
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.l = l } }

func WithMetrics(m *Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithPublisher(p events.Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(assets *domain.AssetSet, prices pricer, ledger ledgerClient, balances balancer,
	j journalWriter, log intentLog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		assets:    assets,
		prices:    prices,
		chain:     ledger,
		balances:  balances,
		journal:   j,
		intents:   log,
		publisher: events.Nop{},
		l:         zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteBuy buys order.Amount of order.Symbol. For tracked assets a
// non-positive order.Value pays the exact cost quoted by the contract.
func (o *Orchestrator) ExecuteBuy(ctx context.Context, order domain.Order) (*domain.OrderResult, error) {
	return o.execute(ctx, order, domain.TradeTypeBuy)
}

// ExecuteSell sells order.Amount of order.Symbol after a balance pre-flight.
func (o *Orchestrator) ExecuteSell(ctx context.Context, order domain.Order) (*domain.OrderResult, error) {
	return o.execute(ctx, order, domain.TradeTypeSell)
}

func (o *Orchestrator) execute(ctx context.Context, order domain.Order, side domain.TradeType) (*domain.OrderResult, error) {
	start := o.now()

	sym, err := o.validate(order)
	if err != nil {
		return nil, err
	}
	order.Symbol = sym
	route := o.assets.RouteOf(sym)
	if route == domain.RouteOnChain && order.Account.Key == nil {
		return nil, ErrMissingKey
	}

	intent, err := o.intents.Prepare(intents.Intent{
		UserID:  order.Account.UserID,
		Address: order.Account.Address.Hex(),
		Side:    side,
		Symbol:  sym,
		Amount:  order.Amount,
		Value:   order.Value,
		Route:   route,
	})
	if err != nil {
		return nil, domain.Unavailable("intent log", err)
	}

	l := o.l.With(
		zap.String("intent_id", intent.ID),
		zap.String("user_id", order.Account.UserID),
		zap.String("side", side.String()),
		zap.String("symbol", sym),
		zap.String("amount", order.Amount.String()))

	var result *domain.OrderResult
	if route == domain.RouteOffChain {
		result, err = o.executeOffChain(ctx, l, intent, order, side)
	} else {
		result, err = o.executeOnChain(ctx, l, intent, order, side)
	}

	o.metrics.observeOrder(side, route, outcome(result, err), o.now().Sub(start))
	if err != nil {
		l.Warn("order failed", zap.Error(err))
		if errors.Is(err, domain.ErrOrderRejected) {
			o.publish(ctx, events.KindOrderRejected, order.Account.UserID, intent.ID, err.Error())
		}
		return nil, err
	}

	l.Info("order executed",
		zap.String("route", string(route)),
		zap.String("price", result.Entry.Price.String()),
		zap.String("tx_ref", result.Entry.TxRef))
	o.publish(ctx, events.KindOrderExecuted, order.Account.UserID, intent.ID, result)
	return result, nil
}

func (o *Orchestrator) validate(order domain.Order) (string, error) {
	sym, err := o.assets.Normalize(order.Symbol)
	if err != nil {
		return "", err
	}
	if !order.Amount.IsPositive() {
		return "", errors.Wrapf(domain.ErrInvalidAmount, "amount %s", order.Amount)
	}
	if !domain.Representable(order.Amount) {
		return "", errors.Wrapf(domain.ErrInvalidAmount, "amount %s has more than %d decimals", order.Amount, domain.Decimals)
	}
	if order.Value.IsPositive() && !domain.Representable(order.Value) {
		return "", errors.Wrapf(domain.ErrInvalidAmount, "value %s has more than %d decimals", order.Value, domain.Decimals)
	}
	if order.Account.UserID == "" {
		return "", errors.New("order without user id")
	}
	return sym, nil
}

// executeOffChain records the trade in the journal only. Balances of these
// assets are not locked: concurrent sells may both pass the pre-flight.
func (o *Orchestrator) executeOffChain(ctx context.Context, l *zap.Logger, intent intents.Intent,
	order domain.Order, side domain.TradeType) (*domain.OrderResult, error) {
	if side == domain.TradeTypeSell {
		if err := o.preflight(ctx, intent, order); err != nil {
			return nil, err
		}
	}

	quote, err := o.prices.Price(ctx, order.Symbol)
	if err != nil {
		o.fail(intent.ID, intents.StatusFailed, err)
		return nil, err
	}

	entry := &domain.JournalEntry{
		UserID: order.Account.UserID,
		Symbol: order.Symbol,
		Amount: order.Amount,
		Price:  quote.Price,
		Type:   side,
	}
	if err := o.journal.Append(ctx, entry); err != nil {
		o.fail(intent.ID, intents.StatusFailed, err)
		return nil, domain.Unavailable("journal append", err)
	}
	o.advance(l, intent.ID, intents.StatusJournaled, intents.WithEntryID(entry.ID))

	return &domain.OrderResult{IntentID: intent.ID, Route: domain.RouteOffChain, Entry: entry}, nil
}

func (o *Orchestrator) executeOnChain(ctx context.Context, l *zap.Logger, intent intents.Intent,
	order domain.Order, side domain.TradeType) (*domain.OrderResult, error) {
	amount, err := domain.ToUnits(order.Amount)
	if err != nil {
		o.fail(intent.ID, intents.StatusRejected, err)
		return nil, err
	}

	// journal prices are quoted in USD; contract prices are in settlement units
	settlement, err := o.prices.Price(ctx, o.assets.Settlement())
	if err != nil {
		o.fail(intent.ID, intents.StatusFailed, err)
		return nil, err
	}

	var trade *chain.Trade
	switch side {
	case domain.TradeTypeBuy:
		value, err := o.payment(ctx, order, amount)
		if err != nil {
			o.fail(intent.ID, intents.StatusFailed, err)
			return nil, err
		}
		trade, err = o.chain.Buy(ctx, order.Account.Key, order.Symbol, amount, value)
		if err != nil {
			return nil, o.chainFailure(l, intent.ID, trade, err)
		}
	case domain.TradeTypeSell:
		if err := o.preflight(ctx, intent, order); err != nil {
			return nil, err
		}
		trade, err = o.chain.Sell(ctx, order.Account.Key, order.Symbol, amount)
		if err != nil {
			return nil, o.chainFailure(l, intent.ID, trade, err)
		}
	}

	txHash := trade.TxHash.Hex()
	o.advance(l, intent.ID, intents.StatusConfirmed, intents.WithTxHash(txHash))

	receipt := &domain.ChainReceipt{
		TxHash:  trade.TxHash,
		Block:   trade.Block,
		TxID:    trade.TxID,
		Price:   domain.FromUnits(trade.Price),
		Settled: domain.FromUnits(trade.Settled),
	}
	result := &domain.OrderResult{IntentID: intent.ID, Route: domain.RouteOnChain, Chain: receipt}

	entry := &domain.JournalEntry{
		UserID: order.Account.UserID,
		Symbol: order.Symbol,
		Amount: order.Amount,
		Price:  receipt.Price.Mul(settlement.Price),
		Type:   side,
		TxRef:  txHash,
	}
	result.Entry = entry

	if err := o.journal.Append(ctx, entry); err != nil {
		result.Alert = o.raiseAlert(ctx, l, intent.ID, order, side, txHash, err)
		return result, nil
	}
	o.advance(l, intent.ID, intents.StatusJournaled, intents.WithEntryID(entry.ID))

	return result, nil
}

// payment returns the value sent with a buy: the declared counter-value, or
// the contract's own quote when none was declared.
func (o *Orchestrator) payment(ctx context.Context, order domain.Order, amount *big.Int) (*big.Int, error) {
	if order.Value.IsPositive() {
		return domain.ToUnits(order.Value)
	}
	price, err := o.chain.PriceOf(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}
	cost := new(big.Int).Mul(amount, price)
	return cost.Quo(cost, unitScale), nil
}

var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.Decimals), nil)

func (o *Orchestrator) preflight(ctx context.Context, intent intents.Intent, order domain.Order) error {
	balance, err := o.balances.EffectiveBalance(ctx, order.Account, order.Symbol)
	if err != nil {
		o.fail(intent.ID, intents.StatusFailed, err)
		return err
	}
	if balance.LessThan(order.Amount) {
		err := domain.NewRejection(ledgerReasonInsufficientBalance)
		o.fail(intent.ID, intents.StatusRejected, err)
		return err
	}
	return nil
}

const ledgerReasonInsufficientBalance = "InsufficientBalance"

// chainFailure records the outcome of a failed contract call. A transaction
// that reached the node without a known outcome stays submitted.
func (o *Orchestrator) chainFailure(l *zap.Logger, intentID string, trade *chain.Trade, err error) error {
	changes := []intents.Change{intents.WithError(err)}
	if trade != nil && trade.TxHash != (common.Hash{}) {
		changes = append(changes, intents.WithTxHash(trade.TxHash.Hex()))
	}

	switch {
	case errors.Is(err, domain.ErrOrderRejected):
		o.advance(l, intentID, intents.StatusRejected, changes...)
	case trade != nil && trade.TxHash != (common.Hash{}):
		l.Warn("transaction outcome unknown", zap.String("tx_hash", trade.TxHash.Hex()), zap.Error(err))
		o.advance(l, intentID, intents.StatusSubmitted, changes...)
	default:
		o.advance(l, intentID, intents.StatusFailed, changes...)
	}
	return err
}

func (o *Orchestrator) raiseAlert(ctx context.Context, l *zap.Logger, intentID string, order domain.Order,
	side domain.TradeType, txHash string, cause error) *domain.ConsistencyAlert {
	alert := &domain.ConsistencyAlert{
		IntentID:   intentID,
		UserID:     order.Account.UserID,
		Symbol:     order.Symbol,
		Type:       side,
		Amount:     order.Amount,
		TxHash:     txHash,
		Cause:      cause.Error(),
		DetectedAt: o.now().UTC(),
	}

	l.Error("CONSISTENCY ALERT: trade confirmed on chain but not journaled",
		zap.String("tx_hash", txHash), zap.Error(cause))
	o.metrics.alert()
	o.advance(l, intentID, intents.StatusDiverged, intents.WithError(cause))
	o.publish(ctx, events.KindConsistencyAlert, order.Account.UserID, intentID, alert)
	return alert
}

func (o *Orchestrator) advance(l *zap.Logger, id string, status intents.Status, changes ...intents.Change) {
	if _, err := o.intents.Advance(id, status, changes...); err != nil {
		l.Error("failed to record intent transition", zap.String("status", string(status)), zap.Error(err))
	}
}

func (o *Orchestrator) fail(id string, status intents.Status, cause error) {
	o.advance(o.l.With(zap.String("intent_id", id)), id, status, intents.WithError(cause))
}

func (o *Orchestrator) publish(ctx context.Context, kind, key, intentID string, payload any) {
	err := o.publisher.Publish(ctx, events.Event{
		Kind:       kind,
		Key:        key,
		OccurredAt: o.now().UTC(),
		Payload:    map[string]any{"intent_id": intentID, "data": payload},
	})
	if err != nil {
		o.l.Warn("failed to publish audit event", zap.String("kind", kind), zap.Error(err))
	}
}

func outcome(result *domain.OrderResult, err error) string {
	switch {
	case err == nil && result.Alert != nil:
		return "diverged"
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrOrderRejected):
		return "rejected"
	case errors.Is(err, domain.ErrInfrastructureUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
