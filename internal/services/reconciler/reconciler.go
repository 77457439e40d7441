// Package reconciler answers balance, portfolio and history queries by
// combining the ledger contract with the journal.
package reconciler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/chain"
	"github.com/vadiminshakov/tradeledger/internal/storage/journal"
)

var hundred = decimal.NewFromInt(100)

type chainReader interface {
	BalanceOf(ctx context.Context, account common.Address, symbol string) (*big.Int, error)
	TradeByHash(ctx context.Context, hash common.Hash) (*chain.Record, error)
}

type journalReader interface {
	ListByUser(ctx context.Context, userID string) ([]domain.JournalEntry, error)
	Get(ctx context.Context, id string) (domain.JournalEntry, error)
	Balance(ctx context.Context, userID, symbol string) (decimal.Decimal, error)
}

type pricer interface {
	AllPrices(ctx context.Context) []domain.PriceQuote
}

type Engine struct {
	assets  *domain.AssetSet
	chain   chainReader
	journal journalReader
	prices  pricer
	l       *zap.Logger
}

func New(assets *domain.AssetSet, c chainReader, j journalReader, prices pricer, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Engine{assets: assets, chain: c, journal: j, prices: prices, l: l}
}

// EffectiveBalance returns the on-chain balance of a tracked asset when it is
// positive, else the journal-derived balance. Off-chain-only assets always
// come from the journal.
func (e *Engine) EffectiveBalance(ctx context.Context, account domain.Account, symbol string) (decimal.Decimal, error) {
	sym, err := e.assets.Normalize(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if !e.assets.IsOffChainOnly(sym) && e.chain != nil {
		units, err := e.chain.BalanceOf(ctx, account.Address, sym)
		switch {
		case err != nil:
			e.l.Debug("on-chain balance unavailable, using journal",
				zap.String("user_id", account.UserID), zap.String("symbol", sym), zap.Error(err))
		case units.Sign() > 0:
			return domain.FromUnits(units), nil
		}
	}

	bal, err := e.journal.Balance(ctx, account.UserID, sym)
	if err != nil {
		return decimal.Zero, domain.Unavailable("journal balance", err)
	}
	return bal, nil
}

// Portfolio values every positive holding at the current price.
func (e *Engine) Portfolio(ctx context.Context, account domain.Account) (domain.Portfolio, error) {
	quotes := e.quotes(ctx)
	p := domain.Portfolio{UserID: account.UserID, Holdings: make([]domain.Holding, 0), TotalValue: decimal.Zero}

	for _, sym := range e.assets.Symbols() {
		bal, err := e.EffectiveBalance(ctx, account, sym)
		if err != nil {
			return domain.Portfolio{}, err
		}
		if !bal.IsPositive() {
			continue
		}
		q := quotes[sym]
		value := bal.Mul(q.Price)
		p.Holdings = append(p.Holdings, domain.Holding{
			Symbol:     sym,
			Amount:     bal,
			Price:      q.Price,
			Value:      value,
			Provenance: q.Provenance,
		})
		p.TotalValue = p.TotalValue.Add(value)
	}

	if p.TotalValue.IsPositive() {
		for i := range p.Holdings {
			p.Holdings[i].Percentage = p.Holdings[i].Value.Mul(hundred).DivRound(p.TotalValue, 8)
		}
	}
	return p, nil
}

// History returns the user's journal entries, newest first, each annotated with
// its contract record and the price change since execution.
func (e *Engine) History(ctx context.Context, account domain.Account) ([]domain.HistoryItem, error) {
	entries, err := e.journal.ListByUser(ctx, account.UserID)
	if err != nil {
		return nil, domain.Unavailable("journal list", err)
	}
	if len(entries) == 0 {
		return []domain.HistoryItem{}, nil
	}

	quotes := e.quotes(ctx)
	items := make([]domain.HistoryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, e.annotate(ctx, entry, quotes[entry.Symbol]))
	}
	return items, nil
}

// Transaction returns one journal entry of the account by id.
func (e *Engine) Transaction(ctx context.Context, account domain.Account, id string) (domain.HistoryItem, error) {
	entry, err := e.journal.Get(ctx, id)
	if errors.Is(err, journal.ErrNotFound) {
		return domain.HistoryItem{}, err
	}
	if err != nil {
		return domain.HistoryItem{}, domain.Unavailable("journal get", err)
	}
	if entry.UserID != account.UserID {
		return domain.HistoryItem{}, journal.ErrNotFound
	}

	return e.annotate(ctx, entry, e.quotes(ctx)[entry.Symbol]), nil
}

func (e *Engine) annotate(ctx context.Context, entry domain.JournalEntry, q domain.PriceQuote) domain.HistoryItem {
	item := domain.HistoryItem{
		Entry:         entry,
		CurrentPrice:  q.Price,
		ChangePercent: decimal.Zero,
		Provenance:    q.Provenance,
	}
	if entry.Price.IsPositive() {
		item.ChangePercent = q.Price.Sub(entry.Price).Mul(hundred).DivRound(entry.Price, 4)
	}

	if entry.HasChainRef() && e.chain != nil {
		rec, err := e.chain.TradeByHash(ctx, common.HexToHash(entry.TxRef))
		switch {
		case err != nil:
			e.l.Debug("on-chain record unavailable", zap.String("tx_ref", entry.TxRef), zap.Error(err))
		case rec != nil:
			tx := rec.ToDomain()
			item.OnChain = &tx
		}
	}
	return item
}

func (e *Engine) quotes(ctx context.Context) map[string]domain.PriceQuote {
	all := e.prices.AllPrices(ctx)
	out := make(map[string]domain.PriceQuote, len(all))
	for _, q := range all {
		out[q.Symbol] = q
	}
	return out
}
