package reconciler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/chain"
	"github.com/vadiminshakov/tradeledger/internal/storage/journal"
)

type fakeChain struct {
	balances map[string]*big.Int
	records  map[common.Hash]*chain.Record
	err      error
}

func (f *fakeChain) BalanceOf(_ context.Context, _ common.Address, symbol string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.balances[symbol]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) TradeByHash(_ context.Context, hash common.Hash) (*chain.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[hash], nil
}

type fixedPrices map[string]decimal.Decimal

func (p fixedPrices) AllPrices(context.Context) []domain.PriceQuote {
	out := make([]domain.PriceQuote, 0, len(p))
	for s, v := range p {
		out = append(out, domain.PriceQuote{Symbol: s, Price: v, Provenance: domain.ProvenanceLive})
	}
	return out
}

func units(s string) *big.Int {
	u, err := domain.ToUnits(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return u
}

var alice = domain.Account{UserID: "alice", Address: common.HexToAddress("0xa11ce")}

func appendEntry(t *testing.T, j journal.Store, symbol string, typ domain.TradeType, amount, price, txRef string) domain.JournalEntry {
	t.Helper()
	e := &domain.JournalEntry{
		UserID: alice.UserID,
		Symbol: symbol,
		Amount: decimal.RequireFromString(amount),
		Price:  decimal.RequireFromString(price),
		Type:   typ,
		TxRef:  txRef,
	}
	require.NoError(t, j.Append(context.Background(), e))
	return *e
}

func TestEffectiveBalance(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	appendEntry(t, j, "SOL", domain.TradeTypeBuy, "5", "150", "")
	appendEntry(t, j, "BTC", domain.TradeTypeBuy, "2", "65000", "")
	appendEntry(t, j, "BTC", domain.TradeTypeSell, "0.5", "65000", "")

	c := &fakeChain{balances: map[string]*big.Int{"SOL": units("3"), "BTC": units("100")}}
	e := New(domain.DefaultAssetSet(), c, j, fixedPrices{}, nil)

	t.Run("tracked prefers positive chain balance", func(t *testing.T) {
		bal, err := e.EffectiveBalance(ctx, alice, "sol")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(3).Equal(bal))
	})

	t.Run("tracked with zero chain balance uses journal", func(t *testing.T) {
		appendEntry(t, j, "ADA", domain.TradeTypeBuy, "10", "0.45", "")
		bal, err := e.EffectiveBalance(ctx, alice, "ADA")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(10).Equal(bal))
	})

	t.Run("off-chain-only ignores chain", func(t *testing.T) {
		bal, err := e.EffectiveBalance(ctx, alice, "BTC")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("1.5").Equal(bal))
	})

	t.Run("chain failure falls back to journal", func(t *testing.T) {
		broken := New(domain.DefaultAssetSet(), &fakeChain{err: errors.New("node down")}, j, fixedPrices{}, nil)
		bal, err := broken.EffectiveBalance(ctx, alice, "SOL")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(5).Equal(bal))
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := e.EffectiveBalance(ctx, alice, "SHIB")
		assert.ErrorIs(t, err, domain.ErrUnsupportedAsset)
	})
}

func TestPortfolioPercentages(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	appendEntry(t, j, "BTC", domain.TradeTypeBuy, "1", "60000", "")
	appendEntry(t, j, "ETH", domain.TradeTypeBuy, "3", "3000", "")
	appendEntry(t, j, "ETH", domain.TradeTypeSell, "3", "3000", "")

	c := &fakeChain{balances: map[string]*big.Int{"SOL": units("7"), "DOT": units("3")}}
	prices := fixedPrices{
		"BTC": decimal.NewFromInt(65000), "ETH": decimal.NewFromInt(3500),
		"SOL": decimal.NewFromInt(150), "DOT": decimal.RequireFromString("7.2"),
	}
	e := New(domain.DefaultAssetSet(), c, j, prices, nil)

	p, err := e.Portfolio(ctx, alice)
	require.NoError(t, err)
	require.Len(t, p.Holdings, 3, "zero balances are excluded")

	sum := decimal.Zero
	symbols := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		symbols = append(symbols, h.Symbol)
		sum = sum.Add(h.Percentage)
		assert.True(t, h.Value.Equal(h.Amount.Mul(h.Price)))
	}
	assert.Equal(t, []string{"BTC", "SOL", "DOT"}, symbols)
	assert.True(t, decimal.NewFromInt(66071).Add(decimal.RequireFromString("0.6")).Equal(p.TotalValue), p.TotalValue.String())
	assert.True(t, sum.Sub(hundred).Abs().LessThan(decimal.RequireFromString("0.0001")), sum.String())
}

func TestPortfolioEmpty(t *testing.T) {
	e := New(domain.DefaultAssetSet(), &fakeChain{}, journal.NewMemory(), fixedPrices{}, nil)
	p, err := e.Portfolio(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, p.Holdings)
	assert.True(t, p.TotalValue.IsZero())
}

func TestHistoryAnnotation(t *testing.T) {
	ctx := context.Background()
	j := journal.NewMemory()
	hash := common.HexToHash("0x01")
	first := appendEntry(t, j, "SOL", domain.TradeTypeBuy, "2", "100", hash.Hex())
	time.Sleep(2 * time.Millisecond)
	second := appendEntry(t, j, "BTC", domain.TradeTypeBuy, "1", "50000", "")

	c := &fakeChain{records: map[common.Hash]*chain.Record{
		hash: {ID: 1, Account: alice.Address, Symbol: "SOL", Amount: units("2"), Price: units("0.04"), IsBuy: true, Timestamp: 1700000000, Completed: true},
	}}
	prices := fixedPrices{"SOL": decimal.NewFromInt(150), "BTC": decimal.NewFromInt(40000)}
	e := New(domain.DefaultAssetSet(), c, j, prices, nil)

	items, err := e.History(ctx, alice)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, second.ID, items[0].Entry.ID, "newest first")
	assert.Nil(t, items[0].OnChain)
	assert.True(t, decimal.NewFromInt(-20).Equal(items[0].ChangePercent), items[0].ChangePercent.String())

	assert.Equal(t, first.ID, items[1].Entry.ID)
	require.NotNil(t, items[1].OnChain)
	assert.Equal(t, uint64(1), items[1].OnChain.ID)
	assert.True(t, decimal.RequireFromString("0.04").Equal(items[1].OnChain.Price))
	assert.True(t, decimal.NewFromInt(50).Equal(items[1].ChangePercent))

	item, err := e.Transaction(ctx, alice, first.ID)
	require.NoError(t, err)
	require.NotNil(t, item.OnChain)

	_, err = e.Transaction(ctx, domain.Account{UserID: "mallory"}, first.ID)
	assert.ErrorIs(t, err, journal.ErrNotFound)
	_, err = e.Transaction(ctx, alice, "missing")
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestHistoryChainUnavailable(t *testing.T) {
	j := journal.NewMemory()
	appendEntry(t, j, "SOL", domain.TradeTypeBuy, "2", "100", common.HexToHash("0x02").Hex())

	e := New(domain.DefaultAssetSet(), &fakeChain{err: errors.New("down")}, j, fixedPrices{"SOL": decimal.NewFromInt(100)}, nil)
	items, err := e.History(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].OnChain)
	assert.True(t, items[0].ChangePercent.IsZero())
}
