package pricesync

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/chain"
	"github.com/vadiminshakov/tradeledger/pkg/retrier"
)

type mockPricer struct{ mock.Mock }

func (m *mockPricer) Price(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.PriceQuote), args.Error(1)
}

type mockContract struct{ mock.Mock }

func (m *mockContract) ListAssets(ctx context.Context) ([]chain.AssetInfo, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]chain.AssetInfo)
	return list, args.Error(1)
}

func (m *mockContract) UpdatePrice(ctx context.Context, key *ecdsa.PrivateKey, symbol string, price *big.Int) (*chain.Outcome, error) {
	args := m.Called(ctx, key, symbol, price)
	out, _ := args.Get(0).(*chain.Outcome)
	return out, args.Error(1)
}

func units(s string) *big.Int {
	u, err := domain.ToUnits(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return u
}

func unitsMatcher(s string) interface{} {
	want := units(s)
	return mock.MatchedBy(func(actual *big.Int) bool { return actual.Cmp(want) == 0 })
}

func quote(symbol, price string, p domain.Provenance) domain.PriceQuote {
	return domain.PriceQuote{Symbol: symbol, Price: decimal.RequireFromString(price), Provenance: p}
}

func newSyncer(t *testing.T, p *mockPricer, c *mockContract) (*Syncer, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := New(domain.DefaultAssetSet(), p, c, key, nil,
		WithRetrier(retrier.New(
			retrier.WithInitialInterval(time.Millisecond),
			retrier.WithMaxRetries(2),
			retrier.WithRetryIf(retryable),
		)))
	require.NoError(t, err)
	return s, key
}

func TestSyncConvertsUSDToSettlementUnits(t *testing.T) {
	p, c := &mockPricer{}, &mockContract{}
	s, key := newSyncer(t, p, c)

	c.On("ListAssets", mock.Anything).Return([]chain.AssetInfo{
		{Symbol: "SOL", Price: units("0.03"), Active: true},
		{Symbol: "ADA", Price: units("0.0001"), Active: false},
	}, nil)
	p.On("Price", mock.Anything, "ETH").Return(quote("ETH", "3500", domain.ProvenanceLive), nil)
	p.On("Price", mock.Anything, "SOL").Return(quote("SOL", "140", domain.ProvenanceCached), nil)
	c.On("UpdatePrice", mock.Anything, key, "SOL", unitsMatcher("0.04")).Return(&chain.Outcome{}, nil).Once()

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Updated, 1)
	assert.Equal(t, "SOL", report.Updated[0].Symbol)
	assert.True(t, decimal.RequireFromString("0.03").Equal(report.Updated[0].Old))
	assert.True(t, decimal.RequireFromString("0.04").Equal(report.Updated[0].New))

	c.AssertExpectations(t)
	p.AssertNotCalled(t, "Price", mock.Anything, "ADA")
}

func TestSyncNeverWritesFallbackPrices(t *testing.T) {
	p, c := &mockPricer{}, &mockContract{}
	s, _ := newSyncer(t, p, c)

	c.On("ListAssets", mock.Anything).Return([]chain.AssetInfo{
		{Symbol: "SOL", Price: units("0.03"), Active: true},
		{Symbol: "DOT", Price: units("0.002"), Active: true},
	}, nil)
	p.On("Price", mock.Anything, "ETH").Return(quote("ETH", "3500", domain.ProvenanceLive), nil)
	p.On("Price", mock.Anything, "SOL").Return(quote("SOL", "150", domain.ProvenanceFallback), nil)
	p.On("Price", mock.Anything, "DOT").Return(quote("DOT", "7", domain.ProvenanceLive), nil)

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL"}, report.Skipped)
	assert.Equal(t, []string{"DOT"}, report.Unchanged)
	c.AssertNotCalled(t, "UpdatePrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncSkipsEverythingWithoutSettlementPrice(t *testing.T) {
	p, c := &mockPricer{}, &mockContract{}
	s, _ := newSyncer(t, p, c)

	c.On("ListAssets", mock.Anything).Return([]chain.AssetInfo{{Symbol: "SOL", Price: units("0.03"), Active: true}}, nil)
	p.On("Price", mock.Anything, "ETH").Return(quote("ETH", "3500", domain.ProvenanceFallback), nil)

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL"}, report.Skipped)
	p.AssertNotCalled(t, "Price", mock.Anything, "SOL")
}

func TestSyncRetriesTransportFailures(t *testing.T) {
	p, c := &mockPricer{}, &mockContract{}
	s, _ := newSyncer(t, p, c)

	c.On("ListAssets", mock.Anything).Return([]chain.AssetInfo{{Symbol: "SOL", Price: units("0.03"), Active: true}}, nil)
	p.On("Price", mock.Anything, "ETH").Return(quote("ETH", "3500", domain.ProvenanceLive), nil)
	p.On("Price", mock.Anything, "SOL").Return(quote("SOL", "140", domain.ProvenanceLive), nil)
	c.On("UpdatePrice", mock.Anything, mock.Anything, "SOL", mock.Anything).
		Return(nil, domain.Unavailable("send", errors.New("connection reset"))).Once()
	c.On("UpdatePrice", mock.Anything, mock.Anything, "SOL", mock.Anything).Return(&chain.Outcome{}, nil).Once()

	report, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Updated, 1)
	c.AssertNumberOfCalls(t, "UpdatePrice", 2)
}

func TestSyncDoesNotRetryReverts(t *testing.T) {
	p, c := &mockPricer{}, &mockContract{}
	s, _ := newSyncer(t, p, c)

	c.On("ListAssets", mock.Anything).Return([]chain.AssetInfo{{Symbol: "SOL", Price: units("0.03"), Active: true}}, nil)
	p.On("Price", mock.Anything, "ETH").Return(quote("ETH", "3500", domain.ProvenanceLive), nil)
	p.On("Price", mock.Anything, "SOL").Return(quote("SOL", "140", domain.ProvenanceLive), nil)
	c.On("UpdatePrice", mock.Anything, mock.Anything, "SOL", mock.Anything).
		Return(nil, domain.NewRejection("NotOwner")).Once()

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	c.AssertNumberOfCalls(t, "UpdatePrice", 1)
}

func TestSyncListFailure(t *testing.T) {
	p, c := &mockPricer{}, &mockContract{}
	s, _ := newSyncer(t, p, c)
	c.On("ListAssets", mock.Anything).Return(nil, domain.Unavailable("call", errors.New("rpc down")))

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, domain.ErrInfrastructureUnavailable)
}

func TestNewRequiresAdminKey(t *testing.T) {
	_, err := New(domain.DefaultAssetSet(), &mockPricer{}, &mockContract{}, nil, nil)
	assert.Error(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	p, c := &mockPricer{}, &mockContract{}
	s, _ := newSyncer(t, p, c)
	c.On("ListAssets", mock.Anything).Return([]chain.AssetInfo{}, nil)
	p.On("Price", mock.Anything, "ETH").Return(quote("ETH", "3500", domain.ProvenanceLive), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Run(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, len(c.Calls), 2)
}
