package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectionError(t *testing.T) {
	t.Run("known reason unwraps to sentinel", func(t *testing.T) {
		err := errors.Wrap(NewRejection("InsufficientBalance"), "sell")
		assert.True(t, errors.Is(err, ErrOrderRejected))
		assert.True(t, errors.Is(err, ErrInsufficientBalance))
		assert.False(t, errors.Is(err, ErrInsufficientPayment))
	})

	t.Run("unknown reason is kept verbatim", func(t *testing.T) {
		err := NewRejection("Unauthorized")
		assert.True(t, errors.Is(err, ErrOrderRejected))
		assert.Contains(t, err.Error(), "Unauthorized")
		assert.Nil(t, err.Unwrap())
	})
}

func TestUnavailable(t *testing.T) {
	assert.Nil(t, Unavailable("submit", nil))

	cause := errors.New("connection refused")
	err := Unavailable("submit", cause)
	assert.True(t, errors.Is(err, ErrInfrastructureUnavailable))
	assert.True(t, errors.Is(err, cause))
}

func TestUnits(t *testing.T) {
	v, err := ToUnits(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())
	assert.True(t, FromUnits(v).Equal(decimal.RequireFromString("1.5")))

	v, err = ToUnits(decimal.RequireFromString("0.0000000000000000019"))
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())

	_, err = ToUnits(decimal.NewFromInt(-1))
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	assert.True(t, FromUnits(nil).IsZero())

	assert.True(t, Representable(decimal.RequireFromString("0.000000000000000001")))
	assert.True(t, Representable(decimal.RequireFromString("1.00000000000000000000")))
	assert.False(t, Representable(decimal.RequireFromString("1.0000000000000000009")))
	assert.False(t, Representable(decimal.RequireFromString("0.0000000000000000001")))
}

func TestAssetSet(t *testing.T) {
	s := DefaultAssetSet()
	assert.Len(t, s.Symbols(), 8)
	assert.Equal(t, []string{"BNB", "SOL", "XRP", "ADA", "DOGE", "DOT"}, s.Tracked())
	assert.True(t, s.IsOffChainOnly("eth"))
	assert.Equal(t, RouteOffChain, s.RouteOf("BTC"))
	assert.Equal(t, RouteOnChain, s.RouteOf("SOL"))
	assert.Equal(t, "SOLUSDT", s.Pair("sol").Symbol())

	sym, err := s.Normalize(" doge ")
	require.NoError(t, err)
	assert.Equal(t, "DOGE", sym)

	_, err = s.Normalize("SHIB")
	assert.True(t, errors.Is(err, ErrUnsupportedAsset))

	_, err = NewAssetSet([]string{"BTC"}, "ETH", "BTC", "USDT")
	assert.Error(t, err)
}
