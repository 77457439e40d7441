package pricecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, ok)

	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, m.Set(ctx, "BTC", Entry{Price: decimal.NewFromInt(1), Timestamp: ts}))
	require.NoError(t, m.Set(ctx, "BTC", Entry{Price: decimal.NewFromInt(2), Timestamp: ts}))

	e, ok, err := m.Get(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(2).Equal(e.Price))
}

func TestMemoryConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Set(ctx, "ETH", Entry{Price: decimal.NewFromInt(int64(i))})
		}(i)
	}
	wg.Wait()

	e, ok, _ := m.Get(ctx, "ETH")
	require.True(t, ok)
	assert.True(t, e.Price.IsPositive())
}

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "", nil), s
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, s := newRedis(t)

	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, r.Set(ctx, "SOL", Entry{Price: decimal.RequireFromString("150.25"), Timestamp: ts}))
	assert.True(t, s.Exists(defaultPrefix+"SOL"))

	e, ok, err := r.Get(ctx, "SOL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("150.25").Equal(e.Price))
	assert.True(t, ts.Equal(e.Timestamp))

	_, ok, err = r.Get(ctx, "XRP")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	r, s := newRedis(t)
	require.NoError(t, r.Set(ctx, "BTC", Entry{Price: decimal.NewFromInt(65000)}))

	other := NewRedis(redis.NewClient(&redis.Options{Addr: s.Addr()}), "", nil)
	defer other.Close()
	e, ok, err := other.Get(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(65000).Equal(e.Price))
}

func TestRedisDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	r, s := newRedis(t)

	require.NoError(t, r.Set(ctx, "BTC", Entry{Price: decimal.NewFromInt(1)}))
	s.Close()

	err := r.Set(ctx, "BTC", Entry{Price: decimal.NewFromInt(2)})
	assert.Error(t, err)

	e, ok, err := r.Get(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(2).Equal(e.Price))
}

func TestRedisCorruptPayload(t *testing.T) {
	ctx := context.Background()
	r, s := newRedis(t)
	require.NoError(t, s.Set(defaultPrefix+"ADA", "{not json"))

	_, ok, err := r.Get(ctx, "ADA")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	addr := s.Addr()

	client, err := Connect(context.Background(), addr, "", 0)
	require.NoError(t, err)
	_ = client.Close()

	s.Close()
	_, err = Connect(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
