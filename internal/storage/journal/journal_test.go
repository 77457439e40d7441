package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func entry(user, symbol string, typ domain.TradeType, amount string, at time.Time) *domain.JournalEntry {
	return &domain.JournalEntry{
		UserID:    user,
		Symbol:    symbol,
		Amount:    decimal.RequireFromString(amount),
		Price:     decimal.RequireFromString("150.5"),
		Type:      typ,
		CreatedAt: at,
	}
}

func TestStores(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := entry("alice", "SOL", domain.TradeTypeBuy, "2.5", base)
			first.TxRef = "0xabc"
			require.NoError(t, store.Append(ctx, first))
			assert.NotEmpty(t, first.ID)

			second := entry("alice", "SOL", domain.TradeTypeSell, "1.000000000000000001", base.Add(time.Minute))
			require.NoError(t, store.Append(ctx, second))
			require.NoError(t, store.Append(ctx, entry("alice", "ETH", domain.TradeTypeBuy, "1", base.Add(2*time.Minute))))
			require.NoError(t, store.Append(ctx, entry("bob", "SOL", domain.TradeTypeBuy, "9", base)))

			bal, err := store.Balance(ctx, "alice", "SOL")
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("1.499999999999999999").Equal(bal), bal.String())

			bal, err = store.Balance(ctx, "carol", "SOL")
			require.NoError(t, err)
			assert.True(t, bal.IsZero())

			list, err := store.ListByUser(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "ETH", list[0].Symbol)
			assert.Equal(t, first.ID, list[2].ID)
			assert.Equal(t, "0xabc", list[2].TxRef)
			assert.Empty(t, list[1].TxRef)

			got, err := store.Get(ctx, second.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.TradeTypeSell, got.Type)
			assert.True(t, second.Amount.Equal(got.Amount))
			assert.True(t, got.CreatedAt.Equal(second.CreatedAt))

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			empty, err := store.ListByUser(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestAppendValidation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := store.Append(ctx, entry("alice", "SOL", domain.TradeTypeBuy, "0", time.Time{}))
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)

			err = store.Append(ctx, entry("", "SOL", domain.TradeTypeBuy, "1", time.Time{}))
			assert.Error(t, err)

			err = store.Append(ctx, entry("alice", "SOL", domain.TradeType("hold"), "1", time.Time{}))
			assert.Error(t, err)

			e := entry("alice", "SOL", domain.TradeTypeBuy, "1", time.Time{})
			require.NoError(t, store.Append(ctx, e))
			assert.False(t, e.CreatedAt.IsZero())

			dup := *e
			assert.Error(t, store.Append(ctx, &dup), "ids are unique")
		})
	}
}

func TestConcurrentAppends(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Append(ctx, entry("alice", "ADA", domain.TradeTypeBuy, "1", time.Time{})))
				}()
			}
			wg.Wait()

			bal, err := store.Balance(ctx, "alice", "ADA")
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(20).Equal(bal))
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, "sqlite", filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	_ = s.Close()

	_, err = Open(ctx, "mongo", "")
	assert.Error(t, err)
}
