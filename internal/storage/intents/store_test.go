package intents

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

func sample() Intent {
	return Intent{
		UserID: "alice",
		Side:   domain.TradeTypeBuy,
		Symbol: "SOL",
		Amount: decimal.NewFromInt(2),
		Route:  domain.RouteOnChain,
	}
}

func TestLifecycleAndReplay(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	in, err := s.Prepare(sample())
	require.NoError(t, err)
	assert.NotEmpty(t, in.ID)
	assert.Equal(t, StatusPending, in.Status)

	_, err = s.Advance(in.ID, StatusSubmitted, WithTxHash("0xfeed"))
	require.NoError(t, err)

	other, err := s.Prepare(sample())
	require.NoError(t, err)
	_, err = s.Advance(other.ID, StatusRejected, WithError(errors.New("insufficient payment")))
	require.NoError(t, err)

	require.NoError(t, s.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, got.Status)
	assert.Equal(t, "0xfeed", got.TxHash)
	assert.True(t, decimal.NewFromInt(2).Equal(got.Amount))

	got, err = reopened.Get(other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, "insufficient payment", got.Error)

	open := reopened.ByStatus(StatusSubmitted, StatusDiverged)
	require.Len(t, open, 1)
	assert.Equal(t, in.ID, open[0].ID)
}

func TestAdvanceUnknown(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Advance("nope", StatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentPrepare(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, err := s.Prepare(sample())
			if assert.NoError(t, err) {
				_, err = s.Advance(in.ID, StatusJournaled, WithEntryID("e"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.ByStatus(StatusJournaled), 16)
	assert.Empty(t, s.ByStatus(StatusPending))
}

func TestStatusOpen(t *testing.T) {
	assert.True(t, StatusSubmitted.Open())
	assert.True(t, StatusConfirmed.Open())
	assert.False(t, StatusJournaled.Open())
	assert.False(t, StatusRejected.Open())
	assert.False(t, StatusDiverged.Open())
}
