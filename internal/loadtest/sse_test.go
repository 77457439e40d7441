package loadtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/events"
	"github.com/vadiminshakov/tradeledger/internal/web"
)

type noPrices struct{}

func (noPrices) AllPrices(context.Context) []domain.PriceQuote { return nil }

func TestRunCountsPriceEvents(t *testing.T) {
	b := events.NewPriceBroadcaster(64)
	srv := httptest.NewServer(web.NewServer(":0", b, noPrices{}, nil, nil).Handler())
	defer srv.Close()

	const conns = 3
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.Eventually(t, func() bool { return b.Subscribers() == conns }, 2*time.Second, 5*time.Millisecond)
		for i := 0; i < 5; i++ {
			b.Publish(events.PriceTick{Symbol: "SOL", Price: "140", Timestamp: time.Now()})
		}
		// give readers a moment to drain, then end the run
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res, err := Run(ctx, Config{URL: srv.URL + "/prices/stream", Connections: conns}, nil)
	wg.Wait()
	require.NoError(t, err)
	assert.EqualValues(t, conns, res.Connected)
	assert.EqualValues(t, conns*5, res.Prices)
	assert.Zero(t, res.ConnectErrs)
	assert.Zero(t, res.StreamErrs)
	assert.Positive(t, res.PerSecond())
}

func TestRunCountsRefusedStreams(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res, err := Run(context.Background(), Config{URL: srv.URL, Connections: 2, Duration: time.Second}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.ConnectErrs)
	assert.Zero(t, res.Connected)
}

func TestRunValidatesConfig(t *testing.T) {
	_, err := Run(context.Background(), Config{URL: "http://x", Connections: 0}, nil)
	require.Error(t, err)
	_, err = Run(context.Background(), Config{Connections: 1}, nil)
	require.Error(t, err)
}

func TestDefaultRampUp(t *testing.T) {
	assert.Zero(t, DefaultRampUp(100))
	assert.Equal(t, time.Second, DefaultRampUp(101))
	assert.Equal(t, 4*time.Second, DefaultRampUp(2000))
}
