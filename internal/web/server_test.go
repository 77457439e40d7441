package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/events"
)

type staticPrices []domain.PriceQuote

func (p staticPrices) AllPrices(context.Context) []domain.PriceQuote { return p }

func newTestServer(t *testing.T) (*Server, *events.PriceBroadcaster, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	b := events.NewPriceBroadcaster(8)
	prices := staticPrices{{Symbol: "BTC", Price: decimal.NewFromInt(65000), Provenance: domain.ProvenanceFallback}}
	return NewServer(":0", b, prices, reg, nil), b, reg
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Checks["journal"] = func(context.Context) error { return errors.New("connection refused") }
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "connection refused", body.Checks["journal"])
}

func TestMetricsExposeRegistry(t *testing.T) {
	s, _, reg := newTestServer(t)
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "orders_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orders_total 3")
}

func TestPricesSnapshot(t *testing.T) {
	s, _, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/prices")
	require.NoError(t, err)
	defer resp.Body.Close()

	var quotes []domain.PriceQuote
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&quotes))
	require.Len(t, quotes, 1)
	assert.Equal(t, domain.ProvenanceFallback, quotes[0].Provenance)
	assert.True(t, decimal.NewFromInt(65000).Equal(quotes[0].Price))
}

func TestPriceStream(t *testing.T) {
	s, b, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/prices/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	b.Publish(events.PriceTick{Symbol: "SOL", Price: "140.5", Timestamp: time.Unix(1700000000, 0).UTC()})

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, "price", event)

	var tick events.PriceTick
	require.NoError(t, json.Unmarshal([]byte(data), &tick))
	assert.Equal(t, "SOL", tick.Symbol)
	assert.Equal(t, "140.5", tick.Price)

	cancel()
	require.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPriceStreamUnavailable(t *testing.T) {
	s := NewServer(":0", nil, nil, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/prices/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCertManagerRestrictsHosts(t *testing.T) {
	_, err := newCertManager(nil, t.TempDir())
	require.Error(t, err)

	m, err := newCertManager([]string{"ops.example.com"}, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.HostPolicy(context.Background(), "ops.example.com"))
	assert.Error(t, m.HostPolicy(context.Background(), "evil.example.com"))
}

func TestStartWithAutoTLSNeedsDomains(t *testing.T) {
	s, _, _ := newTestServer(t)
	err := s.StartWithAutoTLS(context.Background(), nil, "")
	require.Error(t, err)
}
