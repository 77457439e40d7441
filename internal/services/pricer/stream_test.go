package pricer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

func TestParseTicker(t *testing.T) {
	index := pairIndex([]domain.Pair{domain.NewPair("BTC", "USDT")})

	t.Run("combined stream", func(t *testing.T) {
		u, err := parseTicker([]byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"65000.50"}}`), index)
		require.NoError(t, err)
		assert.Equal(t, "BTC", u.Symbol)
		assert.True(t, decimal.RequireFromString("65000.50").Equal(u.Price))
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), u.Timestamp)
	})

	t.Run("full ticker payload", func(t *testing.T) {
		payload := `{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT",` +
			`"p":"-94.99","P":"-0.146","w":"65010.1","x":"65095.49","c":"65000.50","Q":"0.01","b":"65000.49",` +
			`"B":"1.2","a":"65000.50","A":"0.3","o":"65095.49","h":"65500","l":"64800","v":"1500","q":"97500000",` +
			`"O":1699913600000,"C":1700000000000,"F":100,"L":200,"n":101}}`
		u, err := parseTicker([]byte(payload), index)
		require.NoError(t, err)
		assert.Equal(t, "BTC", u.Symbol)
		assert.True(t, decimal.RequireFromString("65000.50").Equal(u.Price))
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), u.Timestamp)
	})

	t.Run("raw stream", func(t *testing.T) {
		u, err := parseTicker([]byte(`{"E":1700000000000,"s":"BTCUSDT","c":"1"}`), index)
		require.NoError(t, err)
		assert.Equal(t, "BTC", u.Symbol)
	})

	for name, payload := range map[string]string{
		"not json":       `{oops`,
		"unknown symbol": `{"data":{"s":"DOGEUSDT","c":"1"}}`,
		"bad price":      `{"data":{"s":"BTCUSDT","c":"abc"}}`,
		"zero price":     `{"data":{"s":"BTCUSDT","c":"0"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseTicker([]byte(payload), index)
			assert.True(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}
}

func TestBinanceStream(t *testing.T) {
	gotQuery := make(chan string, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.Query().Get("streams")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{"E":1,"s":"ETHUSDT","c":"3500"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{"E":2,"s":"BTCUSDT","c":"65000"}}`))
		// wait for client close
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	stream := NewBinanceStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := stream.Open(ctx, []domain.Pair{domain.NewPair("BTC", "USDT"), domain.NewPair("ETH", "USDT")})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "btcusdt@ticker/ethusdt@ticker", <-gotQuery)

	u, err := conn.Next()
	require.NoError(t, err)
	assert.Equal(t, "ETH", u.Symbol)

	_, err = conn.Next()
	require.ErrorIs(t, err, ErrMalformedMessage)

	u, err = conn.Next()
	require.NoError(t, err)
	assert.Equal(t, "BTC", u.Symbol)
	assert.True(t, decimal.NewFromInt(65000).Equal(u.Price))
}

func TestBinanceStreamDialFailure(t *testing.T) {
	stream := NewBinanceStream("ws://127.0.0.1:1")
	_, err := stream.Open(context.Background(), []domain.Pair{domain.NewPair("BTC", "USDT")})
	assert.Error(t, err)

	_, err = stream.Open(context.Background(), nil)
	assert.Error(t, err)
}
