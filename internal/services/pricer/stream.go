package pricer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// DefaultBinanceStreamURL is the combined-stream endpoint of Binance spot.
const DefaultBinanceStreamURL = "wss://stream.binance.com:9443"

// BinanceStream opens combined 24h ticker streams.
type BinanceStream struct {
	baseURL string
	dialer  *websocket.Dialer
}

func NewBinanceStream(baseURL string) *BinanceStream {
	if baseURL == "" {
		baseURL = DefaultBinanceStreamURL
	}
	return &BinanceStream{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  websocket.DefaultDialer,
	}
}

// Open subscribes to ticker streams of pairs.
func (s *BinanceStream) Open(ctx context.Context, pairs []domain.Pair) (StreamConn, error) {
	if len(pairs) == 0 {
		return nil, errors.New("no pairs to stream")
	}

	streams := make([]string, 0, len(pairs))
	for _, p := range pairs {
		streams = append(streams, strings.ToLower(p.Symbol())+"@ticker")
	}
	endpoint := s.baseURL + "/stream?streams=" + strings.Join(streams, "/")

	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", s.baseURL)
	}
	return &binanceConn{conn: conn, index: pairIndex(pairs)}, nil
}

type binanceConn struct {
	conn  *websocket.Conn
	index map[string]string
}

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerEvent names both keys of every pair that differs only in case,
// encoding/json would otherwise fold "e" into E, "C" into c and so on.
type tickerEvent struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	LastPrice   string `json:"c"`
	CloseTime   int64  `json:"C"`
	Open        string `json:"o"`
	OpenTime    int64  `json:"O"`
	QuoteVolume string `json:"q"`
	LastQty     string `json:"Q"`
	Change      string `json:"p"`
	ChangePct   string `json:"P"`
	Bid         string `json:"b"`
	BidQty      string `json:"B"`
	Ask         string `json:"a"`
	AskQty      string `json:"A"`
	Low         string `json:"l"`
	LastTradeID int64  `json:"L"`
}

func (c *binanceConn) Next() (domain.PriceUpdate, error) {
	kind, payload, err := c.conn.ReadMessage()
	if err != nil {
		return domain.PriceUpdate{}, err
	}
	if kind != websocket.TextMessage {
		return domain.PriceUpdate{}, errors.Wrap(ErrMalformedMessage, "non-text frame")
	}
	return parseTicker(payload, c.index)
}

func (c *binanceConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func parseTicker(payload []byte, index map[string]string) (domain.PriceUpdate, error) {
	var msg combinedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.PriceUpdate{}, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	// raw (non-combined) streams carry the event at the top level
	data := msg.Data
	if len(data) == 0 {
		data = payload
	}

	var ev tickerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.PriceUpdate{}, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	base, ok := index[ev.Symbol]
	if !ok {
		return domain.PriceUpdate{}, errors.Wrapf(ErrMalformedMessage, "unexpected symbol %q", ev.Symbol)
	}
	price, err := parseDecimal("c", ev.LastPrice)
	if err != nil || !price.IsPositive() {
		return domain.PriceUpdate{}, errors.Wrapf(ErrMalformedMessage, "bad price %q", ev.LastPrice)
	}

	ts := time.Now().UTC()
	if ev.EventTime > 0 {
		ts = time.UnixMilli(ev.EventTime).UTC()
	}
	return domain.PriceUpdate{Symbol: base, Price: price, Timestamp: ts}, nil
}
