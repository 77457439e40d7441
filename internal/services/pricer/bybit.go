package pricer

import (
	"context"
	"fmt"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

type BybitPricer struct {
	client *bybit.Client
}

func NewBybitPricer(client *bybit.Client) *BybitPricer {
	return &BybitPricer{client: client}
}

// Prices returns last spot prices keyed by base symbol. More than one pair is
// served from the full spot ticker list in a single request.
func (p *BybitPricer) Prices(ctx context.Context, pairs []domain.Pair) (map[string]decimal.Decimal, error) {
	if len(pairs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	index := pairIndex(pairs)

	param := bybit.V5GetTickersParam{Category: "spot"}
	if len(pairs) == 1 {
		symbol := bybit.SymbolV5(pairs[0].Symbol())
		param.Symbol = &symbol
	}
	result, err := p.client.V5().Market().GetTickers(param)
	if err != nil {
		return nil, err
	}
	if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return nil, fmt.Errorf("bybit API returned empty prices for %d pairs", len(pairs))
	}

	out := make(map[string]decimal.Decimal, len(pairs))
	for _, item := range result.Result.Spot.List {
		base, ok := index[string(item.Symbol)]
		if !ok {
			continue
		}
		v, err := parseDecimal("lastPrice", item.LastPrice)
		if err != nil {
			return nil, err
		}
		out[base] = v
	}
	return out, nil
}

// Stats24h derives 24h statistics from the spot ticker.
func (p *BybitPricer) Stats24h(ctx context.Context, pair domain.Pair) (domain.Stats24h, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.Stats24h{}, err
	}
	if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return domain.Stats24h{}, fmt.Errorf("bybit API returned empty ticker for %s", pair.String())
	}
	item := result.Result.Spot.List[0]

	out := domain.Stats24h{Symbol: pair.From, Timestamp: time.Now().UTC()}
	var prev, pcnt decimal.Decimal
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"lastPrice", item.LastPrice, &out.LastPrice},
		{"prevPrice24h", item.PrevPrice24H, &prev},
		{"price24hPcnt", item.Price24HPcnt, &pcnt},
		{"highPrice24h", item.HighPrice24H, &out.High},
		{"lowPrice24h", item.LowPrice24H, &out.Low},
		{"volume24h", item.Volume24H, &out.Volume},
		{"turnover24h", item.Turnover24H, &out.QuoteVolume},
	}
	for _, f := range fields {
		v, err := parseDecimal(f.name, f.raw)
		if err != nil {
			return domain.Stats24h{}, err
		}
		*f.dst = v
	}
	out.PriceChange = out.LastPrice.Sub(prev)
	// bybit reports the change as a fraction
	out.PriceChangePercent = pcnt.Mul(decimal.NewFromInt(100))
	return out, nil
}
