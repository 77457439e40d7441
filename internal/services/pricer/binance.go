package pricer

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// BinancePricer fetches prices from the Binance public market data API.
type BinancePricer struct {
	client *binance.Client
}

func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{client: client}
}

// Prices returns last prices keyed by base symbol in one round trip.
func (p *BinancePricer) Prices(ctx context.Context, pairs []domain.Pair) (map[string]decimal.Decimal, error) {
	if len(pairs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	index := pairIndex(pairs)

	svc := p.client.NewListPricesService()
	if len(pairs) == 1 {
		svc = svc.Symbol(pairs[0].Symbol())
	} else {
		symbols := make([]string, 0, len(pairs))
		for _, pair := range pairs {
			symbols = append(symbols, pair.Symbol())
		}
		svc = svc.Symbols(symbols)
	}

	prices, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("binance API returned empty prices for %d pairs", len(pairs))
	}

	out := make(map[string]decimal.Decimal, len(prices))
	for _, price := range prices {
		base, ok := index[price.Symbol]
		if !ok {
			continue
		}
		v, err := parseDecimal("price", price.Price)
		if err != nil {
			return nil, err
		}
		out[base] = v
	}
	return out, nil
}

// Stats24h returns rolling 24h statistics of the pair.
func (p *BinancePricer) Stats24h(ctx context.Context, pair domain.Pair) (domain.Stats24h, error) {
	stats, err := p.client.NewListPriceChangeStatsService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return domain.Stats24h{}, err
	}
	if len(stats) == 0 {
		return domain.Stats24h{}, fmt.Errorf("binance API returned empty stats for %s", pair.String())
	}
	s := stats[0]

	out := domain.Stats24h{Symbol: pair.From, Timestamp: time.UnixMilli(s.CloseTime).UTC()}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"lastPrice", s.LastPrice, &out.LastPrice},
		{"priceChange", s.PriceChange, &out.PriceChange},
		{"priceChangePercent", s.PriceChangePercent, &out.PriceChangePercent},
		{"highPrice", s.HighPrice, &out.High},
		{"lowPrice", s.LowPrice, &out.Low},
		{"volume", s.Volume, &out.Volume},
		{"quoteVolume", s.QuoteVolume, &out.QuoteVolume},
	}
	for _, f := range fields {
		v, err := parseDecimal(f.name, f.raw)
		if err != nil {
			return domain.Stats24h{}, err
		}
		*f.dst = v
	}
	return out, nil
}
