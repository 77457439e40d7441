package pricer

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

// HyperliquidPricer fetches mid prices from Hyperliquid public Info API.
type HyperliquidPricer struct {
	info *hyperliquid.Info
}

func NewHyperliquidPricer(info *hyperliquid.Info) *HyperliquidPricer {
	return &HyperliquidPricer{info: info}
}

// Prices returns mids keyed by base symbol. All mids come in one response.
func (p *HyperliquidPricer) Prices(ctx context.Context, pairs []domain.Pair) (map[string]decimal.Decimal, error) {
	if p.info == nil {
		return nil, fmt.Errorf("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		// mids are keyed by base coin (e.g., "BTC")
		mid, ok := mids[pair.From]
		if !ok || mid == "" {
			continue
		}
		v, err := parseDecimal("mid", mid)
		if err != nil {
			return nil, err
		}
		out[pair.From] = v
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("hyperliquid API returned no mids for %d pairs", len(pairs))
	}
	return out, nil
}

// Stats24h is not served by the mids endpoint.
func (p *HyperliquidPricer) Stats24h(ctx context.Context, pair domain.Pair) (domain.Stats24h, error) {
	return domain.Stats24h{}, ErrNotSupported
}
