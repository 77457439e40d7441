package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tradeledger/config"
	"github.com/vadiminshakov/tradeledger/internal/clients"
	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/pricer"
)

type priceService interface {
	Prices(ctx context.Context, pairs []domain.Pair) (map[string]decimal.Decimal, error)
	Stats24h(ctx context.Context, pair domain.Pair) (domain.Stats24h, error)
}

type streamService interface {
	Open(ctx context.Context, pairs []domain.Pair) (pricer.StreamConn, error)
}

// priceProvider creates platform-specific price services.
type priceProvider interface {
	Pricer() (priceService, error)
	// Stream returns nil when the platform has no push feed.
	Stream() streamService
}

// newPriceProvider is the single point of dispatch to platform implementations.
func newPriceProvider(cfg config.OracleConfig, secrets config.Secrets) (priceProvider, error) {
	switch cfg.Platform {
	case config.PlatformBinance:
		return &binanceProvider{
			apiKey:    secrets.BinanceAPIKey,
			apiSecret: secrets.BinanceAPISecret,
			stream:    cfg.Stream,
			streamURL: cfg.StreamURL,
		}, nil
	case config.PlatformBybit:
		return &bybitProvider{apiKey: secrets.BybitAPIKey, apiSecret: secrets.BybitAPISecret}, nil
	case config.PlatformHyperliquid:
		return &hyperliquidProvider{privateKey: secrets.HyperliquidKey}, nil
	default:
		return nil, errUnsupportedPlatform(cfg.Platform)
	}
}

type binanceProvider struct {
	apiKey, apiSecret string
	stream            bool
	streamURL         string
}

func (p *binanceProvider) Pricer() (priceService, error) {
	return pricer.NewBinancePricer(clients.NewBinanceClient(p.apiKey, p.apiSecret)), nil
}

func (p *binanceProvider) Stream() streamService {
	if !p.stream {
		return nil
	}
	return pricer.NewBinanceStream(p.streamURL)
}

type bybitProvider struct {
	apiKey, apiSecret string
}

func (p *bybitProvider) Pricer() (priceService, error) {
	return pricer.NewBybitPricer(clients.NewBybitClient(p.apiKey, p.apiSecret)), nil
}

func (p *bybitProvider) Stream() streamService { return nil }

type hyperliquidProvider struct {
	privateKey string
}

func (p *hyperliquidProvider) Pricer() (priceService, error) {
	c, err := clients.NewHyperliquidClient(p.privateKey, "")
	if err != nil {
		return nil, err
	}
	return pricer.NewHyperliquidPricer(c.Info()), nil
}

func (p *hyperliquidProvider) Stream() streamService { return nil }
