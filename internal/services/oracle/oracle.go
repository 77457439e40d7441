// Package oracle serves asset prices with graceful degradation: live upstream
// price, else last cached price, else a fixed fallback.
package oracle

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/pricer"
	"github.com/vadiminshakov/tradeledger/internal/storage/pricecache"
)

// ErrNoStream the oracle was built without a push stream.
var ErrNoStream = errors.New("price stream is not configured")

type upstream interface {
	Prices(ctx context.Context, pairs []domain.Pair) (map[string]decimal.Decimal, error)
	Stats24h(ctx context.Context, pair domain.Pair) (domain.Stats24h, error)
}

type streamer interface {
	Open(ctx context.Context, pairs []domain.Pair) (pricer.StreamConn, error)
}

type cache interface {
	Set(ctx context.Context, symbol string, e pricecache.Entry) error
	Get(ctx context.Context, symbol string) (pricecache.Entry, bool, error)
}

type Oracle struct {
	assets   *domain.AssetSet
	upstream upstream
	stream   streamer
	cache    cache
	fallback map[string]decimal.Decimal
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
}

type Option func(*Oracle)

func WithStream(s streamer) Option { return func(o *Oracle) { o.stream = s } }

func WithLogger(l *zap.Logger) Option { return func(o *Oracle) { o.logger = l } }

func WithMetrics(m *Metrics) Option { return func(o *Oracle) { o.metrics = m } }

func WithClock(now func() time.Time) Option { return func(o *Oracle) { o.now = now } }

// WithFallback overrides entries of the fallback table.
func WithFallback(prices map[string]decimal.Decimal) Option {
	return func(o *Oracle) {
		for k, v := range prices {
			if v.IsPositive() {
				o.fallback[k] = v
			}
		}
	}
}

// New builds the oracle. The cache is owned by the caller and may be shared.
func New(assets *domain.AssetSet, up upstream, c cache, opts ...Option) *Oracle {
	o := &Oracle{
		assets:   assets,
		upstream: up,
		cache:    c,
		fallback: FallbackPrices(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = pricecache.NewMemory()
	}
	for _, s := range assets.Symbols() {
		if _, ok := o.fallback[s]; !ok {
			o.logger.Warn("no fallback price for symbol, using placeholder", zap.String("symbol", s))
			o.fallback[s] = placeholderPrice
		}
	}
	return o
}

// Price returns the current price of symbol. Upstream failures never surface;
// only an unsupported symbol is an error.
func (o *Oracle) Price(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	sym, err := o.assets.Normalize(symbol)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	prices, err := o.fetch(ctx, "price", []domain.Pair{o.assets.Pair(sym)})
	if err == nil {
		if p, ok := prices[sym]; ok {
			return o.live(ctx, sym, p), nil
		}
		err = errors.Errorf("upstream returned no price for %s", sym)
	}
	o.logger.Warn("live price unavailable, degrading", zap.String("symbol", sym), zap.Error(err))

	return o.degrade(ctx, sym), nil
}

// AllPrices returns a quote for every supported symbol, in configured order,
// from one batched upstream request.
func (o *Oracle) AllPrices(ctx context.Context) []domain.PriceQuote {
	symbols := o.assets.Symbols()
	pairs := make([]domain.Pair, 0, len(symbols))
	for _, s := range symbols {
		pairs = append(pairs, o.assets.Pair(s))
	}

	prices, err := o.fetch(ctx, "all_prices", pairs)
	if err != nil {
		o.logger.Warn("batch price request failed, degrading", zap.Error(err))
	}

	out := make([]domain.PriceQuote, 0, len(symbols))
	for _, s := range symbols {
		if p, ok := prices[s]; ok {
			out = append(out, o.live(ctx, s, p))
			continue
		}
		out = append(out, o.degrade(ctx, s))
	}
	return out
}

// Stats24h returns rolling statistics, synthesized from Price when the
// upstream cannot serve them.
func (o *Oracle) Stats24h(ctx context.Context, symbol string) (domain.Stats24h, error) {
	sym, err := o.assets.Normalize(symbol)
	if err != nil {
		return domain.Stats24h{}, err
	}

	stats, err := o.upstream.Stats24h(ctx, o.assets.Pair(sym))
	o.metrics.upstream("stats24h", err)
	if err == nil && stats.LastPrice.IsPositive() {
		stats.Symbol = sym
		stats.Provenance = domain.ProvenanceLive
		if stats.Timestamp.IsZero() {
			stats.Timestamp = o.now().UTC()
		}
		o.store(ctx, sym, stats.LastPrice, stats.Timestamp)
		return stats, nil
	}
	if err == nil {
		err = errors.Errorf("upstream returned empty stats for %s", sym)
	}
	o.logger.Warn("24h stats unavailable, synthesizing", zap.String("symbol", sym), zap.Error(err))

	q, _ := o.Price(ctx, sym)
	return domain.Stats24h{
		Symbol:     sym,
		LastPrice:  q.Price,
		High:       q.Price,
		Low:        q.Price,
		Timestamp:  q.Timestamp,
		Provenance: q.Provenance,
	}, nil
}

func (o *Oracle) fetch(ctx context.Context, op string, pairs []domain.Pair) (map[string]decimal.Decimal, error) {
	prices, err := o.upstream.Prices(ctx, pairs)
	o.metrics.upstream(op, err)
	if err != nil {
		return nil, err
	}
	for s, p := range prices {
		if !p.IsPositive() {
			delete(prices, s)
		}
	}
	return prices, nil
}

func (o *Oracle) live(ctx context.Context, sym string, price decimal.Decimal) domain.PriceQuote {
	now := o.now().UTC()
	o.store(ctx, sym, price, now)
	o.metrics.served(domain.ProvenanceLive)
	return domain.PriceQuote{Symbol: sym, Price: price, Timestamp: now, Provenance: domain.ProvenanceLive}
}

func (o *Oracle) store(ctx context.Context, sym string, price decimal.Decimal, ts time.Time) {
	if err := o.cache.Set(ctx, sym, pricecache.Entry{Price: price, Timestamp: ts}); err != nil {
		o.logger.Debug("cache write failed", zap.String("symbol", sym), zap.Error(err))
	}
}

func (o *Oracle) degrade(ctx context.Context, sym string) domain.PriceQuote {
	e, ok, err := o.cache.Get(ctx, sym)
	if err != nil {
		o.logger.Debug("cache read failed", zap.String("symbol", sym), zap.Error(err))
	}
	if ok && e.Price.IsPositive() {
		o.metrics.served(domain.ProvenanceCached)
		return domain.PriceQuote{Symbol: sym, Price: e.Price, Timestamp: e.Timestamp, Provenance: domain.ProvenanceCached}
	}

	o.metrics.served(domain.ProvenanceFallback)
	return domain.PriceQuote{
		Symbol:     sym,
		Price:      o.fallback[sym],
		Timestamp:  o.now().UTC(),
		Provenance: domain.ProvenanceFallback,
	}
}
