// Package pricesync pushes oracle prices into the ledger contract.
package pricesync

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/chain"
	"github.com/vadiminshakov/tradeledger/pkg/retrier"
)

type pricer interface {
	Price(ctx context.Context, symbol string) (domain.PriceQuote, error)
}

type contract interface {
	ListAssets(ctx context.Context) ([]chain.AssetInfo, error)
	UpdatePrice(ctx context.Context, key *ecdsa.PrivateKey, symbol string, price *big.Int) (*chain.Outcome, error)
}

// Update one contract price change.
type Update struct {
	Symbol string
	Old    decimal.Decimal
	New    decimal.Decimal
}

// Report result of one sync pass.
type Report struct {
	Updated []Update
	// Skipped symbols whose oracle price was not live or cached.
	Skipped []string
	// Unchanged symbols already at the oracle price.
	Unchanged []string
}

// Syncer converts USD oracle prices into settlement-asset prices and writes
// them to the contract as the administrator.
type Syncer struct {
	assets   *domain.AssetSet
	prices   pricer
	contract contract
	admin    *ecdsa.PrivateKey
	retry    *retrier.Retrier
	l        *zap.Logger
}

type Option func(*Syncer)

// WithRetrier overrides the backoff used for contract writes.
func WithRetrier(r *retrier.Retrier) Option { return func(s *Syncer) { s.retry = r } }

// New creates a Syncer. The admin key must belong to the contract owner.
func New(assets *domain.AssetSet, prices pricer, c contract, admin *ecdsa.PrivateKey, l *zap.Logger, opts ...Option) (*Syncer, error) {
	if admin == nil {
		return nil, errors.New("price sync requires the admin key")
	}
	if l == nil {
		l = zap.NewNop()
	}
	s := &Syncer{
		assets:   assets,
		prices:   prices,
		contract: c,
		admin:    admin,
		retry: retrier.New(
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxRetries(3),
			retrier.WithRetryIf(retryable),
		),
		l: l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// retryable only transport failures are retried; reverts are final.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrInfrastructureUnavailable)
}

// Sync runs one pass over the active contract assets. Fallback prices are
// never written.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	var report Report

	listed, err := s.contract.ListAssets(ctx)
	if err != nil {
		return report, errors.Wrap(err, "list contract assets")
	}

	settlement, err := s.prices.Price(ctx, s.assets.Settlement())
	if err != nil {
		return report, errors.Wrap(err, "settlement price")
	}
	if settlement.Provenance == domain.ProvenanceFallback || !settlement.Price.IsPositive() {
		s.l.Warn("settlement price unavailable, skipping price sync",
			zap.String("provenance", settlement.Provenance.String()))
		for _, a := range listed {
			report.Skipped = append(report.Skipped, a.Symbol)
		}
		return report, nil
	}

	for _, asset := range listed {
		if !asset.Active || !s.assets.IsSupported(asset.Symbol) {
			continue
		}
		quote, err := s.prices.Price(ctx, asset.Symbol)
		if err != nil || quote.Provenance == domain.ProvenanceFallback {
			report.Skipped = append(report.Skipped, asset.Symbol)
			continue
		}

		next := quote.Price.DivRound(settlement.Price, domain.Decimals)
		units, err := domain.ToUnits(next)
		if err != nil || units.Sign() == 0 {
			report.Skipped = append(report.Skipped, asset.Symbol)
			continue
		}
		if asset.Price != nil && asset.Price.Cmp(units) == 0 {
			report.Unchanged = append(report.Unchanged, asset.Symbol)
			continue
		}

		err = s.retry.Do(ctx, func(ctx context.Context) error {
			_, err := s.contract.UpdatePrice(ctx, s.admin, asset.Symbol, units)
			return err
		})
		if err != nil {
			return report, errors.Wrapf(err, "update %s price", asset.Symbol)
		}

		u := Update{Symbol: asset.Symbol, Old: domain.FromUnits(asset.Price), New: next}
		report.Updated = append(report.Updated, u)
		s.l.Info("contract price updated",
			zap.String("symbol", u.Symbol),
			zap.String("old", u.Old.String()),
			zap.String("new", u.New.String()),
			zap.String("usd", quote.Price.String()))
	}

	return report, nil
}

// Run syncs every interval until ctx is done. Failed passes are logged and
// retried on the next tick.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			s.l.Error("price sync failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
