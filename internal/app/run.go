package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/events"
	"github.com/vadiminshakov/tradeledger/internal/services/oracle"
	"github.com/vadiminshakov/tradeledger/internal/web"
	"github.com/vadiminshakov/tradeledger/pkg/retrier"
)

const pricePollInterval = 10 * time.Second

var errStreamClosed = errors.New("price stream closed")

// Run audits open intents once, then runs the price feed, the optional price
// sync job and the ops server until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	findings, err := e.AuditIntents(ctx)
	if err != nil {
		return errors.Wrap(err, "audit intents")
	}
	for _, f := range findings {
		e.l.Warn("open order intent",
			zap.String("intent_id", f.Intent.ID),
			zap.String("kind", string(f.Kind)),
			zap.String("status", string(f.Intent.Status)),
			zap.String("tx_hash", f.Intent.TxHash),
			zap.String("detail", f.Detail))
	}

	if e.cfg.Sync.Enabled && e.syncer == nil {
		return errors.Wrap(ErrNoAdminKey, "price sync")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := e.streamPrices(ctx)
		if errors.Is(err, oracle.ErrNoStream) {
			e.l.Info("no push feed for platform, polling prices", zap.Duration("interval", pricePollInterval))
			return e.pollPrices(ctx, pricePollInterval)
		}
		return err
	})

	if e.cfg.Sync.Enabled {
		g.Go(func() error {
			e.l.Info("starting price sync", zap.Duration("interval", e.cfg.Sync.Interval))
			return ignoreCanceled(e.syncer.Run(ctx, e.cfg.Sync.Interval))
		})
	}

	g.Go(func() error {
		ops := e.opsServer()
		if len(e.cfg.Ops.TLSDomains) > 0 {
			return ops.StartWithAutoTLS(ctx, e.cfg.Ops.TLSDomains, e.cfg.Ops.TLSCacheDir)
		}
		return ops.Start(ctx)
	})

	return g.Wait()
}

func (e *Engine) opsServer() *web.Server {
	s := web.NewServer(e.cfg.Ops.Addr, e.ticks, e.oracle, e.registry, e.l.Named("ops"))
	s.Checks["chain"] = func(ctx context.Context) error {
		_, err := e.chain.Reserve(ctx)
		return err
	}
	s.Checks["journal"] = func(ctx context.Context) error {
		_, err := e.journal.Balance(ctx, "healthcheck", e.assets.Benchmark())
		return err
	}
	return s
}

// streamPrices keeps a push subscription open, resubscribing with backoff.
// A session that delivered updates resets the backoff.
func (e *Engine) streamPrices(ctx context.Context) error {
	r := retrier.New(
		retrier.WithMaxRetries(retrier.Unlimited),
		retrier.WithInitialInterval(time.Second),
		retrier.WithMaxInterval(time.Minute),
		retrier.WithRetryIf(func(err error) bool { return !errors.Is(err, oracle.ErrNoStream) }),
		retrier.WithNotify(func(attempt int, err error, wait time.Duration) {
			e.l.Warn("price stream down, resubscribing",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)

	for {
		err := r.Do(ctx, e.streamSession)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (e *Engine) streamSession(ctx context.Context) error {
	sub, err := e.oracle.Subscribe(ctx, nil)
	if err != nil {
		return err
	}
	defer sub.Close()

	delivered := 0
	var cause error
	updates, states := sub.Updates(), sub.States()
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return sessionEnd(delivered, cause)
			}
			delivered++
			e.ticks.Publish(events.TickFromUpdate(u))
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			switch st.State {
			case domain.ConnOpen:
				e.l.Info("price stream open")
			case domain.ConnError:
				cause = st.Err
			}
		case <-sub.Done():
			return sessionEnd(delivered, cause)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sessionEnd(delivered int, cause error) error {
	if delivered > 0 {
		return nil
	}
	if cause != nil {
		return cause
	}
	return errStreamClosed
}

// pollPrices feeds the broadcaster from REST snapshots. Fallback prices are
// not broadcast.
func (e *Engine) pollPrices(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, q := range e.oracle.AllPrices(ctx) {
			if q.Provenance == domain.ProvenanceFallback {
				continue
			}
			e.ticks.Publish(events.TickFromUpdate(domain.PriceUpdate{Symbol: q.Symbol, Price: q.Price, Timestamp: q.Timestamp}))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
