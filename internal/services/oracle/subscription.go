package oracle

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/services/pricer"
)

const updatesBuffer = 64

// Subscription is a live push channel of price updates. It does not reconnect:
// after a closed state the caller subscribes again.
type Subscription struct {
	updates chan domain.PriceUpdate
	states  chan domain.StateChange
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Updates is closed when the subscription ends.
func (s *Subscription) Updates() <-chan domain.PriceUpdate { return s.updates }

// States reports open, at most one error, then closed.
func (s *Subscription) States() <-chan domain.StateChange { return s.states }

// Done is closed after the last state has been sent.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close cancels the subscription and waits for it to wind down.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe opens the push stream for symbols, or for every supported symbol
// when none are given. Every tick updates the cache before it is delivered.
func (o *Oracle) Subscribe(ctx context.Context, symbols []string) (*Subscription, error) {
	if o.stream == nil {
		return nil, ErrNoStream
	}
	if len(symbols) == 0 {
		symbols = o.assets.Symbols()
	}
	pairs := make([]domain.Pair, 0, len(symbols))
	for _, s := range symbols {
		sym, err := o.assets.Normalize(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, o.assets.Pair(sym))
	}

	ctx, cancel := context.WithCancel(ctx)
	conn, err := o.stream.Open(ctx, pairs)
	if err != nil {
		cancel()
		return nil, domain.Unavailable("subscribe", err)
	}

	sub := &Subscription{
		updates: make(chan domain.PriceUpdate, updatesBuffer),
		states:  make(chan domain.StateChange, 3),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	sub.states <- domain.StateChange{State: domain.ConnOpen}
	o.logger.Info("price stream opened", zap.Int("symbols", len(pairs)))

	// unblock Next once the subscription is cancelled
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go o.consume(ctx, conn, sub)

	return sub, nil
}

func (o *Oracle) consume(ctx context.Context, conn pricer.StreamConn, sub *Subscription) {
	defer func() {
		sub.states <- domain.StateChange{State: domain.ConnClosed}
		close(sub.updates)
		close(sub.states)
		close(sub.done)
		sub.once.Do(sub.cancel)
	}()

	for {
		update, err := conn.Next()
		if err != nil {
			if errors.Is(err, pricer.ErrMalformedMessage) {
				o.metrics.streamMessage("malformed")
				o.logger.Debug("dropping malformed stream message", zap.Error(err))
				continue
			}
			if ctx.Err() == nil {
				o.logger.Warn("price stream failed", zap.Error(err))
				sub.states <- domain.StateChange{State: domain.ConnError, Err: err}
			} else {
				o.logger.Info("price stream closed")
			}
			return
		}

		o.metrics.streamMessage("ok")
		o.store(ctx, update.Symbol, update.Price, update.Timestamp)

		select {
		case sub.updates <- update:
		case <-ctx.Done():
			return
		}
	}
}
