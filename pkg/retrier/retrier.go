// Package retrier runs operations with exponential backoff and jitter.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// Unlimited passed to WithMaxRetries retries until the context ends.
const Unlimited = -1

// Retrier implements exponential backoff with jitter.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	retryIf         func(error) bool
	notify          func(attempt int, err error, wait time.Duration)
}

// Option configures the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the first backoff interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps the backoff interval.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
// Unlimited keeps retrying until the context is done.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithJitter sets the jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// WithRetryIf limits retries to errors the predicate accepts. Other errors
// are returned immediately.
func WithRetryIf(pred func(error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = pred
	}
}

// WithNotify registers a callback invoked before every backoff sleep.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(r *Retrier) {
		r.notify = fn
	}
}

// New creates a Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// retries run out or ctx is done.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	interval := r.initialInterval

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if r.retryIf != nil && !r.retryIf(err) {
			return err
		}
		if r.maxRetries != Unlimited && attempt >= r.maxRetries {
			return err
		}

		wait := r.backoff(interval)
		if r.notify != nil {
			r.notify(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * r.multiplier)
		if interval > r.maxInterval {
			interval = r.maxInterval
		}
	}
}

func (r *Retrier) backoff(interval time.Duration) time.Duration {
	jitter := (rand.Float64()*2 - 1) * r.jitter * float64(interval)
	d := time.Duration(float64(interval) + jitter)
	if d < 0 {
		return 0
	}
	return d
}

// DoWithData is Do for functions that produce a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
