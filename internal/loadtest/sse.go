// Package loadtest opens many concurrent subscribers against the price stream
// of a running ops server and counts what they receive.
package loadtest

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config of one load run.
type Config struct {
	URL         string
	Connections int
	// Duration zero means until ctx is cancelled.
	Duration time.Duration
	// RampUp spreads connection starts across this window.
	RampUp time.Duration
	// ReportEvery logs progress at this interval; zero disables it.
	ReportEvery time.Duration
}

// Result counters at the end of a run.
type Result struct {
	Connected   int64
	ConnectErrs int64
	StreamErrs  int64
	// Prices counts "event: price" frames. Heartbeats are not counted.
	Prices  int64
	Elapsed time.Duration
}

// PerSecond returns the delivered price rate across all subscribers.
func (r Result) PerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Prices) / r.Elapsed.Seconds()
}

type counters struct {
	connected, connectErrs, streamErrs, prices atomic.Int64
}

func (c *counters) result(elapsed time.Duration) Result {
	return Result{
		Connected:   c.connected.Load(),
		ConnectErrs: c.connectErrs.Load(),
		StreamErrs:  c.streamErrs.Load(),
		Prices:      c.prices.Load(),
		Elapsed:     elapsed,
	}
}

// DefaultRampUp one second per 500 connections, at least one second above 100.
func DefaultRampUp(connections int) time.Duration {
	if connections <= 100 {
		return 0
	}
	ramp := time.Duration(connections/500) * time.Second
	if ramp < time.Second {
		ramp = time.Second
	}
	return ramp
}

// Run subscribes cfg.Connections clients and reads until the duration
// elapses or ctx is done.
func Run(ctx context.Context, cfg Config, l *zap.Logger) (Result, error) {
	if cfg.Connections <= 0 {
		return Result{}, errors.Errorf("invalid connections: %d", cfg.Connections)
	}
	if cfg.URL == "" {
		return Result{}, errors.New("empty stream url")
	}
	if l == nil {
		l = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, cfg.Duration)
		defer stop()
	}

	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     cfg.Connections + 100,
		MaxIdleConns:        cfg.Connections + 100,
		MaxIdleConnsPerHost: cfg.Connections + 100,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}}
	defer client.CloseIdleConnections()

	var (
		c     counters
		wg    sync.WaitGroup
		start = time.Now()
	)

	if cfg.ReportEvery > 0 {
		go report(ctx, &c, start, cfg.ReportEvery, l)
	}

	var interval time.Duration
	if cfg.RampUp > 0 {
		interval = cfg.RampUp / time.Duration(cfg.Connections)
	}

	for i := 0; i < cfg.Connections; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, cfg.URL, &c)
		}()
	}

	wg.Wait()
	res := c.result(time.Since(start))
	l.Info("stream load finished",
		zap.Int64("connected", res.Connected),
		zap.Int64("connect_errs", res.ConnectErrs),
		zap.Int64("stream_errs", res.StreamErrs),
		zap.Int64("prices", res.Prices),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func subscribe(ctx context.Context, client *http.Client, url string, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}
	c.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// a cancelled run ends every body read; only count premature ends
			if ctx.Err() == nil {
				c.streamErrs.Add(1)
			}
			return
		}
		if strings.TrimSpace(line) == "event: price" {
			c.prices.Add(1)
		}
	}
}

func report(ctx context.Context, c *counters, start time.Time, every time.Duration, l *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := c.result(time.Since(start))
			l.Info("stream load",
				zap.Int64("connected", res.Connected),
				zap.Int64("connect_errs", res.ConnectErrs),
				zap.Int64("stream_errs", res.StreamErrs),
				zap.Int64("prices", res.Prices),
				zap.Duration("elapsed", res.Elapsed.Truncate(time.Second)))
		}
	}
}
