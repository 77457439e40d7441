// Package web serves the operations endpoints: health, metrics and a live price feed.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/tradeledger/internal/domain"
	"github.com/vadiminshakov/tradeledger/internal/events"
)

const heartbeatInterval = 30 * time.Second

type tickSource interface {
	Subscribe() chan events.PriceTick
	Unsubscribe(ch chan events.PriceTick)
}

type priceLister interface {
	AllPrices(ctx context.Context) []domain.PriceQuote
}

// HealthCheck reports an unhealthy dependency by returning an error.
type HealthCheck func(ctx context.Context) error

// Server exposes /healthz, /metrics, /prices and the /prices/stream SSE feed.
type Server struct {
	Addr     string
	Ticks    tickSource
	Prices   priceLister
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck

	heartbeat time.Duration
	l         *zap.Logger
}

// NewServer creates a new ops server instance.
func NewServer(addr string, ticks tickSource, prices priceLister, gatherer prometheus.Gatherer, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Addr:      addr,
		Ticks:     ticks,
		Prices:    prices,
		Gatherer:  gatherer,
		Checks:    map[string]HealthCheck{},
		heartbeat: heartbeatInterval,
		l:         l,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/prices", s.handlePrices)
	r.Get("/prices/stream", s.handlePriceStream)
	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go s.shutdownOnDone(ctx, server)

	s.l.Info("ops server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves HTTPS on Addr with ACME certificates for domains.
// A second listener on :80 answers HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	manager, err := newCertManager(domains, cacheDir)
	if err != nil {
		return err
	}

	acme := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}
	go s.shutdownOnDone(ctx, acme)
	go s.shutdownOnDone(ctx, server)

	go func() {
		if err := acme.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("acme challenge server failed", zap.Error(err))
		}
	}()

	s.l.Info("ops server listening with tls", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newCertManager(domains []string, cacheDir string) (*autocert.Manager, error) {
	if len(domains) == 0 {
		return nil, errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}, nil
}

func (s *Server) shutdownOnDone(ctx context.Context, server *http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.l.Warn("ops server shutdown", zap.String("addr", server.Addr), zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := make(map[string]string, len(s.Checks))
	for name, check := range s.Checks {
		if err := check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": report})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if s.Prices == nil {
		http.Error(w, "price oracle not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.Prices.AllPrices(r.Context()))
}

func (s *Server) handlePriceStream(w http.ResponseWriter, r *http.Request) {
	if s.Ticks == nil {
		http.Error(w, "price stream not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.Ticks.Subscribe()
	defer s.Ticks.Unsubscribe(ch)

	// comment heartbeat keeps proxies from dropping an idle feed
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case tick, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(tick)
			if err != nil {
				s.l.Warn("price tick encode failed", zap.Error(err))
				continue
			}
			fmt.Fprint(w, "event: price\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
