// Package gateway serves the router's HTTP surface: the OpenAI-compatible
// completions endpoint plus health, status, logs, and metrics. It binds to
// loopback by default.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/journal"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/memory"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/router"
)

// Gateway is the HTTP front of the router.
type Gateway struct {
	cfg      config.GatewayConfig
	pipeline *router.Pipeline
	caller   *provider.Caller
	ledger   *budget.Ledger
	journal  *journal.Journal
	calls    memory.CallLog
	metrics  *Metrics
	logger   *slog.Logger

	server    *http.Server
	startedAt time.Time
}

// Option configures optional Gateway behavior.
type Option func(*Gateway)

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithJournal enables the /ui/logs endpoint.
func WithJournal(j *journal.Journal) Option {
	return func(g *Gateway) { g.journal = j }
}

// WithCallLog enables the last-call block in /health.
func WithCallLog(c memory.CallLog) Option {
	return func(g *Gateway) { g.calls = c }
}

// WithMetrics injects the metrics set; nil disables /metrics.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a Gateway over a wired pipeline.
func New(cfg config.GatewayConfig, pipeline *router.Pipeline, caller *provider.Caller, ledger *budget.Ledger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		pipeline: pipeline,
		caller:   caller,
		ledger:   ledger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	return g
}

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Completion and admin endpoints share bearer auth when configured.
	r.Group(func(r chi.Router) {
		if g.cfg.BearerToken != "" {
			r.Use(authMiddleware(g.cfg.BearerToken))
		}
		r.Post("/v1/chat/completions", g.handleCompletions())
		r.Get("/status", g.handleStatus())
		r.Get("/ui/logs", g.handleLogs())
	})

	return r
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
