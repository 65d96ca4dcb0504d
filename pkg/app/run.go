// Package app provides the shared entry point for the arden router binary:
// it loads configuration, wires the pipeline, and runs until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
	appcron "github.com/navyguy3117/ArdenV10-Dashboard/internal/cron"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/ctxengine"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/estimate"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/gateway"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/journal"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/registry"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/router"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/telemetry"
	"github.com/navyguy3117/ArdenV10-Dashboard/modules/memory/sqlite"
	"github.com/navyguy3117/ArdenV10-Dashboard/modules/provider/openaicompat"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is the YAML configuration file. Required.
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string

	// LogLevel overrides the configured log level when set.
	LogLevel string
}

// Run loads configuration, wires the router, and blocks until SIGINT or
// SIGTERM.
func Run(params RunParams) error {
	// Local .env files hold API keys in development; missing is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(params.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if params.LogLevel != "" {
		level = params.LogLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))

	shutdownTracer, err := telemetry.InitTracer("arden-router", params.Version, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer shutdownTracer()

	reg, err := registry.New(cfg.Providers)
	if err != nil {
		return err
	}

	ledger := budget.New(budgetConfig(cfg.Budget), budget.WithLogger(logger))
	ledger.Seed(reg.Names()...)

	store, err := sqlite.Open(cfg.Memory.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	restoreSpend(store, ledger, logger)

	estimator := estimate.NewCharEstimator(cfg.Tokens.CharsPerToken, cfg.Tokens.SafetyMarginPct)

	clients, err := buildClients(reg, logger)
	if err != nil {
		return err
	}
	caller, err := provider.NewCaller(clients, ledger, provider.CallerConfig{}, provider.WithCallerLogger(logger))
	if err != nil {
		return err
	}

	summarizer := router.NewTierSummarizer(reg, caller, estimator, logger)
	compactor := ctxengine.NewCompactor(
		summarizer, estimator, store.Pins, store.Summaries,
		compactionConfig(cfg, logger),
		ctxengine.WithLogger(logger),
	)

	jrnl := journal.New(journal.Config{
		Dir:        cfg.Logging.Dir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}, journal.WithLogger(logger))
	defer jrnl.Close()

	detector := router.NewIntentDetector(cfg.Routing.IntentKeywords)
	selector := router.NewSelector(reg, ledger, cfg.Routing, router.WithSelectorLogger(logger))
	pipeline := router.NewPipeline(detector, selector, compactor, caller,
		router.PipelineConfig{
			DefaultPriority:  router.Priority(cfg.Routing.DefaultPriority),
			DefaultMaxTokens: cfg.Tokens.DefaultMaxTokens,
		},
		router.WithPipelineLogger(logger),
		router.WithRecorder(jrnl),
		router.WithCallLog(store.Calls),
		router.WithPinStore(store.Pins),
	)

	scheduler := appcron.NewScheduler(logger)
	if err := scheduler.AddBudgetFlush(cfg.Jobs.BudgetFlush, ledger, store.Spend); err != nil {
		return fmt.Errorf("schedule budget flush: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	gw := gateway.New(cfg.Gateway, pipeline, caller, ledger,
		gateway.WithLogger(logger),
		gateway.WithJournal(jrnl),
		gateway.WithCallLog(store.Calls),
		gateway.WithMetrics(gateway.NewMetrics()),
	)
	if err := gw.Start(); err != nil {
		return err
	}

	logger.Info("arden router started",
		"version", params.Version,
		"bind", cfg.Gateway.Bind,
		"providers", reg.Names(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := gw.Stop(stopCtx); err != nil {
		logger.Warn("gateway stop failed", "error", err)
	}

	// Final spend flush so the ledger survives restart.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := store.Spend.Save(flushCtx, ledger.Snapshot()); err != nil {
		logger.Warn("final budget flush failed", "error", err)
	}

	return nil
}

// buildClients instantiates one upstream client per catalog provider.
func buildClients(reg *registry.Registry, logger *slog.Logger) ([]provider.Provider, error) {
	var clients []provider.Provider
	for _, name := range reg.Names() {
		p, ok := reg.Provider(name)
		if !ok {
			continue
		}
		clients = append(clients, openaicompat.New(p, openaicompat.WithLogger(logger)))
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("app: no provider clients configured")
	}
	return clients, nil
}

// restoreSpend loads persisted counters into the ledger. Best effort: a
// fresh or unreadable store just starts the counters at zero.
func restoreSpend(store *sqlite.Store, ledger *budget.Ledger, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	spends, err := store.Spend.Load(ctx)
	if err != nil {
		logger.Warn("spend restore failed, starting at zero", "error", err)
		return
	}
	if len(spends) > 0 {
		ledger.Restore(spends)
		logger.Info("spend counters restored", "providers", len(spends))
	}
}

func budgetConfig(cfg config.BudgetConfig) budget.Config {
	out := budget.Config{
		Default: budget.Caps{MonthlyUSD: cfg.MonthlyCapUSD, DailyUSD: cfg.DailyCapUSD},
	}
	if len(cfg.PerProvider) > 0 {
		out.PerProvider = make(map[string]budget.Caps, len(cfg.PerProvider))
		for name, caps := range cfg.PerProvider {
			out.PerProvider[name] = budget.Caps{
				MonthlyUSD: caps.MonthlyCapUSD,
				DailyUSD:   caps.DailyCapUSD,
			}
		}
	}
	return out
}

func compactionConfig(cfg *config.Config, logger *slog.Logger) ctxengine.Config {
	priorities := make(map[string]ctxengine.Limits, len(cfg.Tokens.Priorities))
	for name, p := range cfg.Tokens.Priorities {
		priorities[name] = ctxengine.Limits{
			TargetInputTokens:  p.TargetInputTokens,
			HardMaxInputTokens: p.HardMaxInputTokens,
		}
	}

	rules := ""
	if cfg.Compaction.BehaviorRulesFile != "" {
		raw, err := os.ReadFile(cfg.Compaction.BehaviorRulesFile)
		if err != nil {
			// A missing rules file should not block startup.
			logger.Warn("behavior rules file unreadable", "path", cfg.Compaction.BehaviorRulesFile, "error", err)
		} else {
			rules = string(raw)
		}
	}

	return ctxengine.Config{
		Priorities:      priorities,
		DefaultPriority: cfg.Routing.DefaultPriority,
		Summary: ctxengine.SummarySettings{
			MinTokens:        cfg.Tokens.Summary.MinTokens,
			MaxTokens:        cfg.Tokens.Summary.MaxTokens,
			Tier:             cfg.Tokens.Summary.Tier,
			HighPriorityTier: cfg.Tokens.Summary.HighPriorityTier,
		},
		ToolOutputMaxChars: cfg.Compaction.ToolOutputMaxChars,
		BannerPatterns:     cfg.Compaction.BannerPatterns,
		BehaviorRules:      rules,
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
