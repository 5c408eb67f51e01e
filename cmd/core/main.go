// Command core runs the single-venue crypto-futures orderflow execution
// core: it loads config, starts the engine (one goroutine per live
// symbol), optionally serves the dashboard API, and waits for SIGINT/SIGTERM.
//
// Architecture:
//
//	internal/engine        — per-symbol arena: book, flow aggregators, orchestrator runtime
//	internal/orchestrator   — deterministic gate/state-machine that turns classified state into intent
//	internal/risk           — the final governed decision: hard limits, daily loss, adaptive sizing
//	internal/advisor        — optional LLM policy call; can only confirm or narrow the deterministic intent
//	internal/fillsink       — dry-run position/PnL bookkeeping (spec: this core never places live orders)
//	internal/api            — health/depth HTTP endpoints and the live-metrics WebSocket hub
//
// Grounded on the teacher's cmd/bot/main.go load-validate-wire-start-wait
// shutdown sequence.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"orderflow-core/internal/api"
	"orderflow-core/internal/config"
	"orderflow-core/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("CORE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, logger)
		apiServer.Hub().SetSubscriptionHooks(eng.EnsureSymbol, eng.ReleaseSymbol)
		eng.SetBroadcastHooks(apiServer.Hub().BroadcastMetrics, apiServer.Hub().BroadcastRawFrame)

		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("orderflow core started",
		"symbols", cfg.Venue.Symbols,
		"anchor", cfg.Orchestrator.CrossMarketAnchorSymbol,
		"advisor_enabled", cfg.Advisor.Enabled,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
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
