package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monetary_core/internal/api"
	"monetary_core/internal/config"
	"monetary_core/internal/logging"
	"monetary_core/internal/simulation"
	"monetary_core/pkg/metrics"
)

const (
	appName = "monetary_core"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.Init(appName, cfg.LogLevel, cfg.AppEnv)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.Int64("ticks", cfg.SimTicks))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := simulation.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build settlement core", slog.String("error", err.Error()))
		os.Exit(1)
	}

	stack.Metrics.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, stack, logger)

	report, err := stack.Run(ctx, simulation.DefaultScenario(cfg.SimTicks))
	if err != nil {
		logger.Error("Simulation stopped", slog.String("error", err.Error()), slog.Int64("ticks", report.Ticks))
	} else {
		logger.Info("Simulation finished",
			slog.Int64("ticks", report.Ticks),
			slog.Int("settled", report.Settled),
			slog.Int("rejected", report.Rejected),
			slog.Int("voided", report.Voided),
			slog.Int("defaults", report.Defaults),
			slog.Int("starved", len(report.Starved)),
			slog.Int64("interest_paid", report.InterestPaid),
			slog.Int64("money_supply", report.MoneySupply),
			slog.String("fingerprint", report.Fingerprint))
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	shutdown(logger, httpServer, stack.Metrics)
	logger.Info("Application shutdown complete")
}

func startHTTPServer(addr string, stack *simulation.Stack, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	handler := api.NewAPIHandler(api.Dependencies{
		Facade:  stack.Facade,
		Ledger:  stack.Ledger,
		Book:    stack.Book,
		Monitor: stack.Monitor,
		Results: stack.Results,
		Rules:   stack.Rules,
		Signer:  stack.Signer,
		Logger:  logger,
	})
	handler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func shutdown(logger *slog.Logger, httpServer *http.Server, collector *metrics.MetricsCollector) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}
	if err := collector.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
}
