// Command msggateway starts the messaging gateway: result-queue consumers
// that buffer what the processing workers publish back and re-expose it as
// server-streaming RPCs for subscribers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheetflow/sheetflow/internal/adapter/broker"
	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/gateway/messaging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	factory := broker.NewFactory(cfg)
	mgr := messaging.NewWorkerManager(cfg, factory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		slog.Error("consumers failed to start", slog.Any("error", err))
		os.Exit(1)
	}

	srv := messaging.NewServer(cfg, mgr)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		slog.Info("metrics endpoint starting", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			slog.Error("metrics endpoint failed", slog.Any("error", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("messaging gateway starting", slog.Int("port", cfg.GRPCPort))
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			slog.Error("messaging gateway error", slog.Any("error", err))
		}
	case err := <-mgr.Errors():
		// A consumer exhausting its reconnect budget is fatal: fail fast and
		// let the orchestrator restart the process.
		slog.Error("consumer failed", slog.Any("error", err))
		srv.Stop()
		if errors.Is(err, broker.ErrFailFast) {
			os.Exit(1)
		}
		return
	}

	srv.Stop()
}
