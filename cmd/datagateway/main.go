// Command datagateway starts the data gateway: the JSON-over-gRPC surface
// over Redis (KV) and Postgres (documents) with retry-wrapped handlers.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/gateway/connmgr"
	"github.com/sheetflow/sheetflow/internal/gateway/datagw"
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

	mgr := connmgr.New(cfg)
	srv := datagw.NewServer(cfg, mgr)

	if err := srv.Migrate(context.Background()); err != nil {
		slog.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic sweep so a dead store connection is dropped even while no
	// request is flowing; the accessors re-dial on the next call.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := mgr.HealthCheck(ctx); err != nil {
					slog.Warn("store health check failed", slog.Any("error", err))
				}
			}
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		slog.Info("metrics endpoint starting", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			slog.Error("metrics endpoint failed", slog.Any("error", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("data gateway starting", slog.Int("port", cfg.GRPCPort))
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			slog.Error("data gateway error", slog.Any("error", err))
		}
	}

	srv.Stop()
}
