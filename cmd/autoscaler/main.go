// Command autoscaler runs the label-driven control loop over Docker Swarm
// services, using Prometheus as the metrics backend.
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

	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/autoscaler"
	"github.com/sheetflow/sheetflow/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	orch, err := autoscaler.NewSwarmOrchestrator(cfg)
	if err != nil {
		slog.Error("docker connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = orch.Close() }()

	metrics, err := autoscaler.NewPrometheusBackend(cfg.PrometheusURL)
	if err != nil {
		slog.Error("prometheus connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		slog.Info("metrics endpoint starting", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			slog.Error("metrics endpoint failed", slog.Any("error", err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("autoscaler starting",
		slog.String("stack", cfg.StackName),
		slog.Duration("check_interval", cfg.CheckInterval),
		slog.Duration("cooldown", cfg.CooldownPeriod))

	a := autoscaler.New(cfg, orch, metrics)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("autoscaler stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("autoscaler stopped")
}
