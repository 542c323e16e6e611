// Command server starts the SheetFlow HTTP edge: uploads, task status and
// schema management. All state lives behind the data gateway; work is
// enqueued on the broker.
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
	"time"

	"github.com/sheetflow/sheetflow/internal/adapter/broker"
	httpserver "github.com/sheetflow/sheetflow/internal/adapter/httpserver"
	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/app"
	"github.com/sheetflow/sheetflow/internal/config"
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

	// Task state and schema documents live behind the data gateway.
	gw, err := datagw.NewClient(cfg.DataGatewayAddr)
	if err != nil {
		slog.Error("data gateway connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = gw.Close() }()

	// Broker publisher for validation and schema work.
	factory := broker.NewFactory(cfg)
	defer factory.CloseAll()
	pub := broker.NewPublisher(factory, cfg)

	srv := httpserver.NewServer(cfg, gw, pub, gw.Ping)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
