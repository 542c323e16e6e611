// Command worker consumes schema and validation requests from the broker
// queues and runs them through the schema and validation services. Task
// state flows through the data gateway; results are published back to the
// broker's result queues.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheetflow/sheetflow/internal/adapter/broker"
	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/adapter/repo/postgres"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
	"github.com/sheetflow/sheetflow/internal/formula/compiler"
	"github.com/sheetflow/sheetflow/internal/gateway/datagw"
	"github.com/sheetflow/sheetflow/internal/usecase"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Task state and schema documents live behind the data gateway.
	gw, err := datagw.NewClient(cfg.DataGatewayAddr)
	if err != nil {
		slog.Error("data gateway connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = gw.Close() }()

	// Broker: request consumers plus the result publisher share the factory.
	factory := broker.NewFactory(cfg)
	defer factory.CloseAll()
	pub := broker.NewPublisher(factory, cfg)

	// Direct Postgres access for materializing compiled DDL.
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	ddl := compiler.NewMaterializer(pool)

	schemaSvc := usecase.NewSchemaService(gw, gw, pub, cfg.RoutingKeySchemaResult, ddl)
	validationSvc := usecase.NewValidationService(gw, gw, pub, cfg.RoutingKeyValidationResult)

	schemasWorker := broker.NewWorker("schemas-worker", cfg.QueueSchemas, factory, cfg)
	validationsWorker := broker.NewWorker("validations-worker", cfg.QueueValidations, factory, cfg)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		slog.Info("metrics endpoint starting", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			slog.Error("metrics endpoint failed", slog.Any("error", err))
		}
	}()

	var wg sync.WaitGroup
	for _, w := range []*broker.Worker{schemasWorker, validationsWorker} {
		wg.Add(1)
		go func(w *broker.Worker) {
			defer wg.Done()
			if err := w.StartConsuming(ctx); err != nil {
				slog.Error("consumer failed", slog.String("queue", w.Queue()), slog.Any("error", err))
				if errors.Is(err, broker.ErrFailFast) {
					os.Exit(1)
				}
			}
		}(w)
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatch(ctx, cfg, schemasWorker, schemaSvc.Handle)
	}()
	go func() {
		defer wg.Done()
		dispatch(ctx, cfg, validationsWorker, validationSvc.Handle)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	schemasWorker.StopConsuming()
	validationsWorker.StopConsuming()
	cancel()
	wg.Wait()
}

// dispatch drains the worker's buffer into the handler until the worker
// stops. Handler failures are logged; the message is already acked, and the
// handler records the failure on the task itself.
func dispatch(ctx context.Context, cfg config.Config, w *broker.Worker, handle func(context.Context, domain.Message) error) {
	next := w.MessageStream(cfg.StreamTimeout, false)
	for {
		msg, ok := next()
		if !ok {
			return
		}
		if msg == nil {
			continue
		}
		if err := handle(ctx, *msg); err != nil {
			slog.Error("message handling failed",
				slog.String("queue", w.Queue()),
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
	}
}
