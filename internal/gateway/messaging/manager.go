// Package messaging hosts the broker consumers in-process and serves their
// buffers over the streaming RPC surface.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sheetflow/sheetflow/internal/adapter/broker"
	"github.com/sheetflow/sheetflow/internal/config"
)

// WorkerManager spawns one consuming worker per result queue and tracks
// their lifecycle. The request queues belong to the processing workers;
// this process drains what they publish back and serves it to stream
// subscribers. A worker failing fast takes the whole process down through
// the error channel.
type WorkerManager struct {
	cfg     config.Config
	factory *broker.Factory

	schemas     *broker.Worker
	validations *broker.Worker

	errCh  chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerManager builds the manager and its two workers.
func NewWorkerManager(cfg config.Config, factory *broker.Factory) *WorkerManager {
	return &WorkerManager{
		cfg:         cfg,
		factory:     factory,
		schemas:     broker.NewWorker("schemas-results-consumer", cfg.QueueSchemasResults, factory, cfg),
		validations: broker.NewWorker("validations-results-consumer", cfg.QueueValidationsResults, factory, cfg),
		errCh:       make(chan error, 2),
	}
}

// Schemas returns the schema-results worker.
func (m *WorkerManager) Schemas() *broker.Worker { return m.schemas }

// Validations returns the validation-results worker.
func (m *WorkerManager) Validations() *broker.Worker { return m.validations }

// Errors surfaces fail-fast worker exits.
func (m *WorkerManager) Errors() <-chan error { return m.errCh }

// Start spawns both workers and waits for them to register their consumers.
func (m *WorkerManager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)
	for _, w := range []*broker.Worker{m.schemas, m.validations} {
		m.wg.Add(1)
		go func(w *broker.Worker) {
			defer m.wg.Done()
			if err := w.StartConsuming(ctx); err != nil {
				m.errCh <- err
			}
		}(w)
	}

	readyTimeout := time.After(30 * time.Second)
	for _, w := range []*broker.Worker{m.schemas, m.validations} {
		select {
		case <-w.Ready():
		case err := <-m.errCh:
			return fmt.Errorf("op=messaging.start: %w", err)
		case <-readyTimeout:
			return errors.New("op=messaging.start: workers not ready in time")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	slog.Info("result consumers ready",
		slog.String("schemas_queue", m.cfg.QueueSchemasResults),
		slog.String("validations_queue", m.cfg.QueueValidationsResults))
	return nil
}

// StopWorkers stops both consumers, waits for their loops and closes the
// broker connections.
func (m *WorkerManager) StopWorkers() {
	m.schemas.StopConsuming()
	m.validations.StopConsuming()
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.factory.CloseAll()
}
