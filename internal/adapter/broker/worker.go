package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sheetflow/sheetflow/internal/adapter/observability"
	"github.com/sheetflow/sheetflow/internal/config"
	"github.com/sheetflow/sheetflow/internal/domain"
)

// ErrFailFast signals an exhausted reconnect budget. Mains translate it to
// a non-zero exit so the orchestrator replaces the container.
var ErrFailFast = errors.New("broker consumer retry budget exhausted")

// Worker consumes one queue into a bounded in-process buffer. Each worker
// owns its broker connection through the factory (keyed by its name).
type Worker struct {
	name    string
	queue   string
	factory *Factory
	cfg     config.RetryConfig

	prefetch int
	validate *validator.Validate

	msgs  chan domain.Message
	stop  chan struct{}
	ready chan struct{}

	stopOnce  sync.Once
	readyOnce sync.Once

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewWorker builds a worker for one queue.
func NewWorker(name, queue string, factory *Factory, cfg config.Config) *Worker {
	return &Worker{
		name:     name,
		queue:    queue,
		factory:  factory,
		cfg:      cfg.BrokerRetry,
		prefetch: cfg.PrefetchCount,
		validate: validator.New(),
		msgs:     make(chan domain.Message, cfg.WorkerQueueSize),
		stop:     make(chan struct{}),
		ready:    make(chan struct{}),
		now:      time.Now,
		sleep: func(d time.Duration) {
			time.Sleep(d)
		},
	}
}

// Ready is closed after the first successful consume registration.
func (w *Worker) Ready() <-chan struct{} { return w.ready }

// Queue returns the queue this worker consumes.
func (w *Worker) Queue() string { return w.queue }

// StartConsuming runs the consume loop until stopped. A consumer that stays
// up at least the stability threshold earns a fresh retry budget on its next
// disconnect; a flapping one burns through the budget and fails fast.
func (w *Worker) StartConsuming(ctx context.Context) error {
	attempts := 0
	delay := w.cfg.RetryDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		default:
		}

		uptime, err := w.consume(ctx)
		if err == nil {
			return nil // graceful stop
		}

		if uptime >= w.cfg.StabilityThreshold {
			attempts = 0
			delay = w.cfg.RetryDelay
		}
		attempts++
		observability.ConsumerReconnectsTotal.WithLabelValues(w.queue).Inc()
		if attempts >= w.cfg.MaxRetries {
			slog.Error("consumer exhausted reconnect budget",
				slog.String("worker", w.name),
				slog.String("queue", w.queue),
				slog.Int("attempts", attempts),
				slog.Any("error", err))
			return ErrFailFast
		}
		slog.Warn("consumer disconnected; reconnecting",
			slog.String("worker", w.name),
			slog.String("queue", w.queue),
			slog.Int("attempt", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		w.factory.CloseOwner(w.name)
		w.sleep(delay)
		delay = time.Duration(float64(delay) * w.cfg.Backoff)
	}
}

// consume registers on the queue and drains deliveries until the channel
// dies (error) or the worker is stopped (nil error). The returned uptime is
// how long the consumer was registered; a failure before registration counts
// as zero, so a slow dial never masquerades as a stable connection.
func (w *Worker) consume(ctx context.Context) (time.Duration, error) {
	ch, err := w.factory.Channel(w.name)
	if err != nil {
		return 0, err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		return 0, err
	}
	deliveries, err := ch.ConsumeWithContext(ctx, w.queue, w.name, false, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	w.readyOnce.Do(func() { close(w.ready) })
	start := w.now()

	for {
		select {
		case <-ctx.Done():
			return w.now().Sub(start), nil
		case <-w.stop:
			return w.now().Sub(start), nil
		case d, ok := <-deliveries:
			if !ok {
				return w.now().Sub(start), errors.New("delivery channel closed")
			}
			w.processDelivery(ctx, d)
		}
	}
}

// processDelivery parses and validates the envelope. A malformed message is
// rejected without requeue; the broker drops or dead-letters it. A valid
// one is buffered, then acked. A valid message caught by shutdown before it
// fits in the buffer goes back to the queue for the next consumer.
func (w *Worker) processDelivery(ctx context.Context, d amqp.Delivery) {
	var msg domain.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		slog.Warn("rejecting unparsable message",
			slog.String("queue", w.queue), slog.Any("error", err))
		w.reject(d)
		return
	}
	if err := w.validate.Struct(msg); err != nil {
		slog.Warn("rejecting invalid message",
			slog.String("queue", w.queue),
			slog.String("id", msg.ID),
			slog.Any("error", err))
		w.reject(d)
		return
	}

	select {
	case w.msgs <- msg:
	case <-ctx.Done():
		w.requeue(d)
		return
	case <-w.stop:
		w.requeue(d)
		return
	}
	if err := d.Ack(false); err != nil {
		slog.Warn("ack failed", slog.String("queue", w.queue), slog.Any("error", err))
		return
	}
	observability.MessagesConsumedTotal.WithLabelValues(w.queue, "ok").Inc()
}

func (w *Worker) reject(d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		slog.Warn("nack failed", slog.String("queue", w.queue), slog.Any("error", err))
	}
	observability.MessagesConsumedTotal.WithLabelValues(w.queue, "rejected").Inc()
}

func (w *Worker) requeue(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		slog.Warn("requeue nack failed", slog.String("queue", w.queue), slog.Any("error", err))
	}
	observability.MessagesConsumedTotal.WithLabelValues(w.queue, "requeued").Inc()
}

// MessageStream returns a lazy iterator over the buffer. The second result
// is false once the worker is stopped. With yieldNil set, a quiet period of
// timeout yields (nil, true) so callers can interleave other work;
// otherwise the iterator waits through timeouts.
func (w *Worker) MessageStream(timeout time.Duration, yieldNil bool) func() (*domain.Message, bool) {
	return func() (*domain.Message, bool) {
		for {
			// Drain buffered messages even after stop.
			select {
			case m := <-w.msgs:
				return &m, true
			default:
			}
			select {
			case m := <-w.msgs:
				return &m, true
			case <-w.stop:
				return nil, false
			case <-time.After(timeout):
				if yieldNil {
					return nil, true
				}
			}
		}
	}
}

// HasMessages reports whether the buffer is non-empty.
func (w *Worker) HasMessages() bool { return len(w.msgs) > 0 }

// QueueSize returns the number of buffered messages.
func (w *Worker) QueueSize() int { return len(w.msgs) }

// StopConsuming stops the consume loop and wakes every stream. Idempotent.
func (w *Worker) StopConsuming() {
	w.stopOnce.Do(func() { close(w.stop) })
}
