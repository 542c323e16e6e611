// Package retry wraps store operations with bounded exponential backoff.
// Retries re-dial: every attempt after the first asks its connection
// manager for a forced reconnect before re-running the operation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/sheetflow/sheetflow/internal/config"
)

// Op is one retryable store operation. force is true on every attempt after
// the first; implementations pass it to the connection manager so a broken
// connection is replaced before the re-run.
type Op func(ctx context.Context, force bool) error

// Execute runs op with the tuple's budget: one initial attempt plus up to
// MaxRetries retries. Only transient failures are retried; anything else
// (including a context cancellation) returns immediately.
func Execute(ctx context.Context, cfg config.RetryConfig, op Op) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.RetryDelay
	bo.Multiplier = cfg.Backoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := cfg.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx, attempt > 1)
		if err == nil {
			return nil
		}
		if !Transient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		wait := bo.NextBackOff()
		slog.Warn("transient store failure; retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("op=retry.execute attempts=%d: %w", attempts, err)
}

// Transient reports whether an error is worth a reconnect-and-retry:
// connectivity failures, timeouts and closed clients. Domain errors and
// context cancellations are final.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions; 57P01 is admin shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed pool") ||
		strings.Contains(msg, "conn closed")
}
