package retry

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/config"
)

func fastTuple(maxRetries int) config.RetryConfig {
	return config.RetryConfig{MaxRetries: maxRetries, RetryDelay: time.Millisecond, Backoff: 2.0}
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastTuple(3), func(_ context.Context, force bool) error {
		calls++
		require.False(t, force)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestExecute_RetriesWithForcedReconnect(t *testing.T) {
	var forces []bool
	err := Execute(context.Background(), fastTuple(3), func(_ context.Context, force bool) error {
		forces = append(forces, force)
		if len(forces) < 3 {
			return syscall.ECONNREFUSED
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, true}, forces)
}

func TestExecute_ExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), fastTuple(3), func(context.Context, bool) error {
		calls++
		return io.EOF
	})
	require.Error(t, err)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 4, calls) // initial attempt + three retries
}

func TestExecute_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("schema violation")
	err := Execute(context.Background(), fastTuple(3), func(context.Context, bool) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestExecute_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Execute(ctx, config.RetryConfig{MaxRetries: 5, RetryDelay: time.Minute, Backoff: 2.0},
		func(context.Context, bool) error {
			calls++
			cancel()
			return syscall.ECONNRESET
		})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", syscall.ECONNREFUSED, true},
		{"reset", syscall.ECONNRESET, true},
		{"eof", io.EOF, true},
		{"redis closed", redis.ErrClosed, true},
		{"redis nil", redis.Nil, false},
		{"ctx canceled", context.Canceled, false},
		{"ctx deadline", context.DeadlineExceeded, false},
		{"pg connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"pg constraint violation", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), true},
		{"domain", errors.New("not found"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Transient(tc.err))
		})
	}
}
