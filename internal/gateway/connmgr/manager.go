// Package connmgr owns the data gateway's store connections. Handlers never
// dial stores directly: they ask the manager, which lazily opens, health
// checks and, when asked, tears down and re-dials a connection.
package connmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetflow/sheetflow/internal/adapter/repo/postgres"
	"github.com/sheetflow/sheetflow/internal/adapter/repo/rediskv"
	"github.com/sheetflow/sheetflow/internal/config"
)

// Manager hands out shared store connections, re-dialing on demand.
type Manager struct {
	cfg config.Config

	dialRedis func(cfg config.Config) *rediskv.Store
	dialPool  func(ctx context.Context, url string) (*pgxpool.Pool, error)

	mu    sync.Mutex
	redis *rediskv.Store
	pool  *pgxpool.Pool
}

// New builds a Manager with the default dialers.
func New(cfg config.Config) *Manager {
	return &Manager{
		cfg: cfg,
		dialRedis: func(cfg config.Config) *rediskv.Store {
			return rediskv.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		},
		dialPool: postgres.NewPool,
	}
}

// NewWithDialers builds a Manager with injected dialers; tests point them
// at fakes. A nil dialer keeps the default.
func NewWithDialers(cfg config.Config, dialRedis func(config.Config) *rediskv.Store, dialPool func(context.Context, string) (*pgxpool.Pool, error)) *Manager {
	m := New(cfg)
	if dialRedis != nil {
		m.dialRedis = dialRedis
	}
	if dialPool != nil {
		m.dialPool = dialPool
	}
	return m
}

// Redis returns the shared KV store, dialing on first use. A cached
// connection is pinged before it is handed out; an unhealthy one is closed
// and re-dialed. With force set, the current connection is closed and a
// fresh one dialed regardless; retry wrappers set force after a transient
// failure.
func (m *Manager) Redis(ctx context.Context, force bool) (*rediskv.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redis != nil && !force {
		err := m.redis.Ping(ctx)
		if err == nil {
			return m.redis, nil
		}
		slog.Warn("cached redis connection unhealthy, re-dialing", slog.Any("error", err))
	}
	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			slog.Warn("closing stale redis connection", slog.Any("error", err))
		}
		m.redis = nil
	}
	s := m.dialRedis(m.cfg)
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("op=connmgr.redis: %w", err)
	}
	m.redis = s
	return m.redis, nil
}

// Pool returns the shared Postgres pool, dialing on first use. Health check
// and force work as in Redis.
func (m *Manager) Pool(ctx context.Context, force bool) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool != nil && !force {
		err := m.pool.Ping(ctx)
		if err == nil {
			return m.pool, nil
		}
		slog.Warn("cached postgres pool unhealthy, re-dialing", slog.Any("error", err))
	}
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
	p, err := m.dialPool(ctx, m.cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("op=connmgr.pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("op=connmgr.pool ping: %w", err)
	}
	m.pool = p
	return m.pool, nil
}

// HealthCheck pings every open connection; a failing connection is dropped
// so the next accessor call re-dials.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.redis != nil {
		if err := m.redis.Ping(ctx); err != nil {
			firstErr = fmt.Errorf("op=connmgr.health redis: %w", err)
			_ = m.redis.Close()
			m.redis = nil
		}
	}
	if m.pool != nil {
		if err := m.pool.Ping(ctx); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("op=connmgr.health pool: %w", err)
			}
			m.pool.Close()
			m.pool = nil
		}
	}
	return firstErr
}

// Close releases every open connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redis != nil {
		_ = m.redis.Close()
		m.redis = nil
	}
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
}
