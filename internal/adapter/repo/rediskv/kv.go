// Package rediskv wraps the Redis client with the hash/set shapes the task
// store uses, plus the generic key-value operations exposed over RPC.
package rediskv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sheetflow/sheetflow/internal/adapter/observability"
)

// Store wraps a Redis client and a small in-process read cache.
type Store struct {
	c *redis.Client

	mu    sync.RWMutex
	cache map[string]string
}

// New builds a Store over a fresh Redis client.
func New(addr, password string, db int) *Store {
	return Wrap(redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}))
}

// Wrap builds a Store over an existing client.
func Wrap(c *redis.Client) *Store {
	return &Store{c: c, cache: make(map[string]string)}
}

// Client exposes the underlying client for health checks and shutdown.
func (s *Store) Client() *redis.Client { return s.c }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=kv.ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.c.Close() }

// Keys returns the keys matching a glob pattern.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.c.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("op=kv.keys: %w", err)
	}
	return keys, nil
}

// Set stores a plain string value with an optional TTL (0 = no expiry).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("op=kv.set: %w", err)
	}
	return nil
}

// Get loads a plain string value, consulting the read cache first.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		observability.KVCacheHitsTotal.Inc()
		return v, true, nil
	}
	s.mu.RUnlock()
	observability.KVCacheMissesTotal.Inc()

	v, err := s.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("op=kv.get: %w", err)
	}
	s.mu.Lock()
	s.cache[key] = v
	s.mu.Unlock()
	return v, true, nil
}

// Delete removes keys and evicts them from the read cache. Returns the
// number of keys removed.
func (s *Store) Delete(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.c.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("op=kv.delete: %w", err)
	}
	s.mu.Lock()
	for _, k := range keys {
		delete(s.cache, k)
	}
	s.mu.Unlock()
	return n, nil
}

// Cache returns a copy of the read-cache contents.
func (s *Store) Cache() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}

// ClearCache drops the read cache.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// SetHash writes all fields of a hash and applies the TTL.
func (s *Store) SetHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.c.HSet(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("op=kv.set_hash: %w", err)
	}
	if ttl > 0 {
		if err := s.c.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("op=kv.set_hash expire: %w", err)
		}
	}
	return nil
}

// GetHash loads all fields of a hash; found is false for a missing key.
func (s *Store) GetHash(ctx context.Context, key string) (map[string]string, bool, error) {
	fields, err := s.c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("op=kv.get_hash: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

// SetHashField overwrites a single hash field.
func (s *Store) SetHashField(ctx context.Context, key, field, value string) error {
	if err := s.c.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("op=kv.set_hash_field: %w", err)
	}
	return nil
}

// AddToSet adds a member to a set and applies the TTL to the set key.
func (s *Store) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := s.c.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("op=kv.add_to_set: %w", err)
	}
	if ttl > 0 {
		if err := s.c.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("op=kv.add_to_set expire: %w", err)
		}
	}
	return nil
}

// SetMembers returns the members of a set.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.c.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("op=kv.set_members: %w", err)
	}
	return members, nil
}

// Expire re-applies a TTL to a key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.c.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("op=kv.expire: %w", err)
	}
	return nil
}
