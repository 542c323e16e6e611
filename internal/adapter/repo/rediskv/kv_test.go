package rediskv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore_SetGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", v)

	n, err := s.Delete(ctx, []string{"k"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_ReadCache(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "cached", "v1", 0))
	_, _, err := s.Get(ctx, "cached")
	require.NoError(t, err)

	// Change behind the cache; the cached value wins until eviction.
	mr.Set("cached", "v2")
	v, _, err := s.Get(ctx, "cached")
	require.NoError(t, err)
	require.Equal(t, "v1", v)
	require.Contains(t, s.Cache(), "cached")

	s.ClearCache()
	v, _, err = s.Get(ctx, "cached")
	require.NoError(t, err)
	require.Equal(t, "v2", v)
}

func TestStore_HashRoundTrip(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	fields := map[string]string{"status": "accepted", "code": "202", "data": `{"a":1}`}
	require.NoError(t, s.SetHash(ctx, "validation:task:t1", fields, time.Hour))

	got, found, err := s.GetHash(ctx, "validation:task:t1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, fields, got)

	ttl := mr.TTL("validation:task:t1")
	require.Equal(t, time.Hour, ttl)

	_, found, err = s.GetHash(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_SetMembership(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToSet(ctx, "validation:import:u1:tasks", "t1", time.Hour))
	require.NoError(t, s.AddToSet(ctx, "validation:import:u1:tasks", "t2", time.Hour))

	members, err := s.SetMembers(ctx, "validation:import:u1:tasks")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"t1", "t2"}, members)
}

func TestStore_Keys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "schemas:task:a", "1", 0))
	require.NoError(t, s.Set(ctx, "schemas:task:b", "1", 0))
	require.NoError(t, s.Set(ctx, "validation:task:c", "1", 0))

	keys, err := s.Keys(ctx, "schemas:task:*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"schemas:task:a", "schemas:task:b"}, keys)
}

func TestStore_ExpireResetsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetHash(ctx, "k", map[string]string{"f": "v"}, time.Minute))
	require.NoError(t, s.Expire(ctx, "k", time.Hour))
	require.Equal(t, time.Hour, mr.TTL("k"))
}
