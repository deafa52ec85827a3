package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	token string
	err   error
	calls int
}

func (s *countingSource) Token(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func newTestCache(t *testing.T, src TokenSource) (*redisTokenCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return newRedisTokenCache(rdb, src, "notpixel:token", time.Minute, discardLogger()), mr
}

func TestTokenCacheMissThenHit(t *testing.T) {
	src := &countingSource{token: "abc"}
	cache, mr := newTestCache(t, src)
	ctx := context.Background()

	token, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, time.Minute, mr.TTL("notpixel:token"))

	token, err = cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, 1, src.calls)
}

func TestTokenCacheInvalidate(t *testing.T) {
	src := &countingSource{token: "abc"}
	cache, mr := newTestCache(t, src)
	ctx := context.Background()

	_, err := cache.Token(ctx)
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists("notpixel:token"))

	token, err := refreshToken(ctx, cache)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, 2, src.calls)
}

func TestTokenCacheSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("browser crashed")}
	cache, mr := newTestCache(t, src)

	_, err := cache.Token(context.Background())
	require.Error(t, err)
	assert.False(t, mr.Exists("notpixel:token"))
}

func TestTokenCacheRedisDown(t *testing.T) {
	src := &countingSource{token: "abc"}
	cache, mr := newTestCache(t, src)
	mr.Close()

	token, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}
