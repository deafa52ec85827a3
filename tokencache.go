package main

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-redis/redis/v8"
)

// redisTokenCache keeps the last acquired token in redis so a restart does
// not need to relaunch the browser while the token is still valid.
type redisTokenCache struct {
	rdb    *redis.Client
	source TokenSource
	key    string
	ttl    time.Duration
	logger *log.Logger
}

func newRedisTokenCache(rdb *redis.Client, source TokenSource, key string, ttl time.Duration, logger *log.Logger) *redisTokenCache {
	return &redisTokenCache{
		rdb:    rdb,
		source: source,
		key:    key,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *redisTokenCache) Token(ctx context.Context) (string, error) {
	token, err := c.rdb.Get(ctx, c.key).Result()
	switch {
	case err == nil && token != "":
		c.logger.Debug("using cached token", "key", c.key)
		return token, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.Warn("error reading cached token", "key", c.key, "err", err)
	}

	token, err = c.source.Token(ctx)
	if err != nil {
		return "", err
	}

	if err := c.rdb.Set(ctx, c.key, token, c.ttl).Err(); err != nil {
		c.logger.Warn("error caching token", "key", c.key, "err", err)
	}
	return token, nil
}

func (c *redisTokenCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
