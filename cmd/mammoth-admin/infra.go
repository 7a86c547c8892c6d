package main

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/target/mammoth/internal/adapters/dispatcher"
	"github.com/target/mammoth/internal/bootstrap"
)

var errRedisNotConfigured = errors.New("redis not configured (set REDIS_ENABLED=true)")

// withRedis runs fn with the configured Redis client and closes it afterwards.
// An injected client is used as-is and left open.
func (c *commandContext) withRedis(fn func(client redis.UniversalClient) error) error {
	if c.redis != nil {
		return fn(c.redis)
	}
	if !c.Config.Redis.Enabled {
		return errRedisNotConfigured
	}

	client, err := bootstrap.ConnectRedis(c.Ctx, c.Config.Redis, c.Logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			c.Logger.Warn("redis close failed", "error", cerr)
		}
	}()
	return fn(client)
}

// dispatcherClient builds an authenticated dispatcher client from config.
func (c *commandContext) dispatcherClient() (*dispatcher.Client, error) {
	if err := c.Config.Dispatcher.Validate(); err != nil {
		return nil, err
	}
	return bootstrap.NewDispatcher(c.Ctx, c.Config.Dispatcher, nil, c.Logger)
}
