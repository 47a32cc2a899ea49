package redis

import (
	"context"

	"github.com/go-redis/redis/v8"

	"telegram-paid-channel/internal/config"
)

// NewClient returns a connected *redis.Client or an error from the initial ping.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return c, nil
}
