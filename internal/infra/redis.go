package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// batchPoolSize bounds connections; outcomes are pipelined from one goroutine.
const batchPoolSize = 2

// NewRedisClient configures the client used for the outcome stream and
// verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = batchPoolSize
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
