// Package redis connects the engine to Redis: the live candle stream feed,
// the result publisher and the engine config channel.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// ClientConfig configures the Redis connection.
type ClientConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg ClientConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
