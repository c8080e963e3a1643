package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultOpTimeout = 2 * time.Second
	defaultPoolSize  = 10
)

// Config holds the connection settings for the webhook dedup store.
// OpTimeout bounds dialing and every read or write.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	OpTimeout    time.Duration
}

func (c Config) options() *redis.Options {
	timeout := c.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	pool := c.PoolSize
	if pool <= 0 {
		pool = defaultPoolSize
	}
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     pool,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolTimeout:  2 * timeout,
		MaxRetries:   1,
	}
}

// Connect opens a client and pings it once before handing it out.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := cfg.options()
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return client, nil
}
