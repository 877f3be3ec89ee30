package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/apperr"
)

// RedisOptions configures the redis client behind the blob cleanup queue.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis holds the cleanup-queue client. The connection is lazy; Ping or
// Healthy check it.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client. Reads must outlast the queue's BRPOP block.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  6 * time.Second,
		WriteTimeout: time.Second,
	})}
}

// Ping reports why redis cannot be reached, as apperr.ErrConnection.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return fmt.Errorf("%w: redis not initialized", apperr.ErrConfig)
	}
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis %s: %v", apperr.ErrConnection, r.Client.Options().Addr, err)
	}
	return nil
}

// Healthy is Ping as a bool, for /healthz.
func (r *Redis) Healthy(ctx context.Context) bool {
	return r.Ping(ctx) == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
