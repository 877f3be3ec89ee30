package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
)

func TestRedisUnreachable(t *testing.T) {
	r := NewRedis(RedisOptions{Addr: "127.0.0.1:1"})
	defer func() { _ = r.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.ErrorIs(t, r.Ping(ctx), apperr.ErrConnection)
	require.False(t, r.Healthy(ctx))
}

func TestRedisNil(t *testing.T) {
	var r *Redis
	require.ErrorIs(t, r.Ping(context.Background()), apperr.ErrConfig)
	require.False(t, r.Healthy(context.Background()))
	require.NoError(t, r.Close())
}
