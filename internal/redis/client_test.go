package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niceverygood/maria-reservation-sub001/internal/config"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Config{
		RedisAddr:     mr.Addr(),
		RedisPoolSize: 4,
		RedisTimeout:  time.Second,
	}

	rdb, err := NewRedisClient(cfg)
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := rdb.Get(context.Background(), "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	cfg := config.Config{
		RedisAddr:     "127.0.0.1:1",
		RedisPoolSize: 1,
		RedisTimeout:  100 * time.Millisecond,
	}

	_, err := NewRedisClient(cfg)
	require.Error(t, err)
}
