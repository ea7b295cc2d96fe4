package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects and pings within 5 s. The relay only uses
// Redis for join-attempt counters, so the pool stays small.
func NewRedisClient(host string, port int) (*redis.Client, error) {
	maxPool := runtime.NumCPU() * 4
	if maxPool > 128 {
		maxPool = 128
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: maxPool,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rc.Ping(ctx).Result(); err != nil {
		err = fmt.Errorf("redis connection failed: %w", err)
		zap.L().Error("redis_connect", zap.Error(err))
		return nil, err
	}
	return rc, nil
}
