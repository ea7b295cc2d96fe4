package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "join_rl:"

// slidingWindow trims expired attempts, counts the remainder, and
// records the new attempt only when it fits, all in one atomic script
// so concurrent joiners cannot slip past the limit. An INCR counter
// keeps ZSET members unique when attempts share a millisecond.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local current = redis.call('ZCARD', key)
if current < limit then
	local counter = redis.call('INCR', key .. ':counter')
	redis.call('ZADD', key, now, now .. ':' .. counter)
	local expire_seconds = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, expire_seconds)
	redis.call('EXPIRE', key .. ':counter', expire_seconds)
	return 1
end
return 0
`)

// Limiter throttles join attempts per client key (remote IP) with a
// sliding window over Redis sorted sets. The window is anchored to each
// attempt, so a burst cannot double its allowance by straddling an
// interval boundary. It damps password guessing against room secrets;
// it is not an authentication layer.
type Limiter struct {
	rdc    *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewLimiter(rdc *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdc:    rdc,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether one more join attempt by key fits in the
// window ending now.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	res, err := slidingWindow.Run(ctx, l.rdc, []string{keyPrefix + key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
