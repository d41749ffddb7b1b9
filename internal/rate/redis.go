package rate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	rdb "github.com/redis/go-redis/v9"
)

// takeScript poda, cuenta y registra de forma atómica sobre un ZSET con score = ms.
// Retorna {allowed, count, retry_after_ms}.
var takeScript = rdb.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
if count > 0 then
  redis.call('PEXPIRE', key, window)
end
local retry = 0
if allowed == 0 then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
end
return {allowed, count, retry}
`)

// RedisWindow comparte las ventanas entre procesos usando un ZSET por clave.
type RedisWindow struct {
	Client rdb.UniversalClient
	Prefix string
	Clock  func() time.Time
}

func NewRedisWindow(client rdb.UniversalClient, prefix string) *RedisWindow {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisWindow{Client: client, Prefix: prefix, Clock: time.Now}
}

func (w *RedisWindow) key(k string) string {
	return w.Prefix + strings.ReplaceAll(k, " ", "_")
}

func (w *RedisWindow) nowMs() int64 {
	if w.Clock != nil {
		return w.Clock().UnixMilli()
	}
	return time.Now().UnixMilli()
}

func (w *RedisWindow) Take(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	now := w.nowMs()
	member := uuid.NewString()
	vals, err := takeScript.Run(ctx, w.Client, []string{w.key(key)},
		now, window.Milliseconds(), max, member).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Allowed:     vals[0] == 1,
		CurrentHits: vals[1],
		RetryAfter:  time.Duration(vals[2]) * time.Millisecond,
	}
	res.Remaining = int64(max) - res.CurrentHits
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

func (w *RedisWindow) TimeUntilReset(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	now := w.nowMs()
	k := w.key(key)

	pipe := w.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", formatMs(now-window.Milliseconds()))
	oldest := pipe.ZRangeWithScores(ctx, k, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	zs := oldest.Val()
	if len(zs) == 0 {
		return 0, nil
	}
	left := int64(zs[0].Score) + window.Milliseconds() - now
	if left < 0 {
		left = 0
	}
	return time.Duration(left) * time.Millisecond, nil
}

func formatMs(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
