package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript sets KEYS[1] to ARGV[2] when its current value equals ARGV[1]
// (or when ARGV[1] is empty and the key is missing).  ARGV[3] is the TTL in
// milliseconds; zero stores the key without expiry.
var casScript = redis.NewScript(`
    local cur = redis.call('GET', KEYS[1])
    if ARGV[1] == '' then
        if cur then return 0 end
    elseif cur ~= ARGV[1] then
        return 0
    end
    local ttl = tonumber(ARGV[3])
    if ttl > 0 then
        redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
    else
        redis.call('SET', KEYS[1], ARGV[2])
    end
    return 1
`)

// Redis is a Store backed by a shared Redis server, so that several API
// processes agree on which QR token is active.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedis wraps rdb.  Keys are namespaced with prefix when it is not empty.
func NewRedis(rdb redis.Cmdable, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) PutWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	ms := ttl.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	n, err := casScript.Run(ctx, r.rdb, []string{r.key(key)}, expected, value, ms).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
