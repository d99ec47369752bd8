package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"prestige_server/logging"
)

// RunLock guards matching runs across processes. Acquire never blocks:
// a held lock reports acquired=false.
type RunLock interface {
	Acquire(ctx context.Context) (token string, acquired bool, err error)
	Release(ctx context.Context, token string) error
}

// redisLocker is the subset of redis.Cmdable used by RedisRunLock.
type redisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Deletes the key only while it still holds our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisRunLock is a SET NX PX lock. The TTL bounds how long a crashed holder
// can block other runs.
type RedisRunLock struct {
	client redisLocker
	key    string
	ttl    time.Duration
}

var _ RunLock = (*RedisRunLock)(nil)

func NewRedisRunLock(client redisLocker, key string, ttl time.Duration) *RedisRunLock {
	return &RedisRunLock{client: client, key: key, ttl: ttl}
}

func (l *RedisRunLock) Acquire(ctx context.Context) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire run lock %s: %w", l.key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisRunLock) Release(ctx context.Context, token string) error {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release run lock %s: %w", l.key, err)
	}
	if n == 0 {
		logging.Warn().Str("key", l.key).Msg("⚠️ Run lock expired before release")
	}
	return nil
}
