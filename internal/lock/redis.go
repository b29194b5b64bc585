// Package lock provides the distributed run lock that keeps two scheduler
// replicas from running the same job at once.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes per-job locks with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker. An empty prefix falls back to "membership:job_lock".
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "membership:job_lock"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisLocker{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisLocker) key(job string) string {
	return l.prefix + ":" + strings.TrimSpace(job)
}

// TryLock attempts to take the lock for job. When acquired it returns a
// release func; when another holder owns the lock it returns ok=false.
// A locker without a client always grants the lock.
func (l *RedisLocker) TryLock(ctx context.Context, job string) (release func(), ok bool, err error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	key := l.key(job)

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Until the key is deleted the job stays locked for the rest of the TTL.
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Error("failed to release job lock", "key", key, "ttl", l.ttl, "error", err)
		}
	}
	return release, true, nil
}
