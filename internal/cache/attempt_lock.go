// Package cache holds the Redis-backed helpers used outside of HTTP
// middleware: the payment attempt lock and response cache invalidation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by Acquire when another attempt holds the lock.
var ErrLocked = errors.New("attempt already in progress")

// releaseScript deletes the key only when it still holds our token, so a
// lock that expired and was taken by another attempt is left alone.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// AttemptLock serialises payment attempts of one user for one showtime.
// A nil *AttemptLock or one without a client grants every lock.
type AttemptLock struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewAttemptLock returns a lock whose keys expire after ttl.
func NewAttemptLock(rdb *redis.Client, prefix string, ttl time.Duration) *AttemptLock {
	if prefix == "" {
		prefix = "payattempt"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &AttemptLock{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *AttemptLock) key(userID, showtimeID uint64) string {
	return fmt.Sprintf("%s:%d:%d", l.prefix, userID, showtimeID)
}

// Acquire takes the lock and returns a release func.  It returns ErrLocked
// when the lock is held.  A Redis failure is returned as is; callers
// decide whether to proceed without the lock.
func (l *AttemptLock) Acquire(ctx context.Context, userID, showtimeID uint64) (func(context.Context), error) {
	if l == nil || l.rdb == nil {
		return func(context.Context) {}, nil
	}
	key := l.key(userID, showtimeID)
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}
