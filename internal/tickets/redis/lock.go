package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"park-ticketing/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "capacity_lock:"

var ErrLockTimeout = errors.New("timed out waiting for day lock")

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another instance is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DayLock serialises capacity checks for a calendar day across instances
// sharing one Redis.
type DayLock struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
}

func NewDayLock(client *redis.Client, ttl, wait time.Duration, log *logger.Logger) *DayLock {
	return &DayLock{
		Client: client,
		Logger: log,
		TTL:    ttl,
		Wait:   wait,
		Retry:  25 * time.Millisecond,
	}
}

func (l *DayLock) LockDay(ctx context.Context, day string) (func(), error) {
	key := keyPrefix + day
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.Wait)
	defer cancel()

	for {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, day)
			}
			return nil, ctx.Err()
		case <-time.After(l.Retry):
		}
	}

	return func() {
		// the request context may already be cancelled; release regardless
		if err := unlockScript.Run(context.Background(), l.Client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.Logger.Warn("REDIS", fmt.Sprintf("Failed to release %s: %v", key, err))
		}
	}, nil
}

// IsLocked reports whether some instance currently holds the day.
func (l *DayLock) IsLocked(ctx context.Context, day string) (bool, error) {
	_, err := l.Client.Get(ctx, keyPrefix+day).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
