package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/oklog/ulid/v2"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockAcquire is returned when the lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

const (
	defaultLockTTL = 30 * time.Second
	pollInterval   = 50 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker implements state.Locker with Redis SET NX PX.
// The TTL bounds how long a crashed holder can block a user.
type Locker struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewLocker creates a new Redis locker.
func NewLocker(client backend.UniversalClient, opts ...Option) *Locker {
	o := buildOptions(opts)
	if o.ttl <= 0 {
		o.ttl = defaultLockTTL
	}
	return &Locker{client: client, prefix: o.prefix, ttl: o.ttl}
}

func (l *Locker) key(userID int64) string {
	return l.prefix + "lock:" + strconv.FormatInt(userID, 10)
}

// Lock polls until the lock for userID is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, userID int64) (state.UnlockFunc, error) {
	lockKey := l.key(userID)
	token := ulid.Make().String()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctxErr)
			}
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ state.Locker = (*Locker)(nil)
