// Package redislock provides Redis-backed mutual exclusion for submission
// handling. When several tasmee replicas share one database, the lock keeps
// two submissions for the same learner from interleaving their verify and
// advance steps; within a single process the store's row locking already
// suffices.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "tasmee:lock:"

var (
	// ErrNotAcquired means another holder currently owns the lock.
	ErrNotAcquired = errors.New("redislock: lock not acquired")
	// ErrNotHeld means the lease expired or was taken over before Release.
	ErrNotHeld = errors.New("redislock: lease no longer held")
)

// releaseScript deletes the lock key only when it still carries the
// releasing lease's token, so an expired lease cannot delete a successor's
// lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Locker hands out single-holder leases backed by Redis SET NX.
type Locker struct {
	client *redis.Client
}

// New connects to the Redis instance at uri and verifies the connection
// with a ping before returning.
func New(uri string) (*Locker, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("redislock: parse redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redislock: connect to redis: %w", err)
	}

	return &Locker{client: client}, nil
}

// Ping verifies the Redis connection is alive.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}

// Lease is one acquired lock. Release it when the guarded work is done;
// if the holder crashes the TTL reclaims the lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes the lock named key for at most ttl. It does not block:
// when another holder owns the lock it returns [ErrNotAcquired]
// immediately and the caller decides whether to retry or reject.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("redislock: ttl must be positive, got %v", ttl)
	}
	token := uuid.NewString()
	full := lockKeyPrefix + key

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redislock: acquire %q: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lease{client: l.client, key: full, token: token}, nil
}

// Release returns the lock. It reports [ErrNotHeld] when the lease already
// expired, in which case another holder may have taken over and whatever
// the lease guarded may have run unprotected.
func (le *Lease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, le.client, []string{le.key}, le.token).Int()
	if err != nil {
		return fmt.Errorf("redislock: release %q: %w", le.key, err)
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}
