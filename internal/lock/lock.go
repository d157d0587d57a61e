// Package lock provides the advisory lock that keeps periodic sweeps from
// running twice at once across replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired means another holder owns the lock.
var ErrNotAcquired = errors.New("lock already held by another process")

type Locker interface {
	Acquire(ctx context.Context, resource string, ttl time.Duration) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire sets the key with NX and a TTL, so a crashed holder's lock expires.
func (l *RedisLocker) Acquire(ctx context.Context, resource string, ttl time.Duration) (Lock, error) {
	key := l.prefix + resource
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLock{client: l.client, key: key, token: token}, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	token  string
}

// Release deletes the key only if this holder still owns it.
func (l *redisLock) Release(ctx context.Context) error {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s expired before release", l.key)
	}
	return nil
}

// LocalLocker is an in-process Locker for single-replica setups and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, resource string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, ok := l.held[resource]; ok && l.now().Before(exp) {
		return nil, ErrNotAcquired
	}
	exp := l.now().Add(ttl)
	l.held[resource] = exp
	return &localLock{l: l, resource: resource, exp: exp}, nil
}

type localLock struct {
	l        *LocalLocker
	resource string
	exp      time.Time
}

func (k *localLock) Release(context.Context) error {
	k.l.mu.Lock()
	defer k.l.mu.Unlock()
	if cur, ok := k.l.held[k.resource]; ok && cur.Equal(k.exp) {
		delete(k.l.held, k.resource)
	}
	return nil
}
