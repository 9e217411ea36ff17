package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants short-lived named leases so only one instance runs a given
// sweep at a time. A lease expires on its own if the holder dies.
type Locker interface {
	// Acquire returns a release func when the lease was granted, nil when
	// another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

type redisLocker struct {
	client *redis.Client
	prefix string
}

// NewLocker returns a Redis-backed locker, or a process-local one when r
// has no client.
func NewLocker(r *Redis) Locker {
	if r == nil || r.Client == nil {
		return NewLocalLocker()
	}
	return &redisLocker{client: r.Client, prefix: "locate:lock:"}
}

func (l *redisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return func() {
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}, nil
}

type localLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

// NewLocalLocker returns an in-process locker.
func NewLocalLocker() Locker {
	return &localLocker{leases: map[string]time.Time{}, now: time.Now}
}

func (l *localLocker) Acquire(_ context.Context, name string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if until, held := l.leases[name]; held && now.Before(until) {
		return nil, nil
	}
	until := now.Add(ttl)
	l.leases[name] = until
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.leases[name].Equal(until) {
			delete(l.leases, name)
		}
	}, nil
}
