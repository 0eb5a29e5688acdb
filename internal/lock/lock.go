// Package lock provides a named distributed lock for collaborators that
// cannot rely on database transactions, such as calls to the external
// payment provider. The core state machine itself uses serializable
// database transactions, not this lock.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the caller still owns it.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only when the caller still owns the lock.
// KEYS[1] = lock key
// ARGV[1] = owner token
// ARGV[2] = ttl in milliseconds
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Manager acquires and releases named locks backed by Redis.
type Manager struct {
	client *redis.Client
}

// NewManager creates a lock manager connected to the given Redis instance.
func NewManager(addr, password string, db int) *Manager {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Manager{client: rdb}
}

// Acquire tries to take the named lock for ttl. It returns the owner token
// needed to release or extend the lock, and false when the lock is already
// held elsewhere.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	owner := uuid.New().String()
	ok, err := m.client.SetNX(ctx, key(name), owner, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return owner, ok, nil
}

// Release frees the lock if owner still holds it. Returns false when the
// lock expired or was taken over.
func (m *Manager) Release(ctx context.Context, name, owner string) (bool, error) {
	res, err := releaseScript.Run(ctx, m.client, []string{key(name)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Extend pushes the lock's expiry out by ttl if owner still holds it.
func (m *Manager) Extend(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, m.client, []string{key(name)}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Ping verifies connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func key(name string) string {
	return "lock:" + name
}
