package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/palletrack/pallet-system/internal/core/domain"
)

const defaultLockTTL = 5 * time.Second

// unlockScript deletes the key only if it still carries our token, so a lock
// that expired and was re-acquired elsewhere is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KeyLocker provides per-key mutual exclusion backed by Redis.
// Key format: lock:<key>
type KeyLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKeyLocker creates a KeyLocker. A default TTL is applied when ttl <= 0.
func NewKeyLocker(client *redis.Client, ttl time.Duration) *KeyLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &KeyLocker{client: client, ttl: ttl}
}

// Lock acquires key or returns domain.ErrBusy when another holder has it.
func (l *KeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(key), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrBusy
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		_ = unlockScript.Run(ctx, l.client, []string{l.key(key)}, token).Err()
	}
	return unlock, nil
}

func (l *KeyLocker) key(key string) string {
	return "lock:" + key
}
