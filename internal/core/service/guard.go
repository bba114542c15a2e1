package service

import (
	"context"

	"github.com/palletrack/pallet-system/internal/core/ports"
)

const lockPrefix = "pallet:"

// keyGuard runs pallet-scoped mutations on the key's owner, holding the
// distributed lock when one is configured. Both collaborators are optional.
type keyGuard struct {
	serial ports.Serializer
	locker ports.KeyLocker
}

func (g keyGuard) run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	exec := func(ctx context.Context) error {
		if g.locker != nil {
			unlock, err := g.locker.Lock(ctx, lockPrefix+key)
			if err != nil {
				return err
			}
			defer unlock()
		}
		return fn(ctx)
	}
	if g.serial == nil {
		return exec(ctx)
	}
	return g.serial.Do(ctx, key, exec)
}
