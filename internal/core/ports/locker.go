package ports

import "context"

// KeyLocker provides mutual exclusion on a key across processes.
type KeyLocker interface {
	// Lock returns domain.ErrBusy when the key is held elsewhere.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Serializer runs fn on the single owner of key. Calls for the same key
// never overlap and run in submission order.
type Serializer interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
