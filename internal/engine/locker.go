package engine

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is an in-process Locker. It only guards passes running in the
// same process; multi-instance deployments use the Redis locker.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time // key -> expiry
	clock Clock
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held:  make(map[string]time.Time),
		clock: SystemClock{},
	}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return nil, ErrScanInProgress
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// A newer holder may have taken over after our TTL ran out.
			if l.held[key] == expiry {
				delete(l.held, key)
			}
		})
	}, nil
}

var _ Locker = (*LocalLocker)(nil)
