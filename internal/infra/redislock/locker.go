// Package redislock provides a Redis-backed engine.Locker so passes for the
// same user stay single-flight across processes.
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "finance-recurring:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker implements engine.Locker with SET NX and a TTL.
type Locker struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// Connect parses a Redis URL (redis://host:port/db) or a bare host:port,
// connects and pings the server.
func Connect(ctx context.Context, redisURL string) (*Locker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt, err = redis.ParseURL(fmt.Sprintf("redis://%s", redisURL))
		if err != nil {
			opt = &redis.Options{Addr: redisURL}
		}
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Connect: failed to connect to redis: %w", err)
	}

	return New(client), nil
}

// Acquire implements engine.Locker.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("Acquire: failed to set lock %s: %w", key, err)
	}
	if !ok {
		return nil, engine.ErrScanInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(ctx, key, token) })
	}, nil
}

func (l *Locker) release(ctx context.Context, key, token string) {
	// The caller's context may already be cancelled; releasing must still happen.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(releaseCtx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("lock", key).Msg("Failed to release lock")
	}
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	return l.client.Close()
}

var _ engine.Locker = (*Locker)(nil)
