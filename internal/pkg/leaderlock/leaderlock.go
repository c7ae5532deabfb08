// Package leaderlock provides a Redis-backed leader lock so that only one
// bot process polls Telegram for updates at a time. It is a process-level
// singleton mechanism; redemption correctness does not depend on it (that is
// the database transaction's job).
package leaderlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the lock key only if this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// refreshScript extends the TTL only if this holder still owns the lock.
var refreshScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// Lock is a single-holder distributed lock with a TTL.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// New creates a Lock on the given key. Each Lock instance carries its own
// holder token, so a stale process can never release a newer holder's lock.
func New(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return &Lock{
		rdb:   rdb,
		key:   key,
		token: hex.EncodeToString(b),
		ttl:   ttl,
	}
}

// TryAcquire attempts to take the lock without blocking.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Acquire blocks until the lock is taken or the context is done, polling at
// the given interval.
func (l *Lock) Acquire(ctx context.Context, retryInterval time.Duration) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh extends the lock's TTL. Returns false if the lock is no longer
// held by this instance.
func (l *Lock) Refresh(ctx context.Context) (bool, error) {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release drops the lock if this instance still holds it.
func (l *Lock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Result()
	return err
}

// KeepAlive refreshes the lock at ttl/3 intervals until the context is done.
// If a refresh reports the lock lost, onLost is called once and the loop
// exits; the caller should then stop polling.
func (l *Lock) KeepAlive(ctx context.Context, onLost func()) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := l.Refresh(ctx)
			if err != nil {
				log.Warn().Err(err).Str("key", l.key).Msg("Leader lock refresh failed")
				continue
			}
			if !held {
				log.Warn().Str("key", l.key).Msg("Leader lock lost")
				if onLost != nil {
					onLost()
				}
				return
			}
		}
	}
}
