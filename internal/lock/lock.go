// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package lock implements Redis-backed distributed locks for coordinating
// a fleet of pipeline workers. A lock is a single key set with NX and a
// TTL; release and extension are owner-checked server-side so a worker
// can never release or extend a lock it no longer holds.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/metrics"
)

// KeyPrefix namespaces all lock keys so the stale-lock sweep can find
// them without touching unrelated keys.
const KeyPrefix = "distributed_lock:"

// ErrNotAcquired is returned by Acquire when another worker holds the lock.
var ErrNotAcquired = errors.New("lock held by another owner")

// ErrNotOwned is returned by Release and Extend when the lock has expired
// or was taken over by another owner.
var ErrNotOwned = errors.New("lock not owned by this holder")

// releaseScript deletes the lock key only if it still carries our owner
// token. Runs atomically server-side.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// extendScript resets the TTL only if we still own the lock.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Manager acquires and sweeps locks on a shared Redis instance.
type Manager struct {
	client redis.UniversalClient
}

// NewManager creates a lock manager on the given client.
func NewManager(client redis.UniversalClient) *Manager {
	return &Manager{client: client}
}

// Lock is a held distributed lock. Zero value is not usable; obtain one
// from Manager.Acquire.
type Lock struct {
	client redis.UniversalClient
	key    string
	owner  string
}

// Acquire attempts to take the named lock for ttl. Returns ErrNotAcquired
// without waiting when the lock is already held.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := KeyPrefix + name
	owner := uuid.NewString()

	ok, err := m.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		metrics.LockAcquisitions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	if !ok {
		metrics.LockAcquisitions.WithLabelValues("contended").Inc()
		return nil, ErrNotAcquired
	}

	metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
	logging.Debug().Str("lock", name).Str("owner", owner).Dur("ttl", ttl).Msg("lock acquired")
	return &Lock{client: m.client, key: key, owner: owner}, nil
}

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotOwned
	}
	return nil
}

// Extend resets the lock TTL to ttl if this holder still owns it.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extending lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotOwned
	}
	return nil
}

// Key returns the full Redis key of the lock.
func (l *Lock) Key() string { return l.key }

// SweepStale removes lock keys that have no expiration. A lock without a
// TTL can only result from a partial write or manual tampering and would
// otherwise block its resource forever. Returns the number of keys removed.
func (m *Manager) SweepStale(ctx context.Context) (int, error) {
	var (
		swept  int
		cursor uint64
	)
	for {
		keys, next, err := m.client.Scan(ctx, cursor, KeyPrefix+"*", 100).Result()
		if err != nil {
			return swept, fmt.Errorf("scanning lock keys: %w", err)
		}
		for _, key := range keys {
			ttl, err := m.client.PTTL(ctx, key).Result()
			if err != nil {
				return swept, fmt.Errorf("checking ttl of %s: %w", key, err)
			}
			// -1 means the key exists but carries no expiration.
			if ttl == -1 {
				if err := m.client.Del(ctx, key).Err(); err != nil {
					return swept, fmt.Errorf("deleting stale lock %s: %w", key, err)
				}
				swept++
				metrics.StaleLocksSwept.Inc()
				logging.Warn().Str("key", key).Msg("removed stale lock without expiration")
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return swept, nil
}
