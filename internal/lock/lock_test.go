// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewManager(client), mr
}

func TestAcquireAndRelease(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "flush_100", 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !mr.Exists("distributed_lock:flush_100") {
		t.Fatal("lock key not present after acquire")
	}

	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if mr.Exists("distributed_lock:flush_100") {
		t.Fatal("lock key still present after release")
	}
}

func TestAcquireContended(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "shared", time.Minute); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	_, err := m.Acquire(ctx, "shared", time.Minute)
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second Acquire() error = %v, want ErrNotAcquired", err)
	}
}

func TestAcquireAfterExpiry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "shared", time.Second); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := m.Acquire(ctx, "shared", time.Second); err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}
}

func TestReleaseNotOwned(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "shared", time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Expire the lock and let another holder take it over.
	mr.FastForward(2 * time.Second)
	other, err := m.Acquire(ctx, "shared", time.Minute)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	if err := l.Release(ctx); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("Release() error = %v, want ErrNotOwned", err)
	}
	// The new holder's lock must survive the stale release attempt.
	if !mr.Exists(other.Key()) {
		t.Fatal("new holder's lock was deleted by the old holder")
	}
}

func TestExtend(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "flush", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Extend(ctx, 45*time.Second); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}

	ttl := mr.TTL(l.Key())
	if ttl <= 10*time.Second {
		t.Fatalf("TTL after extend = %v, want > 10s", ttl)
	}
}

func TestExtendNotOwned(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	l, err := m.Acquire(ctx, "flush", time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	mr.FastForward(2 * time.Second)

	if err := l.Extend(ctx, time.Minute); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("Extend() error = %v, want ErrNotOwned", err)
	}
}

func TestSweepStale(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	// Healthy lock with a TTL.
	if _, err := m.Acquire(ctx, "healthy", time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	// Orphaned locks without expiration.
	mr.Set("distributed_lock:orphan_a", "x")
	mr.Set("distributed_lock:orphan_b", "y")
	// Unrelated persistent key must not be touched.
	mr.Set("stats:cached_tweets", "42")

	swept, err := m.SweepStale(ctx)
	if err != nil {
		t.Fatalf("SweepStale() error = %v", err)
	}
	if swept != 2 {
		t.Fatalf("SweepStale() = %d, want 2", swept)
	}
	if mr.Exists("distributed_lock:orphan_a") || mr.Exists("distributed_lock:orphan_b") {
		t.Fatal("stale locks still present after sweep")
	}
	if !mr.Exists("distributed_lock:healthy") {
		t.Fatal("healthy lock removed by sweep")
	}
	if !mr.Exists("stats:cached_tweets") {
		t.Fatal("unrelated key removed by sweep")
	}
}
