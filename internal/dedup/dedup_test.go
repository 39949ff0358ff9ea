// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestIsDuplicateFirstAndSecondSighting(t *testing.T) {
	client, _ := newTestClient(t)
	d := New(client, 1000, 0.01)
	ctx := context.Background()

	dup, err := d.IsDuplicate(ctx, "tweet-1")
	if err != nil {
		t.Fatalf("IsDuplicate() error = %v", err)
	}
	if dup {
		t.Fatal("first sighting reported as duplicate")
	}

	dup, err = d.IsDuplicate(ctx, "tweet-1")
	if err != nil {
		t.Fatalf("IsDuplicate() error = %v", err)
	}
	if !dup {
		t.Fatal("second sighting not reported as duplicate")
	}
}

func TestIsDuplicateAcrossInstances(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	// Two workers with independent local filters sharing one Redis.
	a := New(client, 1000, 0.01)
	b := New(client, 1000, 0.01)

	if dup, err := a.IsDuplicate(ctx, "tweet-x"); err != nil || dup {
		t.Fatalf("instance a first sighting: dup=%v err=%v", dup, err)
	}
	// Instance b has never seen the id locally; the shared set must
	// still flag it.
	dup, err := b.IsDuplicate(ctx, "tweet-x")
	if err != nil {
		t.Fatalf("IsDuplicate() error = %v", err)
	}
	if !dup {
		t.Fatal("duplicate from another instance not detected")
	}
}

func TestSeenSetUsesFixedKey(t *testing.T) {
	client, mr := newTestClient(t)
	d := New(client, 1000, 0.01)
	ctx := context.Background()

	if _, err := d.IsDuplicate(ctx, "tweet-1"); err != nil {
		t.Fatalf("IsDuplicate() error = %v", err)
	}
	members, err := mr.SMembers("dedup:seen")
	if err != nil {
		t.Fatalf("SMembers() error = %v", err)
	}
	if len(members) != 1 || members[0] != "tweet-1" {
		t.Fatalf("dedup:seen = %v, want [tweet-1]", members)
	}
}

func TestFalsePositiveReconciled(t *testing.T) {
	client, mr := newTestClient(t)
	d := New(client, 1000, 0.01)
	ctx := context.Background()

	// Force the filter-hit path without the set containing the id.
	d.filter.Add("tweet-fp")

	dup, err := d.IsDuplicate(ctx, "tweet-fp")
	if err != nil {
		t.Fatalf("IsDuplicate() error = %v", err)
	}
	if dup {
		t.Fatal("false positive suppressed a novel tweet")
	}
	if isMember, _ := mr.SIsMember("dedup:seen", "tweet-fp"); !isMember {
		t.Fatal("novel id not reconciled into seen set")
	}
}

func TestSeenCount(t *testing.T) {
	client, _ := newTestClient(t)
	d := New(client, 1000, 0.01)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := d.IsDuplicate(ctx, fmt.Sprintf("tweet-%d", i)); err != nil {
			t.Fatalf("IsDuplicate() error = %v", err)
		}
	}
	n, err := d.SeenCount(ctx)
	if err != nil {
		t.Fatalf("SeenCount() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("SeenCount() = %d, want 5", n)
	}
}

func TestBloomNoFalseNegatives(t *testing.T) {
	bf := newBloomFilter(1000, 0.01)
	for i := 0; i < 500; i++ {
		bf.Add(fmt.Sprintf("id-%d", i))
	}
	for i := 0; i < 500; i++ {
		if !bf.Test(fmt.Sprintf("id-%d", i)) {
			t.Fatalf("filter lost id-%d", i)
		}
	}
}

func TestBloomFalsePositiveRate(t *testing.T) {
	bf := newBloomFilter(10_000, 0.01)
	for i := 0; i < 10_000; i++ {
		bf.Add(fmt.Sprintf("member-%d", i))
	}
	fp := 0
	for i := 0; i < 10_000; i++ {
		if bf.Test(fmt.Sprintf("nonmember-%d", i)) {
			fp++
		}
	}
	// Allow generous headroom over the 1% target.
	if fp > 500 {
		t.Fatalf("false positives = %d / 10000, want < 500", fp)
	}
}
