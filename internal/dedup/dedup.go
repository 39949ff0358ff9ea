// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package dedup suppresses tweets that have already been processed by any
// worker in the fleet. A per-process Bloom filter short-circuits the common
// novel case; a shared Redis set is the authoritative record, so the filter
// can never cause a false suppression and workers never disagree.
package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/metrics"
)

// SeenSetKey is the shared confirmation set. Every worker instance must use
// this exact key; a per-instance suffix would silently break cross-instance
// deduplication.
const SeenSetKey = "dedup:seen"

// Deduplicator decides whether a tweet id has been seen before.
type Deduplicator struct {
	client redis.UniversalClient
	filter *bloomFilter
}

// New creates a Deduplicator sized for the expected number of unique ids.
func New(client redis.UniversalClient, expectedItems int, falsePositiveRate float64) *Deduplicator {
	return &Deduplicator{
		client: client,
		filter: newBloomFilter(expectedItems, falsePositiveRate),
	}
}

// IsDuplicate reports whether id was already processed. When the id is
// novel it is recorded in both the local filter and the shared set as a
// side effect.
//
// The shared set arbitrates: even on the fast path the id is SADDed and the
// reply decides, so an id first seen by another instance is still detected
// as a duplicate here.
func (d *Deduplicator) IsDuplicate(ctx context.Context, id string) (bool, error) {
	if !d.filter.Test(id) {
		// Filter says definitely not seen by this instance. Another
		// instance may still have processed it, so the set decides.
		d.filter.Add(id)
		added, err := d.client.SAdd(ctx, SeenSetKey, id).Result()
		if err != nil {
			return false, fmt.Errorf("recording id in seen set: %w", err)
		}
		if added == 0 {
			metrics.DuplicatesDetected.Inc()
			return true, nil
		}
		return false, nil
	}

	// Filter hit: either a real duplicate or a false positive.
	seen, err := d.client.SIsMember(ctx, SeenSetKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("checking seen set: %w", err)
	}
	if seen {
		metrics.DuplicatesDetected.Inc()
		return true, nil
	}

	// False positive: reconcile the authoritative set.
	metrics.FilterFalsePositives.Inc()
	logging.Debug().Str("tweet_id", id).Msg("filter false positive reconciled")
	if err := d.client.SAdd(ctx, SeenSetKey, id).Err(); err != nil {
		return false, fmt.Errorf("reconciling seen set: %w", err)
	}
	return false, nil
}

// SeenCount returns the cardinality of the shared confirmation set and
// refreshes the corresponding gauge.
func (d *Deduplicator) SeenCount(ctx context.Context) (int64, error) {
	n, err := d.client.SCard(ctx, SeenSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("reading seen set cardinality: %w", err)
	}
	metrics.SeenSetCardinality.Set(float64(n))
	return n, nil
}

// FilterCount returns the number of ids recorded in the local filter.
func (d *Deduplicator) FilterCount() int {
	return d.filter.Count()
}
