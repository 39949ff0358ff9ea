// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package storage fans enriched records out to the hot cache and the
// columnar staging buffer. The two sinks fail independently: a Redis
// outage must not stop staging, and a full disk must not stop caching.
package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/tweetpulse/tweetpulse/internal/hotcache"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/models"
	"github.com/tweetpulse/tweetpulse/internal/staging"
)

// Storage writes each record to both sinks.
type Storage struct {
	cache   *hotcache.Cache
	staging *staging.Buffer
}

// New creates a Storage over the given sinks.
func New(cache *hotcache.Cache, buf *staging.Buffer) *Storage {
	return &Storage{cache: cache, staging: buf}
}

// Store writes the record to the cache and the staging buffer
// concurrently. Sink errors are joined; a partial failure still leaves the
// record in the surviving sink.
func (s *Storage) Store(ctx context.Context, rec models.EnrichedRecord) error {
	var (
		wg                  sync.WaitGroup
		cacheErr, stagedErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		cacheErr = s.cache.Store(ctx, rec)
	}()
	go func() {
		defer wg.Done()
		stagedErr = s.staging.Add(rec)
	}()
	wg.Wait()

	if cacheErr != nil {
		logging.Warn().Err(cacheErr).Str("tweet_id", rec.ID).Msg("hot cache store failed")
	}
	if stagedErr != nil {
		logging.Warn().Err(stagedErr).Str("tweet_id", rec.ID).Msg("staging store failed")
	}
	return errors.Join(cacheErr, stagedErr)
}

// Close flushes whatever the staging buffer still holds. Called once on
// shutdown.
func (s *Storage) Close() error {
	return s.staging.Flush()
}

// Stats is the merged view of both sinks.
type Stats struct {
	CachedTweets int64 `json:"cached_tweets"`
	StagedTweets int64 `json:"staged_tweets"`
	Flushes      int64 `json:"flushes"`
	BufferSize   int   `json:"buffer_size"`
	StagingFiles int   `json:"staging_files"`
}

// Stats merges cache and staging statistics. A cache read failure reports
// the staging side with a zero cached count rather than failing entirely.
func (s *Storage) Stats(ctx context.Context) Stats {
	cached, err := s.cache.CachedCount(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("reading cache stats failed")
	}
	st := s.staging.Stats()
	return Stats{
		CachedTweets: cached,
		StagedTweets: st.StagedTweets,
		Flushes:      st.Flushes,
		BufferSize:   st.BufferSize,
		StagingFiles: st.StagingFiles,
	}
}
