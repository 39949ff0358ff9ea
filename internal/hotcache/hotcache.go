// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package hotcache keeps recently enriched tweets in Redis for low-latency
// reads by the ops API. Every entry expires after 24 hours; the relational
// store is the durable system of record.
package hotcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tweetpulse/tweetpulse/internal/metrics"
	"github.com/tweetpulse/tweetpulse/internal/models"
)

const (
	tweetKeyPrefix     = "tweet:"
	recentListKey      = "tweets:recent"
	sentimentKeyPrefix = "tweets:by_sentiment:"
	cachedCounterKey   = "stats:cached_tweets"

	entryTTL      = 24 * time.Hour
	recentListCap = 1000
)

// Cache stores and serves enriched tweets from Redis.
type Cache struct {
	client redis.UniversalClient
}

// New creates a Cache on the given client.
func New(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Store writes the record, updates the recency list and the per-sentiment
// index, and bumps the cached counter. All commands travel in a single
// pipelined transaction so a record never appears in an index without its
// hash.
func (c *Cache) Store(ctx context.Context, rec models.EnrichedRecord) error {
	key := tweetKeyPrefix + rec.ID
	sentimentKey := sentimentKeyPrefix + rec.Sentiment

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, recordFields(rec))
		pipe.Expire(ctx, key, entryTTL)
		pipe.LPush(ctx, recentListKey, rec.ID)
		pipe.LTrim(ctx, recentListKey, 0, recentListCap-1)
		pipe.SAdd(ctx, sentimentKey, rec.ID)
		pipe.Expire(ctx, sentimentKey, entryTTL)
		pipe.Incr(ctx, cachedCounterKey)
		return nil
	})
	if err != nil {
		metrics.CacheStoreErrors.Inc()
		return fmt.Errorf("caching tweet %s: %w", rec.ID, err)
	}
	metrics.CacheStores.Inc()
	return nil
}

// Get returns the cached record by tweet id, or (nil, nil) when absent or
// expired.
func (c *Cache) Get(ctx context.Context, id string) (*models.EnrichedRecord, error) {
	fields, err := c.client.HGetAll(ctx, tweetKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cached tweet %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec := recordFromFields(fields)
	return &rec, nil
}

// GetRecent returns up to limit of the most recently cached tweets, newest
// first. Ids whose hashes have expired are skipped.
func (c *Cache) GetRecent(ctx context.Context, limit int) ([]models.EnrichedRecord, error) {
	if limit <= 0 || limit > recentListCap {
		limit = recentListCap
	}
	ids, err := c.client.LRange(ctx, recentListKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading recency list: %w", err)
	}
	return c.fetchAll(ctx, ids)
}

// GetBySentiment returns up to limit cached tweets carrying the given
// sentiment label, sampled from the index.
func (c *Cache) GetBySentiment(ctx context.Context, label string, limit int) ([]models.EnrichedRecord, error) {
	if !models.ValidSentiment(label) {
		return nil, fmt.Errorf("unknown sentiment label %q", label)
	}
	if limit <= 0 {
		limit = 100
	}
	ids, err := c.client.SRandMemberN(ctx, sentimentKeyPrefix+label, int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("sampling sentiment index %s: %w", label, err)
	}
	return c.fetchAll(ctx, ids)
}

// CachedCount returns the lifetime count of cached tweets.
func (c *Cache) CachedCount(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, cachedCounterKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cached counter: %w", err)
	}
	return n, nil
}

// fetchAll reads the hashes for all ids in one pipelined round trip. Ids
// whose hashes have expired come back empty and are skipped.
func (c *Cache) fetchAll(ctx context.Context, ids []string) ([]models.EnrichedRecord, error) {
	records := make([]models.EnrichedRecord, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, tweetKeyPrefix+id)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("bulk reading cached tweets: %w", err)
	}

	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("bulk reading cached tweets: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		records = append(records, recordFromFields(fields))
	}
	return records, nil
}

func recordFields(rec models.EnrichedRecord) map[string]any {
	return map[string]any{
		"id":           rec.ID,
		"text":         rec.Text,
		"author_id":    rec.AuthorID,
		"created_at":   rec.CreatedAt,
		"source":       rec.Source,
		"cleaned_text": rec.CleanedText,
		"language":     rec.Language,
		"sentiment":    rec.Sentiment,
		"confidence":   strconv.FormatFloat(rec.Confidence, 'f', -1, 64),
		"enriched_at":  rec.EnrichedAt,

		"retweet_count":    rec.RetweetCount,
		"reply_count":      rec.ReplyCount,
		"like_count":       rec.LikeCount,
		"quote_count":      rec.QuoteCount,
		"bookmark_count":   rec.BookmarkCount,
		"impression_count": rec.ImpressionCount,
	}
}

func recordFromFields(fields map[string]string) models.EnrichedRecord {
	confidence, _ := strconv.ParseFloat(fields["confidence"], 64)
	msg, _ := models.RawMessageFromFields(fields)
	return models.EnrichedRecord{
		RawMessage:  msg,
		CleanedText: fields["cleaned_text"],
		Language:    fields["language"],
		Sentiment:   fields["sentiment"],
		Confidence:  confidence,
		EnrichedAt:  fields["enriched_at"],
	}
}
