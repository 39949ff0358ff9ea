// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package hotcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tweetpulse/tweetpulse/internal/models"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func testRecord(id, sentiment string) models.EnrichedRecord {
	return models.EnrichedRecord{
		RawMessage: models.RawMessage{
			ID:        id,
			Text:      "original text of " + id,
			AuthorID:  "author-7",
			CreatedAt: "2026-08-25T10:00:00Z",
			Source:    "firehose",
			LikeCount: 3,
		},
		CleanedText: "original text of " + id,
		Language:    "en",
		Sentiment:   sentiment,
		Confidence:  0.82,
		EnrichedAt:  "2026-08-25T10:00:01Z",
	}
}

func TestStoreAndGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	rec := testRecord("t1", models.SentimentPositive)

	if err := c.Store(ctx, rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := c.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for cached tweet")
	}
	if *got != rec {
		t.Fatalf("Get() = %+v, want %+v", *got, rec)
	}

	if ttl := mr.TTL("tweet:t1"); ttl != 24*time.Hour {
		t.Fatalf("tweet TTL = %v, want 24h", ttl)
	}
}

func TestGetMissing(t *testing.T) {
	c, _ := newTestCache(t)
	got, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %+v, want nil", got)
	}
}

func TestGetRecentOrderAndTrim(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := c.Store(ctx, testRecord(fmt.Sprintf("t%d", i), models.SentimentNeutral)); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	recent, err := c.GetRecent(ctx, 3)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("GetRecent(3) = %d records", len(recent))
	}
	// Newest first.
	for i, want := range []string{"t4", "t3", "t2"} {
		if recent[i].ID != want {
			t.Fatalf("recent[%d].ID = %q, want %q", i, recent[i].ID, want)
		}
	}

	// Expired hashes are skipped, not returned empty.
	mr.Del("tweet:t4")
	recent, err = c.GetRecent(ctx, 3)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	for _, r := range recent {
		if r.ID == "t4" {
			t.Fatal("expired tweet returned from recency list")
		}
	}
}

func TestGetRecentBulkRead(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := c.Store(ctx, testRecord(fmt.Sprintf("t%d", i), models.SentimentNeutral)); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
	// A hole in the middle of the id list must not shift or drop the rest.
	mr.Del("tweet:t25")

	recent, err := c.GetRecent(ctx, 50)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(recent) != 49 {
		t.Fatalf("GetRecent(50) = %d records, want 49", len(recent))
	}
	want := 49
	for _, r := range recent {
		if want == 25 {
			want--
		}
		if r.ID != fmt.Sprintf("t%d", want) {
			t.Fatalf("got %q, want t%d", r.ID, want)
		}
		if r.Text == "" || r.EnrichedAt == "" {
			t.Fatalf("record %q came back with empty fields", r.ID)
		}
		want--
	}
}

func TestGetBySentiment(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Store(ctx, testRecord("pos1", models.SentimentPositive)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := c.Store(ctx, testRecord("neg1", models.SentimentNegative)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := c.GetBySentiment(ctx, models.SentimentPositive, 10)
	if err != nil {
		t.Fatalf("GetBySentiment() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "pos1" {
		t.Fatalf("GetBySentiment(positive) = %+v", got)
	}

	if _, err := c.GetBySentiment(ctx, "angry", 10); err == nil {
		t.Fatal("unknown label accepted")
	}
}

func TestCachedCount(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	n, err := c.CachedCount(ctx)
	if err != nil || n != 0 {
		t.Fatalf("CachedCount() = %d, %v; want 0, nil", n, err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Store(ctx, testRecord(fmt.Sprintf("t%d", i), models.SentimentNeutral)); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
	n, err = c.CachedCount(ctx)
	if err != nil {
		t.Fatalf("CachedCount() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("CachedCount() = %d, want 3", n)
	}
}
