// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/tweetpulse/tweetpulse/internal/batch"
	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/dedup"
	"github.com/tweetpulse/tweetpulse/internal/enrich"
	"github.com/tweetpulse/tweetpulse/internal/hotcache"
	"github.com/tweetpulse/tweetpulse/internal/lock"
	"github.com/tweetpulse/tweetpulse/internal/metrics"
	"github.com/tweetpulse/tweetpulse/internal/models"
	"github.com/tweetpulse/tweetpulse/internal/pipeline"
	"github.com/tweetpulse/tweetpulse/internal/staging"
	"github.com/tweetpulse/tweetpulse/internal/storage"
)

type nopUpserter struct{}

func (nopUpserter) UpsertBatch(context.Context, []models.EnrichedRecord) error { return nil }

func newTestServer(t *testing.T) (*Server, *hotcache.Cache, *dedup.Deduplicator) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	buf, err := staging.NewBuffer(t.TempDir(), 1000)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	cache := hotcache.New(client)
	store := storage.New(cache, buf)
	locks := lock.NewManager(client)

	cfg := &config.Config{
		Stream: config.StreamConfig{
			Key: "ingest:stream", ConsumerGroup: "workers", StartFrom: "end",
			MaxLen: 1000, NumWorkers: 1, ReadCount: 10, BlockTimeout: 50 * time.Millisecond,
		},
		Batch: config.BatchConfig{Size: 100, MaxWaitSeconds: 60, MaxRetries: 3},
	}
	dd := dedup.New(client, 1000, 0.01)
	writer := batch.NewWriter(nopUpserter{}, locks, cfg.Batch)
	pipe := pipeline.New(pipeline.Options{
		Config:       cfg,
		Client:       client,
		Deduplicator: dd,
		Enricher:     enrich.New(enrich.NewLexicalAnalyzer()),
		Storage:      store,
		Writer:       writer,
		Locks:        locks,
	})

	serverCfg := config.ServerConfig{Host: "127.0.0.1", Port: 8479, Timeout: 5 * time.Second}
	return NewServer(serverCfg, cache, store, pipe, writer, dd), cache, dd
}

func cachedRecord(id, sentiment string) models.EnrichedRecord {
	return models.EnrichedRecord{
		RawMessage: models.RawMessage{ID: id, Text: "text " + id},
		Language:   "en",
		Sentiment:  sentiment,
		Confidence: 0.8,
		EnrichedAt: "2026-08-25T10:00:00Z",
	}
}

func TestHealthNotRunning(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before pipeline runs", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "initialized" {
		t.Fatalf("status = %q, want initialized", body["status"])
	}
}

func TestStats(t *testing.T) {
	srv, cache, dd := newTestServer(t)
	ctx := context.Background()
	if err := cache.Store(ctx, cachedRecord("t1", models.SentimentPositive)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if dup, err := dd.IsDuplicate(ctx, "t1"); err != nil || dup {
		t.Fatalf("IsDuplicate() = %v, %v; want false, nil", dup, err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats struct {
		storage.Stats
		Batch batch.Stats `json:"batch"`
		Dedup struct {
			SeenSet     int64 `json:"seen_set"`
			FilterItems int   `json:"filter_items"`
		} `json:"dedup"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.CachedTweets != 1 {
		t.Fatalf("cached_tweets = %d, want 1", stats.CachedTweets)
	}
	if stats.Dedup.SeenSet != 1 || stats.Dedup.FilterItems != 1 {
		t.Fatalf("dedup stats = %+v, want seen_set=1 filter_items=1", stats.Dedup)
	}
	if stats.Batch.QueueLen != 0 || stats.Batch.Flushes != 0 {
		t.Fatalf("batch stats = %+v, want empty", stats.Batch)
	}
	// Each stats read refreshes the cardinality gauge.
	if got := testutil.ToFloat64(metrics.SeenSetCardinality); got != 1 {
		t.Fatalf("dedup_seen_cardinality = %v, want 1", got)
	}
}

func TestRecentTweets(t *testing.T) {
	srv, cache, _ := newTestServer(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t2", "t3"} {
		if err := cache.Store(ctx, cachedRecord(id, models.SentimentNeutral)); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tweets/recent?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var records []models.EnrichedRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(records) != 2 || records[0].ID != "t3" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestTweetsBySentiment(t *testing.T) {
	srv, cache, _ := newTestServer(t)
	ctx := context.Background()
	cache.Store(ctx, cachedRecord("p1", models.SentimentPositive))
	cache.Store(ctx, cachedRecord("n1", models.SentimentNegative))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tweets/sentiment/positive", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var records []models.EnrichedRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(records) != 1 || records[0].ID != "p1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestTweetsByUnknownSentiment(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tweets/sentiment/angry", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
