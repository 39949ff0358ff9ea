// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package staging buffers enriched tweets in memory and flushes them to
// timestamped columnar files on local disk. Staging files survive process
// restarts and feed offline backfill; the relational store remains the
// primary durable sink.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/metrics"
	"github.com/tweetpulse/tweetpulse/internal/models"
)

const (
	filePrefix    = "tweets_"
	fileSuffix    = ".parquet"
	timestampForm = "20060102150405"
)

// Row is the columnar schema of a staged tweet. Low-cardinality string
// columns are dictionary-encoded; everything is snappy-compressed.
type Row struct {
	ID          string  `parquet:"id"`
	Text        string  `parquet:"text"`
	AuthorID    string  `parquet:"author_id,dict"`
	CreatedAt   string  `parquet:"created_at"`
	Source      string  `parquet:"source,dict"`
	CleanedText string  `parquet:"cleaned_text"`
	Language    string  `parquet:"language,dict"`
	Sentiment   string  `parquet:"sentiment,dict"`
	Confidence  float64 `parquet:"confidence"`
	EnrichedAt  string  `parquet:"enriched_at"`

	RetweetCount    int32 `parquet:"retweet_count"`
	ReplyCount      int32 `parquet:"reply_count"`
	LikeCount       int32 `parquet:"like_count"`
	QuoteCount      int32 `parquet:"quote_count"`
	BookmarkCount   int32 `parquet:"bookmark_count"`
	ImpressionCount int32 `parquet:"impression_count"`
}

func rowFromRecord(rec models.EnrichedRecord) Row {
	return Row{
		ID:          rec.ID,
		Text:        rec.Text,
		AuthorID:    rec.AuthorID,
		CreatedAt:   rec.CreatedAt,
		Source:      rec.Source,
		CleanedText: rec.CleanedText,
		Language:    rec.Language,
		Sentiment:   rec.Sentiment,
		Confidence:  rec.Confidence,
		EnrichedAt:  rec.EnrichedAt,

		RetweetCount:    int32(rec.RetweetCount),
		ReplyCount:      int32(rec.ReplyCount),
		LikeCount:       int32(rec.LikeCount),
		QuoteCount:      int32(rec.QuoteCount),
		BookmarkCount:   int32(rec.BookmarkCount),
		ImpressionCount: int32(rec.ImpressionCount),
	}
}

// Buffer accumulates rows and writes one file per flush.
type Buffer struct {
	dir   string
	limit int
	now   func() time.Time

	mu      sync.Mutex
	pending []Row

	staged  int64
	flushes int64
}

// NewBuffer creates a Buffer flushing to dir once limit rows accumulate.
// The directory is created if missing.
func NewBuffer(dir string, limit int) (*Buffer, error) {
	if limit < 1 {
		return nil, fmt.Errorf("buffer limit must be positive, got %d", limit)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging dir %s: %w", dir, err)
	}
	return &Buffer{dir: dir, limit: limit, now: time.Now}, nil
}

// Add buffers one record. Reaching the limit triggers a synchronous flush;
// the flush error is returned to the caller but the rows stay buffered for
// the next attempt.
func (b *Buffer) Add(rec models.EnrichedRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, rowFromRecord(rec))
	if len(b.pending) < b.limit {
		return nil
	}
	return b.flushLocked()
}

// Flush writes all buffered rows to a new staging file. A no-op when the
// buffer is empty.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// flushLocked writes the pending rows. Caller holds b.mu. On failure the
// rows remain pending.
func (b *Buffer) flushLocked() error {
	if len(b.pending) == 0 {
		return nil
	}

	name := filePrefix + b.now().UTC().Format(timestampForm) + fileSuffix
	final := filepath.Join(b.dir, name)
	// Two flushes within the same second must not clobber each other.
	for i := 1; fileExists(final); i++ {
		name = fmt.Sprintf("%s%s_%d%s", filePrefix, b.now().UTC().Format(timestampForm), i, fileSuffix)
		final = filepath.Join(b.dir, name)
	}
	tmp := final + ".tmp"

	if err := parquet.WriteFile(tmp, b.pending,
		parquet.Compression(&parquet.Snappy),
	); err != nil {
		metrics.StagingFlushErrors.Inc()
		os.Remove(tmp)
		return fmt.Errorf("writing staging file %s: %w", name, err)
	}
	// Rename last so readers never observe a partial file.
	if err := os.Rename(tmp, final); err != nil {
		metrics.StagingFlushErrors.Inc()
		os.Remove(tmp)
		return fmt.Errorf("publishing staging file %s: %w", name, err)
	}

	n := len(b.pending)
	b.pending = nil
	b.staged += int64(n)
	b.flushes++
	metrics.StagingFlushes.Inc()
	metrics.StagingFlushRecords.Observe(float64(n))
	logging.Info().Str("file", name).Int("records", n).Msg("staging buffer flushed")
	return nil
}

// Cleanup deletes staging files whose filename timestamp is older than the
// given number of days. Returns the number of files removed. Files whose
// names do not parse are left alone.
func (b *Buffer) Cleanup(olderThanDays int) (int, error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", olderThanDays)
	}
	cutoff := b.now().UTC().AddDate(0, 0, -olderThanDays)

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, fmt.Errorf("listing staging dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		ts, ok := parseFileTimestamp(entry.Name())
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		logging.Info().Int("files", removed).Int("retention_days", olderThanDays).
			Msg("staging files cleaned up")
	}
	return removed, nil
}

// Stats describes the buffer and its on-disk files.
type Stats struct {
	StagedTweets int64 `json:"staged_tweets"`
	Flushes      int64 `json:"flushes"`
	BufferSize   int   `json:"buffer_size"`
	StagingFiles int   `json:"staging_files"`
}

// Stats returns current counters and the number of staging files on disk.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	s := Stats{
		StagedTweets: b.staged,
		Flushes:      b.flushes,
		BufferSize:   len(b.pending),
	}
	b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err == nil {
		for _, entry := range entries {
			if _, ok := parseFileTimestamp(entry.Name()); ok {
				s.StagingFiles++
			}
		}
	}
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func parseFileTimestamp(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	// Drop the disambiguating suffix of same-second flushes.
	if i := strings.IndexByte(raw, '_'); i >= 0 {
		raw = raw[:i]
	}
	ts, err := time.Parse(timestampForm, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
