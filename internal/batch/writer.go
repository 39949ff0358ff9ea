// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package batch accumulates enriched records and upserts them into the
// relational store in coordinated batches. A distributed lock serializes
// flushes across the worker fleet so concurrent workers never interleave
// partial batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/lock"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/metrics"
	"github.com/tweetpulse/tweetpulse/internal/models"
)

const (
	flushLockTTL = 30 * time.Second

	// lockExtension is added once a flush survives into its later retry
	// attempts, so the lock outlives the remaining backoff.
	lockExtension = 15 * time.Second

	tickInterval = time.Second
)

// Upserter persists one batch atomically.
type Upserter interface {
	UpsertBatch(ctx context.Context, records []models.EnrichedRecord) error
}

// Writer queues records and flushes them by size or age.
type Writer struct {
	repo       Upserter
	locks      *lock.Manager
	size       int
	maxWait    time.Duration
	maxRetries int

	mu            sync.Mutex
	queue         []models.EnrichedRecord
	lastFlush     time.Time
	flushes       int64
	failedFlushes int64
	written       int64

	kick     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWriter creates a Writer. Run must be called for any flushing to
// happen; Add only queues.
func NewWriter(repo Upserter, locks *lock.Manager, cfg config.BatchConfig) *Writer {
	return &Writer{
		repo:       repo,
		locks:      locks,
		size:       cfg.Size,
		maxWait:    cfg.MaxWait(),
		maxRetries: cfg.MaxRetries,
		lastFlush:  time.Now(),
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Add queues one record. Reaching the size threshold nudges the Run loop to
// flush; the caller never blocks on lock acquisition or retries.
func (w *Writer) Add(rec models.EnrichedRecord) {
	w.mu.Lock()
	w.queue = append(w.queue, rec)
	full := len(w.queue) >= w.size
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Run flushes full or aged batches until Stop is called. Intended to run as
// a supervised goroutine. A batch that stays full after a contended or
// failed flush is retried on every tick, not after another full wait.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.kick:
			w.flushIfDue(ctx)
		case <-ticker.C:
			w.flushIfDue(ctx)
		}
	}
}

func (w *Writer) flushIfDue(ctx context.Context) {
	w.mu.Lock()
	due := len(w.queue) >= w.size ||
		(len(w.queue) > 0 && time.Since(w.lastFlush) >= w.maxWait)
	w.mu.Unlock()
	if !due {
		return
	}
	if err := w.Flush(ctx); err != nil {
		logging.Error().Err(err).Msg("batch flush failed")
	}
}

// Stop ends the timed loop and performs a final flush so queued records
// are not lost on shutdown.
func (w *Writer) Stop(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		err = w.Flush(ctx)
	})
	return err
}

// QueueLen returns the number of queued records.
func (w *Writer) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Flush takes ownership of the current queue and upserts it under the
// fleet-wide flush lock. When another worker holds the lock, the batch is
// put back for a later attempt; when the store keeps failing past the
// retry limit, the batch is put back and the error returned, unless the
// error is irrecoverable, in which case the batch is dead-lettered instead
// of blocking the queue head.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.queue
	w.queue = nil
	w.lastFlush = time.Now()
	w.mu.Unlock()

	start := time.Now()

	l, err := w.locks.Acquire(ctx, fmt.Sprintf("batch_writer_flush:%d", w.size), flushLockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.BatchFlushFailures.WithLabelValues("lock_contention").Inc()
		logging.Debug().Int("records", len(batch)).Msg("flush lock contended, requeueing batch")
		w.requeue(batch)
		// Retry on the next tick rather than after another full wait.
		w.mu.Lock()
		w.lastFlush = time.Time{}
		w.mu.Unlock()
		return nil
	}
	if err != nil {
		w.requeue(batch)
		return fmt.Errorf("acquiring flush lock: %w", err)
	}
	defer func() {
		if err := l.Release(ctx); err != nil && !errors.Is(err, lock.ErrNotOwned) {
			logging.Warn().Err(err).Msg("releasing flush lock failed")
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		lastErr = w.repo.UpsertBatch(ctx, batch)
		if lastErr == nil {
			metrics.ObserveBatchFlush(time.Since(start), len(batch))
			w.mu.Lock()
			w.flushes++
			w.written += int64(len(batch))
			w.mu.Unlock()
			logging.Info().Int("records", len(batch)).Int("attempt", attempt).
				Dur("elapsed", time.Since(start)).Msg("batch flushed")
			return nil
		}

		logging.Warn().Err(lastErr).Int("attempt", attempt).Int("records", len(batch)).
			Msg("batch upsert failed")
		if attempt == w.maxRetries {
			break
		}
		if attempt >= 2 {
			if err := l.Extend(ctx, flushLockTTL+lockExtension); err != nil {
				logging.Warn().Err(err).Msg("extending flush lock failed")
			}
		}
		// 1s, 2s, 4s, ...
		backoff := time.Duration(1<<(attempt-1)) * time.Second
		select {
		case <-ctx.Done():
			w.requeue(batch)
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	metrics.BatchFlushFailures.WithLabelValues("db_error").Inc()
	w.mu.Lock()
	w.failedFlushes++
	w.mu.Unlock()

	if isIrrecoverable(lastErr) {
		w.deadLetter(batch, lastErr)
		return fmt.Errorf("dropping batch after irrecoverable store error: %w", lastErr)
	}
	w.requeue(batch)
	return fmt.Errorf("flushing batch after %d attempts: %w", w.maxRetries, lastErr)
}

// isIrrecoverable reports whether a store error can never succeed on retry.
// Data exceptions (class 22) and constraint violations (class 23) reject the
// rows themselves; requeueing such a batch would block the queue head
// forever.
func isIrrecoverable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	class := pgErr.Code[:2]
	return class == "22" || class == "23"
}

// deadLetter logs the dropped batch in full so the records can be recovered
// from the log stream, and counts them.
func (w *Writer) deadLetter(batch []models.EnrichedRecord, cause error) {
	metrics.BatchRecordsDeadLettered.Add(float64(len(batch)))
	payload, err := json.Marshal(batch)
	if err != nil {
		payload = []byte("null")
	}
	logging.Error().Err(cause).Int("records", len(batch)).
		RawJSON("dead_letter", payload).Msg("batch dropped after irrecoverable store error")
}

// Stats is the writer's aggregate view.
type Stats struct {
	QueueLen      int   `json:"queue_len"`
	Flushes       int64 `json:"flushes"`
	FailedFlushes int64 `json:"failed_flushes"`
	Written       int64 `json:"written"`
}

// Stats returns flush counters and the current queue depth.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		QueueLen:      len(w.queue),
		Flushes:       w.flushes,
		FailedFlushes: w.failedFlushes,
		Written:       w.written,
	}
}

// requeue puts an unflushed batch back at the head of the queue so record
// order is preserved for the next flush.
func (w *Writer) requeue(batch []models.EnrichedRecord) {
	w.mu.Lock()
	w.queue = append(batch, w.queue...)
	w.mu.Unlock()
}
