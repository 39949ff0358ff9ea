// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package enrich

import (
	"context"
	"sync"

	"github.com/tweetpulse/tweetpulse/internal/models"
)

// BatchEnricher accumulates messages and enriches a full batch
// concurrently. Useful when the backend amortizes per-call cost, notably
// the remote transformer service.
type BatchEnricher struct {
	enricher  *Enricher
	batchSize int

	mu      sync.Mutex
	pending []models.RawMessage
}

// NewBatchEnricher wraps an Enricher with batching. batchSize <= 0 falls
// back to 32.
func NewBatchEnricher(enricher *Enricher, batchSize int) *BatchEnricher {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &BatchEnricher{
		enricher:  enricher,
		batchSize: batchSize,
	}
}

// Add queues a message. When the queue reaches the batch size, the whole
// batch is enriched and returned; otherwise Add returns nil.
func (b *BatchEnricher) Add(ctx context.Context, msg models.RawMessage) []models.EnrichedRecord {
	b.mu.Lock()
	b.pending = append(b.pending, msg)
	if len(b.pending) < b.batchSize {
		b.mu.Unlock()
		return nil
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	return b.enrichAll(ctx, batch)
}

// Flush enriches and returns whatever is queued, regardless of size.
func (b *BatchEnricher) Flush(ctx context.Context) []models.EnrichedRecord {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return b.enrichAll(ctx, batch)
}

// Pending returns the current queue depth.
func (b *BatchEnricher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// enrichAll fans the batch out across goroutines, preserving input order
// in the result.
func (b *BatchEnricher) enrichAll(ctx context.Context, batch []models.RawMessage) []models.EnrichedRecord {
	records := make([]models.EnrichedRecord, len(batch))
	var wg sync.WaitGroup
	for i, msg := range batch {
		wg.Add(1)
		go func(i int, msg models.RawMessage) {
			defer wg.Done()
			records[i] = b.enricher.Enrich(ctx, msg)
		}(i, msg)
	}
	wg.Wait()
	return records
}
