// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker/v2"

	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/models"
)

const upsertQuery = `
INSERT INTO tweets (
	id, text, author_id, created_at, source,
	cleaned_text, language, sentiment, confidence, enriched_at,
	retweet_count, reply_count, like_count, quote_count,
	bookmark_count, impression_count
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
)
ON CONFLICT (id) DO UPDATE SET
	text             = EXCLUDED.text,
	author_id        = EXCLUDED.author_id,
	created_at       = EXCLUDED.created_at,
	source           = EXCLUDED.source,
	cleaned_text     = EXCLUDED.cleaned_text,
	language         = EXCLUDED.language,
	sentiment        = EXCLUDED.sentiment,
	confidence       = EXCLUDED.confidence,
	enriched_at      = EXCLUDED.enriched_at,
	retweet_count    = EXCLUDED.retweet_count,
	reply_count      = EXCLUDED.reply_count,
	like_count       = EXCLUDED.like_count,
	quote_count      = EXCLUDED.quote_count,
	bookmark_count   = EXCLUDED.bookmark_count,
	impression_count = EXCLUDED.impression_count`

// Repository persists enriched records into the relational store. Upserts
// run behind a circuit breaker so a dying database sheds load fast instead
// of piling up timed-out flush attempts.
type Repository struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewRepository creates a Repository over an open pool.
func NewRepository(db *sqlx.DB) *Repository {
	settings := gobreaker.Settings{
		Name:    "tweets-upsert",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &Repository{
		db:      db,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// UpsertBatch writes all records in a single transaction. The batch is
// atomic: either every record lands or none do, so a retry never produces
// partial duplicates.
func (r *Repository) UpsertBatch(ctx context.Context, records []models.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.upsertTx(ctx, records)
	})
	return err
}

func (r *Repository) upsertTx(ctx context.Context, records []models.EnrichedRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		createdAt := nullableTime(rec.ID, "created_at", rec.CreatedAt)
		enrichedAt := nullableTime(rec.ID, "enriched_at", rec.EnrichedAt)

		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.Text, rec.AuthorID, createdAt, rec.Source,
			rec.CleanedText, rec.Language, rec.Sentiment, rec.Confidence, enrichedAt,
			rec.RetweetCount, rec.ReplyCount, rec.LikeCount, rec.QuoteCount,
			rec.BookmarkCount, rec.ImpressionCount,
		); err != nil {
			return fmt.Errorf("upserting tweet %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// nullableTime parses an RFC3339 value, nulling the column (with a
// warning) rather than failing the whole batch on a malformed timestamp.
func nullableTime(id, field, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		logging.Warn().Str("tweet_id", id).Str("field", field).Str("value", value).
			Msg("unparseable timestamp stored as null")
		return nil
	}
	return &t
}
