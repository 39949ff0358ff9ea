// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package database opens the relational store and ensures its schema.
// PostgreSQL is accessed through the pgx stdlib driver wrapped in sqlx.
package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/logging"
)

// schema is idempotent and applied on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS tweets (
	id               TEXT PRIMARY KEY,
	text             VARCHAR(280) NOT NULL,
	author_id        TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ,
	source           TEXT NOT NULL DEFAULT '',
	cleaned_text     TEXT NOT NULL DEFAULT '',
	language         TEXT NOT NULL DEFAULT 'unknown',
	sentiment        TEXT NOT NULL DEFAULT 'neutral',
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	enriched_at      TIMESTAMPTZ,
	retweet_count    INTEGER NOT NULL DEFAULT 0,
	reply_count      INTEGER NOT NULL DEFAULT 0,
	like_count       INTEGER NOT NULL DEFAULT 0,
	quote_count      INTEGER NOT NULL DEFAULT 0,
	bookmark_count   INTEGER NOT NULL DEFAULT 0,
	impression_count INTEGER NOT NULL DEFAULT 0,
	CONSTRAINT positive_counts CHECK (
		retweet_count >= 0 AND reply_count >= 0 AND like_count >= 0
		AND quote_count >= 0 AND bookmark_count >= 0 AND impression_count >= 0
	)
);

CREATE INDEX IF NOT EXISTS idx_tweets_sentiment ON tweets (sentiment);
CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets (created_at);
`

// Connect opens the pool, verifies connectivity and applies the schema.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is not configured")
	}

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logging.Info().Int("max_conns", cfg.MaxConns).Msg("database connected")
	return db, nil
}
