// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tweetpulse/tweetpulse/internal/api"
	"github.com/tweetpulse/tweetpulse/internal/batch"
	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/database"
	"github.com/tweetpulse/tweetpulse/internal/dedup"
	"github.com/tweetpulse/tweetpulse/internal/enrich"
	"github.com/tweetpulse/tweetpulse/internal/hotcache"
	"github.com/tweetpulse/tweetpulse/internal/lock"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/pipeline"
	"github.com/tweetpulse/tweetpulse/internal/staging"
	"github.com/tweetpulse/tweetpulse/internal/storage"
)

// dedupCapacity sizes the in-process filter; the shared set is unbounded.
const dedupCapacity = 1_000_000

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the ingestion worker until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runWorker(cmd.Context(), cfg)
	},
}

func runWorker(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("version", Version).Msg("tweetpulse worker starting")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	buf, err := staging.NewBuffer(cfg.Staging.Dir, cfg.Staging.BufferLimit)
	if err != nil {
		return err
	}

	cache := hotcache.New(client)
	store := storage.New(cache, buf)
	locks := lock.NewManager(client)
	writer := batch.NewWriter(batch.NewRepository(db), locks, cfg.Batch)
	dd := dedup.New(client, dedupCapacity, 0.01)

	pipe := pipeline.New(pipeline.Options{
		Config:       cfg,
		Client:       client,
		Deduplicator: dd,
		Enricher:     enrich.FromConfig(cfg),
		Storage:      store,
		Writer:       writer,
		Locks:        locks,
	})

	server := api.NewServer(cfg.Server, cache, store, pipe, writer, dd)
	apiErr := make(chan error, 1)
	go func() { apiErr <- server.Serve(ctx) }()

	if err := pipe.Run(ctx); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := <-apiErr; err != nil {
		return err
	}
	logging.Info().Msg("tweetpulse worker stopped")
	return nil
}
