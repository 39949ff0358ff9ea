// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tweetpulse/tweetpulse/internal/lock"
	"github.com/tweetpulse/tweetpulse/internal/staging"
)

var cleanRetentionDays int

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove expired staging files and stale distributed locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		retention := cleanRetentionDays
		if retention == 0 {
			retention = cfg.Staging.RetentionDays
		}

		buf, err := staging.NewBuffer(cfg.Staging.Dir, cfg.Staging.BufferLimit)
		if err != nil {
			return err
		}
		removed, err := buf.Cleanup(retention)
		if err != nil {
			return fmt.Errorf("cleaning staging files: %w", err)
		}

		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()

		swept, err := lock.NewManager(client).SweepStale(ctx)
		if err != nil {
			return fmt.Errorf("sweeping stale locks: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "removed %d staging files, swept %d stale locks\n", removed, swept)
		return nil
	},
}

func init() {
	cleanCmd.Flags().IntVar(&cleanRetentionDays, "retention-days", 0,
		"override staging retention in days (default: configured value)")
}
