// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package stream

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/models"
)

// Connector publishes tweets onto the ingest stream. It sits between an
// upstream source (firehose client, replay tool, test generator) and the
// consumer group, applying keyword filtering and rate limiting before
// anything reaches the stream.
type Connector struct {
	client   redis.UniversalClient
	cfg      config.StreamConfig
	limiter  *rate.Limiter
	keywords []string

	published int64
	filtered  int64
}

// NewConnector creates a Connector. perSecond <= 0 disables rate limiting.
func NewConnector(client redis.UniversalClient, cfg config.StreamConfig, perSecond float64) *Connector {
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
	}
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Connector{client: client, cfg: cfg, limiter: limiter, keywords: keywords}
}

// Publish appends one tweet to the stream, trimming it approximately to
// the configured maximum length. Returns (false, nil) when the tweet was
// filtered out by the keyword list.
func (c *Connector) Publish(ctx context.Context, msg models.RawMessage) (bool, error) {
	if msg.ID == "" {
		return false, fmt.Errorf("publishing tweet: %w", models.ErrMissingID)
	}
	if !c.matches(msg.Text) {
		c.filtered++
		return false, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("rate limiter: %w", err)
		}
	}

	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Key,
		MaxLen: c.cfg.MaxLen,
		Approx: true,
		Values: msg.Fields(),
	}).Err()
	if err != nil {
		return false, fmt.Errorf("appending tweet %s to stream: %w", msg.ID, err)
	}
	c.published++
	logging.Trace().Str("tweet_id", msg.ID).Msg("tweet published")
	return true, nil
}

// Published returns the number of tweets appended to the stream.
func (c *Connector) Published() int64 { return c.published }

// Filtered returns the number of tweets dropped by the keyword filter.
func (c *Connector) Filtered() int64 { return c.filtered }

// matches reports whether the text passes the keyword filter. An empty
// keyword list passes everything.
func (c *Connector) matches(text string) bool {
	if len(c.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
