// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package stream reads tweets from the Redis ingest stream through a
// consumer group and publishes tweets onto it. Delivery is at-least-once:
// a message is acknowledged only after its handler succeeds, so a crashed
// worker's pending messages are redelivered.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/metrics"
)

// ErrPoison marks a message that can never succeed (missing or malformed
// required fields). The consumer acknowledges and drops it instead of
// letting it cycle through redelivery forever.
var ErrPoison = errors.New("poison message")

// Handler processes one decoded stream entry.
type Handler func(ctx context.Context, fields map[string]string) error

// Consumer is one member of the worker consumer group.
type Consumer struct {
	client  redis.UniversalClient
	cfg     config.StreamConfig
	name    string
	handler Handler
}

// NewConsumer creates a named consumer. The name must be unique within the
// group so pending-entry ownership is attributable.
func NewConsumer(client redis.UniversalClient, cfg config.StreamConfig, name string, handler Handler) *Consumer {
	return &Consumer{client: client, cfg: cfg, name: name, handler: handler}
}

// EnsureGroup creates the consumer group and the stream if either is
// missing. Safe to call from every worker at startup; an existing group is
// not an error.
func EnsureGroup(ctx context.Context, client redis.UniversalClient, cfg config.StreamConfig) error {
	start := "$"
	if cfg.StartFrom == "beginning" {
		start = "0"
	}
	err := client.XGroupCreateMkStream(ctx, cfg.Key, cfg.ConsumerGroup, start).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", cfg.ConsumerGroup, cfg.Key, err)
	}
	return nil
}

// Run consumes until the context is cancelled. Each blocking read is
// bounded by the configured block timeout, which also bounds shutdown
// latency.
func (c *Consumer) Run(ctx context.Context) error {
	logging.Info().Str("consumer", c.name).Str("stream", c.cfg.Key).
		Str("group", c.cfg.ConsumerGroup).Msg("consumer started")

	for {
		if err := ctx.Err(); err != nil {
			logging.Info().Str("consumer", c.name).Msg("consumer stopped")
			return nil
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.ConsumerGroup,
			Consumer: c.name,
			Streams:  []string{c.cfg.Key, ">"},
			Count:    c.cfg.ReadCount,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Error().Err(err).Str("consumer", c.name).Msg("stream read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, str := range res {
			for _, msg := range str.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	metrics.MessagesConsumed.WithLabelValues(c.name).Inc()

	err := c.handler(ctx, stringFields(msg.Values))
	switch {
	case err == nil:
		c.ack(ctx, msg.ID)
		metrics.MessagesAcked.WithLabelValues(c.name).Inc()
	case errors.Is(err, ErrPoison):
		// Acknowledged so it never redelivers; the payload is gone.
		c.ack(ctx, msg.ID)
		metrics.PoisonMessages.Inc()
		logging.Warn().Err(err).Str("entry", msg.ID).Msg("poison message dropped")
	default:
		// Left pending for redelivery.
		metrics.MessagesFailed.WithLabelValues(c.name).Inc()
		logging.Error().Err(err).Str("entry", msg.ID).Str("consumer", c.name).
			Msg("message processing failed, left pending")
	}
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Key, c.cfg.ConsumerGroup, id).Err(); err != nil {
		logging.Error().Err(err).Str("entry", id).Msg("ack failed")
	}
}

func stringFields(values map[string]any) map[string]string {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprint(v)
		}
	}
	return fields
}
