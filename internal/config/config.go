// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package config holds the typed configuration for the ingestion pipeline.
//
// Configuration is loaded once at startup via Koanf v2 with layered
// sources (highest priority wins):
//
//  1. Environment variables (see the mapping table in koanf.go)
//  2. Optional YAML config file (config.yaml)
//  3. Built-in defaults
//
// The resulting Config is immutable after Load() and is safe for
// concurrent reads. No component reads the environment after construction.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Stream     StreamConfig     `koanf:"stream"`
	Redis      RedisConfig      `koanf:"redis"`
	Database   DatabaseConfig   `koanf:"database"`
	Staging    StagingConfig    `koanf:"staging"`
	Batch      BatchConfig      `koanf:"batch"`
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// StreamConfig controls the ingest stream and its consumer group.
type StreamConfig struct {
	// Key is the name of the message stream.
	Key string `koanf:"key"`

	// ConsumerGroup is the shared group name for the worker fleet.
	ConsumerGroup string `koanf:"consumer_group"`

	// StartFrom controls where a newly created group begins reading:
	// "end" (production default, only new messages) or "beginning"
	// (backfill/recovery).
	StartFrom string `koanf:"start_from"`

	// MaxLen caps the stream length (approximate trim on append).
	MaxLen int64 `koanf:"maxlen"`

	// NumWorkers is the number of concurrent stream consumers.
	NumWorkers int `koanf:"num_workers"`

	// ReadCount is the maximum messages fetched per group read.
	ReadCount int64 `koanf:"read_count"`

	// BlockTimeout bounds each blocking group read, which also bounds
	// cancellation latency.
	BlockTimeout time.Duration `koanf:"block_timeout"`

	// Keywords filters the upstream connector; empty disables it.
	Keywords []string `koanf:"keywords"`
}

// RedisConfig holds the shared Redis connection settings. The stream, hot
// cache, dedup structures and distributed locks all live on this instance.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// DatabaseConfig holds the relational store connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`

	// MaxConns bounds the pgx connection pool.
	MaxConns int `koanf:"max_conns"`
}

// StagingConfig controls the columnar staging buffer.
type StagingConfig struct {
	// Dir is the directory for columnar staging files.
	Dir string `koanf:"dir"`

	// BufferLimit triggers a synchronous flush when reached.
	BufferLimit int `koanf:"buffer_limit"`

	// RetentionDays is the cleanup cutoff for old staging files.
	RetentionDays int `koanf:"retention_days"`
}

// BatchConfig controls the coordinated batch writer.
type BatchConfig struct {
	// Size is the flush threshold.
	Size int `koanf:"size"`

	// MaxWaitSeconds forces a flush of a non-empty queue after this many
	// seconds. Kept as whole seconds to match MAX_BATCH_WAIT_SECONDS.
	MaxWaitSeconds int `koanf:"max_wait_seconds"`

	// MaxRetries bounds upsert attempts per flush.
	MaxRetries int `koanf:"max_retries"`
}

// MaxWait returns the time threshold as a duration.
func (b BatchConfig) MaxWait() time.Duration {
	return time.Duration(b.MaxWaitSeconds) * time.Second
}

// EnrichmentConfig selects the sentiment backend.
type EnrichmentConfig struct {
	// Mode is "lite" (lexical analyzer) or "full" (remote transformer
	// service). Empty selects by Environment: development → lite,
	// production/staging → full.
	Mode string `koanf:"mode"`

	// Environment is the deployment environment used for auto-selection.
	Environment string `koanf:"environment"`

	// RemoteURL is the inference endpoint for the full backend.
	RemoteURL string `koanf:"remote_url"`

	// BatchSize is the batched-enrichment fan-out width.
	BatchSize int `koanf:"batch_size"`
}

// ServerConfig holds the ops HTTP server settings (health, stats, metrics).
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// EnrichmentModeLite and EnrichmentModeFull are the recognized backend modes.
const (
	EnrichmentModeLite = "lite"
	EnrichmentModeFull = "full"
)

// ResolvedEnrichmentMode returns the effective backend mode, applying the
// environment-based auto-selection when Mode is unset.
func (c *Config) ResolvedEnrichmentMode() string {
	switch c.Enrichment.Mode {
	case EnrichmentModeLite, EnrichmentModeFull:
		return c.Enrichment.Mode
	}
	switch c.Enrichment.Environment {
	case "production", "prod", "staging":
		return EnrichmentModeFull
	default:
		return EnrichmentModeLite
	}
}

// Validate checks the configuration for values that would make the
// pipeline misbehave at runtime. Called by Load().
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateStream,
		c.validateBackends,
		c.validateBatch,
		c.validateStaging,
		c.validateServer,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.Key == "" {
		return fmt.Errorf("stream key must not be empty")
	}
	if c.Stream.ConsumerGroup == "" {
		return fmt.Errorf("stream consumer group must not be empty")
	}
	if c.Stream.StartFrom != "end" && c.Stream.StartFrom != "beginning" {
		return fmt.Errorf("stream start_from must be %q or %q, got %q", "end", "beginning", c.Stream.StartFrom)
	}
	if c.Stream.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be at least 1, got %d", c.Stream.NumWorkers)
	}
	if c.Stream.MaxLen < 1 {
		return fmt.Errorf("stream maxlen must be positive, got %d", c.Stream.MaxLen)
	}
	return nil
}

func (c *Config) validateBackends() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url must not be empty")
	}
	if m := c.Enrichment.Mode; m != "" && m != EnrichmentModeLite && m != EnrichmentModeFull {
		return fmt.Errorf("enrichment mode must be %q or %q, got %q", EnrichmentModeLite, EnrichmentModeFull, m)
	}
	if c.ResolvedEnrichmentMode() == EnrichmentModeFull && c.Enrichment.RemoteURL == "" {
		return fmt.Errorf("enrichment remote_url is required in full mode")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Size < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.Batch.Size)
	}
	if c.Batch.MaxWaitSeconds < 1 {
		return fmt.Errorf("batch max_wait_seconds must be at least 1, got %d", c.Batch.MaxWaitSeconds)
	}
	if c.Batch.MaxRetries < 1 {
		return fmt.Errorf("batch max_retries must be at least 1, got %d", c.Batch.MaxRetries)
	}
	return nil
}

func (c *Config) validateStaging() error {
	if c.Staging.Dir == "" {
		return fmt.Errorf("staging dir must not be empty")
	}
	if c.Staging.BufferLimit < 1 {
		return fmt.Errorf("staging buffer_limit must be at least 1, got %d", c.Staging.BufferLimit)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return nil
}
