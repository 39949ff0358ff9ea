// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tweetpulse/config.yaml",
	"/etc/tweetpulse/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are
// overridden by the config file and then by environment variables.
func defaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			Key:           "ingest:stream",
			ConsumerGroup: "workers",
			StartFrom:     "end",
			MaxLen:        100_000,
			NumWorkers:    3,
			ReadCount:     10,
			BlockTimeout:  time.Second,
			Keywords:      nil,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Database: DatabaseConfig{
			URL:      "",
			MaxConns: 8,
		},
		Staging: StagingConfig{
			Dir:           "/data/staging",
			BufferLimit:   1000,
			RetentionDays: 7,
		},
		Batch: BatchConfig{
			Size:           100,
			MaxWaitSeconds: 60,
			MaxRetries:     3,
		},
		Enrichment: EnrichmentConfig{
			Mode:        "", // auto-select by environment
			Environment: "development",
			RemoteURL:   "",
			BatchSize:   32,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8479,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources: defaults, then an
// optional YAML file, then environment variables. The result is validated
// before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are config paths parsed as comma-separated slices when
// set from the environment.
var sliceConfigPaths = []string{
	"stream.keywords",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so stray environment noise cannot leak
// into the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Stream
		"stream_key":            "stream.key",
		"stream_consumer_group": "stream.consumer_group",
		"stream_start_from":     "stream.start_from",
		"stream_maxlen":         "stream.maxlen",
		"num_workers":           "stream.num_workers",
		"stream_read_count":     "stream.read_count",
		"stream_block_timeout":  "stream.block_timeout",
		"stream_keywords":       "stream.keywords",

		// Backing stores
		"redis_url":    "redis.url",
		"database_url": "database.url",
		"db_max_conns": "database.max_conns",

		// Staging
		"staging_dir":            "staging.dir",
		"staging_buffer_limit":   "staging.buffer_limit",
		"staging_retention_days": "staging.retention_days",

		// Batch writer
		"batch_size":             "batch.size",
		"max_batch_wait_seconds": "batch.max_wait_seconds",
		"batch_max_retries":      "batch.max_retries",

		// Enrichment
		"enrichment_mode":       "enrichment.mode",
		"environment":           "enrichment.environment",
		"enrichment_remote_url": "enrichment.remote_url",
		"enrichment_batch_size": "enrichment.batch_size",

		// Ops server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
