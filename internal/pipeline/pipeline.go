// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package pipeline assembles the full ingestion path: stream consumers,
// deduplication, enrichment, the storage fan-out and the coordinated batch
// writer, all running under a supervisor tree.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"

	"github.com/tweetpulse/tweetpulse/internal/batch"
	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/dedup"
	"github.com/tweetpulse/tweetpulse/internal/enrich"
	"github.com/tweetpulse/tweetpulse/internal/lock"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/models"
	"github.com/tweetpulse/tweetpulse/internal/storage"
	"github.com/tweetpulse/tweetpulse/internal/stream"
)

// State is the pipeline lifecycle phase.
type State int32

// Lifecycle states in order. Transitions only move forward.
const (
	StateInitialized State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pipeline owns all worker components and their lifecycle.
type Pipeline struct {
	cfg      *config.Config
	client   redis.UniversalClient
	dedup    *dedup.Deduplicator
	enricher *enrich.Enricher
	store    *storage.Storage
	writer   *batch.Writer
	locks    *lock.Manager
	tree     *Tree

	state atomic.Int32
}

// Options carries the already-constructed components the pipeline wires
// together. Connector and Source are optional: when both are set, the
// pipeline supervises a producer that drains Source onto the stream.
type Options struct {
	Config       *config.Config
	Client       redis.UniversalClient
	Deduplicator *dedup.Deduplicator
	Enricher     *enrich.Enricher
	Storage      *storage.Storage
	Writer       *batch.Writer
	Locks        *lock.Manager
	Connector    *stream.Connector
	Source       <-chan models.RawMessage
}

// New assembles the pipeline and registers its services with a fresh
// supervisor tree.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		cfg:      opts.Config,
		client:   opts.Client,
		dedup:    opts.Deduplicator,
		enricher: opts.Enricher,
		store:    opts.Storage,
		writer:   opts.Writer,
		locks:    opts.Locks,
		tree:     NewTree(DefaultTreeConfig()),
	}

	if opts.Connector != nil && opts.Source != nil {
		p.tree.AddIngestService(connectorService{conn: opts.Connector, src: opts.Source})
	}
	for i := 0; i < opts.Config.Stream.NumWorkers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		consumer := stream.NewConsumer(opts.Client, opts.Config.Stream, name, p.processOne)
		p.tree.AddIngestService(consumerService{consumer})
	}
	p.tree.AddPersistenceService(writerService{opts.Writer})
	return p
}

// State returns the current lifecycle phase.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Run starts the pipeline and blocks until ctx is cancelled, then performs
// an orderly shutdown: consumers drain first, the batch writer flushes its
// remainder, staging is flushed, and stale locks are swept.
func (p *Pipeline) Run(ctx context.Context) error {
	p.state.Store(int32(StateStarting))
	logging.Info().Int("workers", p.cfg.Stream.NumWorkers).Msg("pipeline starting")

	if err := stream.EnsureGroup(ctx, p.client, p.cfg.Stream); err != nil {
		p.state.Store(int32(StateStopped))
		return err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := p.tree.ServeBackground(serveCtx)

	p.state.Store(int32(StateRunning))
	logging.Info().Msg("pipeline running")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		// Supervisor died on its own; fall through to cleanup.
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree terminated")
		}
	}

	p.state.Store(int32(StateStopping))
	logging.Info().Msg("pipeline stopping")

	cancel()
	select {
	case <-errCh:
	case <-time.After(DefaultTreeConfig().ShutdownTimeout + time.Second):
		logging.Warn().Msg("supervisor tree did not stop in time")
	}

	p.shutdown()
	p.state.Store(int32(StateStopped))
	logging.Info().Msg("pipeline stopped")
	return nil
}

// shutdown runs the post-supervision cleanup with its own deadline, since
// the run context is already cancelled.
func (p *Pipeline) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.writer.Stop(ctx); err != nil {
		logging.Error().Err(err).Msg("final batch flush failed")
	}
	if err := p.store.Close(); err != nil {
		logging.Error().Err(err).Msg("final staging flush failed")
	}
	if swept, err := p.locks.SweepStale(ctx); err != nil {
		logging.Warn().Err(err).Msg("stale lock sweep failed")
	} else if swept > 0 {
		logging.Info().Int("locks", swept).Msg("stale locks swept on shutdown")
	}
}

// processOne is the handler every consumer runs per message: decode,
// dedup, enrich, fan out, queue for batch persistence. Returning a non-nil
// error (other than poison) leaves the message pending for redelivery.
func (p *Pipeline) processOne(ctx context.Context, fields map[string]string) error {
	msg, err := models.RawMessageFromFields(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", stream.ErrPoison, err)
	}

	dup, err := p.dedup.IsDuplicate(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("deduplicating %s: %w", msg.ID, err)
	}
	if dup {
		logging.Debug().Str("tweet_id", msg.ID).Msg("duplicate suppressed")
		return nil
	}

	rec := p.enricher.Enrich(ctx, msg)

	if err := p.store.Store(ctx, rec); err != nil {
		return fmt.Errorf("storing %s: %w", rec.ID, err)
	}
	// Queued for the writer's own flush schedule; the message itself
	// succeeded, so it is acked here.
	p.writer.Add(rec)
	return nil
}

// consumerService adapts a stream consumer to the supervisor interface.
type consumerService struct {
	c *stream.Consumer
}

func (s consumerService) Serve(ctx context.Context) error {
	return s.c.Run(ctx)
}

// writerService adapts the batch writer's timed loop.
type writerService struct {
	w *batch.Writer
}

func (s writerService) Serve(ctx context.Context) error {
	s.w.Run(ctx)
	return nil
}

// connectorService drains the upstream source onto the ingest stream. An
// exhausted source ends the service without triggering a restart.
type connectorService struct {
	conn *stream.Connector
	src  <-chan models.RawMessage
}

func (s connectorService) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-s.src:
			if !ok {
				logging.Info().Int64("published", s.conn.Published()).
					Int64("filtered", s.conn.Filtered()).Msg("source exhausted")
				return suture.ErrDoNotRestart
			}
			if _, err := s.conn.Publish(ctx, msg); err != nil {
				logging.Error().Err(err).Str("tweet_id", msg.ID).Msg("publish failed")
			}
		}
	}
}
