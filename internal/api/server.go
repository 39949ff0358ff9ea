// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package api serves the ops HTTP surface: health, pipeline statistics,
// cached tweet reads and Prometheus metrics. It reads from the hot cache
// only and never touches the relational store.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tweetpulse/tweetpulse/internal/batch"
	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/dedup"
	"github.com/tweetpulse/tweetpulse/internal/hotcache"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/pipeline"
	"github.com/tweetpulse/tweetpulse/internal/storage"
)

// Server is the ops HTTP server.
type Server struct {
	cfg    config.ServerConfig
	cache  *hotcache.Cache
	store  *storage.Storage
	pipe   *pipeline.Pipeline
	writer *batch.Writer
	dedup  *dedup.Deduplicator
}

// NewServer creates the ops server over the pipeline's read surfaces.
func NewServer(cfg config.ServerConfig, cache *hotcache.Cache, store *storage.Storage,
	pipe *pipeline.Pipeline, writer *batch.Writer, dd *dedup.Deduplicator) *Server {
	return &Server{cfg: cfg, cache: cache, store: store, pipe: pipe, writer: writer, dedup: dd}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Timeout))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/tweets/recent", s.handleRecent)
		r.Get("/tweets/sentiment/{label}", s.handleBySentiment)
	})
	return r
}

// Serve runs the server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("ops server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down ops server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.pipe.State()
	status := http.StatusOK
	if state != pipeline.StateRunning {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": state.String()})
}

// statsResponse joins the storage counters with the batch writer's flush
// counters and the dedup set sizes.
type statsResponse struct {
	storage.Stats
	Batch batch.Stats `json:"batch"`
	Dedup dedupStats  `json:"dedup"`
}

type dedupStats struct {
	SeenSet     int64 `json:"seen_set"`
	FilterItems int   `json:"filter_items"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Stats: s.store.Stats(r.Context()),
		Batch: s.writer.Stats(),
	}
	// SeenCount also refreshes the cardinality gauge, so every stats read
	// keeps the metric current.
	seen, err := s.dedup.SeenCount(r.Context())
	if err != nil {
		logging.Warn().Err(err).Msg("reading seen set cardinality failed")
	}
	resp.Dedup = dedupStats{SeenSet: seen, FilterItems: s.dedup.FilterCount()}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	records, err := s.cache.GetRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleBySentiment(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	limit := queryInt(r, "limit", 100)
	records, err := s.cache.GetBySentiment(r.Context(), label, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encoding response failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
