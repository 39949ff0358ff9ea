// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package enrich

import (
	"context"
	"time"

	"github.com/tweetpulse/tweetpulse/internal/config"
	"github.com/tweetpulse/tweetpulse/internal/logging"
	"github.com/tweetpulse/tweetpulse/internal/metrics"
	"github.com/tweetpulse/tweetpulse/internal/models"
)

// minAnalyzableLength is the shortest cleaned text worth scoring. Anything
// shorter is classified neutral.
const minAnalyzableLength = 10

// neutralConfidence is the confidence attached to records that bypass or
// fall out of sentiment analysis.
const neutralConfidence = 0.5

// Enricher derives cleaned text, language and sentiment for raw messages.
type Enricher struct {
	detector *LanguageDetector
	analyzer Analyzer
	now      func() time.Time
}

// New creates an Enricher with the given sentiment backend.
func New(analyzer Analyzer) *Enricher {
	return &Enricher{
		detector: NewLanguageDetector(),
		analyzer: analyzer,
		now:      time.Now,
	}
}

// FromConfig builds the Enricher for the configured backend mode.
func FromConfig(cfg *config.Config) *Enricher {
	var analyzer Analyzer
	switch cfg.ResolvedEnrichmentMode() {
	case config.EnrichmentModeFull:
		analyzer = NewRemoteAnalyzer(cfg.Enrichment.RemoteURL, cfg.Server.Timeout)
	default:
		analyzer = NewLexicalAnalyzer()
	}
	logging.Info().Str("backend", analyzer.Name()).Msg("enrichment backend selected")
	return New(analyzer)
}

// Backend returns the name of the active sentiment backend.
func (e *Enricher) Backend() string { return e.analyzer.Name() }

// Enrich derives all attributes for one message. The input is not
// modified; the returned record carries the original text untouched and
// the same id byte-for-byte.
//
// Non-English text and text too short to score are classified neutral
// without invoking the sentiment backend. Backend failure degrades the
// single record to neutral rather than failing the message.
func (e *Enricher) Enrich(ctx context.Context, msg models.RawMessage) models.EnrichedRecord {
	start := e.now()

	cleaned := Clean(msg.Text)
	lang := e.detector.Detect(cleaned)

	label := models.SentimentNeutral
	confidence := neutralConfidence
	if lang == "en" && len(cleaned) >= minAnalyzableLength {
		var err error
		label, confidence, err = e.analyzer.Analyze(ctx, cleaned)
		if err != nil {
			metrics.EnrichmentDegraded.WithLabelValues("sentiment").Inc()
			logging.Warn().Err(err).Str("tweet_id", msg.ID).Str("backend", e.analyzer.Name()).
				Msg("sentiment backend failed, classifying neutral")
			label = models.SentimentNeutral
			confidence = neutralConfidence
		}
	}

	record := models.EnrichedRecord{
		RawMessage:  msg,
		CleanedText: cleaned,
		Language:    lang,
		Sentiment:   label,
		Confidence:  confidence,
		EnrichedAt:  e.now().UTC().Format(time.RFC3339),
	}
	metrics.ObserveEnrichment(e.analyzer.Name(), e.now().Sub(start))
	return record
}
