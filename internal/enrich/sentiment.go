// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package enrich

import (
	"context"
	"math"

	"github.com/jonreiter/govader"

	"github.com/tweetpulse/tweetpulse/internal/models"
)

// compoundThreshold separates positive/negative from neutral on the
// analyzer's compound score.
const compoundThreshold = 0.05

// Analyzer scores cleaned English text. Implementations must be safe for
// concurrent use.
type Analyzer interface {
	// Analyze returns a sentiment label and a confidence in [0, 1].
	Analyze(ctx context.Context, text string) (label string, confidence float64, err error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// LexicalAnalyzer is the lite backend: a VADER-style lexicon scorer with no
// external dependencies. Suited to development and constrained deployments.
type LexicalAnalyzer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewLexicalAnalyzer creates the lexicon-based analyzer.
func NewLexicalAnalyzer() *LexicalAnalyzer {
	return &LexicalAnalyzer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Analyze maps the compound score to a label: above +0.05 is positive,
// below -0.05 is negative, the band between is neutral. Confidence is the
// magnitude of the compound score for polar labels and its complement for
// neutral ones.
func (a *LexicalAnalyzer) Analyze(_ context.Context, text string) (string, float64, error) {
	compound := a.analyzer.PolarityScores(text).Compound
	switch {
	case compound > compoundThreshold:
		return models.SentimentPositive, math.Abs(compound), nil
	case compound < -compoundThreshold:
		return models.SentimentNegative, math.Abs(compound), nil
	default:
		return models.SentimentNeutral, 1 - math.Abs(compound), nil
	}
}

// Name implements Analyzer.
func (a *LexicalAnalyzer) Name() string { return "lexical" }
