// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package enrich

import (
	"strings"

	"github.com/pemistahl/lingua-go"

	"github.com/tweetpulse/tweetpulse/internal/metrics"
)

// detectorLanguages is the set of languages the detector distinguishes.
// A restricted set keeps the language models small and improves accuracy
// on short tweet-length texts.
var detectorLanguages = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Japanese,
	lingua.Korean,
	lingua.Arabic,
	lingua.Russian,
	lingua.Turkish,
	lingua.Indonesian,
	lingua.Hindi,
}

// LanguageDetector maps tweet text to a lowercase ISO 639-1 code.
type LanguageDetector struct {
	detector lingua.LanguageDetector
}

// NewLanguageDetector builds a detector with models loaded lazily, so
// startup does not pay for languages that never occur in the stream.
func NewLanguageDetector() *LanguageDetector {
	return &LanguageDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(detectorLanguages...).
			Build(),
	}
}

// Detect returns the ISO 639-1 code of the most likely language, or
// "unknown" when detection is inconclusive. Detection failure degrades the
// record, never the pipeline.
func (d *LanguageDetector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		metrics.EnrichmentDegraded.WithLabelValues("language").Inc()
		return "unknown"
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		metrics.EnrichmentDegraded.WithLabelValues("language").Inc()
		return "unknown"
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
