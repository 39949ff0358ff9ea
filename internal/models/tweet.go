// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package models defines the records flowing through the ingestion
// pipeline and their stream wire encoding.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentiment labels attached by the enricher.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// LanguageUnknown is attached when language detection fails or is
// inconclusive.
const LanguageUnknown = "unknown"

// ErrMissingID marks a poison message: a stream entry without a usable id.
// Poison messages are acknowledged and dropped, never retried.
var ErrMissingID = errors.New("message has no id field")

// RawMessage is a tweet as it arrives on the ingest stream.
type RawMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at"` // RFC3339 as produced upstream
	Source    string `json:"source"`

	// Engagement counters, when the upstream supplies them.
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	LikeCount       int `json:"like_count"`
	QuoteCount      int `json:"quote_count"`
	BookmarkCount   int `json:"bookmark_count"`
	ImpressionCount int `json:"impression_count"`
}

// EnrichedRecord is a RawMessage plus derived attributes. Its ID always
// equals the source RawMessage's ID byte-for-byte.
type EnrichedRecord struct {
	RawMessage

	CleanedText string  `json:"cleaned_text"`
	Language    string  `json:"language"`
	Sentiment   string  `json:"sentiment"`
	Confidence  float64 `json:"confidence"`
	EnrichedAt  string  `json:"enriched_at"` // RFC3339 UTC
}

// RawMessageFromFields decodes the string field map of a stream entry.
// Returns ErrMissingID (wrapped) when the id field is absent or empty;
// malformed counters decode as zero rather than failing the message.
func RawMessageFromFields(fields map[string]string) (RawMessage, error) {
	id := fields["id"]
	if id == "" {
		return RawMessage{}, fmt.Errorf("decoding stream entry: %w", ErrMissingID)
	}
	return RawMessage{
		ID:              id,
		Text:            fields["text"],
		AuthorID:        fields["author_id"],
		CreatedAt:       fields["created_at"],
		Source:          fields["source"],
		RetweetCount:    atoiOrZero(fields["retweet_count"]),
		ReplyCount:      atoiOrZero(fields["reply_count"]),
		LikeCount:       atoiOrZero(fields["like_count"]),
		QuoteCount:      atoiOrZero(fields["quote_count"]),
		BookmarkCount:   atoiOrZero(fields["bookmark_count"]),
		ImpressionCount: atoiOrZero(fields["impression_count"]),
	}, nil
}

// Fields encodes the message as the string field map written to the stream.
// Zero-valued counters are omitted to keep entries small.
func (m RawMessage) Fields() map[string]any {
	fields := map[string]any{
		"id":         m.ID,
		"text":       m.Text,
		"author_id":  m.AuthorID,
		"created_at": m.CreatedAt,
		"source":     m.Source,
	}
	for k, v := range map[string]int{
		"retweet_count":    m.RetweetCount,
		"reply_count":      m.ReplyCount,
		"like_count":       m.LikeCount,
		"quote_count":      m.QuoteCount,
		"bookmark_count":   m.BookmarkCount,
		"impression_count": m.ImpressionCount,
	} {
		if v != 0 {
			fields[k] = strconv.Itoa(v)
		}
	}
	return fields
}

// CreatedAtTime parses the upstream timestamp. The boolean reports whether
// the value was parseable; callers null the column otherwise.
func (m RawMessage) CreatedAtTime() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, m.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// EnrichedAtTime parses the enrichment timestamp.
func (r EnrichedRecord) EnrichedAtTime() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, r.EnrichedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ValidSentiment reports whether s is one of the recognized labels.
func ValidSentiment(s string) bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
