// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tweetpulse/tweetpulse/internal/models"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"urls stripped", "check https://t.co/abc this out", "check this out"},
		{"mentions stripped", "hey @alice how are you", "hey how are you"},
		{"hashtags stripped", "launch day #golang #build", "launch day"},
		{"whitespace collapsed", "too   many\t\tspaces\n here", "too many spaces here"},
		{"all combined", "  @bob check https://x.co/1 #wow   now ", "check now"},
		{"empty", "", ""},
		{"only noise", "@a #b http://c.io", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Fatalf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	in := "  @bob check https://x.co/1 #wow   now "
	once := Clean(in)
	if twice := Clean(once); twice != once {
		t.Fatalf("Clean not idempotent: %q then %q", once, twice)
	}
}

func TestLexicalAnalyzerPolarity(t *testing.T) {
	a := NewLexicalAnalyzer()
	ctx := context.Background()

	label, conf, err := a.Analyze(ctx, "I love this, it is absolutely wonderful and great!")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if label != models.SentimentPositive {
		t.Fatalf("positive text scored %q", label)
	}
	if conf <= 0 || conf > 1 {
		t.Fatalf("confidence %f outside (0,1]", conf)
	}

	label, _, err = a.Analyze(ctx, "this is terrible, I hate it, truly awful")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if label != models.SentimentNegative {
		t.Fatalf("negative text scored %q", label)
	}
}

func TestEnrichPositiveEnglish(t *testing.T) {
	e := New(NewLexicalAnalyzer())
	msg := models.RawMessage{ID: "t1", Text: "I love this! It is a wonderful product, really great."}

	rec := e.Enrich(context.Background(), msg)
	if rec.ID != "t1" {
		t.Fatalf("id changed: %q", rec.ID)
	}
	if rec.Text != msg.Text {
		t.Fatal("original text was modified")
	}
	if rec.Language != "en" {
		t.Fatalf("Language = %q, want en", rec.Language)
	}
	if rec.Sentiment != models.SentimentPositive {
		t.Fatalf("Sentiment = %q, want positive", rec.Sentiment)
	}
	if _, ok := rec.EnrichedAtTime(); !ok {
		t.Fatalf("EnrichedAt %q not RFC3339", rec.EnrichedAt)
	}
}

func TestEnrichNonEnglishIsNeutral(t *testing.T) {
	e := New(NewLexicalAnalyzer())
	msg := models.RawMessage{ID: "t2", Text: "Bonjour le monde, quelle belle journée ensoleillée"}

	rec := e.Enrich(context.Background(), msg)
	if rec.Language == "en" {
		t.Fatalf("Language = %q, want non-English", rec.Language)
	}
	if rec.Sentiment != models.SentimentNeutral || rec.Confidence != 0.5 {
		t.Fatalf("got (%s, %f), want (neutral, 0.5)", rec.Sentiment, rec.Confidence)
	}
}

func TestEnrichShortTextIsNeutral(t *testing.T) {
	e := New(NewLexicalAnalyzer())
	// Cleaned text ends up under the analyzable threshold.
	msg := models.RawMessage{ID: "t3", Text: "ok #mood @pal https://t.co/x"}

	rec := e.Enrich(context.Background(), msg)
	if rec.Sentiment != models.SentimentNeutral || rec.Confidence != 0.5 {
		t.Fatalf("got (%s, %f), want (neutral, 0.5)", rec.Sentiment, rec.Confidence)
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, string) (string, float64, error) {
	return "", 0, errors.New("backend down")
}
func (failingAnalyzer) Name() string { return "failing" }

func TestEnrichDegradesOnBackendFailure(t *testing.T) {
	e := New(failingAnalyzer{})
	msg := models.RawMessage{ID: "t4", Text: "this is a long enough english sentence to analyze"}

	rec := e.Enrich(context.Background(), msg)
	if rec.Sentiment != models.SentimentNeutral || rec.Confidence != 0.5 {
		t.Fatalf("got (%s, %f), want (neutral, 0.5)", rec.Sentiment, rec.Confidence)
	}
}

func TestRemoteAnalyzer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"label":"positive","score":0.97}`))
	}))
	defer srv.Close()

	a := NewRemoteAnalyzer(srv.URL, time.Second)
	label, conf, err := a.Analyze(context.Background(), "what a fantastic day")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if label != models.SentimentPositive || conf != 0.97 {
		t.Fatalf("got (%s, %f), want (positive, 0.97)", label, conf)
	}
}

func TestRemoteAnalyzerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewRemoteAnalyzer(srv.URL, time.Second)
	if _, _, err := a.Analyze(context.Background(), "anything"); err == nil {
		t.Fatal("Analyze() succeeded against a failing server")
	}
}

func TestBatchEnricher(t *testing.T) {
	b := NewBatchEnricher(New(NewLexicalAnalyzer()), 3)
	ctx := context.Background()

	if out := b.Add(ctx, models.RawMessage{ID: "a", Text: "I love this wonderful thing"}); out != nil {
		t.Fatalf("batch released early: %d records", len(out))
	}
	if out := b.Add(ctx, models.RawMessage{ID: "b", Text: "this is truly awful and terrible"}); out != nil {
		t.Fatalf("batch released early: %d records", len(out))
	}
	out := b.Add(ctx, models.RawMessage{ID: "c", Text: "the sky exists"})
	if len(out) != 3 {
		t.Fatalf("batch size = %d, want 3", len(out))
	}
	// Input order preserved.
	for i, want := range []string{"a", "b", "c"} {
		if out[i].ID != want {
			t.Fatalf("out[%d].ID = %q, want %q", i, out[i].ID, want)
		}
	}
	if b.Pending() != 0 {
		t.Fatalf("Pending() = %d after release, want 0", b.Pending())
	}
}

func TestBatchEnricherFlush(t *testing.T) {
	b := NewBatchEnricher(New(NewLexicalAnalyzer()), 10)
	ctx := context.Background()

	b.Add(ctx, models.RawMessage{ID: "a", Text: "hello there friend"})
	b.Add(ctx, models.RawMessage{ID: "b", Text: "goodbye for now"})

	out := b.Flush(ctx)
	if len(out) != 2 {
		t.Fatalf("Flush() = %d records, want 2", len(out))
	}
	if b.Flush(ctx) != nil {
		t.Fatal("second Flush() returned records")
	}
}
