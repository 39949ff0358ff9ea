// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tweetpulse/tweetpulse/internal/models"
)

// RemoteAnalyzer is the full backend: a transformer model served over HTTP
// by a separate inference service. Used in production and staging, where
// model quality justifies the network hop.
type RemoteAnalyzer struct {
	url    string
	client *http.Client
}

// NewRemoteAnalyzer creates an analyzer against the inference endpoint.
func NewRemoteAnalyzer(url string, timeout time.Duration) *RemoteAnalyzer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteAnalyzer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Analyze posts the text to the inference service. The caller degrades to a
// neutral result on error; this method never invents a label.
func (a *RemoteAnalyzer) Analyze(ctx context.Context, text string) (string, float64, error) {
	body, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return "", 0, fmt.Errorf("encoding inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("building inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("calling inference service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", 0, fmt.Errorf("inference service returned %s", resp.Status)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decoding inference response: %w", err)
	}
	if !models.ValidSentiment(out.Label) {
		return "", 0, fmt.Errorf("inference service returned unknown label %q", out.Label)
	}
	if out.Score < 0 || out.Score > 1 {
		return "", 0, fmt.Errorf("inference service returned confidence %f outside [0,1]", out.Score)
	}
	return out.Label, out.Score, nil
}

// Name implements Analyzer.
func (a *RemoteAnalyzer) Name() string { return "remote" }
