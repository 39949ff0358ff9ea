// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package main

import (
	"os"

	"github.com/tweetpulse/tweetpulse/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
