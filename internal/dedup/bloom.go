// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

package dedup

import (
	"hash/fnv"
	"math"
	"sync"
)

// bloomFilter is an in-process probabilistic membership filter used as the
// fast path in front of the shared confirmation set.
//
// Guarantees:
//   - No false negatives: Test() == false means the id was never added here.
//   - Possible false positives: Test() == true must be verified against the
//     authoritative set before suppressing a message.
//
// The filter is instance-local. It only short-circuits; correctness across
// the worker fleet comes from the shared set.
type bloomFilter struct {
	mu      sync.RWMutex
	bits    []uint64
	size    uint64 // number of bits
	hashFns int
	count   int
}

// newBloomFilter sizes the filter for the expected number of unique ids and
// target false positive rate (e.g. 0.01 for 1%).
func newBloomFilter(expectedItems int, falsePositiveRate float64) *bloomFilter {
	if expectedItems <= 0 {
		expectedItems = 100_000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	// m = -n*ln(p)/ln(2)^2, k = (m/n)*ln(2)
	ln2 := math.Ln2
	m := int(-float64(expectedItems) * math.Log(falsePositiveRate) / (ln2 * ln2))
	if m < 64 {
		m = 64
	}
	k := int(float64(m) / float64(expectedItems) * ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	words := (m + 63) / 64
	return &bloomFilter{
		bits:    make([]uint64, words),
		size:    uint64(words * 64),
		hashFns: k,
	}
}

// Test reports whether the id might have been added. A false result is
// definitive.
func (bf *bloomFilter) Test(id string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	for _, h := range bf.hashes(id) {
		idx := h % bf.size
		if bf.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Add records the id in the filter.
func (bf *bloomFilter) Add(id string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	for _, h := range bf.hashes(id) {
		idx := h % bf.size
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
	bf.count++
}

// Count returns the number of Add calls (duplicates included).
func (bf *bloomFilter) Count() int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.count
}

// hashes derives k hash values via double hashing: h(i) = h1 + i*h2.
func (bf *bloomFilter) hashes(id string) []uint64 {
	h1 := fnv.New64a()
	h1.Write([]byte(id))
	a := h1.Sum64()

	h2 := fnv.New64()
	h2.Write([]byte(id))
	h2.Write([]byte{0xff})
	b := h2.Sum64()

	out := make([]uint64, bf.hashFns)
	for i := range out {
		out[i] = a + uint64(i)*b
	}
	return out
}
