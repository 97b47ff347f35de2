package main

import (
	"sync"
	"time"
)

// Package-level cache shared by the embedding consensus strategy. Discussion
// messages are immutable once appended, so their vectors never go stale; the
// TTL just bounds memory across long-lived processes.
var embeddingCache = NewEmbeddingCache(EmbeddingCacheTTL)

// EmbeddingCache provides thread-safe caching of embedding vectors keyed by
// the embedded text.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string]embeddingEntry
	ttl     time.Duration
}

type embeddingEntry struct {
	vector   []float64
	storedAt time.Time
}

// NewEmbeddingCache creates a new embedding cache with the specified TTL
func NewEmbeddingCache(ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{
		entries: make(map[string]embeddingEntry),
		ttl:     ttl,
	}
}

// Get retrieves a vector from cache if present and not expired
// Returns the vector and a boolean indicating if the cache hit was successful
func (c *EmbeddingCache) Get(text string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[text]
	if !ok {
		return nil, false
	}

	if time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}

	// Return a copy to prevent external modifications
	vector := make([]float64, len(entry.vector))
	copy(vector, entry.vector)
	return vector, true
}

// Set stores a vector for the given text
func (c *EmbeddingCache) Set(text string, vector []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]float64, len(vector))
	copy(stored, vector)
	c.entries[text] = embeddingEntry{
		vector:   stored,
		storedAt: time.Now(),
	}
}

// Clear removes all entries from the cache
func (c *EmbeddingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]embeddingEntry)
}

// Size returns the number of entries in the cache, expired ones included
func (c *EmbeddingCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
