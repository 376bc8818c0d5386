// Package cache stores completed reviews keyed by their inputs so identical
// submissions skip the model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/parcom/reviewd/internal/review"
	"github.com/parcom/reviewd/internal/storage"
)

const keyPrefix = "cache:"

// Key derives the cache key for a submission. Deterministic in all four
// inputs; changing any one of them changes the key.
func Key(code string, category review.Category, language, model string) string {
	h := sha256.New()
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Entry is a cached review plus its retrieval count.
type Entry struct {
	Review    review.Review `json:"review"`
	CacheHits int           `json:"cache_hits"`
}

// Stats is a snapshot of the cache's global counters.
type Stats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// Cache is a TTL'd review cache over the KV store. Lookups are best-effort:
// a storage error counts as a miss.
type Cache struct {
	mu     sync.Mutex
	kv     storage.KV
	ttl    time.Duration
	hits   int
	misses int
}

// New creates a cache writing entries with the given TTL.
func New(kv storage.KV, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl}
}

// Get looks up key. On a hit the entry's hit counter is bumped and its
// expiry refreshed.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool) {
	data, found, err := c.kv.Get(ctx, key)
	if err != nil {
		log.Printf("cache read failed for %s: %v", key, err)
		c.count(false)
		return nil, false
	}
	if !found {
		c.count(false)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("discarding malformed cache entry %s: %v", key, err)
		c.count(false)
		return nil, false
	}

	entry.CacheHits++
	if updated, err := json.Marshal(entry); err == nil {
		if err := c.kv.Put(ctx, key, updated, c.ttl); err != nil {
			log.Printf("failed to refresh cache entry %s: %v", key, err)
		}
	}
	c.count(true)
	return &entry, true
}

// Set stores a completed review under key.
func (c *Cache) Set(ctx context.Context, key string, r review.Review) error {
	data, err := json.Marshal(Entry{Review: r})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.kv.Put(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Clear deletes every cached review and resets the counters. Returns the
// number of entries removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	keys, err := c.kv.List(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache entries: %w", err)
	}
	removed := 0
	for _, key := range keys {
		if err := c.kv.Delete(ctx, key); err != nil {
			log.Printf("failed to delete cache entry %s: %v", key, err)
			continue
		}
		removed++
	}

	c.mu.Lock()
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
	return removed, nil
}

// Stats returns the global hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}
