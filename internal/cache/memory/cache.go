// Package memory implements the response cache as an in-process LRU with
// per-entry TTLs. Capacity pressure evicts least-recently-used entries;
// expired entries are dropped lazily on read.
package memory

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vtuber-plan/purifly/internal/domain"
)

const defaultMaxEntries = 1024

type cacheEntry struct {
	resp       *domain.CanonicalResponse
	insertedAt time.Time
	ttl        time.Duration
}

// Cache implements domain.ResponseCache in memory.
type Cache struct {
	lru *lru.Cache[string, cacheEntry]
	now func() time.Time
}

// New creates a new in-memory response cache bounded to maxEntries.
func New(maxEntries int) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	l, err := lru.New[string, cacheEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{
		lru: l,
		now: time.Now,
	}, nil
}

// Get returns the cached response for the fingerprint, or ErrCacheMiss when
// no entry exists or the entry's TTL has elapsed.
func (c *Cache) Get(_ context.Context, fingerprint string) (*domain.CanonicalResponse, error) {
	entry, ok := c.lru.Get(fingerprint)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if entry.ttl > 0 && c.now().Sub(entry.insertedAt) > entry.ttl {
		c.lru.Remove(fingerprint)
		return nil, domain.ErrCacheMiss
	}
	return entry.resp, nil
}

// Put stores a completed response under the fingerprint. A non-positive TTL
// keeps the entry until capacity eviction.
func (c *Cache) Put(_ context.Context, fingerprint string, resp *domain.CanonicalResponse, ttl time.Duration) error {
	if fingerprint == "" {
		return errors.New("fingerprint cannot be empty")
	}
	if resp == nil {
		return errors.New("response cannot be nil")
	}
	c.lru.Add(fingerprint, cacheEntry{
		resp:       resp,
		insertedAt: c.now(),
		ttl:        ttl,
	})
	return nil
}

// Len returns the number of live entries, expired ones included until their
// next read.
func (c *Cache) Len() int {
	return c.lru.Len()
}
