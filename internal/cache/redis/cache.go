// Package redis implements the response cache against a Redis backend so
// multiple gateway instances can share one cache. Failures surface as
// CacheError, which callers treat as a miss.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vtuber-plan/purifly/internal/domain"
)

// Cache implements domain.ResponseCache on Redis.
type Cache struct {
	client *redis.Client
	prefix string
}

// NewCache creates a Redis-backed response cache. Keys are namespaced under
// prefix.
func NewCache(client *redis.Client, prefix string) (*Cache, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "purifly"
	}
	return &Cache{
		client: client,
		prefix: prefix,
	}, nil
}

// Get returns the cached response for the fingerprint. Missing keys map to
// ErrCacheMiss; backend and decode failures map to CacheError.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*domain.CanonicalResponse, error) {
	data, err := c.client.Get(ctx, c.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, &domain.CacheError{Op: "get", Cause: err}
	}

	var resp domain.CanonicalResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &domain.CacheError{Op: "decode", Cause: err}
	}
	return &resp, nil
}

// Put stores a completed response under the fingerprint with the given TTL.
func (c *Cache) Put(ctx context.Context, fingerprint string, resp *domain.CanonicalResponse, ttl time.Duration) error {
	if fingerprint == "" {
		return errors.New("fingerprint cannot be empty")
	}
	if resp == nil {
		return errors.New("response cannot be nil")
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return &domain.CacheError{Op: "encode", Cause: err}
	}
	if err := c.client.Set(ctx, c.key(fingerprint), data, ttl).Err(); err != nil {
		return &domain.CacheError{Op: "set", Cause: err}
	}
	return nil
}

func (c *Cache) key(fingerprint string) string {
	return fmt.Sprintf("%s:response:%s", c.prefix, fingerprint)
}
