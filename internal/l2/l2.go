// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l2.go - Redis tier. Holds stored payloads exactly as L3 does (compressed,
// possibly sealed) so a hit costs one decode and no SQL round trip.

// Package l2 provides the Redis tier adapter.
package l2

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when nothing is cached for the id.
var ErrMiss = errors.New("l2: miss")

// DefaultKeyPrefix namespaces keys when Options.KeyPrefix is empty.
const DefaultKeyPrefix = "stattracker"

// Store is the L2 Redis adapter. Values are opaque payload bytes.
type Store struct {
	client redis.UniversalClient
	base   string // keyPrefix + ":stats:"
	hits   atomic.Int64
	misses atomic.Int64
}

// Options configures a new L2 Store.
type Options struct {
	Client    redis.UniversalClient
	KeyPrefix string
}

// Entry is one id/payload pair for batch writes.
type Entry struct {
	ID      string
	Payload []byte
}

// New creates a new L2 Store.
func New(opts Options) *Store {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: opts.Client, base: prefix + ":stats:"}
}

// Key returns the Redis key holding the payload for id.
func (s *Store) Key(id string) string { return s.base + id }

// Set stores payload for id with the given TTL.
func (s *Store) Set(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	k := s.Key(id)
	if err := s.client.Set(ctx, k, payload, ttl).Err(); err != nil {
		return fmt.Errorf("l2 set %s: %w", k, err)
	}
	return nil
}

// Get returns the payload stored for id, or ErrMiss.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	k := s.Key(id)
	b, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.misses.Add(1)
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("l2 get %s: %w", k, err)
	}
	s.hits.Add(1)
	return b, nil
}

// Exists checks whether a payload is cached for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	k := s.Key(id)
	n, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("l2 exists %s: %w", k, err)
	}
	return n > 0, nil
}

// Delete removes the payload cached for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	k := s.Key(id)
	if err := s.client.Del(ctx, k).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("l2 delete %s: %w", k, err)
	}
	return nil
}

// SetMany writes several payloads in one pipeline round-trip.
func (s *Store) SetMany(ctx context.Context, entries []Entry, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, e := range entries {
		pipe.Set(ctx, s.Key(e.ID), e.Payload, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("l2 set-many: %w", err)
	}
	return nil
}

// GetMany fetches several payloads with a single MGET. Missing ids are
// absent from the result.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.Key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("l2 mget (%d keys): %w", len(keys), err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			s.misses.Add(1)
			continue
		}
		s.hits.Add(1)
		result[ids[i]] = []byte(str)
	}
	return result, nil
}

// InvalidateAll unlinks every payload under this store's prefix. Keys are
// found with SCAN and removed in batches of scanCount.
func (s *Store) InvalidateAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.base+"*", scanCount).Iterator()
	batch := make([]string, 0, scanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanCount {
			if err := s.client.Unlink(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("l2 unlink: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("l2 scan: %w", err)
	}
	if len(batch) > 0 {
		if err := s.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("l2 unlink: %w", err)
		}
	}
	return nil
}

const scanCount = 100

// Publish sends an invalidation message to channel.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a pub/sub subscription on channel.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.client.Subscribe(ctx, channel)
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Stats holds hit and miss counts.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}
