// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RevocationSet records revoked token IDs. Entries need only outlive the
// token they revoke.
type RevocationSet interface {
	Contains(ctx context.Context, jti string) (bool, error)
	Add(ctx context.Context, jti string, until time.Time) error
}

var (
	_ RevocationSet = (*MemoryRevocationSet)(nil)
	_ RevocationSet = (*RedisRevocationSet)(nil)
)

// pruneThreshold is the set size above which Add sweeps expired entries.
const pruneThreshold = 1024

// MemoryRevocationSet keeps revoked IDs for the life of the process.
type MemoryRevocationSet struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationSet creates an empty in-process set.
func NewMemoryRevocationSet() *MemoryRevocationSet {
	return &MemoryRevocationSet{entries: make(map[string]time.Time), now: time.Now}
}

// Contains reports whether jti has been revoked.
func (s *MemoryRevocationSet) Contains(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok, nil
}

// Add records jti as revoked until the given time.
func (s *MemoryRevocationSet) Add(_ context.Context, jti string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= pruneThreshold {
		s.pruneLocked()
	}
	if existing, ok := s.entries[jti]; !ok || until.After(existing) {
		s.entries[jti] = until
	}
	return nil
}

// Len returns the number of tracked entries.
func (s *MemoryRevocationSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// pruneLocked drops entries whose tokens have expired on their own.
func (s *MemoryRevocationSet) pruneLocked() {
	now := s.now()
	for jti, until := range s.entries {
		if !until.After(now) {
			delete(s.entries, jti)
		}
	}
}

// DefaultRedisPrefix namespaces revocation keys.
const DefaultRedisPrefix = "accounts:revoked"

// RedisRevocationSet stores revoked IDs in Redis with a TTL matching the
// token's remaining lifetime, so every process sharing the Redis instance
// sees the same set.
type RedisRevocationSet struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisRevocationSet creates a Redis-backed set.
func NewRedisRevocationSet(client redis.UniversalClient, prefix string) (*RedisRevocationSet, error) {
	if client == nil {
		return nil, oops.Code("REVOCATION_CONFIG_INVALID").Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRevocationSet{client: client, prefix: prefix, now: time.Now}, nil
}

// Contains reports whether jti has been revoked.
func (s *RedisRevocationSet) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, oops.Code("REVOCATION_LOOKUP_FAILED").With("jti", jti).Wrap(err)
	}
	return n > 0, nil
}

// Add records jti as revoked until the given time. Entries for tokens that
// have already expired are not stored.
func (s *RedisRevocationSet) Add(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(jti), "1", ttl).Err(); err != nil {
		return oops.Code("REVOCATION_STORE_FAILED").With("jti", jti).Wrap(err)
	}
	return nil
}

func (s *RedisRevocationSet) key(jti string) string {
	return s.prefix + ":" + jti
}
