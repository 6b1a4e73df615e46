// Package cache provides the pluggable backing store for the ETA model's
// estimate cache (per-rider speed models are kept by the ETA model itself,
// not here). The default is an in-process map; an optional Redis-backed
// store lets multiple process restarts share warm cache state. Grounded on
// the teacher's nil-collaborator pattern (matching.NewEngine(nil) works
// without a messaging client) — a nil *RedisStore or one wrapping a nil
// client never fails and never stores anything: every Get is a miss.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the backing interface the ETA model depends on. InMemoryStore
// satisfies it with no external dependency; RedisStore is optional.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string)
	Len(ctx context.Context) int
	Keys(ctx context.Context) []string
}

// InMemoryStore is a mutex-guarded map, the default backing store.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// NewInMemoryStore returns an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]entry)}
}

// Get reports whether key is present and unexpired, decoding into dest.
func (s *InMemoryStore) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.Delete(context.Background(), key)
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under key with the given ttl (0 means no expiry).
func (s *InMemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry{data: data, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (s *InMemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of live entries, sweeping expired ones first.
func (s *InMemoryStore) Len(ctx context.Context) int {
	s.sweepExpired()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns all live keys, sweeping expired ones first.
func (s *InMemoryStore) Keys(_ context.Context) []string {
	s.sweepExpired()
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

func (s *InMemoryStore) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// RedisStore is an optional distributed backing store for the ETA cache.
// A nil *RedisStore or a RedisStore wrapping a nil client behaves as an
// always-miss store, letting callers fall back to InMemoryStore without a
// branch at every call site.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing go-redis client. client may be nil.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// Get reports whether key is present, decoding into dest.
func (s *RedisStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under key with ttl (0 means no expiry).
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

// Delete removes key if present.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if s == nil || s.client == nil {
		return
	}
	s.client.Del(ctx, s.key(key))
}

// Len returns the number of keys under this store's prefix.
func (s *RedisStore) Len(ctx context.Context) int {
	return len(s.Keys(ctx))
}

// Keys returns all keys under this store's prefix.
func (s *RedisStore) Keys(ctx context.Context) []string {
	if s == nil || s.client == nil {
		return nil
	}
	pattern := s.key("*")
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys
}
