// Package cache is the engine's TTL cache: a generic Store[T] layered over
// durable key/value storage, with a bounded in-memory front tier.
//
// Expired entries read as absent and are left in place; corrupted entries
// read as absent and are left in place too, so a half-written value from a
// racing writer is simply overwritten by the next Set.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abelbrown/marketfeed/internal/logging"
	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/store"
)

// Gate decides whether cache reads are allowed. The force-refresh governor
// implements it.
type Gate interface {
	CacheReadsEnabled() bool
}

// Options configures a Store.
type Options struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Gate, when set, can turn every Get into a miss.
	Gate Gate
	// MemoryEntries bounds the front tier. Zero disables it.
	MemoryEntries int
}

// envelope is the durable encoding: {"data":...,"timestamp":ms,"ttl":ms}.
type envelope[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
	TTL       int64 `json:"ttl"`
}

// Entry is a decoded cache entry.
type Entry[T any] struct {
	Payload  T
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether now - StoredAt > TTL.
func (e Entry[T]) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Store is a typed TTL cache.
type Store[T any] struct {
	kv   store.KV
	now  func() time.Time
	gate Gate
	mem  *memoryTier[T]
}

// New creates a Store over kv.
func New[T any](kv store.KV, opts Options) *Store[T] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store[T]{kv: kv, now: now, gate: opts.Gate}
	if opts.MemoryEntries > 0 {
		s.mem = newMemoryTier[T](opts.MemoryEntries)
	}
	return s
}

// Get returns the payload under key. ok is false when the entry is missing,
// expired, corrupted, unreadable, or when the gate has disabled reads;
// callers treat all of these as "refetch".
func (s *Store[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	if s.gate != nil && !s.gate.CacheReadsEnabled() {
		logging.Debug("cache read bypassed", "key", key)
		return zero, false
	}

	now := s.now()
	if s.mem != nil {
		if e, ok := s.mem.get(key); ok {
			if !e.Expired(now) {
				return e.Payload, true
			}
			return zero, false
		}
	}

	e, err := s.load(ctx, key)
	if err != nil {
		logging.Debug("cache miss", "key", key, "error", err)
		return zero, false
	}
	if e == nil || e.Expired(now) {
		return zero, false
	}
	if s.mem != nil {
		s.mem.put(key, *e)
	}
	return e.Payload, true
}

// Set stores value under key for ttl. Writes are allowed even while the
// gate disables reads.
func (s *Store[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	now := s.now()
	data, err := json.Marshal(envelope[T]{
		Data:      value,
		Timestamp: now.UnixMilli(),
		TTL:       ttl.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	if err := s.kv.SetItem(ctx, key, string(data)); err != nil {
		return fmt.Errorf("persist cache entry %q: %w", key, err)
	}
	if s.mem != nil {
		s.mem.put(key, Entry[T]{Payload: value, StoredAt: time.UnixMilli(now.UnixMilli()), TTL: ttl})
	}
	return nil
}

// Invalidate drops key from both tiers.
func (s *Store[T]) Invalidate(ctx context.Context, key string) error {
	if s.mem != nil {
		s.mem.remove(key)
	}
	if err := s.kv.RemoveItem(ctx, key); err != nil {
		return fmt.Errorf("invalidate %q: %w", key, err)
	}
	return nil
}

// load reads and decodes the durable entry. A nil entry with nil error
// means the key was never written.
func (s *Store[T]) load(ctx context.Context, key string) (*Entry[T], error) {
	raw, ok, err := s.kv.GetItem(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var env envelope[T]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCacheCorruption, err)
	}
	if env.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", model.ErrCacheCorruption)
	}
	return &Entry[T]{
		Payload:  env.Data,
		StoredAt: time.UnixMilli(env.Timestamp),
		TTL:      time.Duration(env.TTL) * time.Millisecond,
	}, nil
}
