package auth

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/freekieb7/flint/schedule"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is a concurrent credential table whose entries may expire. Expired
// entries are invisible to Get and removed by Prune.
type Store[V any] struct {
	entries *xsync.MapOf[string, entry[V]]
	now     func() time.Time
}

func NewStore[V any]() *Store[V] {
	return &Store[V]{
		entries: xsync.NewMapOf[string, entry[V]](),
		now:     time.Now,
	}
}

// Set stores value under key. A ttl of 0 never expires.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries.Store(key, e)
}

func (s *Store[V]) Get(key string) (V, bool) {
	e, ok := s.entries.Load(key)
	if !ok || e.expired(s.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (s *Store[V]) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Store[V]) Delete(key string) {
	s.entries.Delete(key)
}

func (s *Store[V]) Clear() {
	s.entries.Clear()
}

// Len counts entries, expired ones not yet pruned included.
func (s *Store[V]) Len() int {
	return s.entries.Size()
}

// Prune removes expired entries and returns how many it removed.
func (s *Store[V]) Prune() int {
	now := s.now()
	removed := 0

	s.entries.Range(func(key string, e entry[V]) bool {
		if !e.expired(now) {
			return true
		}
		// Recheck under the bucket lock so a concurrent Set survives.
		s.entries.Compute(key, func(cur entry[V], loaded bool) (entry[V], bool) {
			drop := !loaded || cur.expired(now)
			if loaded && drop {
				removed++
			}
			return cur, drop
		})
		return true
	})

	return removed
}

// PruneJob returns a job that prunes the store every interval.
func (s *Store[V]) PruneJob(name string, interval time.Duration) *schedule.Job {
	return schedule.NewJob(name, interval, func(context.Context) error {
		s.Prune()
		return nil
	})
}
