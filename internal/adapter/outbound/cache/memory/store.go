// Package memory is a process-local analysis store bounded by size and TTL.
package memory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// DefaultMaxEntries bounds the store when no size is configured.
const DefaultMaxEntries = 10000

// Store implements outbound.AnalysisStore on an expirable LRU.
type Store struct {
	lru *expirable.LRU[model.Fingerprint, model.CacheEntry]
	now func() time.Time
}

// NewStore creates a store holding at most maxEntries entries, each evicted
// after ttl at the latest.
func NewStore(maxEntries int, ttl time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		lru: expirable.NewLRU[model.Fingerprint, model.CacheEntry](maxEntries, nil, ttl),
		now: time.Now,
	}
}

var _ outbound.AnalysisStore = (*Store)(nil)

func (s *Store) Get(_ context.Context, fp model.Fingerprint) (model.CacheEntry, bool, error) {
	entry, ok := s.lru.Get(fp)
	if !ok {
		return model.CacheEntry{}, false, nil
	}
	// The LRU sweeps lazily; the entry's own deadline is authoritative.
	if entry.Expired(s.now()) {
		s.lru.Remove(fp)
		return model.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (s *Store) Put(_ context.Context, entry model.CacheEntry) error {
	if entry.Expired(s.now()) {
		return nil
	}
	s.lru.Add(entry.Fingerprint, entry)
	return nil
}

func (s *Store) Delete(_ context.Context, fp model.Fingerprint) error {
	s.lru.Remove(fp)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len reports the number of entries currently held.
func (s *Store) Len() int { return s.lru.Len() }
