// Package redis provides a Redis-backed analysis store shared between replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// DefaultPrefix namespaces analysis keys.
const DefaultPrefix = "zbxai:analysis:"

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements outbound.AnalysisStore using Redis.
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewStoreWithClient(client, cfg.Prefix), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

var _ outbound.AnalysisStore = (*Store)(nil)

func (s *Store) key(fp model.Fingerprint) string {
	return s.prefix + string(fp)
}

// Get returns the entry for fp. Entries past ExpiresAt are reported as absent
// even if Redis has not evicted them yet.
func (s *Store) Get(ctx context.Context, fp model.Fingerprint) (model.CacheEntry, bool, error) {
	data, err := s.client.Get(ctx, s.key(fp)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.CacheEntry{}, false, nil
		}
		return model.CacheEntry{}, false, fmt.Errorf("failed to get analysis: %w", err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	if entry.Expired(s.now()) {
		return model.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put stores the entry with a Redis TTL matching its ExpiresAt.
func (s *Store) Put(ctx context.Context, entry model.CacheEntry) error {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	if err := s.client.Set(ctx, s.key(entry.Fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set analysis: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, fp model.Fingerprint) error {
	if err := s.client.Del(ctx, s.key(fp)).Err(); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
