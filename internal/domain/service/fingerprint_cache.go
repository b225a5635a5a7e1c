package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/metrics"
)

// DefaultCacheTTL is used when no TTL is configured.
const DefaultCacheTTL = time.Hour

// ComputeFunc produces a fresh analysis. It never fails; exhaustion is encoded
// in the returned result.
type ComputeFunc func(ctx context.Context) model.AnalysisResult

// FingerprintCache maps fingerprints to analyses and guarantees at most one
// in-flight computation per fingerprint.
type FingerprintCache struct {
	store  outbound.AnalysisStore
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewFingerprintCache creates a cache over store with the given TTL.
func NewFingerprintCache(store outbound.AnalysisStore, ttl time.Duration, logger *slog.Logger) *FingerprintCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &FingerprintCache{
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "fingerprint_cache"),
		now:    time.Now,
	}
}

// Get returns a live cached analysis. Store errors are treated as a miss.
func (c *FingerprintCache) Get(ctx context.Context, fp model.Fingerprint) (model.AnalysisResult, bool) {
	entry, ok, err := c.store.Get(ctx, fp)
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
		c.logger.Warn("analysis store read failed", "fingerprint", fp, "error", err)
		return model.AnalysisResult{}, false
	}
	if !ok || entry.Expired(c.now()) {
		return model.AnalysisResult{}, false
	}
	return entry.Result.WithCacheHit(), true
}

// ComputeOrWait returns the cached analysis for fp, or joins/starts the single
// computation for it. The computation runs detached from ctx so a caller that
// gives up does not cancel it for the others; the result is cached either way.
// With bypass set the cache read is skipped and the stored entry is replaced.
func (c *FingerprintCache) ComputeOrWait(ctx context.Context, fp model.Fingerprint, bypass bool, compute ComputeFunc) (model.AnalysisResult, error) {
	if bypass {
		metrics.CacheLookupsTotal.WithLabelValues("bypass").Inc()
	} else if r, ok := c.Get(ctx, fp); ok {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return r, nil
	}

	detached := context.WithoutCancel(ctx)
	leader := false
	ch := c.group.DoChan(string(fp), func() (interface{}, error) {
		leader = true
		if !bypass {
			// Another flight may have stored the result between our read and now.
			if r, ok := c.Get(detached, fp); ok {
				return r, nil
			}
		}
		result := compute(detached)
		result.Fingerprint = fp
		result.CacheHit = false
		if result.Available() {
			c.put(detached, result)
		}
		return result, nil
	})

	select {
	case res := <-ch:
		result := res.Val.(model.AnalysisResult)
		switch {
		case !leader:
			metrics.CacheLookupsTotal.WithLabelValues("shared").Inc()
			result = result.WithCacheHit()
		case !result.CacheHit && !bypass:
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
		return result, res.Err
	case <-ctx.Done():
		return model.AnalysisResult{}, ctx.Err()
	}
}

func (c *FingerprintCache) put(ctx context.Context, result model.AnalysisResult) {
	entry := model.NewCacheEntry(result, c.ttl, c.now())
	if err := c.store.Put(ctx, entry); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("put").Inc()
		c.logger.Warn("analysis store write failed", "fingerprint", result.Fingerprint, "error", err)
	}
}

// Ping checks the backing store.
func (c *FingerprintCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
