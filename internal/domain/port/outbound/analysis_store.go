package outbound

import (
	"context"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// AnalysisStore persists cache entries keyed by fingerprint. Implementations
// must never return an entry whose ExpiresAt has passed.
type AnalysisStore interface {
	Get(ctx context.Context, fp model.Fingerprint) (model.CacheEntry, bool, error)
	Put(ctx context.Context, entry model.CacheEntry) error
	Delete(ctx context.Context, fp model.Fingerprint) error
	Ping(ctx context.Context) error
}
