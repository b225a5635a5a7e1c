package outbound

import (
	"context"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

type PageRequest struct {
	Page    int
	Size    int
	OrderBy string
	Desc    bool
}

type PageResult[T any] struct {
	Items      []T
	TotalCount int64
	Page       int
	Size       int
}

type AuditFilter struct {
	AlertID   string
	EventType string
	Action    string
	Actor     string
	Since     *time.Time
	Until     *time.Time
}

// SessionRepository stores one AlertSession per alert ID.
type SessionRepository interface {
	// Create fails with model.ErrSessionExists if the alert already has a session.
	Create(ctx context.Context, session model.AlertSession) error
	// Get fails with model.ErrSessionNotFound.
	Get(ctx context.Context, alertID string) (model.AlertSession, error)
	Update(ctx context.Context, session model.AlertSession) error
	ListByState(ctx context.Context, states []model.SessionState, limit int) ([]model.AlertSession, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type AuditRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	List(ctx context.Context, filter AuditFilter, page PageRequest) (PageResult[model.AuditLog], error)
}
