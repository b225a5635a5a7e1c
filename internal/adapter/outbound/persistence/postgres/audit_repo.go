package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// AuditRepo implements outbound.AuditRepository on PostgreSQL.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

var _ outbound.AuditRepository = (*AuditRepo)(nil)

func (r *AuditRepo) Create(ctx context.Context, log model.AuditLog) error {
	meta := log.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, event_type, alert_id, action, actor, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.pool.Exec(ctx, query,
		log.ID, string(log.EventType), log.AlertID, string(log.Action),
		log.Actor, log.Description, metaJSON, log.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

var allowedAuditOrderColumns = map[string]bool{
	"created_at": true, "event_type": true, "actor": true, "alert_id": true, "action": true,
}

func (r *AuditRepo) List(ctx context.Context, filter outbound.AuditFilter, page outbound.PageRequest) (outbound.PageResult[model.AuditLog], error) {
	where, args := buildAuditWhere(filter)

	var total int64
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("failed to count audit logs: %w", err)
	}

	orderCol := "created_at"
	if page.OrderBy != "" {
		if !allowedAuditOrderColumns[page.OrderBy] {
			return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("invalid order column: %q", page.OrderBy)
		}
		orderCol = page.OrderBy
	}
	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}
	size := page.Size
	if size <= 0 {
		size = 20
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT id, event_type, alert_id, action, actor, description, metadata, created_at
		FROM audit_logs%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`, where, orderCol, dir, dir, n+1, n+2)

	rows, err := r.db.pool.Query(ctx, query, append(args, size, page.Page*size)...)
	if err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var items []model.AuditLog
	for rows.Next() {
		var l model.AuditLog
		var eventType, action string
		var metaJSON []byte
		if err := rows.Scan(&l.ID, &eventType, &l.AlertID, &action, &l.Actor, &l.Description, &metaJSON, &l.CreatedAt); err != nil {
			return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("failed to scan audit log: %w", err)
		}
		l.EventType = model.AuditEventType(eventType)
		l.Action = model.Action(action)
		if err := json.Unmarshal(metaJSON, &l.Metadata); err != nil {
			l.Metadata = make(map[string]string)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("failed to iterate audit logs: %w", err)
	}

	return outbound.PageResult[model.AuditLog]{
		Items:      items,
		TotalCount: total,
		Page:       page.Page,
		Size:       size,
	}, nil
}

func buildAuditWhere(f outbound.AuditFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.AlertID != "" {
		add("alert_id = $%d", f.AlertID)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Actor != "" {
		add("actor = $%d", f.Actor)
	}
	if f.Since != nil {
		add("created_at >= $%d", f.Since.UTC())
	}
	if f.Until != nil {
		add("created_at <= $%d", f.Until.UTC())
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
