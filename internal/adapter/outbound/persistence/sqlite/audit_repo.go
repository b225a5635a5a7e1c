package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

const defaultAuditPageSize = 20

// AuditRepo is the append-only audit trail of alerts and operator actions.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{db: store.DB}
}

var _ outbound.AuditRepository = (*AuditRepo)(nil)

func (r *AuditRepo) Create(ctx context.Context, entry model.AuditLog) error {
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling audit metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO audit_logs
		(id, event_type, alert_id, action, actor, description, metadata, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		entry.ID, string(entry.EventType), entry.AlertID, string(entry.Action),
		entry.Actor, entry.Description, string(metaJSON), entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log %s for alert %s: %w", entry.EventType, entry.AlertID, err)
	}
	return nil
}

// auditSortable lists the columns List may order by.
var auditSortable = map[string]bool{
	"created_at": true, "event_type": true, "actor": true, "alert_id": true, "action": true,
}

// List pages through the trail. The total rides along each row as a window
// count, so only an empty page needs a separate COUNT.
func (r *AuditRepo) List(ctx context.Context, filter outbound.AuditFilter, page outbound.PageRequest) (outbound.PageResult[model.AuditLog], error) {
	order := "created_at"
	if page.OrderBy != "" {
		if !auditSortable[page.OrderBy] {
			return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("invalid order column: %q", page.OrderBy)
		}
		order = page.OrderBy
	}
	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}
	size := page.Size
	if size <= 0 {
		size = defaultAuditPageSize
	}

	where, args := auditWhere(filter)
	query := `SELECT id, event_type, alert_id, action, actor, description, metadata, created_at,
		COUNT(*) OVER () FROM audit_logs` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT ? OFFSET ?", order, dir, dir)

	rows, err := r.db.QueryContext(ctx, query, append(args, size, page.Page*size)...)
	if err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("listing audit logs: %w", err)
	}
	defer rows.Close()

	result := outbound.PageResult[model.AuditLog]{Page: page.Page, Size: size}
	for rows.Next() {
		var (
			entry                   model.AuditLog
			eventType, action, meta string
		)
		if err := rows.Scan(&entry.ID, &eventType, &entry.AlertID, &action, &entry.Actor,
			&entry.Description, &meta, &entry.CreatedAt, &result.TotalCount); err != nil {
			return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("scanning audit log: %w", err)
		}
		entry.EventType = model.AuditEventType(eventType)
		entry.Action = model.Action(action)
		if json.Unmarshal([]byte(meta), &entry.Metadata) != nil || entry.Metadata == nil {
			entry.Metadata = map[string]string{}
		}
		result.Items = append(result.Items, entry)
	}
	if err := rows.Err(); err != nil {
		return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("iterating audit logs: %w", err)
	}

	if len(result.Items) == 0 && page.Page > 0 {
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&result.TotalCount); err != nil {
			return outbound.PageResult[model.AuditLog]{}, fmt.Errorf("counting audit logs: %w", err)
		}
	}
	return result, nil
}

func auditWhere(f outbound.AuditFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	eq := func(column string, v any) {
		clauses = append(clauses, column+" = ?")
		args = append(args, v)
	}

	if f.AlertID != "" {
		eq("alert_id", f.AlertID)
	}
	if f.EventType != "" {
		eq("event_type", f.EventType)
	}
	if f.Action != "" {
		eq("action", f.Action)
	}
	if f.Actor != "" {
		eq("actor", f.Actor)
	}
	if f.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.Until.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
