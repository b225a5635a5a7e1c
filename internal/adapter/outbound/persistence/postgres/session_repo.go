package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// SessionRepo implements outbound.SessionRepository on PostgreSQL.
type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

var _ outbound.SessionRepository = (*SessionRepo)(nil)

func (r *SessionRepo) Create(ctx context.Context, s model.AlertSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	query := `
		INSERT INTO alert_sessions
			(alert_id, state, fingerprint, host_name, transport, chat_id, message_id, last_actor, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (alert_id) DO NOTHING
	`
	tag, err := r.db.pool.Exec(ctx, query,
		s.AlertID, string(s.State), string(s.Event.Fingerprint()), s.Event.HostName,
		s.MessageRef.Transport, s.MessageRef.ChatID, s.MessageRef.MessageID,
		s.LastActor, data, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrSessionExists, s.AlertID)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, alertID string) (model.AlertSession, error) {
	var data []byte
	err := r.db.pool.QueryRow(ctx, `SELECT data FROM alert_sessions WHERE alert_id = $1`, alertID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AlertSession{}, fmt.Errorf("%w: %s", model.ErrSessionNotFound, alertID)
	}
	if err != nil {
		return model.AlertSession{}, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeSession(data)
}

func (r *SessionRepo) Update(ctx context.Context, s model.AlertSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	query := `
		UPDATE alert_sessions
		SET state = $2, transport = $3, chat_id = $4, message_id = $5, last_actor = $6, data = $7, updated_at = $8
		WHERE alert_id = $1
	`
	tag, err := r.db.pool.Exec(ctx, query,
		s.AlertID, string(s.State), s.MessageRef.Transport, s.MessageRef.ChatID, s.MessageRef.MessageID,
		s.LastActor, data, s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, s.AlertID)
	}
	return nil
}

// ListByState returns sessions in any of the given states, most recently
// updated first.
func (r *SessionRepo) ListByState(ctx context.Context, states []model.SessionState, limit int) ([]model.AlertSession, error) {
	if len(states) == 0 {
		return nil, nil
	}
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	query := `SELECT data FROM alert_sessions WHERE state = ANY($1) ORDER BY updated_at DESC`
	args := []any{names}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.AlertSession
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM alert_sessions WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func decodeSession(data []byte) (model.AlertSession, error) {
	var s model.AlertSession
	if err := json.Unmarshal(data, &s); err != nil {
		return model.AlertSession{}, fmt.Errorf("decoding session: %w", err)
	}
	return s, nil
}
