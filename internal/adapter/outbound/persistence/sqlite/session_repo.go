package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// SessionRepo implements outbound.SessionRepository using SQLite. The full
// session is kept as JSON next to the columns used for lookups.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo backed by the given store.
func NewSessionRepo(store *Store) *SessionRepo {
	return &SessionRepo{db: store.DB}
}

var _ outbound.SessionRepository = (*SessionRepo)(nil)

// Create inserts a session, failing with model.ErrSessionExists on a duplicate alert ID.
func (r *SessionRepo) Create(ctx context.Context, s model.AlertSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	const q = `INSERT INTO alert_sessions
		(alert_id, state, fingerprint, host_name, transport, chat_id, message_id, last_actor, data, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(alert_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q,
		s.AlertID, string(s.State), string(s.Event.Fingerprint()), s.Event.HostName,
		s.MessageRef.Transport, s.MessageRef.ChatID, s.MessageRef.MessageID,
		s.LastActor, string(data), s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", model.ErrSessionExists, s.AlertID)
	}
	return nil
}

// Get fetches the session for alertID.
func (r *SessionRepo) Get(ctx context.Context, alertID string) (model.AlertSession, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM alert_sessions WHERE alert_id = ?`, alertID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlertSession{}, fmt.Errorf("%w: %s", model.ErrSessionNotFound, alertID)
	}
	if err != nil {
		return model.AlertSession{}, fmt.Errorf("getting session: %w", err)
	}
	return decodeSession(data)
}

// Update replaces the stored session.
func (r *SessionRepo) Update(ctx context.Context, s model.AlertSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	const q = `UPDATE alert_sessions SET
		state = ?, transport = ?, chat_id = ?, message_id = ?, last_actor = ?, data = ?, updated_at = ?
		WHERE alert_id = ?`

	res, err := r.db.ExecContext(ctx, q,
		string(s.State), s.MessageRef.Transport, s.MessageRef.ChatID, s.MessageRef.MessageID,
		s.LastActor, string(data), s.UpdatedAt.UTC(), s.AlertID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, s.AlertID)
	}
	return nil
}

// ListByState returns sessions in any of the given states, most recently
// updated first. A limit <= 0 returns all of them.
func (r *SessionRepo) ListByState(ctx context.Context, states []model.SessionState, limit int) ([]model.AlertSession, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	args := make([]any, 0, len(states)+1)
	for _, st := range states {
		args = append(args, string(st))
	}
	q := `SELECT data FROM alert_sessions WHERE state IN (` + placeholders + `) ORDER BY updated_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []model.AlertSession
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes sessions created before the cutoff.
func (r *SessionRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alert_sessions WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func decodeSession(data string) (model.AlertSession, error) {
	var s model.AlertSession
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return model.AlertSession{}, fmt.Errorf("decoding session: %w", err)
	}
	return s, nil
}
