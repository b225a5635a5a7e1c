package model

import "time"

type AuditEventType string

const (
	AuditAlertReceived    AuditEventType = "alert.received"
	AuditAlertNotified    AuditEventType = "alert.notified"
	AuditNotifyFailed     AuditEventType = "alert.notify_failed"
	AuditAnalysisComplete AuditEventType = "analysis.completed"
	AuditPermissionDenied AuditEventType = "action.denied"
	AuditActionStarted    AuditEventType = "action.started"
	AuditActionCompleted  AuditEventType = "action.completed"
	AuditActionFailed     AuditEventType = "action.failed"
	AuditSessionClosed    AuditEventType = "session.closed"
)

type AuditLog struct {
	ID          string            `json:"id"`
	EventType   AuditEventType    `json:"event_type"`
	AlertID     string            `json:"alert_id"`
	Action      Action            `json:"action"`
	Actor       string            `json:"actor"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
}

func NewAuditLog(eventType AuditEventType, alertID, actor, description string) AuditLog {
	return AuditLog{
		ID:          generateID(),
		EventType:   eventType,
		AlertID:     alertID,
		Actor:       actor,
		Description: description,
		Metadata:    make(map[string]string),
		CreatedAt:   time.Now().UTC(),
	}
}

func (a AuditLog) WithAction(action Action) AuditLog {
	a.Action = action
	return a
}

func (a AuditLog) WithMetadata(key, value string) AuditLog {
	meta := make(map[string]string, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		meta[k] = v
	}
	meta[key] = value
	a.Metadata = meta
	return a
}
