package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type AlertSource string

const (
	AlertSourceZabbix       AlertSource = "zabbix"
	AlertSourceAlertManager AlertSource = "alertmanager"
)

type AlertStatus string

const (
	AlertStatusProblem  AlertStatus = "PROBLEM"
	AlertStatusResolved AlertStatus = "RESOLVED"
)

// Severity follows the Zabbix trigger severity scale. The zero value is not a
// valid severity.
type Severity int

const (
	SeverityInformation Severity = iota + 1
	SeverityWarning
	SeverityAverage
	SeverityHigh
	SeverityDisaster
)

var severityNames = map[Severity]string{
	SeverityInformation: "Information",
	SeverityWarning:     "Warning",
	SeverityAverage:     "Average",
	SeverityHigh:        "High",
	SeverityDisaster:    "Disaster",
}

var severityAliases = map[string]Severity{
	"information": SeverityInformation,
	"info":        SeverityInformation,
	"warning":     SeverityWarning,
	"warn":        SeverityWarning,
	"average":     SeverityAverage,
	"avg":         SeverityAverage,
	"high":        SeverityHigh,
	"disaster":    SeverityDisaster,
}

// ParseSeverity accepts a Zabbix severity name (case-insensitive) or the
// numeric trigger priority 1..5.
func ParseSeverity(s string) (Severity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("severity is empty")
	}
	if sev, ok := severityAliases[strings.ToLower(s)]; ok {
		return sev, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		sev := Severity(n)
		if sev.Valid() {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unrecognized severity %q", s)
}

func (s Severity) Valid() bool {
	return s >= SeverityInformation && s <= SeverityDisaster
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Marker returns the fixed chat marker for the severity.
func (s Severity) Marker() string {
	switch s {
	case SeverityInformation:
		return "ℹ️"
	case SeverityWarning:
		return "⚠️"
	case SeverityAverage:
		return "🟠"
	case SeverityHigh:
		return "🔴"
	case SeverityDisaster:
		return "🔥"
	}
	return "❔"
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	sev, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// AlertDraft carries the raw ingestion fields before validation.
type AlertDraft struct {
	Source        AlertSource
	TriggerName   string
	HostName      string
	Severity      string
	ObservedValue string
	OccurredAt    time.Time
	Description   string
	EventID       string
	Status        AlertStatus
}

// AlertEvent is immutable once built by NewAlertEvent.
type AlertEvent struct {
	ID            string      `json:"alert_id"`
	Source        AlertSource `json:"source"`
	TriggerName   string      `json:"trigger_name"`
	HostName      string      `json:"host_name"`
	Severity      Severity    `json:"severity"`
	ObservedValue string      `json:"observed_value,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Description   string      `json:"description,omitempty"`
	EventID       string      `json:"event_id,omitempty"`
	Status        AlertStatus `json:"status"`
	ReceivedAt    time.Time   `json:"received_at"`
}

// NewAlertEvent validates the draft and assigns a fresh alert ID.
func NewAlertEvent(d AlertDraft) (AlertEvent, error) {
	var verr ValidationError
	trigger := strings.TrimSpace(d.TriggerName)
	host := strings.TrimSpace(d.HostName)
	if trigger == "" {
		verr.Add("trigger_name", "is required")
	}
	if host == "" {
		verr.Add("host_name", "is required")
	}
	var sev Severity
	if strings.TrimSpace(d.Severity) == "" {
		verr.Add("severity", "is required")
	} else if parsed, err := ParseSeverity(d.Severity); err != nil {
		verr.Add("severity", err.Error())
	} else {
		sev = parsed
	}
	if verr.HasErrors() {
		return AlertEvent{}, &verr
	}

	now := time.Now().UTC()
	occurred := d.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	source := d.Source
	if source == "" {
		source = AlertSourceZabbix
	}
	status := d.Status
	if status == "" {
		status = AlertStatusProblem
	}
	return AlertEvent{
		ID:            NewAlertID(),
		Source:        source,
		TriggerName:   trigger,
		HostName:      host,
		Severity:      sev,
		ObservedValue: strings.TrimSpace(d.ObservedValue),
		OccurredAt:    occurred.UTC(),
		Description:   strings.TrimSpace(d.Description),
		EventID:       d.EventID,
		Status:        status,
		ReceivedAt:    now,
	}, nil
}

// Fingerprint is derived from trigger, host and severity only.
func (e AlertEvent) Fingerprint() Fingerprint {
	return NewFingerprint(e.TriggerName, e.HostName, e.Severity)
}

func (e AlertEvent) IsResolved() bool {
	return e.Status == AlertStatusResolved
}
