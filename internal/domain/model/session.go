package model

import (
	"fmt"
	"time"
)

type SessionState string

const (
	StateNotified            SessionState = "notified"
	StateDiagnosticRunning   SessionState = "diagnostic_running"
	StateDiagnosticComplete  SessionState = "diagnostic_complete"
	StateDiagnosticFailed    SessionState = "diagnostic_failed"
	StateRemediationPending  SessionState = "remediation_pending"
	StateRemediationRunning  SessionState = "remediation_running"
	StateRemediationComplete SessionState = "remediation_complete"
	StateRemediationFailed   SessionState = "remediation_failed"
	StateAcknowledged        SessionState = "acknowledged"
	StateIgnored             SessionState = "ignored"
)

// settled states accept new operator actions.
var settledStates = []SessionState{
	StateNotified,
	StateDiagnosticComplete, StateDiagnosticFailed,
	StateRemediationComplete, StateRemediationFailed,
}

var transitions = map[SessionState][]SessionState{
	StateDiagnosticRunning:  {StateDiagnosticComplete, StateDiagnosticFailed},
	StateRemediationPending: {StateRemediationRunning, StateRemediationFailed, StateNotified},
	StateRemediationRunning: {StateRemediationComplete, StateRemediationFailed},
}

func init() {
	for _, s := range settledStates {
		next := []SessionState{StateDiagnosticRunning, StateRemediationPending, StateAcknowledged, StateIgnored}
		if s != StateNotified {
			next = append(next, StateNotified)
		}
		transitions[s] = next
	}
}

func (s SessionState) IsTerminal() bool {
	return s == StateAcknowledged || s == StateIgnored
}

func (s SessionState) IsRunning() bool {
	return s == StateDiagnosticRunning || s == StateRemediationPending || s == StateRemediationRunning
}

func (s SessionState) IsSettled() bool {
	for _, st := range settledStates {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MessageRef points at a dispatched chat message so it can be edited later.
type MessageRef struct {
	Transport string `json:"transport"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

func (r MessageRef) IsZero() bool {
	return r.ChatID == "" && r.MessageID == ""
}

type Transition struct {
	From   SessionState `json:"from,omitempty"`
	To     SessionState `json:"to"`
	Action Action       `json:"action,omitempty"`
	Actor  string       `json:"actor,omitempty"`
	Note   string       `json:"note,omitempty"`
	At     time.Time    `json:"at"`
}

// AlertSession is the post-notification lifecycle of one alert. Values are
// copied on every transition; the repository holds the current one.
type AlertSession struct {
	AlertID       string         `json:"alert_id"`
	State         SessionState   `json:"state"`
	MessageRef    MessageRef     `json:"message_ref"`
	LastActor     string         `json:"last_actor,omitempty"`
	Event         AlertEvent     `json:"event"`
	Analysis      AnalysisResult `json:"analysis"`
	LastAction    Action         `json:"last_action,omitempty"`
	LastReport    string         `json:"last_report,omitempty"`
	LastDiagnosis string         `json:"last_diagnosis,omitempty"`
	LastOutcome   SessionState   `json:"last_outcome,omitempty"`
	History       []Transition   `json:"history"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NewAlertSession(event AlertEvent, analysis AnalysisResult, ref MessageRef, now time.Time) AlertSession {
	now = now.UTC()
	return AlertSession{
		AlertID:    event.ID,
		State:      StateNotified,
		MessageRef: ref,
		Event:      event,
		Analysis:   analysis,
		History:    []Transition{{To: StateNotified, At: now}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition returns a copy of the session moved to the given state.
func (s AlertSession) Transition(to SessionState, action Action, actor, note string, at time.Time) (AlertSession, error) {
	if !CanTransition(s.State, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	at = at.UTC()
	history := make([]Transition, len(s.History), len(s.History)+1)
	copy(history, s.History)
	s.History = append(history, Transition{
		From: s.State, To: to, Action: action, Actor: actor, Note: note, At: at,
	})
	switch to {
	case StateDiagnosticComplete, StateDiagnosticFailed, StateRemediationComplete, StateRemediationFailed:
		s.LastOutcome = to
	}
	if actor != "" {
		s.LastActor = actor
	}
	if action != "" {
		s.LastAction = action
	}
	s.State = to
	s.UpdatedAt = at
	return s, nil
}

func (s AlertSession) WithReport(report string) AlertSession {
	s.LastReport = report
	return s
}

func (s AlertSession) WithDiagnosis(diagnosis string) AlertSession {
	s.LastDiagnosis = diagnosis
	return s
}

func (s AlertSession) WithMessageRef(ref MessageRef) AlertSession {
	s.MessageRef = ref
	return s
}

// RunningSince returns when the session entered its current state.
func (s AlertSession) RunningSince() time.Time {
	if n := len(s.History); n > 0 {
		return s.History[n-1].At
	}
	return s.UpdatedAt
}
