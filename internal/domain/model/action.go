package model

import (
	"fmt"
	"strings"
)

// Action is an operator request delivered by a chat button or command.
type Action string

const (
	ActionDiagnostic Action = "diagnostic"
	ActionFix        Action = "fix"
	ActionRestart    Action = "restart"
	ActionMetrics    Action = "metrics"
	ActionAck        Action = "ack"
	ActionIgnore     Action = "ignore"
)

// AllActions is the order in which controls are rendered.
var AllActions = []Action{ActionDiagnostic, ActionMetrics, ActionRestart, ActionFix, ActionAck, ActionIgnore}

var actionAliases = map[string]Action{
	"diagnostic":      ActionDiagnostic,
	"diag":            ActionDiagnostic,
	"diagnose":        ActionDiagnostic,
	"fix":             ActionFix,
	"confirm_fix":     ActionFix,
	"restart":         ActionRestart,
	"restart_service": ActionRestart,
	"metrics":         ActionMetrics,
	"ack":             ActionAck,
	"acknowledge":     ActionAck,
	"ignore":          ActionIgnore,
}

func ParseAction(s string) (Action, error) {
	if a, ok := actionAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a Action) Label() string {
	switch a {
	case ActionDiagnostic:
		return "🔍 Diagnostic"
	case ActionFix:
		return "🔧 Fix"
	case ActionRestart:
		return "🔄 Restart"
	case ActionMetrics:
		return "📊 Metrics"
	case ActionAck:
		return "✅ Ack"
	case ActionIgnore:
		return "🔕 Ignore"
	}
	return string(a)
}

// IsRemediation reports whether the action changes the target host.
func (a Action) IsRemediation() bool {
	return a == ActionFix || a == ActionRestart
}

// IsDiagnostic reports whether the action only reads from the target host.
func (a Action) IsDiagnostic() bool {
	return a == ActionDiagnostic || a == ActionMetrics
}

// CallbackData encodes the action for a chat button as "action:alert_id".
func CallbackData(a Action, alertID string) string {
	return string(a) + ":" + alertID
}

// ParseCallbackData splits "action:alert_id".
func ParseCallbackData(data string) (Action, string, error) {
	name, alertID, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok || alertID == "" {
		return "", "", fmt.Errorf("malformed callback data %q", data)
	}
	a, err := ParseAction(name)
	if err != nil {
		return "", "", err
	}
	return a, alertID, nil
}
