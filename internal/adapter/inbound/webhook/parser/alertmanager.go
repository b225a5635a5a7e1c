package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// alertManagerPayload represents the Prometheus AlertManager webhook group payload.
type alertManagerPayload struct {
	Version           string              `json:"version"`
	GroupKey          string              `json:"groupKey"`
	Status            string              `json:"status"`
	Receiver          string              `json:"receiver"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	Alerts            []alertManagerAlert `json:"alerts"`
}

type alertManagerAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// AlertManagerParser parses Prometheus AlertManager webhook payloads.
type AlertManagerParser struct{}

func NewAlertManagerParser() *AlertManagerParser {
	return &AlertManagerParser{}
}

func (a *AlertManagerParser) Source() string {
	return string(model.AlertSourceAlertManager)
}

// CanParse checks the path, the X-Prometheus-Alert header and the
// Alertmanager user agent.
func (a *AlertManagerParser) CanParse(r *http.Request) bool {
	if r.Header.Get("X-Prometheus-Alert") != "" {
		return true
	}
	if strings.HasPrefix(r.UserAgent(), "Alertmanager/") {
		return true
	}
	path := strings.ToLower(r.URL.Path)
	return strings.Contains(path, "alertmanager") || strings.Contains(path, "prometheus")
}

// Parse extracts one draft per alert in the group. Alert labels take
// precedence over the group's common labels.
func (a *AlertManagerParser) Parse(_ context.Context, r *http.Request) ([]model.AlertDraft, error) {
	var payload alertManagerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("alertmanager: failed to decode JSON: %w", err)
	}

	drafts := make([]model.AlertDraft, 0, len(payload.Alerts))
	for _, am := range payload.Alerts {
		labels := merge(payload.CommonLabels, am.Labels)
		annotations := merge(payload.CommonAnnotations, am.Annotations)

		description := annotations["description"]
		if description == "" {
			description = annotations["message"]
		}
		if summary := annotations["summary"]; summary != "" && summary != description {
			if description == "" {
				description = summary
			} else {
				description = summary + "\n" + description
			}
		}

		status := model.AlertStatusProblem
		if strings.EqualFold(am.Status, "resolved") {
			status = model.AlertStatusResolved
		}

		drafts = append(drafts, model.AlertDraft{
			Source:        model.AlertSourceAlertManager,
			TriggerName:   labels["alertname"],
			HostName:      hostFromLabels(labels),
			Severity:      amSeverity(labels["severity"]),
			ObservedValue: annotations["value"],
			OccurredAt:    am.StartsAt,
			Description:   description,
			EventID:       am.Fingerprint,
			Status:        status,
		})
	}
	return drafts, nil
}

// amSeverity maps an AlertManager severity label onto the Zabbix scale.
// Unknown labels pass through so validation can reject them.
func amSeverity(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "page", "disaster", "p1":
		return model.SeverityDisaster.String()
	case "critical", "error", "high", "p2":
		return model.SeverityHigh.String()
	case "major", "average", "p3":
		return model.SeverityAverage.String()
	case "warning", "warn", "medium", "p4":
		return model.SeverityWarning.String()
	case "info", "information", "low", "none", "p5":
		return model.SeverityInformation.String()
	}
	return label
}

// hostFromLabels prefers an explicit host label, then the instance without its port.
func hostFromLabels(labels map[string]string) string {
	for _, key := range []string{"host", "hostname", "node", "instance"} {
		v := labels[key]
		if v == "" {
			continue
		}
		if h, _, err := net.SplitHostPort(v); err == nil {
			return h
		}
		return v
	}
	return ""
}

func merge(common, own map[string]string) map[string]string {
	out := make(map[string]string, len(common)+len(own))
	for k, v := range common {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}
