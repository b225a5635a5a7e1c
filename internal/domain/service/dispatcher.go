package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/metrics"
)

// DispatcherConfig controls where and how notifications are delivered.
type DispatcherConfig struct {
	DefaultTarget string
	// Routes overrides the target for specific severities.
	Routes          map[model.Severity]string
	CallTimeout     time.Duration
	RetryMaxElapsed time.Duration
}

// Dispatcher renders alerts into chat messages and keeps one message per alert
// up to date.
type Dispatcher struct {
	transport outbound.ChatTransport
	cfg       DispatcherConfig
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher for the given transport.
func NewDispatcher(transport outbound.ChatTransport, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Dispatcher{
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "dispatcher", "transport", transport.Name()),
	}
}

// Send posts a new notification and returns its reference.
func (d *Dispatcher) Send(ctx context.Context, event model.AlertEvent, analysis model.AnalysisResult, actions []model.Action) (model.MessageRef, error) {
	msg := RenderAlert(event, analysis, actions)
	target := d.targetFor(event.Severity)

	var ref model.MessageRef
	err := d.retry(ctx, "send", func(cctx context.Context) error {
		r, err := d.transport.Send(cctx, target, msg)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("sending notification for alert %s: %w", event.ID, err)
	}
	return ref, nil
}

// Edit replaces the content of an existing notification in place.
func (d *Dispatcher) Edit(ctx context.Context, ref model.MessageRef, msg outbound.Message) error {
	if ref.IsZero() {
		return fmt.Errorf("editing notification: empty message reference")
	}
	err := d.retry(ctx, "edit", func(cctx context.Context) error {
		return d.transport.Edit(cctx, ref, msg)
	})
	if err != nil {
		return fmt.Errorf("editing notification %s: %w", ref.MessageID, err)
	}
	return nil
}

func (d *Dispatcher) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = d.cfg.RetryMaxElapsed

	var attempt int
	operation := func() error {
		attempt++
		cctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
		return fn(cctx)
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("chat call failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
	}

	var policy backoff.BackOff = b
	if d.cfg.RetryMaxElapsed <= 0 {
		policy = &backoff.StopBackOff{}
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.ChatCallsTotal.WithLabelValues(d.transport.Name(), op, result).Inc()
	return err
}

func (d *Dispatcher) targetFor(sev model.Severity) string {
	if t, ok := d.cfg.Routes[sev]; ok && t != "" {
		return t
	}
	return d.cfg.DefaultTarget
}

// --- rendering ---

const maxReportLen = 3000

// RenderAlert builds the initial notification for an alert.
func RenderAlert(event model.AlertEvent, analysis model.AnalysisResult, actions []model.Action) outbound.Message {
	title := fmt.Sprintf("%s %s: %s", event.Severity.Marker(), strings.ToUpper(event.Severity.String()), event.TriggerName)
	if event.IsResolved() {
		title = fmt.Sprintf("✅ RESOLVED: %s", event.TriggerName)
	}

	fields := []outbound.Field{
		{Label: "Host", Value: event.HostName},
		{Label: "Severity", Value: event.Severity.String()},
	}
	if event.ObservedValue != "" {
		fields = append(fields, outbound.Field{Label: "Value", Value: event.ObservedValue})
	}
	fields = append(fields, outbound.Field{Label: "Time", Value: event.OccurredAt.Format("2006-01-02 15:04:05 MST")})
	if event.EventID != "" {
		fields = append(fields, outbound.Field{Label: "Event", Value: event.EventID})
	}

	sections := []outbound.Section{}
	if event.Description != "" {
		sections = append(sections, outbound.Section{Title: "📝 Description", Body: event.Description})
	}
	sections = append(sections,
		outbound.Section{Title: "🤖 AI Analysis", Body: analysis.Summary},
		outbound.Section{Title: "🔎 Root Cause", Body: analysis.RootCause},
		outbound.Section{Title: "🛠 Recommended Action", Body: analysis.RecommendedAction},
	)

	buttons := make([]outbound.Button, 0, len(actions))
	for _, a := range actions {
		buttons = append(buttons, outbound.Button{
			Label:   a.Label(),
			Action:  a,
			AlertID: event.ID,
			Style:   buttonStyle(a),
		})
	}

	return outbound.Message{
		Title:    title,
		Severity: event.Severity,
		Fields:   fields,
		Sections: sections,
		Footer:   Provenance(analysis) + " · alert " + event.ID,
		Actions:  buttons,
	}
}

// RenderSession re-renders a notification for the current session state.
// Controls are attached only while the session accepts new actions.
func RenderSession(s model.AlertSession, actions []model.Action, status string) outbound.Message {
	if !s.State.IsSettled() {
		actions = nil
	}
	msg := RenderAlert(s.Event, s.Analysis, actions)
	if s.LastReport != "" {
		msg.Sections = append(msg.Sections, outbound.Section{
			Title: fmt.Sprintf("📋 %s report", titleCase(string(s.LastAction))),
			Body:  truncate(s.LastReport, maxReportLen),
		})
	}
	if s.LastDiagnosis != "" {
		msg.Sections = append(msg.Sections, outbound.Section{Title: "🧠 AI Diagnosis", Body: s.LastDiagnosis})
	}
	if status != "" {
		msg.Sections = append(msg.Sections, outbound.Section{Title: "Status", Body: status})
	}
	if s.LastActor != "" {
		msg.Footer += " · last action by " + s.LastActor
	}
	return msg
}

// RenderDiagnosis formats an AI reading of diagnostic output.
func RenderDiagnosis(a model.AnalysisResult) string {
	var b strings.Builder
	b.WriteString(a.Summary)
	if a.RootCause != "" {
		b.WriteString("\nRoot cause: " + a.RootCause)
	}
	if a.RecommendedAction != "" {
		b.WriteString("\nNext step: " + a.RecommendedAction)
	}
	b.WriteString("\n" + Provenance(a))
	return b.String()
}

// Provenance renders which provider answered and how much to trust it.
func Provenance(a model.AnalysisResult) string {
	parts := []string{
		"Analysis by " + a.ProducedBy,
		fmt.Sprintf("confidence %.0f%%", a.Confidence*100),
	}
	if a.Degraded {
		if a.FallbackReason != "" {
			parts = append(parts, "degraded ("+a.FallbackReason+")")
		} else {
			parts = append(parts, "degraded")
		}
	}
	if a.CacheHit {
		parts = append(parts, "cached")
	}
	return strings.Join(parts, " · ")
}

func buttonStyle(a model.Action) outbound.ButtonStyle {
	switch a {
	case model.ActionFix, model.ActionIgnore:
		return outbound.ButtonDanger
	case model.ActionDiagnostic, model.ActionAck:
		return outbound.ButtonPrimary
	}
	return outbound.ButtonDefault
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n… (truncated)"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
