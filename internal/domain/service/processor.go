package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/metrics"
)

// ProcessorConfig bounds gateway runs and session lifetime.
type ProcessorConfig struct {
	// ActionTimeout is the watchdog bound for one diagnostics/remediation run.
	ActionTimeout time.Duration
	// StaleGrace is added to ActionTimeout before the sweep fails a session
	// left in a running state, e.g. by a process restart.
	StaleGrace time.Duration
	// InterpretTimeout bounds the AI reading of diagnostic output.
	InterpretTimeout time.Duration
	// Retention is how long sessions are kept after creation.
	Retention time.Duration
	ListLimit int
}

// Processor authorizes operator callbacks and commands and drives the per-alert
// session state machine.
type Processor struct {
	sessions   outbound.SessionRepository
	audits     outbound.AuditRepository
	authz      *Authorizer
	gateway     outbound.DiagnosticsGateway
	interpreter DiagnosticInterpreter
	dispatcher  *Dispatcher
	locks       *AlertLocks
	cfg         ProcessorConfig
	logger      *slog.Logger
	now         func() time.Time
	wg          sync.WaitGroup
}

// NewProcessor creates a Processor. A nil interpreter leaves diagnostic output
// uninterpreted.
func NewProcessor(
	sessions outbound.SessionRepository,
	audits outbound.AuditRepository,
	authz *Authorizer,
	gateway outbound.DiagnosticsGateway,
	interpreter DiagnosticInterpreter,
	dispatcher *Dispatcher,
	locks *AlertLocks,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if locks == nil {
		locks = NewAlertLocks()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 2 * time.Minute
	}
	if cfg.InterpretTimeout <= 0 {
		cfg.InterpretTimeout = time.Minute
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 20
	}
	return &Processor{
		sessions:    sessions,
		audits:      audits,
		authz:       authz,
		gateway:     gateway,
		interpreter: interpreter,
		dispatcher:  dispatcher,
		locks:       locks,
		cfg:         cfg,
		logger:      logger.With("component", "processor"),
		now:         time.Now,
	}
}

var _ inbound.InteractionPort = (*Processor)(nil)

// HandleCallback implements inbound.InteractionPort for button presses.
// Diagnostics and remediation continue in the background after it returns.
func (p *Processor) HandleCallback(ctx context.Context, req inbound.CallbackRequest) (inbound.Reply, error) {
	action, err := model.ParseAction(req.Action)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("unknown", "rejected").Inc()
		return inbound.Reply{Text: fmt.Sprintf("❓ Unknown action %q", req.Action)}, nil
	}
	actor := actorName(req.Actor)
	logger := p.logger.With("alertID", req.AlertID, "action", action, "actor", actor)

	decision := p.authz.Authorize(req.Actor.ID, action)
	if !decision.Allowed {
		metrics.CallbacksTotal.WithLabelValues(string(action), "denied").Inc()
		logger.Warn("callback denied", "role", decision.Role)
		p.audit(ctx, model.NewAuditLog(model.AuditPermissionDenied, req.AlertID, actor, decision.Reason).
			WithAction(action).
			WithMetadata("role", string(decision.Role)))
		return inbound.Reply{Text: decision.Reason, Denied: true}, nil
	}

	unlock := p.locks.Lock(req.AlertID)
	session, err := p.sessions.Get(ctx, req.AlertID)
	if err != nil {
		unlock()
		if errors.Is(err, model.ErrSessionNotFound) {
			metrics.CallbacksTotal.WithLabelValues(string(action), "not_found").Inc()
			return inbound.Reply{Text: fmt.Sprintf("Alert %s not found or expired", req.AlertID)}, nil
		}
		return inbound.Reply{}, fmt.Errorf("loading session %s: %w", req.AlertID, err)
	}

	switch {
	case session.State.IsTerminal():
		unlock()
		metrics.CallbacksTotal.WithLabelValues(string(action), "closed").Inc()
		return inbound.Reply{
			Text:  fmt.Sprintf("Alert already %s by %s", session.State, session.LastActor),
			State: session.State,
		}, nil
	case session.State.IsRunning():
		unlock()
		metrics.CallbacksTotal.WithLabelValues(string(action), "busy").Inc()
		return inbound.Reply{
			Text:  fmt.Sprintf("⏳ %s is already in progress for this alert", session.LastAction),
			State: session.State,
		}, nil
	}

	if action == model.ActionAck || action == model.ActionIgnore {
		defer unlock()
		return p.close(ctx, session, action, actor)
	}

	started, err := p.start(ctx, session, action, actor)
	unlock()
	if err != nil {
		return inbound.Reply{}, err
	}
	metrics.CallbacksTotal.WithLabelValues(string(action), "started").Inc()
	logger.Info("action started", "state", started.State)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(context.WithoutCancel(ctx), started, action, actor)
	}()

	return inbound.Reply{
		Text:  fmt.Sprintf("⏳ %s started on %s", action, started.Event.HostName),
		State: started.State,
	}, nil
}

// close moves a session to a terminal state. Caller holds the alert lock.
func (p *Processor) close(ctx context.Context, s model.AlertSession, action model.Action, actor string) (inbound.Reply, error) {
	to := model.StateAcknowledged
	verb := "acknowledged"
	if action == model.ActionIgnore {
		to = model.StateIgnored
		verb = "ignored"
	}
	next, err := s.Transition(to, action, actor, "", p.now())
	if err != nil {
		return inbound.Reply{Text: err.Error(), State: s.State}, nil
	}
	if err := p.sessions.Update(ctx, next); err != nil {
		return inbound.Reply{}, fmt.Errorf("saving session %s: %w", s.AlertID, err)
	}

	p.editMessage(ctx, next, fmt.Sprintf("%s %s by %s", closeMarker(action), titleCase(verb), actor))
	p.audit(ctx, model.NewAuditLog(model.AuditSessionClosed, s.AlertID, actor, "alert "+verb).WithAction(action))
	metrics.CallbacksTotal.WithLabelValues(string(action), "closed").Inc()

	return inbound.Reply{Text: fmt.Sprintf("%s Alert %s", closeMarker(action), verb), State: next.State}, nil
}

// start moves a settled session into the running state for action. Caller
// holds the alert lock.
func (p *Processor) start(ctx context.Context, s model.AlertSession, action model.Action, actor string) (model.AlertSession, error) {
	now := p.now()
	var (
		next model.AlertSession
		err  error
	)
	if action.IsRemediation() {
		next, err = s.Transition(model.StateRemediationPending, action, actor, "", now)
		if err == nil {
			next, err = next.Transition(model.StateRemediationRunning, action, actor, "", now)
		}
	} else {
		next, err = s.Transition(model.StateDiagnosticRunning, action, actor, "", now)
	}
	if err != nil {
		return s, err
	}
	next = next.WithReport("").WithDiagnosis("")
	if err := p.sessions.Update(ctx, next); err != nil {
		return s, fmt.Errorf("saving session %s: %w", s.AlertID, err)
	}

	p.editMessage(ctx, next, fmt.Sprintf("⏳ %s running on %s (requested by %s)", action, s.Event.HostName, actor))
	p.audit(ctx, model.NewAuditLog(model.AuditActionStarted, s.AlertID, actor, string(action)+" started").WithAction(action))
	return next, nil
}

// run calls the gateway and records the outcome. started is the session value
// written by start; if the stored session moved on meanwhile (watchdog sweep)
// the late result is dropped.
func (p *Processor) run(ctx context.Context, started model.AlertSession, action model.Action, actor string) {
	begin := p.now()
	report, runErr := p.runGateway(ctx, outbound.DiagnosticRequest{
		AlertID: started.AlertID,
		Host:    started.Event.HostName,
		Action:  action,
		Parameters: map[string]string{
			"trigger_name": started.Event.TriggerName,
			"severity":     started.Event.Severity.String(),
			"requested_by": actor,
		},
	})
	metrics.GatewayDuration.WithLabelValues(string(action)).Observe(p.now().Sub(begin).Seconds())

	var diagnosis string
	if runErr == nil && action.IsDiagnostic() {
		diagnosis = p.interpret(ctx, started, report.Output)
	}

	unlock := p.locks.Lock(started.AlertID)
	defer unlock()

	current, err := p.sessions.Get(ctx, started.AlertID)
	if err != nil {
		p.logger.Error("reloading session after gateway run", "alertID", started.AlertID, "error", err)
		return
	}
	if current.State != started.State || len(current.History) != len(started.History) {
		p.logger.Warn("session changed while action was running, dropping result",
			"alertID", started.AlertID, "state", current.State)
		return
	}
	p.finish(ctx, current, action, actor, report, diagnosis, runErr)
}

// interpret asks the provider chain to read diagnostic output. It returns ""
// when there is nothing to read or no provider answered.
func (p *Processor) interpret(ctx context.Context, s model.AlertSession, output string) string {
	if p.interpreter == nil || strings.TrimSpace(output) == "" {
		return ""
	}
	ictx, cancel := context.WithTimeout(ctx, p.cfg.InterpretTimeout)
	defer cancel()

	result := p.interpreter.InterpretDiagnostics(ictx, s.Event, output)
	if result.ProducedBy == model.ProducedByNone {
		p.logger.Warn("no provider interpreted diagnostic output", "alertID", s.AlertID)
		return ""
	}
	return RenderDiagnosis(result)
}

type gatewayResult struct {
	report outbound.DiagnosticReport
	err    error
}

// runGateway enforces ActionTimeout even when the gateway ignores ctx.
func (p *Processor) runGateway(ctx context.Context, req outbound.DiagnosticRequest) (outbound.DiagnosticReport, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.ActionTimeout)
	defer cancel()

	done := make(chan gatewayResult, 1)
	go func() {
		r, err := p.gateway.Run(cctx, req)
		done <- gatewayResult{report: r, err: err}
	}()

	select {
	case r := <-done:
		return r.report, r.err
	case <-cctx.Done():
		return outbound.DiagnosticReport{}, &outbound.GatewayError{
			Reason:  fmt.Sprintf("timed out after %s", p.cfg.ActionTimeout),
			Timeout: true,
			Err:     cctx.Err(),
		}
	}
}

// finish records Complete or Failed, returns the session to Notified and edits
// the notification in place. Caller holds the alert lock.
func (p *Processor) finish(ctx context.Context, s model.AlertSession, action model.Action, actor string, report outbound.DiagnosticReport, diagnosis string, runErr error) {
	now := p.now()
	outcome := completeState(action)
	status := fmt.Sprintf("✅ %s finished on %s", action, s.Event.HostName)
	note := ""
	if runErr != nil {
		outcome = failedState(action)
		note = gatewayReason(runErr)
		status = fmt.Sprintf("❌ %s failed on %s: %s", action, s.Event.HostName, note)
		s = s.WithReport("").WithDiagnosis("")
	} else {
		s = s.WithReport(report.Output).WithDiagnosis(diagnosis)
		if report.Duration > 0 {
			status += fmt.Sprintf(" in %s", report.Duration.Round(time.Second))
		}
	}

	next, err := s.Transition(outcome, action, "", note, now)
	if err == nil {
		next, err = next.Transition(model.StateNotified, "", "", "", now)
	}
	if err != nil {
		p.logger.Error("completing session", "alertID", s.AlertID, "error", err)
		return
	}
	if err := p.sessions.Update(ctx, next); err != nil {
		p.logger.Error("saving session", "alertID", s.AlertID, "error", err)
	}

	p.editMessage(ctx, next, status)

	result := "success"
	evt := model.AuditActionCompleted
	if runErr != nil {
		result = "failure"
		evt = model.AuditActionFailed
		var ge *outbound.GatewayError
		if errors.As(runErr, &ge) && ge.Timeout {
			result = "timeout"
		}
		p.logger.Warn("action failed", "alertID", s.AlertID, "action", action, "reason", note)
	} else {
		p.logger.Info("action completed", "alertID", s.AlertID, "action", action, "jobID", report.JobID)
	}
	metrics.GatewayRunsTotal.WithLabelValues(string(action), result).Inc()
	p.audit(ctx, model.NewAuditLog(evt, s.AlertID, actor, status).
		WithAction(action).
		WithMetadata("outcome", string(outcome)).
		WithMetadata("job_id", report.JobID).
		WithMetadata("diagnosed", boolString(diagnosis != "")))
}

// editMessage is a no-op until the orchestrator has attached the message ref.
func (p *Processor) editMessage(ctx context.Context, s model.AlertSession, status string) {
	if s.MessageRef.MessageID == "" {
		p.logger.Debug("notification not delivered yet, skipping edit", "alertID", s.AlertID)
		return
	}
	msg := RenderSession(s, AvailableActions(s.Event), status)
	if err := p.dispatcher.Edit(ctx, s.MessageRef, msg); err != nil {
		p.logger.Error("editing notification", "alertID", s.AlertID, "error", err)
	}
}

func (p *Processor) audit(ctx context.Context, log model.AuditLog) {
	if p.audits == nil {
		return
	}
	_ = p.audits.Create(ctx, log)
}

// Wait blocks until background gateway runs have finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// --- maintenance ---

var runningStates = []model.SessionState{
	model.StateDiagnosticRunning,
	model.StateRemediationPending,
	model.StateRemediationRunning,
}

// ReapStale fails sessions that have been running longer than the watchdog
// bound plus grace. It returns the number of sessions failed.
func (p *Processor) ReapStale(ctx context.Context) (int, error) {
	running, err := p.sessions.ListByState(ctx, runningStates, 0)
	if err != nil {
		return 0, fmt.Errorf("listing running sessions: %w", err)
	}
	deadline := p.cfg.ActionTimeout + p.cfg.StaleGrace
	reaped := 0
	for _, s := range running {
		if p.now().Sub(s.RunningSince()) < deadline {
			continue
		}
		if p.reap(ctx, s.AlertID, deadline) {
			reaped++
		}
	}
	return reaped, nil
}

func (p *Processor) reap(ctx context.Context, alertID string, deadline time.Duration) bool {
	unlock := p.locks.Lock(alertID)
	defer unlock()

	s, err := p.sessions.Get(ctx, alertID)
	if err != nil || !s.State.IsRunning() || p.now().Sub(s.RunningSince()) < deadline {
		return false
	}
	metrics.SessionsReapedTotal.Inc()
	p.logger.Warn("failing stale running session", "alertID", alertID, "state", s.State)
	p.finish(ctx, s, s.LastAction, s.LastActor, outbound.DiagnosticReport{}, "", &outbound.GatewayError{
		Reason:  fmt.Sprintf("no result within %s", deadline),
		Timeout: true,
	})
	return true
}

// PurgeExpired deletes sessions older than the retention window.
func (p *Processor) PurgeExpired(ctx context.Context) (int64, error) {
	if p.cfg.Retention <= 0 {
		return 0, nil
	}
	return p.sessions.DeleteOlderThan(ctx, p.now().Add(-p.cfg.Retention))
}

// RunMaintenance runs ReapStale and PurgeExpired every interval until ctx is done.
func (p *Processor) RunMaintenance(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := p.ReapStale(ctx); err != nil {
				p.logger.Error("watchdog sweep failed", "error", err)
			} else if n > 0 {
				p.logger.Info("watchdog failed stale sessions", "count", n)
			}
			if n, err := p.PurgeExpired(ctx); err != nil {
				p.logger.Error("session purge failed", "error", err)
			} else if n > 0 {
				p.logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}

// --- commands ---

// HandleCommand implements inbound.InteractionPort for text commands such as
// "/status <alert_id>" or "/restart <alert_id>".
func (p *Processor) HandleCommand(ctx context.Context, req inbound.CommandRequest) (inbound.Reply, error) {
	fields := strings.Fields(req.Text)
	if len(fields) == 0 {
		return inbound.Reply{Text: p.helpText(req.Actor)}, nil
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	cmd, _, _ = strings.Cut(cmd, "@")
	args := fields[1:]

	switch cmd {
	case "start", "help":
		return inbound.Reply{Text: p.helpText(req.Actor)}, nil
	case "whoami":
		role, ok := p.authz.Identify(req.Actor.ID)
		if !ok {
			return inbound.Reply{Text: fmt.Sprintf("👤 %s (id %s) is not registered", actorName(req.Actor), req.Actor.ID)}, nil
		}
		return inbound.Reply{Text: fmt.Sprintf("👤 %s (id %s) role: %s", actorName(req.Actor), req.Actor.ID, role)}, nil
	case "list", "alerts":
		return p.listActive(ctx)
	case "status":
		if len(args) == 0 {
			return inbound.Reply{Text: "Usage: /status <alert_id>"}, nil
		}
		return p.status(ctx, args[0])
	}

	action, err := model.ParseAction(cmd)
	if err != nil {
		return inbound.Reply{Text: fmt.Sprintf("❓ Unknown command /%s. Try /help", cmd)}, nil
	}
	if len(args) == 0 {
		return inbound.Reply{Text: fmt.Sprintf("Usage: /%s <alert_id>", action)}, nil
	}
	return p.HandleCallback(ctx, inbound.CallbackRequest{
		Action:  string(action),
		AlertID: args[0],
		Actor:   req.Actor,
	})
}

func (p *Processor) helpText(actor inbound.Actor) string {
	var b strings.Builder
	b.WriteString("🤖 Zabbix AI alert bot\n\n")
	b.WriteString("/list - active alerts\n")
	b.WriteString("/status <alert_id> - alert state\n")
	b.WriteString("/whoami - your role\n")
	for _, a := range model.AllActions {
		fmt.Fprintf(&b, "/%s <alert_id>\n", a)
	}
	if allowed := p.authz.Permitted(actor.ID); len(allowed) > 0 {
		names := make([]string, len(allowed))
		for i, a := range allowed {
			names[i] = string(a)
		}
		fmt.Fprintf(&b, "\nYou may use: %s", strings.Join(names, ", "))
	}
	return b.String()
}

func (p *Processor) listActive(ctx context.Context) (inbound.Reply, error) {
	states := append([]model.SessionState{model.StateNotified,
		model.StateDiagnosticComplete, model.StateDiagnosticFailed,
		model.StateRemediationComplete, model.StateRemediationFailed}, runningStates...)
	sessions, err := p.sessions.ListByState(ctx, states, p.cfg.ListLimit)
	if err != nil {
		return inbound.Reply{}, fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		return inbound.Reply{Text: "✅ No active alerts"}, nil
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Event.Severity > sessions[j].Event.Severity
	})
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 %d active alert(s)\n", len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(&b, "\n%s %s on %s\n   %s · %s", s.Event.Severity.Marker(), s.Event.TriggerName,
			s.Event.HostName, s.AlertID, s.State)
	}
	return inbound.Reply{Text: b.String()}, nil
}

func (p *Processor) status(ctx context.Context, alertID string) (inbound.Reply, error) {
	s, err := p.sessions.Get(ctx, alertID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return inbound.Reply{Text: fmt.Sprintf("Alert %s not found or expired", alertID)}, nil
	}
	if err != nil {
		return inbound.Reply{}, fmt.Errorf("loading session %s: %w", alertID, err)
	}
	text := fmt.Sprintf("%s %s on %s\nState: %s\n%s",
		s.Event.Severity.Marker(), s.Event.TriggerName, s.Event.HostName, s.State, Provenance(s.Analysis))
	if s.LastOutcome != "" {
		text += fmt.Sprintf("\nLast outcome: %s (%s by %s)", s.LastOutcome, s.LastAction, s.LastActor)
	}
	return inbound.Reply{Text: text, State: s.State}, nil
}

// --- helpers ---

func completeState(a model.Action) model.SessionState {
	if a.IsRemediation() {
		return model.StateRemediationComplete
	}
	return model.StateDiagnosticComplete
}

func failedState(a model.Action) model.SessionState {
	if a.IsRemediation() {
		return model.StateRemediationFailed
	}
	return model.StateDiagnosticFailed
}

func gatewayReason(err error) string {
	var ge *outbound.GatewayError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return truncate(err.Error(), 200)
}

func closeMarker(a model.Action) string {
	if a == model.ActionIgnore {
		return "🔕"
	}
	return "✅"
}

func actorName(a inbound.Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
