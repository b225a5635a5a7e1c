package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/metrics"
)

// OrchestratorConfig bounds the ingestion response and the background flow.
type OrchestratorConfig struct {
	// ResponseDeadline is how long Ingest waits for the analysis before
	// replying with a pending receipt.
	ResponseDeadline time.Duration
	// FlowTimeout caps analysis plus dispatch for one alert.
	FlowTimeout time.Duration
}

// Orchestrator runs the analysis -> notification -> session flow for each
// ingested alert and implements inbound.AlertReceiverPort.
type Orchestrator struct {
	analyzer   *Analyzer
	dispatcher *Dispatcher
	sessions   outbound.SessionRepository
	audits     outbound.AuditRepository
	locks      *AlertLocks
	cfg        OrchestratorConfig
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator with all required dependencies.
// locks must be the instance given to the Processor; nil creates a private one.
func NewOrchestrator(
	analyzer *Analyzer,
	dispatcher *Dispatcher,
	sessions outbound.SessionRepository,
	audits outbound.AuditRepository,
	locks *AlertLocks,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if locks == nil {
		locks = NewAlertLocks()
	}
	if cfg.ResponseDeadline <= 0 {
		cfg.ResponseDeadline = 3 * time.Second
	}
	if cfg.FlowTimeout <= 0 {
		cfg.FlowTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		analyzer:   analyzer,
		dispatcher: dispatcher,
		sessions:   sessions,
		audits:     audits,
		locks:      locks,
		cfg:        cfg,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Ensure Orchestrator satisfies the inbound port at compile time.
var _ inbound.AlertReceiverPort = (*Orchestrator)(nil)

// Ingest starts exactly one flow for event and returns once the analysis is
// available or the response deadline passes, whichever is first. The flow is
// detached from ctx and keeps running after Ingest returns.
func (o *Orchestrator) Ingest(ctx context.Context, event model.AlertEvent, opts inbound.IngestOptions) (inbound.IngestReceipt, error) {
	metrics.AlertsIngestedTotal.WithLabelValues(string(event.Source), event.Severity.String()).Inc()
	o.logger.Info("alert received",
		"alertID", event.ID, "trigger", event.TriggerName, "host", event.HostName,
		"severity", event.Severity, "bypassCache", opts.BypassCache)
	o.audit(ctx, model.NewAuditLog(model.AuditAlertReceived, event.ID, string(event.Source), event.TriggerName).
		WithMetadata("host", event.HostName).
		WithMetadata("severity", event.Severity.String()))

	analyzed := make(chan model.AnalysisResult, 1)
	flowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FlowTimeout)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.process(flowCtx, event, opts, analyzed)
	}()

	receipt := inbound.IngestReceipt{
		AlertID:     event.ID,
		Fingerprint: event.Fingerprint(),
		Status:      inbound.IngestPending,
	}
	timer := time.NewTimer(o.cfg.ResponseDeadline)
	defer timer.Stop()

	select {
	case result := <-analyzed:
		receipt.Status = inbound.IngestAnalyzed
		receipt.Analysis = &result
	case <-timer.C:
		o.logger.Debug("response deadline passed, analysis continues in background", "alertID", event.ID)
	case <-ctx.Done():
	}
	return receipt, nil
}

func (o *Orchestrator) process(ctx context.Context, event model.AlertEvent, opts inbound.IngestOptions, analyzed chan<- model.AnalysisResult) {
	start := time.Now()
	logger := o.logger.With("alertID", event.ID)

	analysis, err := o.analyzer.AnalyzeOrCached(ctx, event, opts.BypassCache)
	if err != nil {
		logger.Error("analysis aborted, notifying without it", "error", err)
		analysis = model.UnavailableAnalysis(event.Fingerprint(), nil)
	}
	analyzed <- analysis
	o.audit(ctx, model.NewAuditLog(model.AuditAnalysisComplete, event.ID, analysis.ProducedBy, analysis.Summary).
		WithMetadata("degraded", boolString(analysis.Degraded)).
		WithMetadata("cache_hit", boolString(analysis.CacheHit)))

	// Dispatch gets its own budget so a slow analysis cannot starve the notification.
	dispatchCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ResponseDeadline+o.dispatcher.cfg.CallTimeout)
		defer cancel()
	}

	// The session exists before the buttons do, so an early press finds it.
	actions := AvailableActions(event)
	session := model.NewAlertSession(event, analysis, model.MessageRef{}, time.Now())
	created := true
	if err := o.sessions.Create(dispatchCtx, session); err != nil {
		created = false
		if errors.Is(err, model.ErrSessionExists) {
			logger.Warn("session already exists for alert")
			return
		}
		logger.Error("creating alert session, notifying without controls", "error", err)
		actions = nil
	}

	ref, err := o.dispatcher.Send(dispatchCtx, event, analysis, actions)
	if err != nil {
		logger.Error("notification could not be delivered", "error", err)
		o.audit(dispatchCtx, model.NewAuditLog(model.AuditNotifyFailed, event.ID, "", err.Error()))
		return
	}
	metrics.IngestFlowDuration.Observe(time.Since(start).Seconds())

	if created {
		o.attachMessage(dispatchCtx, event.ID, ref)
	}
	o.audit(dispatchCtx, model.NewAuditLog(model.AuditAlertNotified, event.ID, "", "notification sent").
		WithMetadata("message_id", ref.MessageID).
		WithMetadata("produced_by", analysis.ProducedBy))
	logger.Info("alert notified",
		"producedBy", analysis.ProducedBy, "degraded", analysis.Degraded,
		"cacheHit", analysis.CacheHit, "duration", time.Since(start))
}

// attachMessage records where the notification landed on the latest session
// value, which a callback may already have moved on.
func (o *Orchestrator) attachMessage(ctx context.Context, alertID string, ref model.MessageRef) {
	unlock := o.locks.Lock(alertID)
	defer unlock()

	current, err := o.sessions.Get(ctx, alertID)
	if err != nil {
		o.logger.Error("reloading session to attach message", "alertID", alertID, "error", err)
		return
	}
	if err := o.sessions.Update(ctx, current.WithMessageRef(ref)); err != nil {
		o.logger.Error("attaching message to session", "alertID", alertID, "error", err)
	}
}

// Shutdown waits for in-flight flows or until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) audit(ctx context.Context, log model.AuditLog) {
	if o.audits == nil {
		return
	}
	_ = o.audits.Create(ctx, log)
}

// AvailableActions returns the controls attached to an alert notification.
// Resolved alerts carry none.
func AvailableActions(event model.AlertEvent) []model.Action {
	if event.IsResolved() {
		return nil
	}
	return model.AllActions
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
