package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/middleware"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/inbound/webhook/parser"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/metrics"
	"github.com/ddphuc01/Zabbix-Monitoring/pkg/apierror"
)

// Handler is the main HTTP handler for incoming webhook alerts.
type Handler struct {
	registry *parser.Registry
	receiver inbound.AlertReceiverPort
	logger   *slog.Logger
}

func NewHandler(registry *parser.Registry, receiver inbound.AlertReceiverPort, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		receiver: receiver,
		logger:   logger.With("component", "webhook"),
	}
}

type alertReceipt struct {
	AlertID     string               `json:"alert_id"`
	Status      inbound.IngestStatus `json:"status"`
	Fingerprint string               `json:"fingerprint"`
	CacheHit    bool                 `json:"cache_hit,omitempty"`
	Degraded    bool                 `json:"degraded,omitempty"`
	Summary     string               `json:"summary,omitempty"`
}

type acceptedResponse struct {
	Accepted int            `json:"accepted"`
	Alerts   []alertReceipt `json:"alerts"`
}

// ServeHTTP validates every alert in the payload before ingesting any, so
// a rejected batch starts no flows.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Resolve(r)
	if err != nil {
		metrics.AlertsRejectedTotal.WithLabelValues("unsupported_source").Inc()
		apierror.Write(w, apierror.WithDetail(http.StatusBadRequest, "unsupported webhook source", err.Error()))
		return
	}
	source := p.Source()

	drafts, err := p.Parse(r.Context(), r)
	if err != nil {
		metrics.AlertsRejectedTotal.WithLabelValues("malformed").Inc()
		apierror.Write(w, apierror.WithDetail(http.StatusBadRequest, "failed to parse webhook payload", err.Error()))
		return
	}
	if len(drafts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	events := make([]model.AlertEvent, 0, len(drafts))
	for _, d := range drafts {
		event, err := model.NewAlertEvent(d)
		if err != nil {
			metrics.AlertsRejectedTotal.WithLabelValues("invalid").Inc()
			h.writeValidationError(w, err)
			return
		}
		events = append(events, event)
	}

	opts := inbound.IngestOptions{BypassCache: bypassRequested(r)}
	receipts := make([]alertReceipt, len(events))
	g, ctx := errgroup.WithContext(r.Context())
	for i, event := range events {
		g.Go(func() error {
			receipt, err := h.receiver.Ingest(ctx, event, opts)
			if err != nil {
				return err
			}
			receipts[i] = toReceipt(receipt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.Error("ingesting alerts failed", "source", source, "error", err)
		apierror.Write(w, apierror.Internal("failed to process alerts"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(acceptedResponse{Accepted: len(receipts), Alerts: receipts})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		apierror.Write(w, apierror.WithDetail(http.StatusBadRequest, "invalid alert payload", err.Error()))
		return
	}
	fields := make([]apierror.FieldError, len(verr.Fields))
	for i, f := range verr.Fields {
		fields[i] = apierror.FieldError{Field: f.Field, Message: f.Message}
	}
	apierror.Write(w, apierror.Validation(fields))
}

func toReceipt(r inbound.IngestReceipt) alertReceipt {
	out := alertReceipt{
		AlertID:     r.AlertID,
		Status:      r.Status,
		Fingerprint: string(r.Fingerprint),
	}
	if r.Analysis != nil {
		out.CacheHit = r.Analysis.CacheHit
		out.Degraded = r.Analysis.Degraded
		out.Summary = r.Analysis.Summary
	}
	return out
}

// bypassRequested reports whether the caller asked for a fresh analysis via
// ?refresh=true, the X-Cache-Bypass header, or a force_refresh body field.
func bypassRequested(r *http.Request) bool {
	if truthy(r.URL.Query().Get("refresh")) || truthy(r.Header.Get("X-Cache-Bypass")) {
		return true
	}
	body, ok := middleware.RawBody(r.Context())
	if !ok || len(body) == 0 || body[0] != '{' {
		return false
	}
	var probe struct {
		ForceRefresh any `json:"force_refresh"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	switch v := probe.ForceRefresh.(type) {
	case bool:
		return v
	case string:
		return truthy(v)
	case float64:
		return v != 0
	}
	return false
}

func truthy(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
