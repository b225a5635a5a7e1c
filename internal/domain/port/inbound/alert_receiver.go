package inbound

import (
	"context"
	"net/http"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// WebhookParser turns a source-specific payload into unvalidated alert drafts.
type WebhookParser interface {
	Source() string
	CanParse(r *http.Request) bool
	Parse(ctx context.Context, r *http.Request) ([]model.AlertDraft, error)
}

// ParserRegistry manages WebhookParser instances.
type ParserRegistry interface {
	Register(parser WebhookParser)
	Resolve(r *http.Request) (WebhookParser, error)
	Sources() []string
}

type IngestOptions struct {
	// BypassCache forces a fresh provider computation for this alert.
	BypassCache bool
}

type IngestStatus string

const (
	IngestAnalyzed IngestStatus = "analyzed"
	IngestPending  IngestStatus = "pending"
)

type IngestReceipt struct {
	AlertID     string
	Fingerprint model.Fingerprint
	Status      IngestStatus
	// Analysis is set only when it finished before the response deadline.
	Analysis *model.AnalysisResult
}

// AlertReceiverPort starts the analysis and notification flow for one alert.
type AlertReceiverPort interface {
	Ingest(ctx context.Context, event model.AlertEvent, opts IngestOptions) (IngestReceipt, error)
}
