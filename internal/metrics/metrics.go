// Package metrics exposes Prometheus collectors for the alert pipeline:
// ingestion, analysis cache and provider chain, chat delivery and operator
// interactions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "zabbix_ai"
)

// Ingestion metrics.
var (
	// AlertsIngestedTotal counts accepted alerts by severity.
	AlertsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_ingested_total",
			Help:      "Total number of alerts accepted by the webhook",
		},
		[]string{"source", "severity"},
	)

	// AlertsRejectedTotal counts payloads rejected during validation.
	AlertsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_rejected_total",
			Help:      "Total number of webhook payloads rejected",
		},
		[]string{"reason"},
	)

	// IngestFlowDuration measures alert receipt to notification sent.
	IngestFlowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_flow_duration_seconds",
			Help:      "Time from alert receipt to notification dispatch in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Analysis metrics.
var (
	// CacheLookupsTotal counts fingerprint cache outcomes: hit, miss, shared, bypass.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_lookups_total",
			Help:      "Fingerprint cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// CacheErrorsTotal counts analysis store failures.
	CacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_cache_errors_total",
			Help:      "Analysis store errors by operation",
		},
		[]string{"op"},
	)

	// ProviderAttemptsTotal counts provider calls by outcome.
	ProviderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "AI provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderLatency measures a single provider call.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "AI provider call latency in seconds",
			Buckets:   []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider"},
	)

	// ChainExhaustedTotal counts analyses where every provider failed.
	ChainExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_chain_exhausted_total",
			Help:      "Analyses for which no provider produced a result",
		},
	)
)

// Chat and interaction metrics.
var (
	// ChatCallsTotal counts transport calls by operation and result.
	ChatCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_calls_total",
			Help:      "Chat transport calls by transport, operation and result",
		},
		[]string{"transport", "op", "result"},
	)

	// CallbacksTotal counts operator interactions by action and outcome.
	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Operator callbacks by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// GatewayRunsTotal counts diagnostics gateway runs.
	GatewayRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_runs_total",
			Help:      "Diagnostics gateway runs by action and result",
		},
		[]string{"action", "result"},
	)

	// GatewayDuration measures diagnostics gateway runs.
	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_duration_seconds",
			Help:      "Diagnostics gateway run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"action"},
	)

	// SessionsReapedTotal counts sessions failed by the watchdog sweep.
	SessionsReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_reaped_total",
			Help:      "Sessions moved out of a running state by the watchdog",
		},
	)
)

// BuildInfo is always 1; its labels identify the running binary.
var BuildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information of the running zabbix-ai binary",
	},
	[]string{"version", "commit", "go_version"},
)
