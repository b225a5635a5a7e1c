package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/metrics"
)

// ChainLink is one provider and the time budget for a single call to it.
type ChainLink struct {
	Provider outbound.AnalysisProvider
	Timeout  time.Duration
}

// ProviderChain tries providers in order until one produces an analysis.
type ProviderChain struct {
	links  []ChainLink
	logger *slog.Logger
}

// NewProviderChain validates the links and creates a ProviderChain.
func NewProviderChain(links []ChainLink, logger *slog.Logger) (*ProviderChain, error) {
	seen := make(map[string]bool, len(links))
	for i, l := range links {
		if l.Provider == nil {
			return nil, fmt.Errorf("provider chain link %d: nil provider", i)
		}
		if l.Timeout <= 0 {
			return nil, fmt.Errorf("provider %s: timeout must be positive", l.Provider.Name())
		}
		if seen[l.Provider.Name()] {
			return nil, fmt.Errorf("provider %s listed twice", l.Provider.Name())
		}
		seen[l.Provider.Name()] = true
	}
	return &ProviderChain{
		links:  links,
		logger: logger.With("component", "provider_chain"),
	}, nil
}

// Names returns the provider names in call order.
func (c *ProviderChain) Names() []string {
	names := make([]string, len(c.links))
	for i, l := range c.links {
		names[i] = l.Provider.Name()
	}
	return names
}

// maxDiagnosticPrompt bounds how much gateway output is sent to a provider.
const maxDiagnosticPrompt = 6000

// Analyze never returns an error: when every provider fails the synthetic
// "analysis unavailable" result is returned instead.
func (c *ProviderChain) Analyze(ctx context.Context, event model.AlertEvent) model.AnalysisResult {
	return c.analyze(ctx, event, analysisRequest(event))
}

// InterpretDiagnostics runs the chain over output collected by a diagnostic
// action. Failure semantics match Analyze.
func (c *ProviderChain) InterpretDiagnostics(ctx context.Context, event model.AlertEvent, output string) model.AnalysisResult {
	req := analysisRequest(event)
	req.DiagnosticOutput = truncate(output, maxDiagnosticPrompt)
	return c.analyze(ctx, event, req)
}

func (c *ProviderChain) analyze(ctx context.Context, event model.AlertEvent, req outbound.AnalysisRequest) model.AnalysisResult {
	fp := event.Fingerprint()
	attempts := make([]model.ProviderAttempt, 0, len(c.links))

	for i, link := range c.links {
		name := link.Provider.Name()
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, model.ProviderAttempt{Provider: name, Reason: classifyProviderError(err), Error: err.Error()})
			continue
		}

		start := time.Now()
		resp, err := c.call(ctx, link, req)
		latency := time.Since(start)
		metrics.ProviderLatency.WithLabelValues(name).Observe(latency.Seconds())

		if err != nil {
			reason := classifyProviderError(err)
			metrics.ProviderAttemptsTotal.WithLabelValues(name, string(reason)).Inc()
			c.logger.Warn("provider failed, advancing chain",
				"provider", name, "reason", reason, "latency", latency, "alertID", event.ID, "error", err)
			attempts = append(attempts, model.ProviderAttempt{
				Provider: name, Reason: reason, Error: err.Error(), Latency: latency,
			})
			continue
		}

		metrics.ProviderAttemptsTotal.WithLabelValues(name, "success").Inc()
		attempts = append(attempts, model.ProviderAttempt{Provider: name, Latency: latency})
		result := model.AnalysisResult{
			Fingerprint:       fp,
			Summary:           resp.Summary,
			RootCause:         resp.RootCause,
			RecommendedAction: resp.RecommendedAction,
			Confidence:        model.ClampConfidence(resp.Confidence),
			ProducedBy:        name,
			Model:             resp.Model,
			Degraded:          i > 0,
			FallbackReason:    model.FallbackReason(attempts),
			Attempts:          attempts,
			CreatedAt:         time.Now().UTC(),
		}
		if result.Degraded {
			c.logger.Info("analysis produced by fallback provider",
				"provider", name, "reason", result.FallbackReason, "alertID", event.ID)
		}
		return result
	}

	metrics.ChainExhaustedTotal.Inc()
	c.logger.Error("all analysis providers failed", "alertID", event.ID, "attempts", len(attempts))
	return model.UnavailableAnalysis(fp, attempts)
}

type providerResult struct {
	resp outbound.AnalysisResponse
	err  error
}

// call bounds a provider call by its timeout even if the adapter ignores ctx.
func (c *ProviderChain) call(ctx context.Context, link ChainLink, req outbound.AnalysisRequest) (outbound.AnalysisResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, link.Timeout)
	defer cancel()

	done := make(chan providerResult, 1)
	go func() {
		resp, err := link.Provider.Analyze(cctx, req)
		done <- providerResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-cctx.Done():
		return outbound.AnalysisResponse{}, cctx.Err()
	}
}

func classifyProviderError(err error) model.FailureReason {
	var netErr net.Error
	switch {
	case errors.Is(err, outbound.ErrRateLimited):
		return model.FailureRateLimited
	case errors.Is(err, outbound.ErrMalformedResponse):
		return model.FailureMalformed
	case errors.Is(err, context.DeadlineExceeded):
		return model.FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return model.FailureTimeout
	}
	return model.FailureUnavailable
}

func analysisRequest(e model.AlertEvent) outbound.AnalysisRequest {
	return outbound.AnalysisRequest{
		AlertID:       e.ID,
		TriggerName:   e.TriggerName,
		HostName:      e.HostName,
		Severity:      e.Severity.String(),
		ObservedValue: e.ObservedValue,
		OccurredAt:    e.OccurredAt,
		Description:   e.Description,
	}
}
