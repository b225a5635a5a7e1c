package service

import (
	"context"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// Analyzer is the only component that talks to both the fingerprint cache and
// the provider chain.
type Analyzer struct {
	cache *FingerprintCache
	chain *ProviderChain
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cache *FingerprintCache, chain *ProviderChain) *Analyzer {
	return &Analyzer{cache: cache, chain: chain}
}

// AnalyzeOrCached returns the cached analysis for the event's fingerprint or
// computes it through the provider chain exactly once across concurrent callers.
func (a *Analyzer) AnalyzeOrCached(ctx context.Context, event model.AlertEvent, bypassCache bool) (model.AnalysisResult, error) {
	return a.cache.ComputeOrWait(ctx, event.Fingerprint(), bypassCache, func(cctx context.Context) model.AnalysisResult {
		return a.chain.Analyze(cctx, event)
	})
}

// InterpretDiagnostics asks the provider chain to explain diagnostic output
// for event. Results depend on the output and are never cached.
func (a *Analyzer) InterpretDiagnostics(ctx context.Context, event model.AlertEvent, output string) model.AnalysisResult {
	return a.chain.InterpretDiagnostics(ctx, event, output)
}

// DiagnosticInterpreter turns gateway output into an AI analysis.
type DiagnosticInterpreter interface {
	InterpretDiagnostics(ctx context.Context, event model.AlertEvent, output string) model.AnalysisResult
}

var _ DiagnosticInterpreter = (*Analyzer)(nil)
