package model

import (
	"math"
	"strings"
	"time"
)

const (
	ProducedByNone         = "none"
	UnavailableSummary     = "analysis unavailable"
	UnavailableRootCause   = "No AI provider produced an analysis for this alert"
	UnavailableRecommended = "Investigate manually or run a diagnostic"
)

// FailureReason classifies why a provider in the chain was skipped.
type FailureReason string

const (
	FailureTimeout     FailureReason = "timeout"
	FailureRateLimited FailureReason = "rate_limited"
	FailureMalformed   FailureReason = "malformed"
	FailureUnavailable FailureReason = "unavailable"
)

type ProviderAttempt struct {
	Provider string        `json:"provider"`
	Reason   FailureReason `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency"`
}

type AnalysisResult struct {
	Fingerprint       Fingerprint       `json:"fingerprint"`
	Summary           string            `json:"summary"`
	RootCause         string            `json:"root_cause"`
	RecommendedAction string            `json:"recommended_action"`
	Confidence        float64           `json:"confidence"`
	ProducedBy        string            `json:"produced_by"`
	Model             string            `json:"model,omitempty"`
	Degraded          bool              `json:"degraded"`
	CacheHit          bool              `json:"cache_hit"`
	FallbackReason    string            `json:"fallback_reason,omitempty"`
	Attempts          []ProviderAttempt `json:"attempts,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// UnavailableAnalysis is the synthetic result used when every provider failed.
func UnavailableAnalysis(fp Fingerprint, attempts []ProviderAttempt) AnalysisResult {
	return AnalysisResult{
		Fingerprint:       fp,
		Summary:           UnavailableSummary,
		RootCause:         UnavailableRootCause,
		RecommendedAction: UnavailableRecommended,
		Confidence:        0,
		ProducedBy:        ProducedByNone,
		Degraded:          true,
		FallbackReason:    FallbackReason(attempts),
		Attempts:          attempts,
		CreatedAt:         time.Now().UTC(),
	}
}

// FallbackReason renders failed attempts as "gemini: timeout; groq: rate_limited".
func FallbackReason(attempts []ProviderAttempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Reason == "" {
			continue
		}
		parts = append(parts, a.Provider+": "+string(a.Reason))
	}
	return strings.Join(parts, "; ")
}

func (a AnalysisResult) WithCacheHit() AnalysisResult {
	a.CacheHit = true
	return a
}

// Available reports whether some provider produced this result.
func (a AnalysisResult) Available() bool {
	return a.ProducedBy != "" && a.ProducedBy != ProducedByNone
}

func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// CacheEntry is owned by the fingerprint cache and never mutated.
type CacheEntry struct {
	Fingerprint Fingerprint    `json:"fingerprint"`
	Result      AnalysisResult `json:"result"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

func NewCacheEntry(result AnalysisResult, ttl time.Duration, now time.Time) CacheEntry {
	return CacheEntry{
		Fingerprint: result.Fingerprint,
		Result:      result,
		ExpiresAt:   now.Add(ttl),
	}
}

// Expired reports whether the entry must no longer be served.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
