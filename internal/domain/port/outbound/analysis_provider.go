package outbound

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned when a provider explicitly refuses for quota reasons.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrMalformedResponse is returned when no analysis could be extracted.
	ErrMalformedResponse = errors.New("malformed provider response")
)

type AnalysisRequest struct {
	AlertID       string
	TriggerName   string
	HostName      string
	Severity      string
	ObservedValue string
	OccurredAt    time.Time
	Description   string

	// DiagnosticOutput, when set, asks the provider to interpret output
	// collected from the host instead of the bare alert.
	DiagnosticOutput string
}

type AnalysisResponse struct {
	Summary           string
	RootCause         string
	RecommendedAction string
	Confidence        float64
	Model             string
}

// AnalysisProvider is one AI backend in the fallback chain.
type AnalysisProvider interface {
	Name() string
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResponse, error)
}

// HealthChecker is implemented by adapters that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
