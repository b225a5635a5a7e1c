package outbound

import (
	"context"
	"time"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

type DiagnosticRequest struct {
	AlertID    string
	Host       string
	Action     model.Action
	Parameters map[string]string
}

type DiagnosticReport struct {
	JobID    string
	Host     string
	Action   model.Action
	Output   string
	Duration time.Duration
}

// GatewayError carries a short human-readable reason for the chat.
type GatewayError struct {
	Reason  string
	Timeout bool
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *GatewayError) Unwrap() error { return e.Err }

// DiagnosticsGateway runs a diagnostic or remediation playbook against a host.
type DiagnosticsGateway interface {
	Run(ctx context.Context, req DiagnosticRequest) (DiagnosticReport, error)
	HealthCheck(ctx context.Context) error
}
