package diagnostics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// NoopGateway is a diagnostics gateway for local development without a
// playbook runner. Every run succeeds with a placeholder report.
type NoopGateway struct {
	logger *slog.Logger
}

// NewNoopGateway creates a NoopGateway suitable for local dev mode.
func NewNoopGateway(logger *slog.Logger) *NoopGateway {
	return &NoopGateway{logger: logger.With("component", "noop_gateway")}
}

var _ outbound.DiagnosticsGateway = (*NoopGateway)(nil)

func (n *NoopGateway) Run(_ context.Context, req outbound.DiagnosticRequest) (outbound.DiagnosticReport, error) {
	n.logger.Info("skipping playbook run, no runner configured", "host", req.Host, "action", req.Action)
	return outbound.DiagnosticReport{
		JobID:  "noop",
		Host:   req.Host,
		Action: req.Action,
		Output: fmt.Sprintf("%s on %s skipped: no playbook runner configured", req.Action, req.Host),
	}, nil
}

func (n *NoopGateway) HealthCheck(_ context.Context) error {
	return nil
}
