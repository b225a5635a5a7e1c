// Package chat contains chat transports. The root package holds the no-op
// transport used when no chat platform is configured.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// NoopTransport logs notifications instead of sending them.
// Used in local development when no chat platform is configured.
type NoopTransport struct {
	logger *slog.Logger
	seq    atomic.Int64
}

func NewNoopTransport(logger *slog.Logger) *NoopTransport {
	return &NoopTransport{logger: logger}
}

var _ outbound.ChatTransport = (*NoopTransport)(nil)

func (n *NoopTransport) Name() string { return "noop" }

func (n *NoopTransport) Send(_ context.Context, target string, msg outbound.Message) (model.MessageRef, error) {
	id := n.seq.Add(1)
	n.logger.Info("noop: notification",
		"target", target,
		"title", msg.Title,
		"actions", len(msg.Actions),
	)
	return model.MessageRef{Transport: "noop", ChatID: target, MessageID: fmt.Sprintf("noop-%d", id)}, nil
}

func (n *NoopTransport) Edit(_ context.Context, ref model.MessageRef, msg outbound.Message) error {
	n.logger.Info("noop: notification edited",
		"messageID", ref.MessageID,
		"title", msg.Title,
		"sections", len(msg.Sections),
	)
	return nil
}
